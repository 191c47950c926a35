package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct{ err error }

func (t fakeToken) Wait() bool { return true }

func (t fakeToken) WaitTimeout(time.Duration) bool { return true }

func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (t fakeToken) Error() error { return t.err }

type publishRecord struct {
	topic   string
	payload []byte
	qos     byte
}

type fakeClient struct {
	mu           sync.Mutex
	published    []publishRecord
	failPublish  bool
	connectErr   error
	connected    bool
	unsubscribed []string
}

func (c *fakeClient) Connect() pahomqtt.Token {
	if c.connectErr != nil {
		return fakeToken{c.connectErr}
	}
	c.connected = true
	return fakeToken{}
}

func (c *fakeClient) Disconnect(quiesce uint) { c.connected = false }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	if c.failPublish {
		return fakeToken{errors.New("publish rejected")}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, publishRecord{topic, payload.([]byte), qos})
	return fakeToken{}
}

func (c *fakeClient) Subscribe(topic string, qos byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	return fakeToken{}
}

func (c *fakeClient) SubscribeMultiple(filters map[string]byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	return fakeToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribed = append(c.unsubscribed, topics...)
	return fakeToken{}
}

func (c *fakeClient) AddRoute(topic string, cb pahomqtt.MessageHandler) {}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) IsConnectionOpen() bool { return c.connected }

func (c *fakeClient) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

func threeTargets() []TargetConfig {
	return []TargetConfig{
		{Name: "alpha", Host: "a.example", Port: 1883, Enabled: true, QoS: 1},
		{Name: "beta", Host: "b.example", Port: 1883, Enabled: true, QoS: 0, TopicPrefix: "mirror"},
		{Name: "gamma", Host: "c.example", Port: 8883, Enabled: true, QoS: 2, TLS: true, TLSInsecure: true},
	}
}

func TestRelayFansOutToAllTargets(t *testing.T) {
	var clients []*fakeClient
	p := NewProxy("msh", threeTargets())
	p.newClient = func(*pahomqtt.ClientOptions) pahomqtt.Client {
		c := &fakeClient{}
		clients = append(clients, c)
		return c
	}
	require.NoError(t, p.Start(context.Background()))
	require.Len(t, clients, 3)

	raw := []byte{0x0a, 0x02, 0xff, 0x00}
	outcomes := p.Relay(context.Background(), "msh/2/e/LongFast/!aa", raw)

	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		assert.NoError(t, o.Err, "target %s", o.Target)
	}

	require.Len(t, clients[0].published, 1)
	assert.Equal(t, "2/e/LongFast/!aa", clients[0].published[0].topic)
	assert.Equal(t, raw, clients[0].published[0].payload, "payload must be byte-identical")
	assert.Equal(t, byte(1), clients[0].published[0].qos)

	require.Len(t, clients[1].published, 1)
	assert.Equal(t, "mirror/2/e/LongFast/!aa", clients[1].published[0].topic)
	assert.Equal(t, raw, clients[1].published[0].payload)
}

func TestRelayOneFailureDoesNotBlockSiblings(t *testing.T) {
	var clients []*fakeClient
	p := NewProxy("msh", threeTargets())
	p.newClient = func(*pahomqtt.ClientOptions) pahomqtt.Client {
		c := &fakeClient{}
		clients = append(clients, c)
		return c
	}
	require.NoError(t, p.Start(context.Background()))
	clients[1].failPublish = true

	outcomes := p.Relay(context.Background(), "msh/2/json/x", []byte(`{}`))

	require.Len(t, outcomes, 3)
	failures := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failures++
			assert.Equal(t, "beta", o.Target)
		}
	}
	assert.Equal(t, 1, failures)
	assert.Len(t, clients[0].published, 1)
	assert.Len(t, clients[2].published, 1)
}

func TestDisabledTargetSkipped(t *testing.T) {
	configs := threeTargets()
	configs[2].Enabled = false
	var clients []*fakeClient
	p := NewProxy("msh", configs)
	p.newClient = func(*pahomqtt.ClientOptions) pahomqtt.Client {
		c := &fakeClient{}
		clients = append(clients, c)
		return c
	}
	require.NoError(t, p.Start(context.Background()))

	assert.Len(t, clients, 2, "disabled target never connects")
	outcomes := p.Relay(context.Background(), "msh/x", []byte("a"))
	assert.Len(t, outcomes, 2)
	assert.Len(t, p.Statuses(), 2)
}

func TestFailedConnectLeavesTargetDisconnected(t *testing.T) {
	var clients []*fakeClient
	p := NewProxy("msh", threeTargets()[:1])
	p.newClient = func(*pahomqtt.ClientOptions) pahomqtt.Client {
		c := &fakeClient{connectErr: errors.New("refused")}
		clients = append(clients, c)
		return c
	}
	require.NoError(t, p.Start(context.Background()))

	outcomes := p.Relay(context.Background(), "msh/x", []byte("a"))
	require.Len(t, outcomes, 1)
	assert.Error(t, outcomes[0].Err)
	assert.Empty(t, clients[0].published)

	statuses := p.Statuses()
	require.Len(t, statuses, 1)
	assert.False(t, statuses[0].Connected)
}

func TestRewriteTopic(t *testing.T) {
	p := NewProxy("msh/", nil)

	tests := []struct {
		name   string
		cfg    TargetConfig
		topic  string
		expect string
	}{
		{"strip only", TargetConfig{}, "msh/2/json/x", "2/json/x"},
		{"strip and prefix", TargetConfig{TopicPrefix: "mirror"}, "msh/2/json/x", "mirror/2/json/x"},
		{"prefix with trailing slash", TargetConfig{TopicPrefix: "mirror/"}, "msh/2/json/x", "mirror/2/json/x"},
		{"no source prefix match", TargetConfig{TopicPrefix: "mirror"}, "other/2/json/x", "mirror/other/2/json/x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, p.rewriteTopic(tt.cfg, tt.topic))
		})
	}
}

func TestStatusesTrackLiveClientConnectivity(t *testing.T) {
	var clients []*fakeClient
	p := NewProxy("msh", threeTargets()[:1])
	p.newClient = func(*pahomqtt.ClientOptions) pahomqtt.Client {
		c := &fakeClient{}
		clients = append(clients, c)
		return c
	}
	require.NoError(t, p.Start(context.Background()))
	require.True(t, p.Statuses()[0].Connected)

	// Broker drop: the client session goes down without the proxy being told.
	clients[0].connected = false
	assert.False(t, p.Statuses()[0].Connected)
	outcomes := p.Relay(context.Background(), "msh/x", []byte("a"))
	require.Len(t, outcomes, 1)
	assert.Error(t, outcomes[0].Err)
	assert.Empty(t, clients[0].published)

	// Auto-reconnect brings the session back; publishing resumes.
	clients[0].connected = true
	assert.True(t, p.Statuses()[0].Connected)
	outcomes = p.Relay(context.Background(), "msh/x", []byte("a"))
	require.Len(t, outcomes, 1)
	assert.NoError(t, outcomes[0].Err)
	assert.Len(t, clients[0].published, 1)
}
