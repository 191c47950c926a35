package mqtt

import (
	"context"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestRunFinishesInFlightHandlerBeforeReturning(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	src := NewSource(SourceConfig{Host: "broker.example", Port: 1883, Topic: "msh/#"},
		func(ctx context.Context, topic string, payload []byte) {
			close(entered)
			<-release
		})
	client := &fakeClient{}
	src.newClient = func(*pahomqtt.ClientOptions) pahomqtt.Client { return client }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	src.onMessage(nil, fakeMessage{topic: "msh/2/json/LongFast/!aa", payload: []byte(`{}`)})
	<-entered
	cancel()

	select {
	case <-done:
		t.Fatal("Run returned while a handler was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the handler finished")
	}

	assert.Equal(t, []string{"msh/#"}, client.unsubscribed, "shutdown must unsubscribe the source topic")
	assert.False(t, client.connected, "shutdown must disconnect the source client")
}

func TestRunReturnsConnectError(t *testing.T) {
	src := NewSource(SourceConfig{Host: "broker.example", Port: 1883, Topic: "msh/#"},
		func(context.Context, string, []byte) {})
	src.newClient = func(*pahomqtt.ClientOptions) pahomqtt.Client {
		return &fakeClient{connectErr: assert.AnError}
	}

	err := src.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}
