package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/meshgram/meshgram/internal/adapters/decode"
	"github.com/meshgram/meshgram/internal/adapters/mqtt"
	"github.com/meshgram/meshgram/internal/adapters/storage"
	"github.com/meshgram/meshgram/internal/adapters/telegram"
	"github.com/meshgram/meshgram/internal/adapters/web"
	"github.com/meshgram/meshgram/internal/config"
	"github.com/meshgram/meshgram/internal/core/domain"
	"github.com/meshgram/meshgram/internal/core/ports"
	"github.com/meshgram/meshgram/internal/core/services/aggregate"
	"github.com/meshgram/meshgram/internal/core/services/directory"
	"github.com/meshgram/meshgram/internal/core/services/pipeline"
	"github.com/meshgram/meshgram/internal/core/services/routing"
	"github.com/meshgram/meshgram/internal/telemetry"
)

// Application wires the adapters and services together and owns their
// lifecycle.
type Application struct {
	Config    *config.Config
	Store     *storage.SQLiteStore
	Directory *directory.Service
	Router    *routing.Router
	Engine    *aggregate.Engine
	Pipeline  *pipeline.Service
	Source    *mqtt.Source
	Proxy     *mqtt.Proxy
	Sink      *telegram.Sink
	Commands  *telegram.Commands
	WebServer *web.Server
}

// New bootstraps every component from the configuration.
func New(cfg *config.Config) (*Application, error) {
	app := &Application{Config: cfg}

	if err := app.bootstrap(); err != nil {
		return nil, fmt.Errorf("application bootstrap failed: %w", err)
	}
	return app, nil
}

func (app *Application) bootstrap() error {
	telemetry.InitMetrics()

	store, err := storage.NewSQLiteStore(app.Config.DBPath)
	if err != nil {
		return fmt.Errorf("open node directory store: %w", err)
	}
	app.Store = store

	app.Directory = directory.New(store, app.Config.RefreshInterval)
	app.Router = routing.New(app.Config.TopicRoot, domain.RoutingMode(app.Config.DefaultMode))
	app.Engine = aggregate.New(app.Config.AggregationTimeout)

	sink, err := telegram.NewSink(app.Config.Telegram.Token, app.Config.Telegram.GroupChatID, app.Config.Telegram.AllowedUserIDs)
	if err != nil {
		return fmt.Errorf("telegram sink: %w", err)
	}
	app.Sink = sink

	app.Proxy = mqtt.NewProxy(app.Config.TopicRoot, proxyTargets(app.Config.Proxy))

	app.WebServer = web.NewServer(app.Config.Addr, app.Directory, app.Engine,
		func() bool { return app.Source != nil && app.Source.IsConnected() },
		app.Proxy.Statuses)

	app.Pipeline = pipeline.New(pipeline.Options{
		Decoder:      decode.New(app.Directory),
		Router:       app.Router,
		Engine:       app.Engine,
		Directory:    app.Directory,
		Relay:        app.Proxy,
		Sink:         sink,
		Formatter:    telegram.NewFormatter(app.Directory),
		Preference:   ports.PayloadEncoding(app.Config.PayloadFormat),
		AllowedUsers: app.Config.Telegram.AllowedUserIDs,
		OnPacket:     app.WebServer.Feed.PublishPacket,
	})

	app.Source = mqtt.NewSource(mqtt.SourceConfig{
		Host:      app.Config.Source.Host,
		Port:      app.Config.Source.Port,
		Username:  app.Config.Source.Username,
		Password:  app.Config.Source.Password,
		Topic:     app.Config.Source.Topic,
		ClientID:  app.Config.Source.ClientID,
		Keepalive: app.Config.Source.Keepalive,
		QoS:       byte(app.Config.Source.QoS),
	}, app.Pipeline.HandleMessage)

	app.Commands = telegram.NewCommands(sink, app.Router, app.Directory, app.Engine, app.statusReport)

	return nil
}

func (app *Application) statusReport() telegram.StatusReport {
	report := telegram.StatusReport{SourceConnected: app.Source.IsConnected()}
	for _, t := range app.Proxy.Statuses() {
		if !t.Enabled {
			continue
		}
		report.Targets = append(report.Targets, telegram.TargetReport{Name: t.Name, Connected: t.Connected})
	}
	return report
}

func proxyTargets(configs []config.ProxyTargetConfig) []mqtt.TargetConfig {
	targets := make([]mqtt.TargetConfig, 0, len(configs))
	for _, c := range configs {
		targets = append(targets, mqtt.TargetConfig{
			Name:        c.Name,
			Host:        c.Host,
			Port:        c.Port,
			Username:    c.Username,
			Password:    c.Password,
			ClientID:    c.ClientID,
			TopicPrefix: c.TopicPrefix,
			TLS:         c.TLS,
			TLSInsecure: c.TLSInsecure,
			QoS:         byte(c.QoS),
			Enabled:     c.Enabled,
		})
	}
	return targets
}

// Run starts every component and blocks until the context is cancelled or a
// component fails. Shutdown order: cancel the loops and wait for them to
// drain, then disconnect the fan-out targets, then close the directory store.
func (app *Application) Run(ctx context.Context) error {
	slog.Info("starting meshgram components")

	if err := app.Proxy.Start(ctx); err != nil {
		return fmt.Errorf("proxy start: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.WebServer.Run(runCtx); err != nil {
			errChan <- fmt.Errorf("web server error: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.Commands.Run(runCtx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.Source.Run(runCtx); err != nil && runCtx.Err() == nil {
			errChan <- fmt.Errorf("mqtt source error: %w", err)
		}
	}()

	slog.Info("meshgram ready")

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("termination signal received")
	case runErr = <-errChan:
	}

	// The source must finish any in-flight message and unsubscribe before the
	// proxy targets and the store go away underneath it.
	cancel()
	wg.Wait()

	app.cleanup()
	return runErr
}

func (app *Application) cleanup() {
	app.Proxy.Stop()
	if err := app.Store.Close(); err != nil {
		slog.Error("closing directory store", "error", err)
	}
	slog.Info("shutdown complete")
}
