package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/questgraph/internal/api"
	"github.com/AaronLay10/questgraph/internal/config"
	"github.com/AaronLay10/questgraph/internal/events"
	"github.com/AaronLay10/questgraph/internal/metrics"
	"github.com/AaronLay10/questgraph/internal/mqtt"
	"github.com/AaronLay10/questgraph/internal/orchestrator"
	"github.com/AaronLay10/questgraph/internal/sched"
	"github.com/AaronLay10/questgraph/internal/storage/postgres"
	"github.com/AaronLay10/questgraph/internal/version"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the graph and serve the API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg, newLogger(cfg))
	},
}

func run(ctx context.Context, cfg *config.EngineConfig, log *slog.Logger) error {
	slog.SetDefault(log)
	hostname, _ := os.Hostname()
	log.Info("questgraph starting", "version", version.Version, "graph", cfg.Graph)
	events.Emit("info", "system.startup", "questgraph starting", map[string]interface{}{
		"version":  version.Version,
		"hostname": hostname,
		"pid":      os.Getpid(),
	})

	def, err := orchestrator.LoadDefinition(cfg.Graph)
	if err != nil {
		return err
	}

	if err := api.InitAuth(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := api.InitTLS(); err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	api.InitAlerts(log)
	api.SetGraphName(def.Name)

	journal, err := openJournal(def.Name, cfg, log)
	if err != nil {
		return err
	}
	if journal != nil {
		defer func() {
			events.SetJournal(nil)
			journal.Close()
		}()
	}

	var client *mqtt.Client
	var pub orchestrator.Publisher
	var bridge *mqtt.Bridge
	if cfg.MQTT.Enabled {
		broker := cfg.MQTT.URL
		if broker == "" {
			broker = mqtt.BrokerURL()
		}
		client = mqtt.NewClient(cfg.MQTT.ClientID, broker, func() {
			if bridge == nil {
				return
			}
			bridge.ClearSubscriptions()
			if err := bridge.SubscribeAll(); err != nil {
				log.Warn("mqtt subscribe failed", "error", err)
			}
		})
		pub = client
	}

	s := sched.NewRealtime()
	g, err := orchestrator.Build(def, s, orchestrator.BuildOptions{
		Publisher: pub,
		Logger:    log,
		Observers: []orchestrator.Observer{
			orchestrator.EventObserver{},
			metrics.NewObserver(),
			api.NewAlertObserver(),
		},
	})
	if err != nil {
		return err
	}
	if def.CheckPeriod == 0 {
		g.SetCheckPeriod(cfg.CheckPeriod)
	}

	if client != nil {
		bridge = mqtt.NewBridge(client, s, g, cfg.MQTT.Prefix, log)
		connected := client.StartWithRetry(log)
		if !connected && !cfg.MQTT.Optional {
			return fmt.Errorf("mqtt broker %s unreachable", client.Broker())
		}
		api.SetMQTTState(connected, cfg.MQTT.Optional)
		defer client.Disconnect()
	} else {
		api.DisableMQTT()
	}

	done := make(chan struct{})
	defer close(done)
	api.StartAlertMonitor(10*time.Second, done)
	if client != nil {
		go watchMQTT(client, cfg.MQTT.Optional, done)
	}

	if cfg.WatchGraph {
		w := config.NewGraphWatcher(cfg.Graph, validateGraph, log)
		stopWatch, err := w.Watch()
		if err != nil {
			log.Warn("graph watcher disabled", "error", err)
		} else {
			defer stopWatch()
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The loop outlives ctx so the graph can be stopped on its own thread.
	loopCtx, loopCancel := context.WithCancel(context.Background())
	defer loopCancel()
	loopErr := make(chan error, 1)
	go func() { loopErr <- s.Run(loopCtx) }()

	var startErr error
	if err := s.Call(ctx, func() { startErr = g.Start() }); err != nil {
		return err
	}
	if startErr != nil {
		return startErr
	}
	api.SetGraphReady(true)

	srv := api.NewServer(g, s, log)
	apiErr := make(chan error, 1)
	go func() { apiErr <- srv.ListenAndServe(ctx, cfg.API.Port) }()

	apiDone := false
	select {
	case <-ctx.Done():
	case err = <-apiErr:
		apiDone = true
		if err != nil {
			log.Error("api server failed", "error", err)
			events.Emit("error", "system.error", "api server failed", map[string]interface{}{"error": err.Error()})
		}
	}

	api.SetGraphReady(false)
	cancel()
	if !apiDone {
		err = <-apiErr
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	s.Call(stopCtx, g.Stop)
	stopCancel()
	loopCancel()
	<-loopErr

	events.Emit("info", "system.shutdown", "questgraph stopping", nil)
	log.Info("questgraph stopped")
	return err
}

// openJournal connects the Postgres event journal. A nil client means the
// journal is disabled.
func openJournal(graphID string, cfg *config.EngineConfig, log *slog.Logger) (*postgres.Client, error) {
	if !cfg.Postgres.Enabled {
		api.DisablePostgres()
		return nil, nil
	}
	opts, err := cfg.PostgresOptions()
	if err != nil {
		return nil, err
	}
	client, err := postgres.New(graphID, opts)
	if err != nil {
		if !cfg.Postgres.Optional {
			return nil, err
		}
		log.Warn("postgres unavailable, journal disabled", "error", err)
		api.SetPostgresState(false, true)
		return nil, nil
	}
	events.SetPostgresClient(client)
	api.SetPostgresState(true, cfg.Postgres.Optional)
	log.Info("event journal enabled", "host", opts.Host, "database", opts.Database)
	return client, nil
}

func watchMQTT(client *mqtt.Client, optional bool, done <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			api.SetMQTTState(client.IsConnected(), optional)
		}
	}
}
