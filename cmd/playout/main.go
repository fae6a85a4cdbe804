// Nebula playout worker.
//
// The worker drives one or more CasparCG playout channels from the Nebula
// catalog: it cues and takes items, follows the device's OSC telemetry to
// detect what is actually on air, writes the as-run log and serves the
// control API. Status is pushed to MQTT, InfluxDB and WebSocket clients.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	_ "github.com/nebulabroadcast/nebula-worker/migrations"

	"github.com/nebulabroadcast/nebula-worker/internal/api"
	"github.com/nebulabroadcast/nebula-worker/internal/asrun"
	"github.com/nebulabroadcast/nebula-worker/internal/audit"
	"github.com/nebulabroadcast/nebula-worker/internal/catalog"
	"github.com/nebulabroadcast/nebula-worker/internal/infrastructure/config"
	"github.com/nebulabroadcast/nebula-worker/internal/infrastructure/database"
	"github.com/nebulabroadcast/nebula-worker/internal/infrastructure/influxdb"
	"github.com/nebulabroadcast/nebula-worker/internal/infrastructure/lock"
	"github.com/nebulabroadcast/nebula-worker/internal/infrastructure/logging"
	"github.com/nebulabroadcast/nebula-worker/internal/infrastructure/metrics"
	"github.com/nebulabroadcast/nebula-worker/internal/infrastructure/mqtt"
	"github.com/nebulabroadcast/nebula-worker/internal/playout/controller"
	"github.com/nebulabroadcast/nebula-worker/internal/playout/session"
	"github.com/nebulabroadcast/nebula-worker/internal/playout/status"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the worker lifecycle, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	if err := loadDotEnv(); err != nil {
		return err
	}

	log := logging.Default()
	log.Info("starting nebula playout worker",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"site", cfg.Site.Name,
		"channels", len(cfg.Channels),
	)

	ids := make([]int, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		ids = append(ids, ch.ID)
	}
	locks, err := lock.Acquire(cfg.Site.DataDir, ids)
	if err != nil {
		return fmt.Errorf("locking channels: %w", err)
	}
	defer func() {
		if releaseErr := locks.Release(); releaseErr != nil {
			log.Error("error releasing channel locks", "error", releaseErr)
		}
	}()

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	catalogRepo := catalog.NewSQLiteRepository(db.DB)
	asrunRepo := asrun.NewSQLiteRepository(db.DB)
	storages := catalog.NewStorages(cfg.Site.Name, cfg.Storages)

	var publishers session.Publishers

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, cfg.Site.Name)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		publishers = append(publishers, status.NewMQTT(mqttClient, mqttClient.Topics(), log.Component("status")))
	} else {
		log.Info("MQTT disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB, cfg.Site.Name)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		publishers = append(publishers, status.NewInflux(influxClient, status.DefaultSampleInterval))
	} else {
		log.Info("InfluxDB disabled")
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	publishers = append(publishers, hub)

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	sessions := make([]*session.Session, 0, len(cfg.Channels))
	channels := make([]api.Channel, 0, len(cfg.Channels))
	ports := make(map[int]int, len(cfg.Channels))
	for _, chCfg := range cfg.Channels {
		chLog := log.ForChannel(chCfg)
		opts := controller.Options{Logger: chLog.Component("controller")}
		if m != nil {
			opts.Recorder = m
		}
		sess, newErr := session.New(session.Deps{
			Channel:    chCfg,
			Catalog:    catalogRepo,
			Storages:   storages,
			AsRun:      asrunRepo,
			Publisher:  publishers,
			Logger:     chLog.Component("session"),
			PluginsDir: cfg.Plugins.Dir,
			Controller: opts,
		})
		if newErr != nil {
			return fmt.Errorf("creating channel %d: %w", chCfg.ID, newErr)
		}
		if m != nil {
			if watchErr := m.WatchChannel(chCfg.ID, channelStats(sess)); watchErr != nil {
				return fmt.Errorf("registering channel %d metrics: %w", chCfg.ID, watchErr)
			}
		}
		sessions = append(sessions, sess)
		channels = append(channels, sess)
		if chCfg.ControllerPort != 0 {
			ports[chCfg.ID] = chCfg.ControllerPort
		}
	}

	apiDeps := api.Deps{
		Config:          cfg.API,
		WS:              cfg.WebSocket,
		Security:        cfg.Security,
		Logger:          log.Component("api"),
		Channels:        channels,
		AsRun:           asrunRepo,
		Audit:           audit.NewSQLiteRepository(db.DB),
		ControllerPorts: ports,
		Metrics:         m,
		MetricsPath:     cfg.Metrics.Path,
		Hub:             hub,
		Version:         version,
	}
	if mqttClient != nil {
		apiDeps.MQTT = mqttClient
	}
	server, err := api.New(apiDeps)
	if err != nil {
		return fmt.Errorf("creating control API: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, sess := range sessions {
		g.Go(func() error {
			if runErr := sess.Run(gctx); runErr != nil {
				return fmt.Errorf("channel %d: %w", sess.ChannelID(), runErr)
			}
			return nil
		})

		reporterCfg := status.ReporterConfig{
			ChannelID: sess.ChannelID(),
			Source:    sess,
			Logger:    log.With("channel", sess.ChannelID()).Component("health"),
		}
		if mqttClient != nil {
			reporterCfg.Bus = mqttClient
			reporterCfg.Topics = mqttClient.Topics()
		}
		if influxClient != nil {
			reporterCfg.Influx = influxClient
		}
		reporter := status.NewReporter(reporterCfg)
		g.Go(func() error {
			return reporter.Run(gctx)
		})
	}

	if err := server.Start(gctx); err != nil {
		cancel()
		g.Wait() //nolint:errcheck // Already failing
		return fmt.Errorf("starting control API: %w", err)
	}
	g.Go(func() error {
		<-gctx.Done()
		return server.Close()
	})

	log.Info("initialisation complete, waiting for shutdown signal")
	err = g.Wait()

	log.Info("nebula playout worker stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// loadDotEnv reads .env from the working directory when present.
// Variables already set in the environment win.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}

// getConfigPath returns the configuration file path.
// Uses NEBULA_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("NEBULA_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// channelStats adapts a session's device health to the metrics collector.
func channelStats(src status.HealthSource) func() metrics.ChannelStats {
	return func() metrics.ChannelStats {
		h := src.Health()
		return metrics.ChannelStats{
			Connected:        h.Connected,
			LastTelemetry:    h.LastTelemetry,
			Queries:          h.Queries,
			Errors:           h.Errors,
			Reconnects:       h.Reconnects,
			TelemetryPackets: h.TelemetryPackets,
			TelemetryDropped: h.TelemetryDropped,
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
