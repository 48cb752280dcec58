// Tank Relay - water tank radio telemetry bridge
//
// This is the main entry point for the relay. It reads sensor frames from
// the radio receiver on a serial line, keeps the latest reading per sensor,
// and publishes every sensor to an MQTT broker on a fixed cadence using
// Home Assistant discovery.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/tank-relay/internal/api"
	"github.com/nerrad567/tank-relay/internal/infrastructure/config"
	"github.com/nerrad567/tank-relay/internal/infrastructure/database"
	"github.com/nerrad567/tank-relay/internal/infrastructure/logging"
	"github.com/nerrad567/tank-relay/internal/infrastructure/metrics"
	"github.com/nerrad567/tank-relay/internal/infrastructure/mqtt"
	"github.com/nerrad567/tank-relay/internal/inventory"
	"github.com/nerrad567/tank-relay/internal/publisher"
	"github.com/nerrad567/tank-relay/internal/radio"
	"github.com/nerrad567/tank-relay/internal/telemetry"
	"github.com/nerrad567/tank-relay/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configEnv names the variable that overrides defaultConfigPath.
const configEnv = "TANKRELAY_CONFIG"

// healthCheckTimeout bounds the startup database check.
const healthCheckTimeout = 5 * time.Second

func main() {
	// Cancel on Ctrl+C and SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until ctx is cancelled.
//
// Only startup failures (configuration, database, serial settings, API bind)
// are returned. Broker and serial outages at runtime are logged and retried.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Tank Relay",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath, explicit := getConfigPath()
	cfg, err := config.Load(configPath, !explicit)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	cal := calibration(cfg.Tank)
	if err := cal.Validate(); err != nil {
		return fmt.Errorf("tank calibration: %w", err)
	}
	topics := mqtt.Topics{
		DiscoveryPrefix: cfg.Publish.DiscoveryPrefix,
		NodePrefix:      cfg.Publish.NodePrefix,
		SiteID:          cfg.Site.ID,
	}
	qos := byte(cfg.MQTT.QoS) //nolint:gosec // validated 0..2

	store := telemetry.NewStore()
	m := metrics.New()

	// Sensor inventory (optional)
	var (
		repo     inventory.Repository
		recorder *inventory.Recorder
	)
	if cfg.Database.Enabled {
		db, err := database.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()

		applied, err := db.Migrate(ctx, migrations.FS)
		if err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		log.Info("database ready", "path", db.Path(), "migrations_applied", applied)

		if err := healthCheck(ctx, db); err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}

		sqliteRepo := inventory.NewSQLiteRepository(db.DB)
		logInventory(ctx, log, sqliteRepo)
		repo = sqliteRepo
		recorder = inventory.NewRecorder(sqliteRepo, log.Component("inventory"))
	} else {
		log.Info("sensor inventory disabled")
	}

	// Serial acquisition
	opener, err := radio.SerialOpener(cfg.Serial)
	if err != nil {
		return fmt.Errorf("serial settings: %w", err)
	}
	radioObservers := []radio.Observer{m}
	if recorder != nil {
		radioObservers = append(radioObservers, recorder)
	}
	acquirer, err := radio.NewAcquirer(radio.Config{
		Open:        opener,
		Store:       store,
		Calibration: cal,
		ReadTimeout: cfg.GetSerialReadTimeout(),
		ReopenDelay: cfg.GetSerialReopenDelay(),
		Logger:      log.Component("radio"),
		Observers:   radioObservers,
	})
	if err != nil {
		return fmt.Errorf("creating acquirer: %w", err)
	}

	// Per-sensor publishing sessions
	regObservers := []publisher.RegistrationObserver{m}
	if recorder != nil {
		regObservers = append(regObservers, recorder)
	}
	registry := publisher.NewRegistry(publisher.RegistryConfig{
		Dial:      publisher.MQTTDialer(cfg.MQTT, topics, log.Component("mqtt")),
		Topics:    topics,
		QoS:       qos,
		Version:   version,
		Logger:    log.Component("registry"),
		Observers: regObservers,
	})
	m.TrackSensors(store, registry)

	// Bridge status session; connects in the background
	br := newBridge(cfg.MQTT, topics, log.Component("bridge"))

	// HTTP status server (optional)
	var server *api.Server

	// Sensor sessions go offline before the bridge, the API stops last.
	defer shutdown(log, registry, br, &server)

	if cfg.API.Enabled {
		deps := api.Deps{
			Config:      cfg.API,
			Logger:      log.Component("api"),
			Store:       store,
			Calibration: cal,
			Version:     version,
			MQTT:        br,
			Serial:      acquirer,
			Registry:    registry,
		}
		if repo != nil {
			deps.Inventory = repo
		}
		if cfg.Metrics.Enabled {
			deps.Metrics = m.Handler()
			deps.MetricsPath = cfg.Metrics.Path
		}

		server, err = api.New(deps)
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := server.Start(ctx); err != nil {
			server = nil
			return fmt.Errorf("starting API server: %w", err)
		}
		log.Info("API server listening", "addr", server.Addr())
	}

	loopCfg := publisher.LoopConfig{
		Store:       store,
		Registry:    registry,
		Calibration: cal,
		Topics:      topics,
		QoS:         qos,
		Interval:    cfg.GetPublishInterval(),
		Logger:      log.Component("publisher"),
		Observers:   []publisher.PublishObserver{m},
	}
	if server != nil {
		loopCfg.Notifier = server.Hub()
	}
	loop := publisher.NewLoop(loopCfg)

	health := publisher.NewHealthReporter(publisher.HealthReporterConfig{
		Topics:    topics,
		Version:   version,
		Interval:  cfg.GetHealthInterval(),
		Publisher: br,
		Serial:    acquirer,
		Store:     store,
		Registry:  registry,
		Logger:    log.Component("health"),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return acquirer.Run(gctx) })
	g.Go(func() error { return loop.Run(gctx) })
	g.Go(func() error {
		if err := br.connect(gctx); err != nil {
			return err
		}
		health.Start(gctx)
		return nil
	})
	if recorder != nil {
		g.Go(func() error { return recorder.Run(gctx) })
	}

	log.Info("Tank Relay started",
		"serial_device", cfg.Serial.Device,
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"publish_interval", cfg.GetPublishInterval(),
	)

	<-ctx.Done()
	log.Info("shutting down")

	err = g.Wait()
	health.Stop()
	if recorder != nil && recorder.Dropped() > 0 {
		log.Warn("inventory events dropped", "count", recorder.Dropped())
	}
	if err != nil {
		return fmt.Errorf("running relay: %w", err)
	}

	log.Info("Tank Relay stopped")
	return nil
}

// shutdown closes the long-lived sessions in order. server points at the
// API server variable, which stays nil when the API is disabled or failed
// to start.
func shutdown(log *logging.Logger, registry *publisher.Registry, br *bridge, server **api.Server) {
	log.Info("closing sensor sessions")
	if err := registry.Close(); err != nil {
		log.Error("error closing sensor sessions", "error", err)
	}

	log.Info("disconnecting from MQTT")
	if err := br.Close(); err != nil {
		log.Error("error closing MQTT", "error", err)
	}

	if *server != nil {
		log.Info("stopping API server")
		if err := (*server).Close(); err != nil {
			log.Error("error stopping API server", "error", err)
		}
	}
}

// getConfigPath returns the configuration file path and whether it was
// named explicitly. Only an explicitly named file must exist.
func getConfigPath() (string, bool) {
	if path := os.Getenv(configEnv); path != "" {
		return path, true
	}
	return defaultConfigPath, false
}

// calibration converts the tank section into converter constants.
func calibration(t config.TankConfig) telemetry.Calibration {
	return telemetry.Calibration{
		TankHeight: t.Height,
		MinLevel:   t.MinLevel,
		MaxLevel:   t.MaxLevel,
	}
}

// healthCheck verifies the database answers before the loops start.
func healthCheck(ctx context.Context, db *database.DB) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	return nil
}

// logInventory reports the sensors seen by earlier runs. It never seeds the
// reading store: only fresh frames are published.
func logInventory(ctx context.Context, log *logging.Logger, repo inventory.Repository) {
	sensors, err := repo.List(ctx)
	if err != nil {
		log.Warn("reading sensor inventory failed", "error", err)
		return
	}
	for _, s := range sensors {
		log.Info("known sensor",
			"sensor_id", s.SensorID,
			"last_seen", s.LastSeen,
			"frames", s.FrameCount,
		)
	}
	log.Info("sensor inventory loaded", "sensors", len(sensors))
}
