// Motion Core - Multi-Axis Motion Control Service
//
// This is the main entry point for the Motion Core application.
// Motion Core drives vendor motion controllers for two device families:
//   - stage: six-axis positioning stages polled on a tight cycle
//   - gantry: three-axis gantries with queued command dispatch
//
// It exposes a REST/WebSocket API, publishes device state over MQTT,
// records axis metrics to InfluxDB, and keeps a motion journal in SQLite.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/stagecraft-systems/motion-core/migrations"

	"github.com/stagecraft-systems/motion-core/internal/api"
	"github.com/stagecraft-systems/motion-core/internal/infrastructure/config"
	"github.com/stagecraft-systems/motion-core/internal/infrastructure/database"
	"github.com/stagecraft-systems/motion-core/internal/infrastructure/influxdb"
	"github.com/stagecraft-systems/motion-core/internal/infrastructure/logging"
	"github.com/stagecraft-systems/motion-core/internal/infrastructure/mqtt"
	"github.com/stagecraft-systems/motion-core/internal/journal"
	"github.com/stagecraft-systems/motion-core/internal/motion"
	"github.com/stagecraft-systems/motion-core/internal/motion/sim"
	"github.com/stagecraft-systems/motion-core/internal/motion/transport"
	"github.com/stagecraft-systems/motion-core/internal/motion/vendorlink"
	"github.com/stagecraft-systems/motion-core/internal/telemetry"
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

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Motion Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
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

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	journalRepo := journal.NewSQLiteRepository(db.DB)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// A nil *mqtt.Client must not end up inside a non-nil interface,
	// the telemetry layer treats a nil interface as "backend absent".
	var publisher telemetry.Publisher
	if mqttClient != nil {
		publisher = mqttClient
	}
	var metrics telemetry.MetricsWriter
	if influxClient != nil {
		metrics = influxClient
	}
	recorder := telemetry.NewRecorder(publisher, metrics, journalRepo, log)

	// Choose the controller transport: in-process simulator or TCP link
	var dialer transport.Dialer
	if cfg.Motion.Simulation {
		dialer = &sim.Dialer{}
		log.Info("motion transport: simulation")
	} else {
		dialer = &vendorlink.Dialer{}
		log.Info("motion transport: vendorlink TCP")
	}

	// Device managers, one per family
	source := motion.StaticSource(cfg.Devices)

	stageManager := motion.NewManager(motion.FamilyStage, dialer, source,
		motion.TimingFromConfig(cfg.Motion, motion.FamilyStage), log, recorder)
	gantryManager := motion.NewManager(motion.FamilyGantry, dialer, source,
		motion.TimingFromConfig(cfg.Motion, motion.FamilyGantry), log, recorder)

	stageManager.Initialize()
	gantryManager.Initialize()
	log.Info("device managers initialised",
		"stage_devices", stageManager.GetDeviceCount(),
		"gantry_devices", gantryManager.GetDeviceCount(),
	)

	// Connect all configured devices. Individual failures are logged and
	// tolerated; the API can retry per device.
	if !stageManager.ConnectAll(ctx) {
		log.Warn("one or more stage devices failed to connect")
	}
	if !gantryManager.ConnectAll(ctx) {
		log.Warn("one or more gantry devices failed to connect")
	}
	defer func() {
		log.Info("disconnecting devices")
		stageManager.DisconnectAll()
		gantryManager.DisconnectAll()
	}()

	// Periodic health documents for each family
	healthReporter := telemetry.NewHealthReporter(publisher,
		[]*motion.Manager{stageManager, gantryManager}, telemetry.DefaultHealthInterval, log)
	go healthReporter.Run(ctx)

	// Start REST/WebSocket API
	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Stage:    stageManager,
		Gantry:   gantryManager,
		MQTT:     mqttClient,
		Journal:  journalRepo,
		Recorder: recorder,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

	// Verify infrastructure connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Device managers
	// 3. InfluxDB (if enabled)
	// 4. MQTT (if enabled)
	// 5. Database

	log.Info("Motion Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses MOTIONCORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MOTIONCORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies infrastructure connections are healthy.
// The MQTT and InfluxDB clients may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
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
