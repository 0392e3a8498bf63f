// Lab Rig Core - Bench Instrument Control Plane
//
// This is the main entry point for the Lab Rig Core application.
// Lab Rig drives a bench of programmable test instruments through one
// attribute-based control surface:
//   - Uniform get/set/measure semantics across instrument families
//   - SCPI links and Modbus registers, with full simulation off-bench
//   - Operator accounts, station tokens, per-instrument access scoping
//   - Local measurement archive with optional InfluxDB export
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/davmor83/labrig-core/migrations"

	"github.com/davmor83/labrig-core/internal/api"
	"github.com/davmor83/labrig-core/internal/archive"
	"github.com/davmor83/labrig-core/internal/auth"
	"github.com/davmor83/labrig-core/internal/infrastructure/config"
	"github.com/davmor83/labrig-core/internal/infrastructure/database"
	"github.com/davmor83/labrig-core/internal/infrastructure/logging"
	"github.com/davmor83/labrig-core/internal/infrastructure/mqtt"
	"github.com/davmor83/labrig-core/internal/infrastructure/tsdb"
	"github.com/davmor83/labrig-core/internal/rig"
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

// pruneInterval is how often the archive retention sweep runs.
const pruneInterval = 24 * time.Hour

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	// This is the Go pattern for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Run the application
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Lab Rig Core",
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

	// Auth repositories
	userRepo := auth.NewUserRepository(db.DB)
	tokenRepo := auth.NewTokenRepository(db.DB)
	stationRepo := auth.NewStationRepository(db.DB)
	accessRepo := auth.NewInstrumentAccessRepository(db.DB)

	// Create the owner account on first boot
	if _, seedErr := auth.SeedOwner(ctx, userRepo, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding owner account: %w", seedErr)
	}

	// Measurement archive (optional)
	var archiveRepo archive.Repository
	if cfg.Archive.Enabled {
		archiveRepo = archive.NewSQLiteRepository(db.DB)
		log.Info("archive enabled", "retention_days", cfg.Archive.RetentionDays)
	} else {
		log.Info("archive disabled")
	}

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
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

	// Set up MQTT logging callbacks
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var tsdbClient *tsdb.Client
	if cfg.InfluxDB.Enabled {
		tsdbClient, err = tsdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := tsdbClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		// Set up InfluxDB error callback
		tsdbClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Build the instrument rig
	bench, err := buildRig(ctx, cfg, archiveRepo, mqttClient, tsdbClient, log)
	if err != nil {
		return fmt.Errorf("building rig: %w", err)
	}
	defer func() {
		log.Info("closing rig")
		if closeErr := bench.Close(); closeErr != nil {
			log.Error("error closing rig", "error", closeErr)
		}
	}()

	// Start the HTTP API
	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Rig:      bench,
		Archive:  archiveRepo,
		DB:       db,
		MQTT:     mqttClient,
		TSDB:     tsdbClient,
		Users:    userRepo,
		Tokens:   tokenRepo,
		Stations: stationRepo,
		Access:   accessRepo,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()
	log.Info("API server listening", "host", cfg.API.Host, "port", cfg.API.Port)

	// Enforce archive retention (0 days = keep forever)
	if cfg.Archive.Enabled && cfg.Archive.RetentionDays > 0 {
		go pruneLoop(ctx, archiveRepo, cfg.Archive.RetentionDays, log)
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, tsdbClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. Rig
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Database

	log.Info("Lab Rig Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses LABRIG_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LABRIG_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildRig constructs a driver for every configured instrument and runs
// the connection ceremony. Initialisation failures are not fatal: the
// instruments that did come online stay usable and the rest surface as
// offline through the API.
//
// Parameters:
//   - ctx: Context for dialling instrument links
//   - cfg: Application configuration
//   - archiveRepo: Archive sink, nil when the archive is disabled
//   - broker: MQTT client for telemetry publishing
//   - samples: InfluxDB client, nil when disabled
//   - log: Logger instance
//
// Returns:
//   - *rig.Rig: Rig with every configured instrument attached
//   - error: If an instrument link cannot be built
func buildRig(ctx context.Context, cfg *config.Config, archiveRepo archive.Repository, broker *mqtt.Client, samples *tsdb.Client, log *logging.Logger) (*rig.Rig, error) {
	opts := rig.Options{
		Archive: archiveRepo,
		Broker:  broker,
	}
	// A nil *tsdb.Client must not become a non-nil SampleWriter.
	if samples != nil {
		opts.Samples = samples
	}

	bench := rig.New(opts)
	bench.SetLogger(log)

	if err := bench.Build(ctx, cfg.Instruments); err != nil {
		// Release any links already dialled
		_ = bench.Close()
		return nil, err
	}

	if err := bench.InitializeAll(); err != nil {
		log.Warn("some instruments failed to initialise", "error", err)
	}

	log.Info("rig built", "instruments", len(cfg.Instruments))
	return bench, nil
}

// pruneLoop removes archive rows older than the retention window. It
// sweeps once at startup and then daily until the context is cancelled.
//
// Parameters:
//   - ctx: Context for cancellation
//   - repo: Archive repository to prune
//   - retentionDays: Rows older than this many days are removed
//   - log: Logger instance
func pruneLoop(ctx context.Context, repo archive.Repository, retentionDays int, log *logging.Logger) {
	olderThan := time.Duration(retentionDays) * 24 * time.Hour

	prune := func() {
		removed, err := repo.Prune(ctx, olderThan)
		if err != nil {
			log.Error("archive prune failed", "error", err)
			return
		}
		if removed > 0 {
			log.Info("archive pruned", "removed", removed, "retention_days", retentionDays)
		}
	}

	prune()

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - tsdbClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, tsdbClient *tsdb.Client) error {
	// Check database
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	// Check MQTT
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	// Check InfluxDB (if enabled)
	if tsdbClient != nil {
		if err := tsdbClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	// Instrument health is tracked per-instrument by the rig: failed
	// initialisation leaves an instrument offline without blocking
	// startup, and the API reports its state.

	return nil
}
