package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/docutag/linker"
	"github.com/docutag/linker/api"
	"github.com/docutag/linker/db"
	"github.com/docutag/linker/storage"
	"github.com/docutag/linker/tracing"
)

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt parses a positive integer environment variable, falling back to defaultValue
func getEnvInt(logger *slog.Logger, key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		logger.Warn("invalid "+key+" value, using default",
			"provided", raw,
			"default", defaultValue,
		)
		return defaultValue
	}
	return value
}

// dbConfigFromEnv builds the database configuration from DB_* variables
func dbConfigFromEnv(logger *slog.Logger) (db.Config, error) {
	driver := getEnv("DB_DRIVER", db.DriverPostgres)

	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		logger.Info("using database DSN from environment", "driver", driver)
		return db.Config{Driver: driver, DSN: dsn}, nil
	}

	if driver == db.DriverSQLite {
		path := getEnv("DB_PATH", db.DefaultConfig().DSN)
		logger.Info("using SQLite database", "path", path)
		return db.Config{Driver: driver, DSN: path}, nil
	}

	// PostgreSQL database configuration
	dbHost := getEnv("DB_HOST", "")
	if dbHost == "" {
		return db.Config{}, fmt.Errorf("DB_HOST environment variable is required")
	}

	dbPort := getEnv("DB_PORT", "5432")
	dbUser := getEnv("DB_USER", "docutag")
	dbPassword := getEnv("DB_PASSWORD", "docutag_dev_pass")
	dbName := getEnv("DB_NAME", "docutag")

	logger.Info("using PostgreSQL database", "host", dbHost, "port", dbPort, "database", dbName)
	return db.Config{
		Driver: db.DriverPostgres,
		DSN:    fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable", dbHost, dbPort, dbUser, dbPassword, dbName),
	}, nil
}

// archiveFromEnv selects the revision archive named by ARCHIVE_BACKEND
func archiveFromEnv(ctx context.Context, logger *slog.Logger) (linker.Archive, error) {
	switch backend := getEnv("ARCHIVE_BACKEND", "none"); backend {
	case "none":
		return nil, nil
	case "fs":
		basePath := getEnv("STORAGE_BASE_PATH", storage.DefaultConfig().BasePath)
		archive, err := storage.New(storage.Config{BasePath: basePath})
		if err != nil {
			return nil, err
		}
		logger.Info("archiving original bodies on filesystem", "path", basePath)
		return archive, nil
	case "s3":
		usePathStyle, _ := strconv.ParseBool(getEnv("S3_USE_PATH_STYLE", "false"))
		cfg := storage.S3Config{
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Bucket:          os.Getenv("S3_BUCKET"),
			Prefix:          os.Getenv("S3_PREFIX"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			UsePathStyle:    usePathStyle,
		}
		archive, err := storage.NewS3Storage(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("archiving original bodies in S3", "bucket", cfg.Bucket, "endpoint", cfg.Endpoint)
		return archive, nil
	default:
		return nil, fmt.Errorf("unknown ARCHIVE_BACKEND %q (want none, fs or s3)", backend)
	}
}

func main() {
	// Setup structured logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("linker service initializing", "version", "1.0.0")

	// Initialize tracing
	tp, err := tracing.InitTracer("docutag-linker")
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer", "error", err)
			}
		}()
		logger.Info("tracing initialized successfully")
	}

	// Default values
	defaultPort := getEnv("PORT", "8080")
	linkerConfig := linker.Config{
		MaxLinks:            getEnvInt(logger, "MAX_LINKS", linker.DefaultMaxLinks),
		CandidateLimit:      getEnvInt(logger, "CANDIDATE_LIMIT", linker.DefaultCandidateLimit),
		ContentKeywordLimit: getEnvInt(logger, "CONTENT_KEYWORD_LIMIT", linker.DefaultContentKeywordLimit),
		LinkPathPrefix:      getEnv("LINK_PATH_PREFIX", linker.DefaultLinkPathPrefix),
	}

	// Command-line flags (override environment variables)
	port := flag.String("port", defaultPort, "Server port")
	runOnce := flag.Bool("run-once", false, "Run one batch linking sweep and exit")
	dryRun := flag.Bool("dry-run", false, "With -run-once, report changes without persisting them")
	disableCORS := flag.Bool("disable-cors", false, "Disable CORS")
	migrationStatus := flag.Bool("migration-status", false, "Print the schema migration status and exit")
	rollback := flag.Bool("rollback", false, "Roll back the latest schema migration and exit")
	flag.Parse()

	dbConfig, err := dbConfigFromEnv(logger)
	if err != nil {
		logger.Error("invalid database configuration", "error", err)
		os.Exit(1)
	}

	if *migrationStatus || *rollback {
		database, err := db.New(dbConfig)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		code := runMigrationCommand(database, *rollback, os.Stdout, logger)
		database.Close()
		os.Exit(code)
	}

	archive, err := archiveFromEnv(context.Background(), logger)
	if err != nil {
		logger.Error("failed to initialize revision archive", "error", err)
		os.Exit(1)
	}

	// Create server configuration
	config := api.Config{
		Addr:         ":" + *port,
		DBConfig:     dbConfig,
		LinkerConfig: linkerConfig,
		Archive:      archive,
		CORSEnabled:  !*disableCORS,
		Logger:       logger,
	}

	// Create server
	server, err := api.NewServer(config)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if *runOnce {
		code := runBatch(server, logger, *dryRun)
		if tp != nil {
			tp.Shutdown(context.Background())
		}
		os.Exit(code)
	}

	// Start server in a goroutine
	go func() {
		logger.Info("linker service starting",
			"port", *port,
			"database_driver", dbConfig.Driver,
			"link_path_prefix", linkerConfig.LinkPathPrefix,
			"max_links", linkerConfig.MaxLinks,
			"candidate_limit", linkerConfig.CandidateLimit,
			"archive_enabled", archive != nil,
		)

		if err := server.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	logger.Info("shutting down gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// runBatch performs a single sweep, stopping early on SIGINT/SIGTERM, and
// prints the stats as JSON. It returns the process exit code.
func runBatch(server *api.Server, logger *slog.Logger, dryRun bool) int {
	defer server.DB().Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats, err := server.Job().RunWithOptions(ctx, linker.RunOptions{DryRun: dryRun})
	if err != nil && stats.RunID == "" {
		logger.Error("batch linking run failed", "error", err)
		return 1
	}

	if encErr := json.NewEncoder(os.Stdout).Encode(stats); encErr != nil {
		logger.Error("failed to write stats", "error", encErr)
	}
	if err != nil {
		logger.Warn("batch linking run interrupted", "error", err)
		return 1
	}
	return 0
}

// runMigrationCommand optionally rolls back the latest migration, then
// prints the migration status as JSON. It returns the process exit code.
func runMigrationCommand(database *db.DB, rollback bool, out io.Writer, logger *slog.Logger) int {
	if rollback {
		if err := db.Rollback(database.DB(), database.Driver()); err != nil {
			logger.Error("failed to roll back migration", "error", err)
			return 1
		}
		logger.Info("rolled back latest migration")
	}

	status, err := db.GetMigrationStatus(database.DB(), database.Driver())
	if err != nil {
		logger.Error("failed to read migration status", "error", err)
		return 1
	}

	if err := json.NewEncoder(out).Encode(status); err != nil {
		logger.Error("failed to write migration status", "error", err)
		return 1
	}
	return 0
}
