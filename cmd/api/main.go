package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq" // PostgreSQL driver

	liveshelf "github.com/liveshelf/liveshelf"
	"github.com/liveshelf/liveshelf/api"
	"github.com/liveshelf/liveshelf/auth"
	"github.com/liveshelf/liveshelf/db"
	"github.com/liveshelf/liveshelf/imgcache"
	"github.com/liveshelf/liveshelf/ingest"
	"github.com/liveshelf/liveshelf/metrics"
	"github.com/liveshelf/liveshelf/tracing"
)

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// Setup structured logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// A missing .env is normal outside local development
	if err := godotenv.Load(); err == nil {
		logger.Info("loaded configuration from .env")
	}

	logger.Info("liveshelf service initializing", "version", "1.0.0")

	// Initialize tracing
	otlpEndpoint := getEnv("OTLP_ENDPOINT", "localhost:4317")
	shutdownTracer, err := tracing.Init(context.Background(), tracing.Config{
		ServiceName: "liveshelf-api",
		Endpoint:    otlpEndpoint,
	})
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				logger.Error("error shutting down tracer", "error", err)
			}
		}()
		logger.Info("tracing initialized successfully")
	}

	// Default values
	defaultPort := getEnv("PORT", "8080")
	defaultRenderAPIURL := getEnv("RENDER_API_URL", "")
	defaultAuthURL := getEnv("AUTH_PROVIDER_URL", "http://localhost:9096")
	defaultCachePath := getEnv("IMAGE_CACHE_PATH", "./imgcache")

	// Command-line flags (override environment variables)
	port := flag.String("port", defaultPort, "Server port")
	renderAPIURL := flag.String("render-api-url", defaultRenderAPIURL, "Rendering API base URL (empty selects the public endpoint)")
	authURL := flag.String("auth-url", defaultAuthURL, "Authentication provider base URL")
	disableCORS := flag.Bool("disable-cors", false, "Disable CORS")
	allowAnonymous := flag.Bool("allow-anonymous", false, "Accept anonymous broadcast submissions")
	flag.Parse()

	// PostgreSQL database configuration (required)
	dbHost := getEnv("DB_HOST", "")
	if dbHost == "" {
		logger.Error("DB_HOST environment variable is required")
		os.Exit(1)
	}

	dbPort := getEnv("DB_PORT", "5432")
	dbUser := getEnv("DB_USER", "liveshelf")
	dbPassword := getEnv("DB_PASSWORD", "liveshelf_dev_pass")
	dbName := getEnv("DB_NAME", "liveshelf")

	database, err := db.New(db.Config{
		DSN: fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable", dbHost, dbPort, dbUser, dbPassword, dbName),
	})
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	logger.Info("using PostgreSQL database", "host", dbHost, "port", dbPort, "database", dbName)

	// Image cache: S3 when a bucket is configured, local filesystem otherwise
	var cache imgcache.Cache
	if bucket := getEnv("S3_BUCKET", ""); bucket != "" {
		cache, err = imgcache.NewS3Cache(context.Background(), imgcache.S3Config{
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Bucket:          bucket,
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    getEnv("S3_USE_PATH_STYLE", "") == "true",
		})
		if err != nil {
			logger.Error("failed to initialize S3 image cache", "error", err)
			os.Exit(1)
		}
		logger.Info("using S3 image cache", "bucket", bucket)
	} else {
		cache, err = imgcache.NewFilesystem(imgcache.Config{BasePath: defaultCachePath})
		if err != nil {
			logger.Error("failed to initialize filesystem image cache", "error", err)
			os.Exit(1)
		}
		logger.Info("using filesystem image cache", "path", defaultCachePath)
	}

	fetcherConfig := liveshelf.DefaultConfig()
	fetcherConfig.RenderAPIBaseURL = *renderAPIURL
	fetcher := liveshelf.NewFetcher(fetcherConfig, logger)

	authClient := auth.NewClient(*authURL, auth.DefaultTimeout)
	service := ingest.NewService(database, fetcher, logger)

	server := api.NewServer(api.Config{
		Addr:        ":" + *port,
		CORSEnabled: !*disableCORS,
		RequireAuth: !*allowAnonymous,
	}, database, service, authClient, authClient, cache, logger)

	// Publish connection pool stats
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			metrics.UpdateDBStats(database.DB().Stats())
		}
	}()
	logger.Info("database metrics initialized")

	// Start server in a goroutine
	go func() {
		logger.Info("liveshelf service starting",
			"port", *port,
			"database_host", dbHost,
			"database_name", dbName,
			"auth_url", *authURL,
			"anonymous_submissions", *allowAnonymous,
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
