package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hsichihchen-design/cpdoldsim/internal/eventsink"
	"github.com/hsichihchen-design/cpdoldsim/internal/httpapi"
	"github.com/hsichihchen-design/cpdoldsim/internal/masterdata"
	"github.com/hsichihchen-design/cpdoldsim/internal/runner"
	"github.com/hsichihchen-design/cpdoldsim/internal/storage/mongodb"
	"github.com/hsichihchen-design/cpdoldsim/pkg/logging"
	"github.com/hsichihchen-design/cpdoldsim/pkg/metrics"
	"github.com/hsichihchen-design/cpdoldsim/pkg/tracing"
)

const serviceName = "simulation-api"

func main() {
	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(getEnv("LOG_LEVEL", "info"))
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting simulation-api")

	config := loadConfig()
	ctx := context.Background()

	// OpenTelemetry tracing; a dead collector is not fatal.
	tracingConfig := tracing.DefaultConfig(serviceName)
	tracingConfig.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	tracingConfig.Environment = getEnv("ENVIRONMENT", "development")
	tracingConfig.Enabled = getEnv("TRACING_ENABLED", "true") == "true"

	tracerProvider, err := tracing.Initialize(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
	} else if tracerProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
		logger.Info("Tracing initialized", "endpoint", tracingConfig.OTLPEndpoint)
	}

	m := metrics.New(metrics.DefaultConfig(serviceName))
	logger.Info("Metrics initialized")

	// Dataset and run archive. Standalone mode serves the embedded demo
	// dataset and keeps results in process memory.
	var (
		bundle    *masterdata.Bundle
		runStore  runner.ResultStore
		readiness httpapi.ReadyCheck
	)
	if config.MongoEnabled {
		mongoClient, err := mongodb.NewClient(ctx, config.MongoDB)
		if err != nil {
			logger.WithError(err).Error("Failed to connect to MongoDB")
			os.Exit(1)
		}
		defer mongoClient.Close(ctx)
		logger.Info("Connected to MongoDB", "database", config.MongoDB.Database)

		masterRepo := mongodb.NewMasterDataRepository(mongoClient.Database(), m, logger.Logger)
		hasData, err := masterRepo.HasData(ctx)
		if err != nil {
			logger.WithError(err).Error("Failed to probe master data")
			os.Exit(1)
		}
		if !hasData {
			logger.Info("Master data empty, seeding demo dataset", "start", config.DemoStart.Format("2006-01-02"))
			if err := masterRepo.SeedBundle(ctx, masterdata.DemoBundle(config.DemoStart)); err != nil {
				logger.WithError(err).Error("Failed to seed demo dataset")
				os.Exit(1)
			}
		}
		bundle, err = masterRepo.LoadBundle(ctx)
		if err != nil {
			logger.WithError(err).Error("Failed to load master data")
			os.Exit(1)
		}

		runStore = mongodb.NewRunRepository(mongoClient.Database(), m, logger.Logger)
		readiness = mongoClient.HealthCheck
	} else {
		logger.Info("MongoDB disabled, using embedded demo dataset", "start", config.DemoStart.Format("2006-01-02"))
		bundle = masterdata.DemoBundle(config.DemoStart)
	}

	store, err := masterdata.NewStore(bundle, logger.Logger)
	if err != nil {
		logger.WithError(err).Error("Failed to build master-data store")
		os.Exit(1)
	}
	if report := store.Validation(); len(report.Errors) > 0 {
		logger.Warn("Master data validation reported errors",
			"errors", len(report.Errors), "warnings", len(report.Warnings))
	}

	// Event sink: Kafka when configured, otherwise events stay in memory.
	var sink eventsink.Sink
	if config.SinkEnabled {
		kafkaSink := eventsink.NewKafka(config.Kafka, m, logger.Logger)
		defer kafkaSink.Close()
		sink = kafkaSink
		logger.Info("Kafka sink initialized", "brokers", config.Kafka.Brokers, "topic", config.Kafka.Topic)
	} else {
		sink = eventsink.NewMemory()
		logger.Info("Kafka sink disabled, capturing events in memory")
	}

	runs, err := runner.NewRunner(store, sink, runStore, m, logger.Logger)
	if err != nil {
		logger.WithError(err).Error("Failed to build runner")
		os.Exit(1)
	}

	server, err := httpapi.NewServer(httpapi.Config{
		ServiceName:  serviceName,
		AllowOrigins: config.AllowOrigins,
	}, store, runs, m, readiness, logger.Logger)
	if err != nil {
		logger.WithError(err).Error("Failed to build HTTP server")
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         config.ServerAddr,
		Handler:      server.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Server error")
		}
	}()
	logger.Info("Server started", "addr", config.ServerAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := runs.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Active runs did not settle before deadline")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server stopped")
}

// Config holds application configuration
type Config struct {
	ServerAddr   string
	AllowOrigins []string
	DemoStart    time.Time

	MongoEnabled bool
	MongoDB      *mongodb.Config

	SinkEnabled bool
	Kafka       *eventsink.KafkaConfig
}

func loadConfig() *Config {
	mongoConfig := mongodb.DefaultConfig()
	mongoConfig.URI = getEnv("MONGODB_URI", mongoConfig.URI)
	mongoConfig.Database = getEnv("MONGODB_DATABASE", mongoConfig.Database)

	kafkaConfig := eventsink.DefaultKafkaConfig()
	kafkaConfig.Brokers = strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ",")
	kafkaConfig.Topic = getEnv("KAFKA_TOPIC", kafkaConfig.Topic)
	kafkaConfig.ClientID = serviceName

	return &Config{
		ServerAddr:   getEnv("SERVER_ADDR", ":8080"),
		AllowOrigins: strings.Split(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000,http://localhost:5173"), ","),
		DemoStart:    parseDate(getEnv("DEMO_START_DATE", "2025-07-07")),
		MongoEnabled: getEnvBool("MONGODB_ENABLED", false),
		MongoDB:      mongoConfig,
		SinkEnabled:  getEnvBool("KAFKA_ENABLED", false),
		Kafka:        kafkaConfig,
	}
}

func parseDate(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Date(2025, 7, 7, 0, 0, 0, 0, time.UTC)
	}
	return d
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
