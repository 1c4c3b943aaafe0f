package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pharmatrace/traceability-service/internal/application"
	"github.com/pharmatrace/traceability-service/internal/hierarchy"
	mongoRepo "github.com/pharmatrace/traceability-service/internal/infrastructure/mongodb"
	"github.com/pharmatrace/traceability-service/internal/repository"
	"github.com/pharmatrace/traceability-service/pkg/cloudevents"
	"github.com/pharmatrace/traceability-service/pkg/kafka"
	"github.com/pharmatrace/traceability-service/pkg/logging"
	"github.com/pharmatrace/traceability-service/pkg/metrics"
	"github.com/pharmatrace/traceability-service/pkg/middleware"
	"github.com/pharmatrace/traceability-service/pkg/mongodb"
	"github.com/pharmatrace/traceability-service/pkg/tracing"
)

const serviceName = "traceability-service"

func main() {
	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(getEnv("LOG_LEVEL", "info"))
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting traceability-service API")

	config := loadConfig()
	ctx := context.Background()

	// OpenTelemetry tracing
	tracingConfig := tracing.DefaultConfig(serviceName)
	tracingConfig.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	tracingConfig.Environment = getEnv("ENVIRONMENT", "development")
	tracingConfig.Enabled = getEnv("TRACING_ENABLED", "true") == "true"

	tracerProvider, err := tracing.Initialize(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
		// Continue without tracing
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

	// Prometheus metrics
	m := metrics.New(metrics.DefaultConfig(serviceName))

	// MongoDB
	mongoClient, err := mongodb.NewClient(ctx, config.MongoDB)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		os.Exit(1)
	}
	defer mongoClient.Close(ctx)
	logger.Info("Connected to MongoDB", "database", config.MongoDB.Database)

	// Kafka producer for audit publishing
	producer := kafka.NewProducer(config.Kafka)
	defer producer.Close()
	logger.Info("Kafka producer initialized", "brokers", config.Kafka.Brokers)

	eventFactory := cloudevents.NewEventFactory("/" + serviceName)

	// Persistence collaborators
	containerRepo := mongoRepo.NewContainerRepository(mongoClient.Database(), m)
	captureStore := mongoRepo.NewPendingCaptureStore(mongoClient.Database(), m)
	allocator, err := mongoRepo.NewSSCCAllocator(mongoClient.Database(), config.SSCCExtensionDigit, config.CompanyPrefix)
	if err != nil {
		logger.WithError(err).Error("Invalid SSCC allocator configuration")
		os.Exit(1)
	}

	// Downstream EPCIS repository
	epcisRepo, err := repository.NewRepository(config.EPCIS)
	if err != nil {
		logger.WithError(err).Error("Invalid EPCIS repository configuration")
		os.Exit(1)
	}
	if httpRepo, ok := epcisRepo.(*repository.HTTPRepository); ok {
		httpRepo.SetStateCallback(func(name string, open bool) {
			state := 0
			if open {
				state = 1
			}
			m.SetCircuitBreakerState(name, state)
		})
	}
	logger.Info("EPCIS repository initialized", "vendor", config.EPCIS.Vendor, "baseUrl", config.EPCIS.BaseURL)

	// Capture retry queue
	retrier := repository.NewRetrier(epcisRepo, captureStore, config.Retry, logger.Logger, m)
	retrier.Start(ctx)
	defer retrier.Stop()
	logger.Info("Capture retrier started", "interval", config.Retry.Interval, "maxAttempts", config.Retry.MaxAttempts)

	engine := hierarchy.NewEngine(containerRepo, allocator)

	service := application.NewTraceabilityService(
		engine,
		containerRepo,
		epcisRepo,
		retrier,
		captureStore,
		producer,
		eventFactory,
		logger,
		m,
	)

	// Gin router
	router := gin.New()
	middleware.Setup(router, middleware.DefaultConfig(serviceName, logger.Logger))
	router.Use(middleware.MetricsMiddleware(m))
	router.Use(middleware.TracingMiddleware(middleware.DefaultTracingConfig(serviceName)))

	router.NoRoute(middleware.NoRoute())
	router.NoMethod(middleware.NoMethod())

	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, func() error {
		checkCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoClient.HealthCheck(checkCtx); err != nil {
			return fmt.Errorf("mongodb: %w", err)
		}
		if !epcisRepo.HealthCheck(checkCtx) {
			return fmt.Errorf("epcis repository unreachable")
		}
		return nil
	}))
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	registerRoutes(router, service, logger)

	srv := &http.Server{
		Addr:         config.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
		}
	}()
	logger.Info("Server started", "addr", config.ServerAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server stopped")
}

// Config holds application configuration
type Config struct {
	ServerAddr         string
	SSCCExtensionDigit string
	CompanyPrefix      string
	MongoDB            *mongodb.Config
	Kafka              *kafka.Config
	EPCIS              repository.Config
	Retry              repository.RetrierConfig
}

func loadConfig() *Config {
	retry := repository.DefaultRetrierConfig()
	retry.MaxAttempts = getEnvInt("CAPTURE_RETRY_MAX_ATTEMPTS", retry.MaxAttempts)

	return &Config{
		ServerAddr:         getEnv("SERVER_ADDR", ":8080"),
		SSCCExtensionDigit: getEnv("SSCC_EXTENSION_DIGIT", "3"),
		CompanyPrefix:      getEnv("GS1_COMPANY_PREFIX", "4012345"),
		MongoDB: &mongodb.Config{
			URI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:       getEnv("MONGODB_DATABASE", "traceability_db"),
			ConnectTimeout: 10 * time.Second,
			MaxPoolSize:    100,
			MinPoolSize:    10,
		},
		Kafka: &kafka.Config{
			Brokers:      []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
			ClientID:     serviceName,
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: -1,
		},
		EPCIS: repository.Config{
			Vendor:      getEnv("EPCIS_VENDOR", "http"),
			BaseURL:     getEnv("EPCIS_BASE_URL", "http://localhost:8090"),
			CapturePath: getEnv("EPCIS_CAPTURE_PATH", "/capture"),
			AuthType:    getEnv("EPCIS_AUTH_TYPE", repository.AuthNone),
			APIKey:      getEnv("EPCIS_API_KEY", ""),
			APISecret:   getEnv("EPCIS_API_SECRET", ""),
		},
		Retry: retry,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
