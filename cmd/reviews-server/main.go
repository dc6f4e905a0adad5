package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"reflect"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/harshxd2006/Nexus-Ai/internal/api"
	"github.com/harshxd2006/Nexus-Ai/internal/auth"
	"github.com/harshxd2006/Nexus-Ai/internal/chread"
	"github.com/harshxd2006/Nexus-Ai/internal/reviews"
	"github.com/harshxd2006/Nexus-Ai/internal/storage"
	"github.com/harshxd2006/Nexus-Ai/internal/store"
	"github.com/harshxd2006/Nexus-Ai/internal/validate"
)

func main() {
	// Logger
	logger := mustBuildLogger(envOrDefault("REVIEWS_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	// Config from env
	httpPort := envOrDefault("REVIEWS_HTTP_PORT", "8080")
	mongoURI := os.Getenv("MONGO_URI")
	mongoDB := envOrDefault("MONGO_DB", "nexus")
	mongoColl := envOrDefault("MONGO_COLLECTION", "reviews")
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")
	postgresDSN := os.Getenv("POSTGRES_DSN")
	authCacheTTL := envOrDefaultInt("REVIEWS_AUTH_CACHE_TTL_S", 30)
	toolsCacheTTL := envOrDefaultInt("REVIEWS_TOOLS_CACHE_TTL_S", 60)

	logger.Info("starting reviews server",
		zap.String("http_port", httpPort),
		zap.String("mongo_db", mongoDB),
		zap.String("mongo_collection", mongoColl),
	)

	// MongoDB (required — it holds the reviews)
	if mongoURI == "" {
		logger.Fatal("MONGO_URI is required")
	}

	// Nested documents must decode as maps, not ordered key/value pairs,
	// so stored reviews round-trip to the same JSON shape they came in as.
	reg := bson.NewRegistry()
	reg.RegisterTypeMapEntry(bson.TypeEmbeddedDocument, reflect.TypeOf(bson.M{}))

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 10*time.Second)
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(mongoURI).SetRegistry(reg))
	cancelConnect()
	if err != nil {
		logger.Fatal("failed to connect to mongo", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(ctx)
	}()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 10*time.Second)
	err = client.Ping(pingCtx, nil)
	cancelPing()
	if err != nil {
		logger.Fatal("failed to ping mongo", zap.Error(err))
	}
	logger.Info("mongo connected")

	reviewStore := reviews.NewMongoStore(reviews.MongoStoreConfig{
		Collection:      client.Database(mongoDB).Collection(mongoColl),
		CatalogCacheTTL: time.Duration(toolsCacheTTL) * time.Second,
		Logger:          logger,
	})

	// Submission schema
	validator, err := validate.NewReviewValidator()
	if err != nil {
		logger.Fatal("failed to compile review schema", zap.Error(err))
	}

	// Storage — ClickHouse or LogWriter fallback
	var writer storage.EventWriter
	if clickhouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}
	defer writer.Close()

	// Postgres pool — publisher accounts and API key auth
	var pgStore *store.Store
	var authenticator auth.Authenticator
	if postgresDSN != "" {
		db, err := sql.Open("pgx", postgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(context.Background()); err != nil {
			logger.Fatal("failed to ping postgres", zap.Error(err))
		}
		pgStore = store.NewStore(db)
		authenticator = auth.NewPostgresAuthenticator(auth.PostgresAuthConfig{
			DB:       db,
			CacheTTL: time.Duration(authCacheTTL) * time.Second,
			Logger:   logger,
		})
		logger.Info("postgres connected")
	} else {
		authenticator = auth.NewStaticAuthenticator()
		logger.Info("no POSTGRES_DSN set, accepting any rvk_ key; publisher API disabled")
	}

	// ClickHouse reader (for events/analytics HTTP endpoints)
	var chReader *chread.Reader
	if clickhouseDSN != "" {
		var err error
		chReader, err = chread.NewReader(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse reader connection failed", zap.Error(err))
		} else {
			defer func() { _ = chReader.Close() }()
			logger.Info("clickhouse reader connected")
		}
	}

	// HTTP server
	deps := &api.Dependencies{
		Reviews:    reviewStore,
		Validator:  validator,
		Publishers: pgStore,
		Auth:       authenticator,
		Writer:     writer,
		Reader:     chReader,
		Logger:     logger,
	}
	httpServer := &http.Server{
		Addr:         ":" + httpPort,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("reviews server stopped")
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
