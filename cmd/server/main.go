package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/deepverify/internal/auth"
	"github.com/example/deepverify/internal/config"
	"github.com/example/deepverify/internal/inference"
	"github.com/example/deepverify/internal/logging"
	"github.com/example/deepverify/internal/repository"
	"github.com/example/deepverify/internal/server"
	"github.com/example/deepverify/internal/usecase"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	db := initDatabase(ctx, cfg, logger)
	store := repository.NewPredictionRepository(db, logger)
	if err := store.AutoMigrate(ctx); err != nil {
		logger.Fatal("auto migrate failed", zap.Error(err))
	}

	redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
	defer redisCancel()
	redisClient := initRedis(redisCtx, cfg, logger)

	var classifier inference.Classifier
	if _, err := os.Stat(cfg.Server.ModelPath); err == nil {
		engine, err := inference.NewEngine(cfg.Server.ModelPath, logger)
		if err != nil {
			logger.Fatal("failed to load model", zap.Error(err), zap.String("path", cfg.Server.ModelPath))
		}
		defer engine.Close()
		classifier = engine
	} else {
		logger.Warn("model file not found, predictions disabled until it is provided",
			zap.String("path", cfg.Server.ModelPath))
	}

	cache := usecase.NewRedisCache(redisClient)
	uc := usecase.NewPredictionUseCase(store, cache, classifier, logger, cfg.Server.CacheTTL)

	r := gin.Default()
	r.MaxMultipartMemory = cfg.Server.MaxUploadSize

	opts := server.Options{MaxUploadSize: cfg.Server.MaxUploadSize}
	if cfg.Server.JWTSecret != "" {
		opts.Auth = auth.JWTMiddleware(cfg.Server.JWTSecret, cfg.Server.JWTAudience)
	}
	server.RegisterRoutes(r, uc, logger, opts)

	httpServer := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: r,
	}

	logger.Info("inference API listening",
		zap.String("addr", cfg.Server.ListenAddr),
		zap.Bool("model_loaded", uc.ModelLoaded()))
	if err := serveHTTPServer(httpServer, 15*time.Second, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initDatabase(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(cfg.Server.DatabaseDSN), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initRedis(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: cfg.Server.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
