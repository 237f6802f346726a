package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"callsync-core/internal/config"
	"callsync-core/internal/container"
	inviteHandler "callsync-core/internal/handler/http/invite"
	statusHandler "callsync-core/internal/handler/http/status"
	"callsync-core/internal/presenter"
	"callsync-core/internal/repository/memory"
	"callsync-core/internal/repository/postgres"
	redisRepo "callsync-core/internal/repository/redis"
	"callsync-core/internal/service/callsession"
	"callsync-core/pkg/logger"
)

func main() {
	ctx := context.Background()

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Initialize logger
	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting callsync",
		zap.String("service", cfg.Server.ServiceName),
		zap.String("environment", cfg.Server.Environment))

	// 3. Connect to Redis, falling back to in-memory storage
	var store container.KV
	redisClient := redislib.NewClient(&redislib.Options{
		Addr:         cfg.Redis.RedisAddr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  cfg.Redis.Timeout,
		ReadTimeout:  cfg.Redis.Timeout,
		WriteTimeout: cfg.Redis.Timeout,
	})
	redisStore := redisRepo.NewStore(redisClient)
	if err := redisStore.Ping(ctx); err != nil {
		logger.Warn("redis unavailable, using in-memory storage", zap.Error(err))
		redisClient.Close()
		store = memory.NewStore()
	} else {
		logger.Info("connected to redis", zap.String("addr", cfg.Redis.RedisAddr()))
		defer redisClient.Close()
		store = redisStore
	}

	// 4. Connect to Postgres for call history, degrading to no persistence
	var history callsession.HistoryRecorder
	pool, err := pgxpool.New(ctx, cfg.Postgres.PostgresDSN())
	if err == nil {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = pool.Ping(pingCtx)
		cancel()
	}
	if err != nil {
		logger.Warn("postgres unavailable, call history disabled", zap.Error(err))
		if pool != nil {
			pool.Close()
		}
	} else {
		logger.Info("connected to postgres", zap.String("database", cfg.Postgres.Database))
		defer pool.Close()
		history = postgres.NewCallHistoryRepository(pool)
	}

	// 5. Build the presentation fallback chain
	presenterChain := presenter.NewChain(
		presenter.NewNotificationPresenter(&presenter.LogNotifier{}),
	)

	// 6. Wire the service graph
	c := container.New(cfg, container.Deps{
		Store:     store,
		Navigator: newLogNavigator(),
		Presenter: presenterChain,
		History:   history,
	})

	// 7. Reconcile prior run state: clear the exit marker and restore any
	// persisted call snapshot from before the restart
	if err := c.NavState.BeginRun(ctx); err != nil {
		logger.Warn("failed to begin navigation state run", zap.Error(err))
	}
	restore := c.Navigation.AttemptRestore(ctx)
	if restore.RestoredToCallScreen {
		logger.Info("restored call navigation after restart")
	} else if !restore.Success {
		logger.Warn("could not restore prior call", zap.String("reason", restore.Reason))
	}

	// 8. Connect the signaling transport when configured
	if err := c.ConnectTransport(ctx); err != nil {
		logger.Warn("initial signaling connect failed", zap.Error(err))
	}

	// 9. Setup Gin router
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	statusHandler.NewHandler(c).RegisterRoutes(router)

	v1 := router.Group("/v1")
	inviteHandler.NewHandler(c.Calls).RegisterRoutes(v1)

	// 10. Start server with graceful shutdown
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	c.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}
}

// logNavigator is the headless Navigator used when no host UI is attached.
// It records transitions so restore behavior is observable in logs.
type logNavigator struct {
	current string
}

func newLogNavigator() *logNavigator {
	return &logNavigator{current: "home"}
}

func (n *logNavigator) Navigate(ctx context.Context, screenID string, params map[string]string) error {
	logger.Info("navigate", zap.String("screen", screenID), zap.Any("params", params))
	n.current = screenID
	return nil
}

func (n *logNavigator) CurrentScreen() string {
	return n.current
}
