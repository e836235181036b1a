package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mealflow/mealflow/pkg/action"
	"github.com/mealflow/mealflow/pkg/apiserver"
	"github.com/mealflow/mealflow/pkg/catering"
	"github.com/mealflow/mealflow/pkg/config"
	"github.com/mealflow/mealflow/pkg/engine"
	"github.com/mealflow/mealflow/pkg/eventbus"
	"github.com/mealflow/mealflow/pkg/mail"
	"github.com/mealflow/mealflow/pkg/poller"
	"github.com/mealflow/mealflow/pkg/store/postgres"
	redisclient "github.com/mealflow/mealflow/pkg/store/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	db, err := postgres.NewStore(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.AutoMigrate(); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	var bus *eventbus.Bus
	if len(cfg.Redis.Addresses) > 0 {
		redis, err := redisclient.NewClient(&cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redis.Close()
		bus = eventbus.NewBus(redis.Client())
	}

	registry := action.NewRegistry()
	registry.Register("send_email", action.NewSendEmailHandler(
		catering.NewRecipientDirectory(db.DB(), cfg.Mail.TestRecipient),
		mail.NewSMTPMailer(cfg.Mail, logger),
	))
	registry.Register("check_condition", action.NewCheckConditionHandler(catering.NewConditionChecker(db.DB())))
	registry.Register("wait_until", action.NewWaitUntilHandler())
	registry.Register("create_order", action.NewCreateOrderHandler(catering.NewOrderService(db.DB())))

	workflowRepo := postgres.NewWorkflowRepository(db.DB())
	eng := engine.New(
		workflowRepo,
		postgres.NewExecutionRepository(db.DB()),
		postgres.NewActionLogRepository(db.DB()),
		postgres.NewScheduleRepository(db.DB()),
		registry,
		bus,
		logger,
		cfg.Poller.ExecutionTimeout,
	)
	p := poller.New(workflowRepo, eng, logger, cfg.Poller.Interval)

	server := apiserver.NewServer(db, cfg, logger, eng, p, bus)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.ReadTimeout * 2,
	}

	go func() {
		logger.Info("Starting API server", zap.Int("port", cfg.Server.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
}
