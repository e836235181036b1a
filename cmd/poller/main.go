package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mealflow/mealflow/pkg/action"
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
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	var bus *eventbus.Bus
	if len(cfg.Redis.Addresses) > 0 {
		redis, err := redisclient.NewClient(&cfg.Redis)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Mirror published lifecycle events into the process log for operators
	// tailing the poller.
	if bus != nil {
		go func() {
			for event := range bus.Subscribe(ctx, eventbus.ChannelExecution, eventbus.ChannelWorkflow) {
				logger.Info("event",
					zap.String("type", event.Type),
					zap.ByteString("data", event.Data))
			}
		}()
	}

	go p.Run(ctx)
	logger.Info("poller started", zap.Duration("interval", cfg.Poller.Interval))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("poller shutting down")
}
