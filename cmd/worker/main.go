package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"payouts/internal/config"
	"payouts/internal/logger"
	"payouts/internal/notify"
	"payouts/internal/repository/postgresql"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// The worker consumes notification tasks enqueued by the api when
// notify.driver is asynq.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.DB.Driver != "postgres" {
		return errors.New("worker needs db.driver=postgres to resolve seller contacts")
	}

	zl, err := logger.New(cfg.Logger.LoggerLevel, cfg.Logger.Development)
	if err != nil {
		return err
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.Open(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()

	deliverer := notify.NewDeliverer(postgresql.NewSellerDirectory(db), notify.NewSender(cfg.Mail, zl), zl)

	server := asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.Notify.RedisAddr}, asynq.Config{
		Concurrency: cfg.Notify.Workers,
		Queues:      map[string]int{cfg.Notify.Queue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, t *asynq.Task, err error) {
			zl.Warn("notification failed", zap.String("type", t.Type()), zap.Error(err))
		}),
	})
	if err := server.Start(notify.NewServeMux(deliverer)); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	zl.Info("worker started", zap.String("redis", cfg.Notify.RedisAddr), zap.String("queue", cfg.Notify.Queue))

	<-ctx.Done()
	zl.Info("shutting down")
	server.Shutdown()
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
