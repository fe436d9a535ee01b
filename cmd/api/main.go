package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"payouts/internal/config"
	"payouts/internal/domain"
	handlerhttp "payouts/internal/handler/http"
	"payouts/internal/logger"
	"payouts/internal/notify"
	"payouts/internal/port"
	"payouts/internal/repository/memory"
	"payouts/internal/repository/migration"
	"payouts/internal/repository/postgresql"
	"payouts/internal/service"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type stores struct {
	withdrawals port.WithdrawalRepository
	balances    port.BalanceRepository
	directory   port.SellerDirectory
	addSeller   func(domain.SellerContact)
	health      handlerhttp.HealthCheck
	close       func() error
}

func openStores(ctx context.Context, cfg config.DBConfig, log *zap.Logger) (*stores, error) {
	if cfg.Driver == "memory" {
		store := memory.NewStore()
		log.Warn("using the in-memory ledger store, data is lost on restart")
		return &stores{
			withdrawals: store,
			balances:    store,
			directory:   store,
			addSeller:   store.AddSeller,
			close:       func() error { return nil },
		}, nil
	}

	db, err := postgresql.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Migrate {
		if err := migration.RunMigrations(db, log); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &stores{
		withdrawals: postgresql.NewWithdrawalRepository(db),
		balances:    postgresql.NewBalanceRepository(db),
		directory:   postgresql.NewSellerDirectory(db),
		health:      pinger(db),
		close:       db.Close,
	}, nil
}

func pinger(db *sql.DB) handlerhttp.HealthCheck {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return db.PingContext(ctx)
	}
}

type notifier struct {
	port.Notifier
	health handlerhttp.HealthCheck
	close  func(context.Context) error
}

func newNotifier(cfg *config.Config, directory port.SellerDirectory, log *zap.Logger) *notifier {
	switch cfg.Notify.Driver {
	case "asynq":
		client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Notify.RedisAddr})
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Notify.RedisAddr})
		log.Info("notifications go to asynq", zap.String("redis", cfg.Notify.RedisAddr), zap.String("queue", cfg.Notify.Queue))
		producer := notify.NewAsynqNotifier(client, cfg.Notify.Queue)
		q := notify.NewQueue(cfg.Notify.QueueSize, cfg.Notify.Workers, producer.Notify, log)
		return &notifier{
			Notifier: q,
			health:   func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			close: func(ctx context.Context) error {
				return errors.Join(q.Close(ctx), client.Close(), rdb.Close())
			},
		}
	case "none":
		return &notifier{Notifier: notify.Nop{}, close: func(context.Context) error { return nil }}
	default:
		d := notify.NewDeliverer(directory, notify.NewSender(cfg.Mail, log), log)
		q := notify.NewQueue(cfg.Notify.QueueSize, cfg.Notify.Workers, d.Deliver, log)
		return &notifier{Notifier: q, close: q.Close}
	}
}

// seedAccounts opens the configured accounts. Contacts only reach the
// in-memory directory; postgres keeps them in the sellers table.
func seedAccounts(ctx context.Context, st *stores, accounts []config.AccountSeed, log *zap.Logger) error {
	seeds := make([]service.Seed, 0, len(accounts))
	for _, a := range accounts {
		if st.addSeller != nil && a.Email != "" {
			st.addSeller(domain.SellerContact{SellerID: a.SellerID, Name: a.Name, Email: a.Email})
		}
		seeds = append(seeds, service.Seed{SellerID: a.SellerID, Balance: a.Balance})
	}
	return service.OpenAccounts(ctx, st.balances, seeds, log)
}

func serviceConfig(c config.WithdrawalConfig) service.Config {
	cfg := service.DefaultConfig()
	cfg.Policy.MinAmount = c.MinAmount
	cfg.Policy.MaxAdminNoteLen = c.MaxAdminNote
	cfg.ContentionRetries = c.ContentionRetries
	cfg.InitialBackoff = c.InitialBackoff
	cfg.MaxBackoff = c.MaxBackoff
	cfg.StoreTimeout = c.StoreTimeout
	cfg.TxIDPrefix = c.TxIDPrefix
	cfg.TxIDRetries = c.TxIDRetries
	return cfg
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Token.Secret == "" {
		return errors.New("token.secret (TOKEN_SECRET) is required")
	}

	zl, err := logger.New(cfg.Logger.LoggerLevel, cfg.Logger.Development)
	if err != nil {
		return err
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg.DB, zl)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.DB.Driver, err)
	}
	defer st.close()

	if err := seedAccounts(ctx, st, cfg.Seed, zl); err != nil {
		return fmt.Errorf("seed accounts: %w", err)
	}

	n := newNotifier(cfg, st.directory, zl)

	svc := service.NewWithdrawalService(st.withdrawals, st.balances, n, serviceConfig(cfg.Withdrawal), zl)
	handler := handlerhttp.NewWithdrawalHandler(svc, zl)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handlerhttp.NewRouter(handler, cfg.Token.Secret, handlerhttp.Combine(st.health, n.health), zl),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zl.Info("http server listening", zap.String("addr", srv.Addr), zap.String("db", cfg.DB.Driver), zap.String("notify", cfg.Notify.Driver))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zl.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		if err := n.close(shutdownCtx); err != nil {
			zl.Warn("notifications not drained", zap.Error(err))
		}
		return nil
	})

	return g.Wait()
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
