// Command accountsd serves account registration, email confirmation and login
// for the WeewooCAD server view.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/weewoocad/accounts/internal/api"
	"github.com/weewoocad/accounts/internal/core/ports"
	"github.com/weewoocad/accounts/internal/core/service"
	"github.com/weewoocad/accounts/internal/infrastructure/config"
	"github.com/weewoocad/accounts/internal/infrastructure/db/mongo"
	"github.com/weewoocad/accounts/internal/infrastructure/db/redis"
	"github.com/weewoocad/accounts/internal/infrastructure/http/handlers"
	"github.com/weewoocad/accounts/internal/infrastructure/mail"
	"github.com/weewoocad/accounts/internal/infrastructure/queue"
	"github.com/weewoocad/accounts/internal/infrastructure/store/file"
	"github.com/weewoocad/accounts/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "accountsd",
	})
	log := logger.Get()

	readiness := map[string]handlers.Pinger{}

	// --- Account store ---
	var store ports.AccountStore
	switch cfg.Store.Backend {
	case config.BackendMongo:
		client, db, err := mongo.Connect(ctx, mongo.Config{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
			AppName:  "accountsd",
		})
		if err != nil {
			return err
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		mstore := mongo.NewAccountStore(db)
		store = mstore
		readiness["mongo"] = mstore
		log.Info().Str("database", cfg.Mongo.Database).Msg("using mongo account store")
	default:
		fstore := file.NewStore(cfg.Store.Path, logger.Component(log, "store"))
		store = fstore
		readiness["store"] = fstore
		log.Info().Str("path", fstore.Path()).Msg("using file account store")
	}

	// --- Delivery dedup ---
	var marker queue.SentMarker
	if cfg.Redis.Addr != "" {
		rdb, err := redis.Connect(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
		marker = redis.NewSentMarker(rdb, cfg.TokenTTL)
		readiness["redis"] = pingRedis(rdb)
	}

	// --- Notifications ---
	composer, err := mail.NewComposer(cfg.PublicURL)
	if err != nil {
		return fmt.Errorf("mail composer: %w", err)
	}
	var sender ports.Notifier
	if cfg.MailConfigured() {
		sender, err = mail.NewSMTPNotifier(mail.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.User,
			Password: cfg.SMTP.Pass,
			From:     cfg.SMTP.From,
		}, composer)
		if err != nil {
			return fmt.Errorf("smtp notifier: %w", err)
		}
		log.Info().Str("host", cfg.SMTP.Host).Int("port", cfg.SMTP.Port).Msg("smtp delivery enabled")
	} else {
		sender = mail.NewLogNotifier(composer, logger.Component(log, "mail"))
		log.Warn().Msg("SMTP not configured, verification mails are written to the log")
	}

	// Workers outlive the signal context so queued mails drain on shutdown.
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	dispatcher := queue.NewDispatcher(cfg.NotifyWorkers, sender, marker, logger.Component(log, "dispatcher"))
	dispatcher.Start(workerCtx)

	// --- Core ---
	svc := newAccountService(cfg, store, dispatcher)

	e := api.NewRouter(api.RouterDeps{
		Accounts:        svc,
		Readiness:       readiness,
		ConfirmRedirect: cfg.ConfirmRedirect,
		StaticDir:       cfg.StaticDir,
		Log:             logger.Component(log, "http"),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("public_url", cfg.PublicURL).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		// Handlers may still be registering; queued mails are abandoned.
		log.Error().Err(err).Msg("graceful shutdown failed")
		dispatcher.Close()
		return nil
	}

	svc.Wait()
	dispatcher.Close()
	waitOrTimeout(shutdownCtx, dispatcher.Wait)

	log.Info().Msg("server stopped")
	return nil
}

// newAccountService builds the lifecycle manager from cfg. Auto-confirm is
// resolved here and a warning is logged whenever it is on.
func newAccountService(cfg *config.Config, store ports.AccountStore, notifier ports.Notifier) *service.AccountService {
	return service.NewAccountService(
		store,
		service.NewBcryptCredentials(cfg.BcryptCost),
		service.NewTokenIssuer(cfg.TokenTTL, nil),
		notifier,
		accountOptions(cfg),
		logger.Component(logger.Get(), "accounts"),
	)
}

func accountOptions(cfg *config.Config) service.Options {
	autoConfirm, inferred := cfg.ResolveAutoConfirm()
	if autoConfirm {
		log := logger.Get()
		ev := log.Warn().Bool("auto_confirm", true)
		if inferred {
			ev = ev.Str("reason", "AUTO_CONFIRM unset and SMTP not configured")
		}
		ev.Msg("new accounts are confirmed without email verification")
	}
	return service.Options{AutoConfirm: autoConfirm}
}

func pingRedis(rdb *goredis.Client) handlers.PingFunc {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}

// waitOrTimeout runs wait and gives up when ctx expires.
func waitOrTimeout(ctx context.Context, wait func()) {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log := logger.Get()
		log.Warn().Msg("notification queue not drained before shutdown deadline")
	}
}
