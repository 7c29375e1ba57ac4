package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/obaatanpa/internal/config"
	"github.com/example/obaatanpa/internal/database"
	"github.com/example/obaatanpa/internal/logging"
	"github.com/example/obaatanpa/internal/metrics"
	"github.com/example/obaatanpa/internal/routes"
	"github.com/example/obaatanpa/internal/services"
	"github.com/example/obaatanpa/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "obaatanpa",
		Short:         "Obaatanpa account service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return migrate(cmd.Context())
		},
	})
	return root
}

type deps struct {
	cfg *config.Config
	log *zap.Logger
	db  *gorm.DB
}

func bootstrap(ctx context.Context) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	db, err := database.Connect(ctx, cfg.DatabaseURL, cfg.DBLogLevel, log)
	if err != nil {
		logging.LogError(log, "database connection failed", err)
		_ = log.Sync()
		return nil, err
	}

	return &deps{cfg: cfg, log: log, db: db}, nil
}

func migrate(ctx context.Context) error {
	rt, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer rt.log.Sync() //nolint:errcheck

	if err := database.Migrate(rt.db); err != nil {
		logging.LogError(rt.log, "migration failed", err)
		return err
	}
	rt.log.Info("migrations applied")
	return nil
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer rt.log.Sync() //nolint:errcheck

	if err := database.Migrate(rt.db); err != nil {
		logging.LogError(rt.log, "migration failed", err)
		return err
	}

	var mailer services.Mailer
	if rt.cfg.SMTPEnabled() {
		mailer = services.NewSMTPMailer(rt.cfg.SMTPHost, rt.cfg.SMTPPort, rt.cfg.SMTPUser, rt.cfg.SMTPPass, rt.cfg.FromName, rt.cfg.FromEmail)
	} else {
		rt.log.Warn("SMTP is not configured, emails will only be logged")
		mailer = services.NewLogMailer(rt.log)
	}

	m := metrics.New()
	svc, err := services.NewCredentialService(store.NewAccountStore(rt.db), mailer, rt.cfg.CredentialConfig(), rt.log,
		services.WithMetrics(m))
	if err != nil {
		logging.LogError(rt.log, "credential service init failed", err)
		return err
	}

	app := routes.NewApp(rt.log, true)
	routes.Register(app, rt.db, svc, m, routes.Options{
		StoreTimeout:  rt.cfg.StoreTimeout,
		AuthRateLimit: rt.cfg.AuthRateLimit,
	})

	errCh := make(chan error, 1)
	go func() {
		rt.log.Info("starting server", zap.String("port", rt.cfg.AppPort))
		errCh <- app.Listen(":" + rt.cfg.AppPort)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logging.LogError(rt.log, "server stopped", err)
		}
		return err
	case <-ctx.Done():
	}

	rt.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logging.LogError(rt.log, "shutdown failed", err)
		return err
	}
	if sqlDB, err := rt.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	return nil
}
