package main

import (
	"context"
	"database/sql"
	"fmt"

	"extornos/internal/config"
	"extornos/internal/domain"
	"extornos/internal/logger"
	"extornos/internal/port"
	"extornos/internal/repository/boltdb"
	"extornos/internal/repository/migration"
	"extornos/internal/repository/postgresql"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// app holds what every command needs: config, logger and the repositories of
// the configured driver.
type app struct {
	cfg          *config.Config
	log          *zap.Logger
	refunds      port.RefundRepository
	emailConfigs port.EmailConfigRepository
	db           *sql.DB
	closers      []func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log}
	a.closers = append(a.closers, func() error { _ = log.Sync(); return nil })

	switch cfg.DB.Driver {
	case "postgres":
		db, err := sql.Open("postgres", cfg.DB.DatabaseURL)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(cfg.DB.MaxOpenConnection)
		db.SetMaxIdleConns(cfg.DB.MaxIdleConnection)
		db.SetConnMaxLifetime(cfg.DB.ConnectionLifetime)
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		a.db = db
		a.refunds = postgresql.NewRefundRepository(db, cfg.DB.LockTimeout)
		a.emailConfigs = postgresql.NewEmailConfigRepository(db)
		a.closers = append(a.closers, db.Close)

	case "bolt":
		db, err := boltdb.Open(cfg.DB.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open bolt database %s: %w", cfg.DB.BoltPath, err)
		}
		a.refunds = boltdb.NewRefundRepository(db)
		a.emailConfigs = boltdb.NewEmailConfigRepository(db)
		a.closers = append(a.closers, db.Close)
	}

	log.Info("storage ready", zap.String("driver", cfg.DB.Driver))
	return a, nil
}

// migrate is a no-op for bolt, whose buckets are created on open.
func (a *app) migrate(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return migration.RunMigrations(ctx, a.db, a.log)
}

func (a *app) fallbackEmailConfig() domain.EmailConfig {
	return domain.EmailConfig{
		Enabled:         true,
		EmailTramitador: a.cfg.Notification.EmailTramitador,
		EmailPagador:    a.cfg.Notification.EmailPagador,
		CCEmails:        a.cfg.Notification.CCEmails,
	}
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}
