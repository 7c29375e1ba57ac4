package database

import (
	"context"
	"database/sql"
	"net/url"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/obaatanpa/internal/models"
)

// connectAttempts bounds how many times startup pings the database.
const connectAttempts = 5

// Connect opens the Postgres connection, creating the database first when it
// does not exist yet. The first ping is retried with exponential backoff.
func Connect(ctx context.Context, dsn, logLevel string, log *zap.Logger) (*gorm.DB, error) {
	if err := ensureDatabase(ctx, dsn); err != nil {
		log.Warn("could not ensure database exists", zap.Error(err))
	}

	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(ParseLogLevel(logLevel)),
		TranslateError: true,
	})
	if err != nil {
		return nil, oops.Code("DB_OPEN_FAILED").Wrap(err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, oops.Code("DB_OPEN_FAILED").Wrap(err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	backoff := retry.WithMaxRetries(connectAttempts-1, retry.NewExponential(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if pingErr := sqlDB.PingContext(ctx); pingErr != nil {
			log.Warn("database ping failed, retrying", zap.Error(pingErr))
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		return nil, oops.Code("DB_UNREACHABLE").With("attempts", connectAttempts).Wrap(err)
	}

	return conn, nil
}

// Migrate creates or updates the tables this service owns.
func Migrate(conn *gorm.DB) error {
	migrations := []interface{}{
		&models.User{},
	}

	for _, migration := range migrations {
		if err := conn.AutoMigrate(migration); err != nil {
			return oops.Code("DB_MIGRATE_FAILED").Wrap(err)
		}
	}

	return nil
}

// ParseLogLevel maps a level name to the gorm logger level, defaulting to warn.
func ParseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

func ensureDatabase(ctx context.Context, dsn string) error {
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return err
	}

	dbName := strings.TrimPrefix(parsed.Path, "/")
	if dbName == "" {
		return nil
	}

	parsed.Path = "/postgres"
	masterDSN := parsed.String()

	sqlDB, err := sql.Open("postgres", masterDSN)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := sqlDB.PingContext(ctx); err != nil {
		return err
	}

	var exists bool
	if err := sqlDB.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists); err != nil {
		return err
	}

	if exists {
		return nil
	}

	_, err = sqlDB.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(dbName))
	return err
}
