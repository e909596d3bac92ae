package infra

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
	"go.uber.org/zap"

	_ "github.com/go-sql-driver/mysql"

	"linkwatch/internal/config"
)

// ProvideSQLDB opens the bun.DB behind the monitored_links table, selecting
// a dialect from cfg.DBType and connecting via cfg.DatabaseURL.
func ProvideSQLDB(
	cfg *config.Config,
	logger *zap.SugaredLogger,
) (*bun.DB, error) {
	var sqldb *sql.DB
	var db *bun.DB
	var err error

	switch cfg.DBType {
	case "postgres", "postgresql":
		sqldb = sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DatabaseURL)))
		db = bun.NewDB(sqldb, pgdialect.New())

		logger.Infof("connecting to postgres")

	case "mysql":
		dsn := strings.TrimPrefix(cfg.DatabaseURL, "mysql://")

		sqldb, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql connection: %w", err)
		}

		db = bun.NewDB(sqldb, mysqldialect.New())

		logger.Infof("connecting to mysql")

	case "sqlite":
		dbPath := sqlitePath(cfg.DatabaseURL)

		sqldb, err = sql.Open(sqliteshim.ShimName, fmt.Sprintf("file:%s?cache=shared&mode=rwc", dbPath))
		if err != nil {
			return nil, fmt.Errorf("open sqlite connection: %w", err)
		}

		// SQLite serializes writes; a single connection avoids lock-contention
		// errors under concurrent Scheduler/Worker access.
		sqldb.SetMaxOpenConns(1)
		sqldb.SetMaxIdleConns(1)
		sqldb.SetConnMaxLifetime(0)

		db = bun.NewDB(sqldb, sqlitedialect.New())

		if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
			logger.Warnf("failed to set busy_timeout (non-fatal): %v", err)
		}
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			logger.Warnf("failed to set journal_mode (non-fatal): %v", err)
		}
		if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
			logger.Warnf("failed to enable foreign keys (non-fatal): %v", err)
		}

		logger.Infof("connecting to sqlite: %s", dbPath)

	default:
		return nil, fmt.Errorf("unsupported database type: %s (want postgres, mysql, or sqlite)", cfg.DBType)
	}

	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db.AddQueryHook(bundebug.NewQueryHook(
		bundebug.FromEnv(),
	))

	logger.Info("connected to sql database")
	return db, nil
}

func sqlitePath(url string) string {
	path := strings.TrimPrefix(url, "sqlite://")
	path = strings.TrimPrefix(path, "file:")
	if path == "" {
		return "./data.db"
	}
	return path
}

// GracefulSQLiteShutdown checkpoints the WAL file before closing, so an
// interrupted restart doesn't lose the tail of the write-ahead log.
func GracefulSQLiteShutdown(db *bun.DB, dbType string, logger *zap.SugaredLogger) error {
	if dbType != "sqlite" {
		return nil
	}

	if _, err := db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		logger.Warnf("failed to checkpoint WAL (non-fatal): %v", err)
	}

	if err := db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
