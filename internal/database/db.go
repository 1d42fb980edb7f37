package database

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"defter-backend/internal/config"
	"defter-backend/internal/logger"
	"defter-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

// Open connects to the configured database without touching the schema.
func Open(cfg *config.Config) (*gorm.DB, error) {
	level := gormlogger.Warn
	if cfg.DBDebug {
		level = gormlogger.Info
	}
	gcfg := &gorm.Config{
		Logger:         gormlogger.Default.LogMode(level),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	}

	var dialector gorm.Dialector
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		dialector = postgres.Open(cfg.DatabaseDSN)
	case config.DriverSQLite:
		dialector = sqlite.Open(cfg.DatabaseDSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	db, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DatabaseDriver, err)
	}
	if cfg.DatabaseDriver == config.DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}

// Init opens the database, migrates it and stores it in DB.
func Init(cfg *config.Config) error {
	db, err := Open(cfg)
	if err != nil {
		return err
	}
	if err := Migrate(db); err != nil {
		return err
	}
	DB = db
	log := logger.WithComponent("database")
	log.Info().
		Str("driver", cfg.DatabaseDriver).
		Msg("database connected, migration complete")
	return nil
}

// Close releases the pool behind DB.
func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var resetMu sync.Mutex

// Reset wipes all bookkeeping data. A file backed sqlite database is deleted
// and recreated; anything else has its tables dropped and migrated again.
// Resets run one at a time. A file reset closes and replaces DB, so
// requests in flight at that moment fail; it is meant for debug setups only.
func Reset(cfg *config.Config) error {
	resetMu.Lock()
	defer resetMu.Unlock()

	log := logger.WithComponent("database")

	if path, ok := sqliteFile(cfg); ok {
		if err := Close(); err != nil {
			return fmt.Errorf("close before reset: %w", err)
		}
		for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
			if err := os.Remove(path + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("remove %s: %w", path+suffix, err)
			}
		}
		log.Warn().Str("file", path).Msg("database file deleted")
		return Init(cfg)
	}

	if DB == nil {
		if err := Init(cfg); err != nil {
			return err
		}
	}
	tables := models.All()
	for i := len(tables) - 1; i >= 0; i-- {
		if err := DB.Migrator().DropTable(tables[i]); err != nil {
			return fmt.Errorf("drop table: %w", err)
		}
	}
	log.Warn().Msg("all tables dropped")
	return Migrate(DB)
}

// sqliteFile returns the on-disk path of a sqlite DSN, if it has one.
func sqliteFile(cfg *config.Config) (string, bool) {
	if cfg.DatabaseDriver != config.DriverSQLite {
		return "", false
	}
	dsn := cfg.DatabaseDSN
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return "", false
	}
	dsn = strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(dsn, '?'); i >= 0 {
		dsn = dsn[:i]
	}
	return dsn, dsn != ""
}
