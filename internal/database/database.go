// Package database opens the state database: a sqlite file by default or a
// postgres server, falling back to sqlite when postgres is unreachable.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/OCAP2/bookmarks/internal/model"
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Drivers understood by Connect.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config describes the state database.
type Config struct {
	Driver string
	// Path of the sqlite file. Empty means in memory.
	Path     string
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

func (c Config) postgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.Username, c.Password, c.Database)
}

var sqlitePragmas = []string{
	"PRAGMA user_version = 1",
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
}

// Manager owns the gorm handle. IsValid is false until Connect succeeds and
// again after Close or a failed migration.
type Manager struct {
	DB       *gorm.DB
	IsValid  bool
	IsSQLite bool

	sqlDB *sql.DB
	log   zerolog.Logger
}

func NewManager(log zerolog.Logger) *Manager {
	return &Manager{log: log}
}

// Connect opens the configured database. A postgres failure falls back to
// sqlite at cfg.Path.
func (m *Manager) Connect(cfg Config) error {
	switch cfg.Driver {
	case DriverPostgres:
		err := m.open(postgres.New(postgres.Config{DSN: cfg.postgresDSN(), PreferSimpleProtocol: true}), 10)
		if err == nil {
			m.log.Info().Str("host", cfg.Host).Str("database", cfg.Database).Msg("connected to postgres")
			return nil
		}
		m.log.Error().Err(err).Msg("postgres unavailable, using sqlite")
	case "", DriverSQLite:
	default:
		return fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
	return m.openSQLite(cfg.Path)
}

func (m *Manager) openSQLite(path string) error {
	dsn := "file::memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
		dsn = path
	}
	// sqlite allows a single writer
	if err := m.open(sqlite.Open(dsn), 1); err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	for _, pragma := range sqlitePragmas {
		if err := m.DB.Exec(pragma).Error; err != nil {
			m.IsValid = false
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	m.IsSQLite = true
	m.log.Info().Str("path", path).Msg("using sqlite")
	return nil
}

func (m *Manager) open(d gorm.Dialector, maxConns int) error {
	db, err := gorm.Open(d, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return err
	}
	sqlDB.SetMaxOpenConns(maxConns)
	m.DB, m.sqlDB, m.IsValid = db, sqlDB, true
	return nil
}

// Setup migrates every table in model.DatabaseModels.
func (m *Manager) Setup() error {
	if err := m.DB.AutoMigrate(model.DatabaseModels...); err != nil {
		m.IsValid = false
		return fmt.Errorf("migrate schema: %w", err)
	}
	m.log.Debug().Int("tables", len(model.DatabaseModels)).Msg("schema migrated")
	return nil
}

func (m *Manager) Close() error {
	m.IsValid = false
	if m.sqlDB == nil {
		return nil
	}
	return m.sqlDB.Close()
}
