package repository

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yYagoKn/drp/internal/config"
	"github.com/yYagoKn/drp/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// DefaultMigrationSource is where the postgres schema files live, relative to
// the working directory of the binary.
const DefaultMigrationSource = "file://migration"

// archiveModels are the tables kept outside the ledger: click audit rows,
// conversation audit entries and completed leads.
var archiveModels = []any{&models.ClickEvent{}, &models.AuditLog{}, &models.LeadRecord{}}

// InitDB opens the archive database named by DATABASE_URL. Two schemes are
// accepted: postgres:// (or postgresql://) and sqlite://<path or dsn>. The
// archive is separate from the ledger backend; a deployment may keep its
// ledger in Redis while archiving to sqlite.
func InitDB(cfg config.Config) (*gorm.DB, error) {
	dialector, err := dialector(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func dialector(databaseURL string) (gorm.Dialector, error) {
	switch {
	case isPostgres(databaseURL):
		return postgres.Open(databaseURL), nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(databaseURL, "sqlite://")), nil
	}
	return nil, fmt.Errorf("unsupported database driver: %s", databaseURL)
}

func isPostgres(databaseURL string) bool {
	return strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://")
}

// Migrate brings the archive schema up to date. Postgres runs the versioned
// SQL files from sourcePath (DefaultMigrationSource when empty) so column
// widths are owned by the migrations; sqlite, used for local runs and tests,
// is migrated straight from the gorm models.
func Migrate(db *gorm.DB, databaseURL string, sourcePath string) error {
	if isPostgres(databaseURL) {
		return RunMigrations(databaseURL, sourcePath)
	}
	if err := db.AutoMigrate(archiveModels...); err != nil {
		return fmt.Errorf("failed to auto-migrate: %w", err)
	}
	return nil
}

// RunMigrations applies every pending up migration. An already current
// schema is not an error.
func RunMigrations(databaseURL string, sourcePath string) error {
	if sourcePath == "" {
		sourcePath = DefaultMigrationSource
	}
	m, err := migrate.New(sourcePath, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run up migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	slog.Info("Database migrations applied", "version", version, "dirty", dirty)
	return nil
}
