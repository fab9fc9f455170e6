package testhelpers

import (
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"collabtext/internal/store/sqlstore"
)

var (
	openSQLite = func(dsn string) (*gorm.DB, error) {
		return gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	}
	dropDocumentTableFn = func(db *gorm.DB) error { return db.Migrator().DropTable(&sqlstore.DocumentRecord{}) }
)

// SetupTestDB creates an isolated in-memory SQLite database for tests.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := openSQLite(dsn)
	if err != nil {
		panic(fmt.Sprintf("failed to open test database: %v", err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		panic(fmt.Sprintf("failed to access test database: %v", err))
	}
	// shared-cache sqlite reports table locks under concurrent writers
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// SetupDocumentStore returns a migrated sqlite-backed document store.
func SetupDocumentStore(t *testing.T) *sqlstore.DocumentRepository {
	t.Helper()

	repo, err := sqlstore.NewDocumentRepository(SetupTestDB(t))
	if err != nil {
		panic(fmt.Sprintf("failed to migrate test database: %v", err))
	}
	return repo
}

// DropDocumentTable removes the documents table to force repository errors.
func DropDocumentTable(t *testing.T, db *gorm.DB) {
	t.Helper()
	if err := dropDocumentTableFn(db); err != nil {
		panic(fmt.Sprintf("failed to drop document table: %v", err))
	}
}
