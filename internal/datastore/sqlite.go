package datastore

import (
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/voicetrigger/internal/errors"
	"github.com/tphakala/voicetrigger/internal/logger"
)

const memoryDSN = ":memory:"

// SQLiteStore implements Interface for SQLite.
type SQLiteStore struct {
	DataStore
	Path string // database file, or ":memory:"
}

// Open creates the database file if needed and migrates the schema.
func (store *SQLiteStore) Open() error {
	if store.Path == "" {
		return errors.Newf("sqlite path is empty").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if store.Path != memoryDSN {
		if err := os.MkdirAll(filepath.Dir(store.Path), 0o755); err != nil {
			return errors.New(err).
				Component("datastore").
				Category(errors.CategoryFileIO).
				FileContext(store.Path, 0).
				Build()
		}
	}

	db, err := gorm.Open(sqlite.Open(store.Path), gormConfig())
	if err != nil {
		return dbError(err, "open_sqlite")
	}

	// SQLite serializes writers; one connection also keeps an in-memory
	// database alive across queries
	sqlDB, err := db.DB()
	if err != nil {
		return dbError(err, "open_sqlite")
	}
	sqlDB.SetMaxOpenConns(1)

	store.DB = db
	if err := performAutoMigration(db, "sqlite"); err != nil {
		return err
	}
	GetLogger().Info("sqlite database opened", logger.String("path", store.Path))
	return nil
}

func (store *SQLiteStore) Close() error {
	err := closeDB(store.DB, "sqlite")
	store.DB = nil
	return err
}
