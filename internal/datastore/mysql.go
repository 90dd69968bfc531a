package datastore

import (
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tphakala/voicetrigger/internal/errors"
)

// MySQLStore implements Interface for MySQL.
type MySQLStore struct {
	DataStore
	DSN string
}

// Open connects to the server and migrates the schema.
func (store *MySQLStore) Open() error {
	if store.DSN == "" {
		return errors.Newf("mysql dsn is empty").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}

	db, err := gorm.Open(mysql.Open(store.DSN), gormConfig())
	if err != nil {
		return dbError(err, "open_mysql")
	}

	store.DB = db
	if err := performAutoMigration(db, "mysql"); err != nil {
		return err
	}
	GetLogger().Info("mysql database opened")
	return nil
}

func (store *MySQLStore) Close() error {
	err := closeDB(store.DB, "mysql")
	store.DB = nil
	return err
}
