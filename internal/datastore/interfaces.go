// Package datastore keeps the detection and session history.
package datastore

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/voicetrigger/internal/conf"
	"github.com/tphakala/voicetrigger/internal/errors"
	"github.com/tphakala/voicetrigger/internal/logger"
)

// slowQueryThreshold is the duration above which queries are logged as slow.
const slowQueryThreshold = 200 * time.Millisecond

// Interface abstracts the underlying database implementation.
type Interface interface {
	Open() error
	Close() error
	SaveDetection(ctx context.Context, d *Detection) error
	GetDetection(ctx context.Context, id string) (Detection, error)
	RecentDetections(ctx context.Context, limit int) ([]Detection, error)
	MarkFalsePositive(ctx context.Context, id string) error
	SaveSession(ctx context.Context, s *Session) error
	RecentSessions(ctx context.Context, limit int) ([]Session, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB
}

// New returns the store selected by settings, or nil when the datastore is
// disabled. The store must be opened before use.
func New(settings *conf.DatastoreSettings) (Interface, error) {
	switch strings.ToLower(settings.Type) {
	case "sqlite":
		return &SQLiteStore{Path: settings.Path}, nil
	case "mysql":
		return &MySQLStore{DSN: settings.DSN}, nil
	case "", "none":
		return nil, nil
	default:
		return nil, errors.Newf("unsupported datastore type %q", settings.Type).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

func gormConfig() *gorm.Config {
	return &gorm.Config{Logger: logger.NewGormLoggerAdapter(GetLogger(), slowQueryThreshold)}
}

func performAutoMigration(db *gorm.DB, dbType string) error {
	start := time.Now()
	if err := db.AutoMigrate(&Detection{}, &Session{}); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "auto_migrate").
			Context("db_type", dbType).
			Build()
	}
	GetLogger().Debug("database migration complete",
		logger.String("db_type", dbType),
		logger.Duration("duration", time.Since(start)))
	return nil
}

func (ds *DataStore) db(ctx context.Context) (*gorm.DB, error) {
	if ds.DB == nil {
		return nil, errors.Newf("database connection is not initialized").
			Component("datastore").
			Category(errors.CategoryState).
			Build()
	}
	return ds.DB.WithContext(ctx), nil
}

func dbError(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Context("operation", op).
			Build()
	}
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", op).
		Build()
}

// SaveDetection inserts d.
func (ds *DataStore) SaveDetection(ctx context.Context, d *Detection) error {
	db, err := ds.db(ctx)
	if err != nil {
		return err
	}
	if err := db.Create(d).Error; err != nil {
		return dbError(err, "save_detection")
	}
	return nil
}

// GetDetection returns the detection with id.
func (ds *DataStore) GetDetection(ctx context.Context, id string) (Detection, error) {
	db, err := ds.db(ctx)
	if err != nil {
		return Detection{}, err
	}
	var d Detection
	if err := db.Where("id = ?", id).First(&d).Error; err != nil {
		return Detection{}, dbError(err, "get_detection")
	}
	return d, nil
}

// RecentDetections returns up to limit detections, newest first.
func (ds *DataStore) RecentDetections(ctx context.Context, limit int) ([]Detection, error) {
	db, err := ds.db(ctx)
	if err != nil {
		return nil, err
	}
	var out []Detection
	if err := db.Order("detected_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, dbError(err, "recent_detections")
	}
	return out, nil
}

// MarkFalsePositive flags the detection with id as a false positive.
func (ds *DataStore) MarkFalsePositive(ctx context.Context, id string) error {
	db, err := ds.db(ctx)
	if err != nil {
		return err
	}
	res := db.Model(&Detection{}).Where("id = ?", id).Update("false_positive", true)
	if res.Error != nil {
		return dbError(res.Error, "mark_false_positive")
	}
	if res.RowsAffected == 0 {
		return dbError(gorm.ErrRecordNotFound, "mark_false_positive")
	}
	return nil
}

// SaveSession inserts or replaces s.
func (ds *DataStore) SaveSession(ctx context.Context, s *Session) error {
	db, err := ds.db(ctx)
	if err != nil {
		return err
	}
	if err := db.Save(s).Error; err != nil {
		return dbError(err, "save_session")
	}
	return nil
}

// RecentSessions returns up to limit sessions, newest first.
func (ds *DataStore) RecentSessions(ctx context.Context, limit int) ([]Session, error) {
	db, err := ds.db(ctx)
	if err != nil {
		return nil, err
	}
	var out []Session
	if err := db.Order("started_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, dbError(err, "recent_sessions")
	}
	return out, nil
}

func closeDB(db *gorm.DB, dbType string) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return dbError(err, "close_"+dbType)
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close_"+dbType)
	}
	return nil
}
