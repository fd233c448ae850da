// Package datastore persists discoveries in a GORM-backed SQLite database.
package datastore

import (
	"fmt"

	"github.com/babelia-vision/babelia-go/internal/conf"
	"github.com/babelia-vision/babelia-go/internal/errors"
	"gorm.io/gorm"
)

// Interface is the persistence contract the agent depends on.
type Interface interface {
	Open() error
	Close() error
	// Save inserts a discovery. Saving a discovery whose coordinates
	// already exist is a successful no-op.
	Save(d *Discovery) error
	// Count returns the total number of stored discoveries.
	Count() (int64, error)
	// Top returns up to n discoveries ordered by score descending.
	Top(n int) ([]Discovery, error)
	// Get returns the discovery with the given coordinates slug.
	Get(locationKey, wall string, shelf, volume, page int) (*Discovery, error)
}

// DataStore implements the shared database operations over a GORM handle.
// Backend-specific stores embed it and provide Open/Close.
type DataStore struct {
	DB *gorm.DB
}

// New creates the datastore for the configured backend.
func New(settings *conf.Settings) Interface {
	return &SQLiteStore{Settings: settings}
}

// Save inserts a new Discovery record. A duplicate coordinate insert is
// logged and swallowed so the caller's pipeline continues unaffected.
func (ds *DataStore) Save(d *Discovery) error {
	if ds.DB == nil {
		return errors.Newf("database connection is not initialized").
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}

	if err := ds.DB.Create(d).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			getLogger().Warn("Duplicate discovery, skipping database insert",
				"slug", d.Slug())
			return nil
		}
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("slug", d.Slug()).
			Build()
	}

	return nil
}

// Count returns the total number of stored discoveries.
func (ds *DataStore) Count() (int64, error) {
	var count int64
	if err := ds.DB.Model(&Discovery{}).Count(&count).Error; err != nil {
		return 0, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "count").
			Build()
	}
	return count, nil
}

// Top returns up to n discoveries ordered by score descending.
func (ds *DataStore) Top(n int) ([]Discovery, error) {
	var discoveries []Discovery
	if err := ds.DB.Order("score DESC").Limit(n).Find(&discoveries).Error; err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "top").
			Context("limit", n).
			Build()
	}
	return discoveries, nil
}

// Get returns the discovery at the given coordinates, or a not-found error.
func (ds *DataStore) Get(locationKey, wall string, shelf, volume, page int) (*Discovery, error) {
	var d Discovery
	err := ds.DB.Where("location_key = ? AND wall = ? AND shelf = ? AND volume = ? AND page = ?",
		locationKey, wall, shelf, volume, page).First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("discovery not found: %s", renderSlug(locationKey, wall, shelf, volume, page)).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return &d, nil
}

// renderSlug formats coordinates in archive query form.
func renderSlug(locationKey, wall string, shelf, volume, page int) string {
	return fmt.Sprintf("%s-w%s-s%d-v%d-p%03d", locationKey, wall, shelf, volume, page)
}

// performAutoMigration migrates the schema for the given database handle.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(&Discovery{}); err != nil {
		return errors.New(fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("db_type", dbType).
			Build()
	}

	if debug {
		getLogger().Debug("Database migration completed",
			"db_type", dbType,
			"connection", connectionInfo)
	}

	return nil
}
