package diagnostics

import (
	"time"

	"github.com/glebarez/sqlite"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

// SQLStore persists Records through gorm, grounded on the teacher repo's
// storage.SQL: same connection-pool tuning and AutoMigrate-on-open shape,
// retargeted from model.Order to Record and filtered with samber/lo
// instead of a SQL WHERE clause, matching the teacher's in-memory
// filter-after-Find approach.
type SQLStore struct {
	db *gorm.DB
}

// FromSQL opens dialect with opts, migrates the Record table, and
// returns a ready SQLStore.
func FromSQL(dialect gorm.Dialector, opts ...gorm.Option) (Storage, error) {
	db, err := gorm.Open(dialect, opts...)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, err
	}

	return &SQLStore{db: db}, nil
}

// FromSQLiteFile opens (creating if absent) a pure-Go SQLite database at
// path and returns a ready SQLStore, the same glebarez/sqlite dialector
// the teacher repo's ninjabot.go wires up for its default database.
func FromSQLiteFile(path string) (Storage, error) {
	return FromSQL(sqlite.Open(path))
}

// Save inserts r as a new row.
func (s *SQLStore) Save(r Record) error {
	return s.db.Create(&r).Error
}

// Records returns every row matching every filter.
func (s *SQLStore) Records(filters ...Filter) ([]Record, error) {
	var records []Record
	result := s.db.Find(&records)
	if result.Error != nil && result.Error != gorm.ErrRecordNotFound {
		return nil, result.Error
	}

	return lo.Filter(records, func(r Record, _ int) bool {
		for _, filter := range filters {
			if !filter(r) {
				return false
			}
		}
		return true
	}), nil
}
