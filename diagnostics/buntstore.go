package diagnostics

import (
	"encoding/json"
	"strconv"
	"sync/atomic"

	"github.com/anjanpoonacha/tvchart/tools/log"
	"github.com/tidwall/buntdb"
)

// BuntStore persists Records in a buntdb key/value store, grounded on
// the teacher repo's storage.Bunt: same atomic-counter id assignment,
// JSON-per-key encoding, and an "updated_at" JSON index for ordered
// iteration.
type BuntStore struct {
	lastID int64
	db     *buntdb.DB
}

// FromMemory returns a BuntStore backed by an in-process buntdb
// database, useful for tests and short-lived diagnostics sessions.
func FromMemory() (Storage, error) {
	return newBunt(":memory:")
}

// FromFile returns a BuntStore persisted at file.
func FromFile(file string) (Storage, error) {
	return newBunt(file)
}

func newBunt(sourceFile string) (Storage, error) {
	db, err := buntdb.Open(sourceFile)
	if err != nil {
		return nil, err
	}
	if err := db.CreateIndex("updated_at_index", "*", buntdb.IndexJSON("updated_at")); err != nil {
		return nil, err
	}
	return &BuntStore{db: db}, nil
}

func (b *BuntStore) nextID() int64 {
	return atomic.AddInt64(&b.lastID, 1)
}

// Save assigns r an id and stores it as JSON under that key.
func (b *BuntStore) Save(r Record) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		r.ID = b.nextID()
		content, err := json.Marshal(r)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(strconv.FormatInt(r.ID, 10), string(content), nil)
		return err
	})
}

// Records iterates updated_at_index in order, keeping rows that pass
// every filter.
func (b *BuntStore) Records(filters ...Filter) ([]Record, error) {
	var records []Record
	err := b.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("updated_at_index", func(key, value string) bool {
			var r Record
			if err := json.Unmarshal([]byte(value), &r); err != nil {
				log.Warnf("diagnostics: skipping malformed record %s: %v", key, err)
				return true
			}
			for _, filter := range filters {
				if !filter(r) {
					return true
				}
			}
			records = append(records, r)
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
