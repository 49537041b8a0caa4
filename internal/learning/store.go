// Package learning closes the feedback loop: it persists how prior decisions
// turned out and feeds confidence adjustments back into future analyses.
package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/sentinelstack/pkg-sentinel/internal/models"
)

// Store abstracts persistence for historical outcome records.
type Store interface {
	Append(ctx context.Context, record models.HistoricalRecord) error
	Recent(ctx context.Context, limit int) ([]models.HistoricalRecord, error)
	Close() error
}

// MemoryStore keeps the most recent records in memory. It is the graceful
// degradation target when the persistent store is unavailable.
type MemoryStore struct {
	mu      sync.Mutex
	records []models.HistoricalRecord
	cap     int
}

// NewMemoryStore creates a store retaining at most cap records.
func NewMemoryStore(cap int) *MemoryStore {
	if cap <= 0 {
		cap = 1000
	}
	return &MemoryStore{cap: cap}
}

// Append adds a record, evicting the oldest when full.
func (s *MemoryStore) Append(_ context.Context, record models.HistoricalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	if len(s.records) > s.cap {
		copy(s.records[0:], s.records[1:])
		s.records = s.records[:s.cap]
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *MemoryStore) Recent(_ context.Context, limit int) ([]models.HistoricalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.records) {
		limit = len(s.records)
	}
	out := make([]models.HistoricalRecord, 0, limit)
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// BadgerStore persists records in an embedded BadgerDB.
type BadgerStore struct {
	db  *badger.DB
	cap int
	mu  sync.Mutex
	seq uint64
}

// OpenBadgerStore opens (or creates) the store at path. An empty path opens
// an in-memory database, useful for tests.
func OpenBadgerStore(path string, cap int) (*BadgerStore, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	if cap <= 0 {
		cap = 1000
	}
	return &BadgerStore{db: db, cap: cap}, nil
}

func (s *BadgerStore) nextKey(ts time.Time) []byte {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()
	return []byte(fmt.Sprintf("rec:%020d:%06d", ts.UnixNano(), seq))
}

// Append writes the record and trims history beyond the retention cap.
func (s *BadgerStore) Append(_ context.Context, record models.HistoricalRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	key := s.nextKey(record.Timestamp)

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, payload)
	})
	if err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return s.trim()
}

// trim deletes the oldest records once the cap is exceeded.
func (s *BadgerStore) trim() error {
	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		if excess := len(keys) - s.cap; excess > 0 {
			stale = keys[:excess]
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// Recent returns up to limit records, newest first.
func (s *BadgerStore) Recent(_ context.Context, limit int) ([]models.HistoricalRecord, error) {
	if limit <= 0 {
		limit = s.cap
	}
	var records []models.HistoricalRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte("rec;")); it.Valid() && len(records) < limit; it.Next() {
			var record models.HistoricalRecord
			err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &record)
			})
			if err != nil {
				return err
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return records, nil
}

// Close releases the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
