package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/cennso/sitegen/pkg/log"
	"github.com/cennso/sitegen/pkg/models"
	"github.com/cennso/sitegen/pkg/utils"
)

const (
	docKeyPrefix  = "doc:"        // Prefix for route keys in DB
	metaKeyPrefix = "meta:"       // Prefix for build-level values
	cacheDBDir    = "build_cache" // Subdirectory name suffix within stateDir for Badger DB files
)

// BadgerStore implements the BuildCache interface using BadgerDB
type BadgerStore struct {
	db       *badger.DB
	log      *logrus.Entry
	docCount atomic.Int64 // Cached document count, maintained on writes
}

// NewBadgerStore opens the build cache for a site under stateDir.
// With fresh set, any existing cache is removed first.
func NewBadgerStore(ctx context.Context, stateDir, siteName string, fresh bool, logger *logrus.Entry) (*BadgerStore, error) {
	store := &BadgerStore{log: logger.WithField("component", "storage")}

	dbPath := filepath.Join(stateDir, utils.SanitizeRouteSegment(siteName)+"_"+cacheDBDir)

	if fresh {
		store.log.Warnf("Fresh build requested. REMOVING existing cache directory: %s", dbPath)
		if err := os.RemoveAll(dbPath); err != nil {
			store.log.Errorf("Failed to remove existing cache directory %s: %v", dbPath, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create cache directory %s: %w", utils.ErrFilesystem, dbPath, err)
	}

	opts := badger.DefaultOptions(dbPath).
		WithLogger(log.NewBadgerLogrusAdapter(store.log)).
		WithNumVersionsToKeep(1)

	var err error
	store.db, err = badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dbPath, err)
	}

	count, err := store.countPrefix(docKeyPrefix)
	if err != nil {
		store.log.Warnf("Failed to count cached documents: %v", err)
	} else {
		store.docCount.Store(int64(count))
	}

	store.log.Infof("Build cache opened at %s (%d documents)", dbPath, count)
	return store, nil
}

func (s *BadgerStore) countPrefix(prefix string) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Concurrent MVCC transactions on overlapping keys can return badger.ErrConflict;
// these resolve in microseconds, so a tight retry loop is sufficient.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// GetDocument implements the DocumentCache interface
func (s *BadgerStore) GetDocument(route string) (*models.CacheEntry, bool, error) {
	var entry *models.CacheEntry
	key := []byte(docKeyPrefix + route)

	errView := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return fmt.Errorf("%w: failed getting key '%s': %w", utils.ErrDatabase, string(key), errGet)
		}

		return item.Value(func(val []byte) error {
			var decoded models.CacheEntry
			if errJson := json.Unmarshal(val, &decoded); errJson != nil {
				s.log.Warnf("Failed to unmarshal cache entry for '%s': %v. Treating as miss.", route, errJson)
				return nil
			}
			entry = &decoded
			return nil
		})
	})

	if errView != nil {
		s.log.Errorf("DB View error in GetDocument for '%s': %v", route, errView)
		return nil, false, errView
	}
	return entry, entry != nil, nil
}

// PutDocument implements the DocumentCache interface
func (s *BadgerStore) PutDocument(route string, entry *models.CacheEntry) error {
	key := []byte(docKeyPrefix + route)

	entryBytes, errJson := json.Marshal(entry)
	if errJson != nil {
		return fmt.Errorf("%w: failed to marshal JSON cache entry for '%s': %w", utils.ErrParsing, route, errJson)
	}

	isNew := false
	err := s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		isNew = errors.Is(errGet, badger.ErrKeyNotFound)
		return txn.SetEntry(badger.NewEntry(key, entryBytes))
	})
	if err != nil {
		s.log.WithField("route", route).Errorf("DB Update error in PutDocument: %v", err)
		return fmt.Errorf("%w: failed storing '%s': %w", utils.ErrDatabase, route, err)
	}
	if isNew {
		s.docCount.Add(1)
	}
	s.log.Debugf("Cached render for '%s'", route)
	return nil
}

// GetMeta implements the MetaStore interface
func (s *BadgerStore) GetMeta(key string) (string, bool, error) {
	var value string
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get([]byte(metaKeyPrefix + key))
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return errGet
		}
		val, errVal := item.ValueCopy(nil)
		if errVal != nil {
			return errVal
		}
		value, found = string(val), true
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("%w: failed reading meta '%s': %w", utils.ErrDatabase, key, err)
	}
	return value, found, nil
}

// SetMeta implements the MetaStore interface
func (s *BadgerStore) SetMeta(key, value string) error {
	err := s.dbUpdate(func(txn *badger.Txn) error {
		return txn.Set([]byte(metaKeyPrefix+key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("%w: failed writing meta '%s': %w", utils.ErrDatabase, key, err)
	}
	return nil
}

// Count implements the StoreAdmin interface. O(1), maintained on writes.
func (s *BadgerStore) Count() int {
	return int(s.docCount.Load())
}

// Routes implements the StoreAdmin interface
func (s *BadgerStore) Routes() ([]string, error) {
	var routes []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		p := []byte(docKeyPrefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			routes = append(routes, string(it.Item().Key()[len(p):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: listing routes: %w", utils.ErrDatabase, err)
	}
	return routes, nil
}

// Prune implements the StoreAdmin interface
func (s *BadgerStore) Prune(ctx context.Context, keep map[string]bool) (int, error) {
	routes, err := s.Routes()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, route := range routes {
		if keep[route] {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return removed, ctxErr
		}
		key := []byte(docKeyPrefix + route)
		if err := s.dbUpdate(func(txn *badger.Txn) error { return txn.Delete(key) }); err != nil {
			return removed, fmt.Errorf("%w: deleting '%s': %w", utils.ErrDatabase, route, err)
		}
		s.docCount.Add(-1)
		removed++
		s.log.Debugf("Pruned stale cache entry '%s'", route)
	}
	if removed > 0 {
		s.log.Infof("Pruned %d stale cache entries", removed)
	}
	return removed, nil
}

// CollectGarbage implements the StoreAdmin interface. It rewrites value log files until
// badger reports nothing left to reclaim and returns the number of files rewritten.
func (s *BadgerStore) CollectGarbage() (int, error) {
	if s.db == nil || s.db.IsClosed() {
		s.log.Debug("DB GC: Database is nil or closed, skipping GC cycle.")
		return 0, nil
	}

	rewritten := 0
	for {
		err := s.db.RunValueLogGC(0.5)
		if err == nil {
			rewritten++
			s.log.Debug("BadgerDB GC cycle completed.")
			continue
		}
		if errors.Is(err, badger.ErrNoRewrite) {
			return rewritten, nil
		}
		return rewritten, fmt.Errorf("%w: value log GC: %w", utils.ErrDatabase, err)
	}
}

// Close implements the StoreAdmin interface
func (s *BadgerStore) Close() error {
	if s.db != nil && !s.db.IsClosed() {
		s.log.Debug("Closing build cache...")
		if err := s.db.Close(); err != nil {
			s.log.Errorf("Error closing build cache: %v", err)
			return fmt.Errorf("%w: %w", utils.ErrDatabase, err)
		}
	}
	return nil
}
