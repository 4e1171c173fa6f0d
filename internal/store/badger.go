package store

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// conflictRetries bounds how often PutIfAbsent re-runs a transaction that
// lost to a concurrent writer.
const conflictRetries = 3

// BadgerConfig configures a BadgerBackend. An empty Path opens an in-memory
// database.
type BadgerConfig struct {
	Path   string
	Logger *logrus.Logger
}

// BadgerBackend stores all regions in one badger database, each region under
// its own key prefix.
type BadgerBackend struct {
	db      *badger.DB
	regions map[string]*badgerRegion
}

func NewBadgerBackend(cfg BadgerConfig) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.Path == "" {
		opts = opts.WithInMemory(true)
	}
	if cfg.Logger != nil {
		opts = opts.WithLogger(cfg.Logger)
	} else {
		opts.Logger = nil
	}
	opts.ValueLogFileSize = 1024 * 1024 * 64

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open badger at %q: %w", ErrIO, cfg.Path, err)
	}

	b := &BadgerBackend{db: db, regions: make(map[string]*badgerRegion, len(Regions))}
	for _, name := range Regions {
		b.regions[name] = &badgerRegion{db: db, prefix: []byte(name + "/")}
	}
	return b, nil
}

func (b *BadgerBackend) Region(name string) Region {
	r, ok := b.regions[name]
	if !ok {
		return nil
	}
	return r
}

func (b *BadgerBackend) Close() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("%w: close badger: %w", ErrIO, err)
	}
	return nil
}

type badgerRegion struct {
	db     *badger.DB
	prefix []byte
}

func (r *badgerRegion) key(k string) []byte {
	out := make([]byte, 0, len(r.prefix)+len(k))
	out = append(out, r.prefix...)
	return append(out, k...)
}

func (r *badgerRegion) Get(key string) ([]byte, error) {
	var value []byte
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(r.key(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", ErrIO, key, err)
	}
	return value, nil
}

func (r *badgerRegion) Has(key string) (bool, error) {
	err := r.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(r.key(key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: get %s: %w", ErrIO, key, err)
	}
	return true, nil
}

func (r *badgerRegion) Put(key string, data []byte) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(r.key(key), data)
	})
	if err != nil {
		return fmt.Errorf("%w: set %s: %w", ErrIO, key, err)
	}
	return nil
}

func (r *badgerRegion) PutIfAbsent(key string, data []byte) (bool, error) {
	for attempt := 0; ; attempt++ {
		written := false
		err := r.db.Update(func(txn *badger.Txn) error {
			_, err := txn.Get(r.key(key))
			if err == nil {
				return nil
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			written = true
			return txn.Set(r.key(key), data)
		})
		if errors.Is(err, badger.ErrConflict) && attempt < conflictRetries {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("%w: put %s: %w", ErrIO, key, err)
		}
		return written, nil
	}
}

func (r *badgerRegion) CompareAndSwap(key string, prev, next []byte) error {
	var mismatch error
	err := r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(r.key(key))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			if prev != nil {
				mismatch = fmt.Errorf("%s is absent: %w", key, ErrConflict)
				return nil
			}
		case err != nil:
			return err
		default:
			current, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if prev == nil || !bytes.Equal(current, prev) {
				mismatch = fmt.Errorf("%s has moved: %w", key, ErrConflict)
				return nil
			}
		}
		return txn.Set(r.key(key), next)
	})
	if mismatch != nil {
		return mismatch
	}
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%s: %w", key, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("%w: swap %s: %w", ErrIO, key, err)
	}
	return nil
}

func (r *badgerRegion) Keys() ([]string, error) {
	var keys []string
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = r.prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(r.prefix); it.ValidForPrefix(r.prefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			keys = append(keys, string(k[len(r.prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list keys: %w", ErrIO, err)
	}
	return keys, nil
}
