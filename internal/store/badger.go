package store

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// BadgerConfig holds configuration for the badger-backed store
type BadgerConfig struct {
	Path     string // data directory, ignored when InMemory is set
	InMemory bool
	Logger   *logrus.Logger
}

// BadgerKV implements KV on a single badger database. The region byte is
// prepended to every key.
type BadgerKV struct {
	db     *badger.DB
	logger *logrus.Logger
}

const maxConflictRetries = 16

// OpenBadger opens (or creates) the database
func OpenBadger(cfg BadgerConfig) (*BadgerKV, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("badger: path is required")
	}

	path := cfg.Path
	if cfg.InMemory {
		path = ""
	}
	opts := badger.DefaultOptions(path).
		WithInMemory(cfg.InMemory).
		WithLogger(cfg.Logger.WithField("component", "badger")).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerKV{db: db, logger: cfg.Logger}, nil
}

// OpenInMemory is a convenience for tests and one-shot tools
func OpenInMemory() (*BadgerKV, error) {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return OpenBadger(BadgerConfig{InMemory: true, Logger: l})
}

func regionKey(r Region, key []byte) []byte {
	out := make([]byte, 0, len(key)+1)
	out = append(out, byte(r))
	return append(out, key...)
}

func (s *BadgerKV) Get(r Region, key []byte) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(regionKey(r, key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", r, err)
	}
	return out, nil
}

func (s *BadgerKV) Set(r Region, key, value []byte) error {
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(regionKey(r, key), value)
	}); err != nil {
		return fmt.Errorf("set %s: %w", r, err)
	}
	return nil
}

func (s *BadgerKV) SetIfAbsent(r Region, key, value []byte) (bool, error) {
	var wrote bool
	err := s.retry(func(txn *badger.Txn) error {
		wrote = false
		k := regionKey(r, key)
		_, err := txn.Get(k)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		wrote = true
		return txn.Set(k, value)
	})
	if err != nil {
		return false, fmt.Errorf("set-if-absent %s: %w", r, err)
	}
	return wrote, nil
}

func (s *BadgerKV) Delete(r Region, key []byte) error {
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(regionKey(r, key))
	}); err != nil {
		return fmt.Errorf("delete %s: %w", r, err)
	}
	return nil
}

// Iterate snapshots the matching entries first so fn may write to the store
func (s *BadgerKV) Iterate(r Region, prefix []byte, fn func(key, value []byte) error) error {
	full := regionKey(r, prefix)

	type kv struct{ k, v []byte }
	var items []kv
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = full
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(full); it.ValidForPrefix(full); it.Next() {
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			k := item.KeyCopy(nil)
			items = append(items, kv{k: k[1:], v: v})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("iterate %s: %w", r, err)
	}

	for _, it := range items {
		if err := fn(it.k, it.v); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
	return nil
}

type badgerWriter struct{ txn *badger.Txn }

func (w badgerWriter) Set(r Region, key, value []byte) error {
	return w.txn.Set(regionKey(r, key), value)
}

func (w badgerWriter) Delete(r Region, key []byte) error {
	return w.txn.Delete(regionKey(r, key))
}

func (s *BadgerKV) Batch(fn func(b Writer) error) error {
	if err := s.db.Update(func(txn *badger.Txn) error {
		return fn(badgerWriter{txn: txn})
	}); err != nil {
		return fmt.Errorf("batch: %w", err)
	}
	return nil
}

func (s *BadgerKV) NextID(seq string) (uint64, error) {
	var next uint64
	err := s.retry(func(txn *badger.Txn) error {
		k := regionKey(RegionSequences, []byte(seq))
		next = 1
		item, err := txn.Get(k)
		switch {
		case err == nil:
			b, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			cur, err := ParseU64(b)
			if err != nil {
				return err
			}
			next = cur + 1
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.Set(k, U64(next))
	})
	if err != nil {
		return 0, fmt.Errorf("next id %s: %w", seq, err)
	}
	return next, nil
}

// retry reruns read-modify-write transactions that lost a conflict
func (s *BadgerKV) retry(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxConflictRetries; i++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.logger.WithField("attempt", i+1).Debug("badger txn conflict, retrying")
	}
	return err
}

func (s *BadgerKV) Close() error {
	return s.db.Close()
}
