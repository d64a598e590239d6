// Package badger stores checkpoints in an embedded Badger key-value store
// under keys of the form checkpoint/<id>.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"

	"meshcore/internal/infra/persistence"
	"meshcore/internal/telemetry"
	"meshcore/pkg/domain"
)

var _ domain.CheckpointStore = (*Store)(nil)

const keyPrefix = "checkpoint/"

// Config selects where the database lives.
type Config struct {
	// Dir holds the database files. Required unless InMemory is set.
	Dir        string
	InMemory   bool
	SyncWrites bool
	// Logger receives Badger's own messages; nil silences them.
	Logger telemetry.Logger
}

type badgerLogger struct {
	logger telemetry.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...), "component", "badger")
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}

// Store implements domain.CheckpointStore on Badger.
type Store struct {
	db *badger.DB
}

// Open opens or creates the database.
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Dir == "" {
			return nil, errors.New("badger directory required")
		}
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db}, nil
}

func key(id string) []byte { return []byte(keyPrefix + id) }

// Save writes the encoded snapshot.
func (s *Store) Save(ctx context.Context, snapshot domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := persistence.Encode(snapshot)
	if err != nil {
		return err
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(snapshot.ID), payload)
	}); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", snapshot.ID, err)
	}
	return nil
}

// Load reads and decodes a snapshot.
func (s *Store) Load(ctx context.Context, id string) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}
	var payload []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(id))
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Snapshot{}, persistence.NotFound(id)
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("load checkpoint %s: %w", id, err)
	}
	return persistence.Decode(payload)
}

// List decodes every snapshot under the key prefix.
func (s *Store) List(ctx context.Context) ([]domain.SnapshotSummary, error) {
	out := []domain.SnapshotSummary{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			payload, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			snap, err := persistence.Decode(payload)
			if err != nil {
				return fmt.Errorf("%s: %w", it.Item().Key(), err)
			}
			out = append(out, snap.Summary())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	persistence.SortSummaries(out)
	return out, nil
}

// Delete removes id.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key(id)); err != nil {
			return err
		}
		return txn.Delete(key(id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return persistence.NotFound(id)
	}
	if err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", id, err)
	}
	return nil
}

// Close flushes and closes the database.
func (s *Store) Close() error { return s.db.Close() }
