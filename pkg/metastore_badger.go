package metacache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

// Metadata key storage format. A single namespaced prefix keeps the record
// keyspace separate from anything else that may share the database later.
const metaKeyPrefix string = "meta:"

func metaKey(path string) []byte {
	return []byte(metaKeyPrefix + path)
}

// BadgerMetadataStore is a MetadataStore persisted in an embedded BadgerDB.
// Records survive worker restarts, which keeps file identities and cached
// pages reusable across runs. Records are stored as JSON for debuggability;
// they are small enough that encoding cost does not matter here.
type BadgerMetadataStore struct {
	db *badger.DB
}

func NewBadgerMetadataStore(config MetastoreConfig) (*BadgerMetadataStore, error) {
	opts := badger.DefaultOptions(config.Path)
	opts = opts.WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at <%s>: %w", config.Path, err)
	}

	return &BadgerMetadataStore{db: db}, nil
}

func (s *BadgerMetadataStore) Get(ctx context.Context, path string) (*FileMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var meta FileMeta
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(path))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrMetaNotFound
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})
	if err != nil {
		return nil, err
	}

	return &meta, nil
}

func (s *BadgerMetadataStore) Put(ctx context.Context, path string, meta *FileMeta) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	val, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to serialize metadata for <%s>: %w", path, err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(metaKey(path), val)
	})
}

func (s *BadgerMetadataStore) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(metaKey(path))
	})
}

func (s *BadgerMetadataStore) Paths(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	paths := []string{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(metaKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			paths = append(paths, strings.TrimPrefix(key, metaKeyPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return paths, nil
}

func (s *BadgerMetadataStore) Close() error {
	return s.db.Close()
}
