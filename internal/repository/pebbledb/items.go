// Package pebbledb stores forum items in an embedded cockroachdb/pebble database.
//
// Two key spaces share the database:
//
//	i\x00{pk}\x00{sk}                         -> JSON item
//	g\x00{gsi1pk}\x00{gsi1sk}\x00{pk}\x00{sk} -> item key
//
// Writes are serialized by one mutex, which is what makes the conditional
// operations (PutIfAbsent, Update, Add) atomic. Reads never block.
package pebbledb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/lalith-99/echoforum/internal/repository"
	"go.uber.org/zap"
)

const sep = "\x00"

type ItemStore struct {
	db     *pebble.DB
	logger *zap.Logger

	// serializes every read-modify-write
	mu sync.Mutex
}

// Open opens (or creates) a pebble database at path.
func Open(path string, logger *zap.Logger) (*ItemStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	logger.Info("pebble item store opened", zap.String("path", path))
	return &ItemStore{db: db, logger: logger}, nil
}

// OpenInMemory opens a throwaway database backed by an in-memory filesystem.
func OpenInMemory(logger *zap.Logger) (*ItemStore, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, fmt.Errorf("open in-memory pebble: %w", err)
	}
	return &ItemStore{db: db, logger: logger}, nil
}

func (s *ItemStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close pebble: %w", err)
	}
	return nil
}

func itemPrefix(pk string) string {
	return "i" + sep + pk + sep
}

func itemKey(k repository.Key) []byte {
	return []byte(itemPrefix(k.PK) + k.SK)
}

func indexPrefix(gsiPK string) string {
	return "g" + sep + gsiPK + sep
}

func indexKey(it *repository.Item) []byte {
	return []byte(indexPrefix(it.GSI1PK) + it.GSI1SK + sep + it.PK + sep + it.SK)
}

func (s *ItemStore) Get(ctx context.Context, key repository.Key) (*repository.Item, error) {
	return s.get(itemKey(key))
}

func (s *ItemStore) get(raw []byte) (*repository.Item, error) {
	val, closer, err := s.db.Get(raw)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	defer closer.Close()

	var it repository.Item
	if err := json.Unmarshal(val, &it); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	return &it, nil
}

func (s *ItemStore) BatchGet(ctx context.Context, keys []repository.Key) ([]*repository.Item, error) {
	items := make([]*repository.Item, 0, len(keys))
	for _, k := range keys {
		it, err := s.get(itemKey(k))
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

func (s *ItemStore) Put(ctx context.Context, item *repository.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(item)
}

func (s *ItemStore) PutIfAbsent(ctx context.Context, item *repository.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.get(itemKey(item.Key()))
	if err == nil {
		return repository.ErrAlreadyExists
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	return s.write(item)
}

// write stores the item and keeps its index entry in step. Caller holds mu.
func (s *ItemStore) write(item *repository.Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode item: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	prev, err := s.get(itemKey(item.Key()))
	switch {
	case err == nil && prev.GSI1PK != "":
		if err := batch.Delete(indexKey(prev), nil); err != nil {
			return fmt.Errorf("stage index delete: %w", err)
		}
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return err
	}

	if err := batch.Set(itemKey(item.Key()), data, nil); err != nil {
		return fmt.Errorf("stage item: %w", err)
	}
	if item.GSI1PK != "" {
		if err := batch.Set(indexKey(item), itemKey(item.Key()), nil); err != nil {
			return fmt.Errorf("stage index: %w", err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit item: %w", err)
	}
	return nil
}

func (s *ItemStore) Update(ctx context.Context, key repository.Key, attrs map[string]string) error {
	if err := repository.CheckUpdate(attrs); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	it, err := s.get(itemKey(key))
	if err != nil {
		return err
	}
	for name, value := range attrs {
		if err := it.SetAttr(name, value); err != nil {
			return err
		}
	}
	return s.write(it)
}

func (s *ItemStore) Add(ctx context.Context, key repository.Key, attr string, delta int) error {
	if err := repository.CheckCounter(attr); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	it, err := s.get(itemKey(key))
	if err != nil {
		return err
	}
	counter, _ := it.Counter(attr)
	if delta < 0 && *counter+delta < 0 {
		return repository.ErrGuardFailed
	}
	*counter += delta
	return s.write(it)
}

func (s *ItemStore) Delete(ctx context.Context, keys ...repository.Key) error {
	if len(keys) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()

	for _, k := range keys {
		prev, err := s.get(itemKey(k))
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if prev.GSI1PK != "" {
			if err := batch.Delete(indexKey(prev), nil); err != nil {
				return fmt.Errorf("stage index delete: %w", err)
			}
		}
		if err := batch.Delete(itemKey(k), nil); err != nil {
			return fmt.Errorf("stage item delete: %w", err)
		}
	}
	if batch.Empty() {
		return nil
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit deletes: %w", err)
	}
	return nil
}

func (s *ItemStore) Query(ctx context.Context, pk, skPrefix string) ([]*repository.Item, error) {
	prefix := itemPrefix(pk) + skPrefix
	iter, err := s.db.NewIter(bounds(prefix))
	if err != nil {
		return nil, fmt.Errorf("open iterator: %w", err)
	}
	defer iter.Close()

	items := make([]*repository.Item, 0)
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var it repository.Item
		if err := json.Unmarshal(iter.Value(), &it); err != nil {
			return nil, fmt.Errorf("decode item %q: %w", iter.Key(), err)
		}
		items = append(items, &it)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

func (s *ItemStore) QueryIndex(ctx context.Context, gsiPK string, limit int) ([]*repository.Item, error) {
	iter, err := s.db.NewIter(bounds(indexPrefix(gsiPK)))
	if err != nil {
		return nil, fmt.Errorf("open index iterator: %w", err)
	}
	defer iter.Close()

	var refs [][]byte
	for iter.Last(); iter.Valid(); iter.Prev() {
		if limit > 0 && len(refs) >= limit {
			break
		}
		refs = append(refs, append([]byte(nil), iter.Value()...))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate index: %w", err)
	}

	items := make([]*repository.Item, 0, len(refs))
	for _, ref := range refs {
		it, err := s.get(ref)
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("dangling index entry", zap.ByteString("ref", ref))
			continue
		}
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

func bounds(prefix string) *pebble.IterOptions {
	opts := &pebble.IterOptions{LowerBound: []byte(prefix)}
	if end := repository.PrefixEnd(prefix); end != "" {
		opts.UpperBound = []byte(end)
	}
	return opts
}
