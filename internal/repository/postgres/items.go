// Package postgres stores forum items in a single Postgres table.
//
// Key columns (pk, sk, gsi1pk, gsi1sk) are real columns so the primary key
// and the index do the ordering; everything else lives in a JSONB document
// whose field names match repository.Item's json tags.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/echoforum/internal/db"
	"github.com/lalith-99/echoforum/internal/repository"
	"go.uber.org/zap"
)

type ItemStore struct {
	db     *db.DB
	logger *zap.Logger
}

func NewItemStore(database *db.DB, logger *zap.Logger) *ItemStore {
	return &ItemStore{db: database, logger: logger}
}

// Close closes the underlying pool.
func (s *ItemStore) Close() error {
	s.db.Close()
	return nil
}

func (s *ItemStore) Get(ctx context.Context, key repository.Key) (*repository.Item, error) {
	query := `SELECT data FROM forum_items WHERE pk = $1 AND sk = $2`

	var data []byte
	err := s.db.Pool().QueryRow(ctx, query, key.PK, key.SK).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select item: %w", err)
	}
	return decode(data)
}

func (s *ItemStore) BatchGet(ctx context.Context, keys []repository.Key) ([]*repository.Item, error) {
	if len(keys) == 0 {
		return []*repository.Item{}, nil
	}
	pks, sks := split(keys)
	query := `
		SELECT data FROM forum_items
		WHERE (pk, sk) IN (SELECT * FROM unnest($1::text[], $2::text[]))`

	return s.collect(ctx, query, pks, sks)
}

func (s *ItemStore) Put(ctx context.Context, item *repository.Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode item: %w", err)
	}
	query := `
		INSERT INTO forum_items (pk, sk, gsi1pk, gsi1sk, data)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (pk, sk) DO UPDATE
		SET gsi1pk = EXCLUDED.gsi1pk, gsi1sk = EXCLUDED.gsi1sk, data = EXCLUDED.data`

	_, err = s.db.Pool().Exec(ctx, query, item.PK, item.SK, nullable(item.GSI1PK), nullable(item.GSI1SK), string(data))
	if err != nil {
		return fmt.Errorf("upsert item: %w", err)
	}
	return nil
}

func (s *ItemStore) PutIfAbsent(ctx context.Context, item *repository.Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode item: %w", err)
	}
	query := `
		INSERT INTO forum_items (pk, sk, gsi1pk, gsi1sk, data)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (pk, sk) DO NOTHING`

	tag, err := s.db.Pool().Exec(ctx, query, item.PK, item.SK, nullable(item.GSI1PK), nullable(item.GSI1SK), string(data))
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrAlreadyExists
	}
	return nil
}

func (s *ItemStore) Update(ctx context.Context, key repository.Key, attrs map[string]string) error {
	if err := repository.CheckUpdate(attrs); err != nil {
		return err
	}
	patch, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}
	query := `UPDATE forum_items SET data = data || $3::jsonb WHERE pk = $1 AND sk = $2`

	tag, err := s.db.Pool().Exec(ctx, query, key.PK, key.SK, string(patch))
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *ItemStore) Add(ctx context.Context, key repository.Key, attr string, delta int) error {
	if err := repository.CheckCounter(attr); err != nil {
		return err
	}
	query := `
		UPDATE forum_items
		SET data = jsonb_set(data, ARRAY[$3::text], to_jsonb(COALESCE((data->>$3::text)::int, 0) + $4::int))
		WHERE pk = $1 AND sk = $2
		  AND COALESCE((data->>$3::text)::int, 0) + $4::int >= 0`

	tag, err := s.db.Pool().Exec(ctx, query, key.PK, key.SK, attr, delta)
	if err != nil {
		return fmt.Errorf("add counter: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Nothing matched: either the row is gone or the guard held.
	var exists bool
	err = s.db.Pool().QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM forum_items WHERE pk = $1 AND sk = $2)`,
		key.PK, key.SK,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check item: %w", err)
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrGuardFailed
}

func (s *ItemStore) Delete(ctx context.Context, keys ...repository.Key) error {
	if len(keys) == 0 {
		return nil
	}
	pks, sks := split(keys)
	query := `
		DELETE FROM forum_items
		WHERE (pk, sk) IN (SELECT * FROM unnest($1::text[], $2::text[]))`

	if _, err := s.db.Pool().Exec(ctx, query, pks, sks); err != nil {
		return fmt.Errorf("delete items: %w", err)
	}
	return nil
}

func (s *ItemStore) Query(ctx context.Context, pk, skPrefix string) ([]*repository.Item, error) {
	// sk >= prefix lets the primary key bound the scan; starts_with ends it.
	query := `
		SELECT data FROM forum_items
		WHERE pk = $1 AND sk >= $2 AND starts_with(sk, $2)
		ORDER BY sk`

	return s.collect(ctx, query, pk, skPrefix)
}

func (s *ItemStore) QueryIndex(ctx context.Context, gsiPK string, limit int) ([]*repository.Item, error) {
	var lim any // NULL means no limit
	if limit > 0 {
		lim = limit
	}
	query := `
		SELECT data FROM forum_items
		WHERE gsi1pk = $1
		ORDER BY gsi1sk DESC, pk DESC, sk DESC
		LIMIT $2`

	return s.collect(ctx, query, gsiPK, lim)
}

func (s *ItemStore) collect(ctx context.Context, query string, args ...any) ([]*repository.Item, error) {
	rows, err := s.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	items := make([]*repository.Item, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it, err := decode(data)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

func decode(data []byte) (*repository.Item, error) {
	var it repository.Item
	if err := json.Unmarshal(data, &it); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	return &it, nil
}

func split(keys []repository.Key) ([]string, []string) {
	pks := make([]string, len(keys))
	sks := make([]string, len(keys))
	for i, k := range keys {
		pks[i] = k.PK
		sks[i] = k.SK
	}
	return pks, sks
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
