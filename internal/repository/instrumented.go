package repository

import (
	"context"
	"errors"
	"time"
)

// Observer receives one sample per table operation.
type Observer interface {
	Observe(op, result string, d time.Duration)
}

// Instrumented wraps an ItemTable and reports every call to an Observer.
type Instrumented struct {
	next ItemTable
	obs  Observer
}

func NewInstrumented(next ItemTable, obs Observer) *Instrumented {
	return &Instrumented{next: next, obs: obs}
}

// Result maps an operation error onto a metric label.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "exists"
	case errors.Is(err, ErrGuardFailed):
		return "guard"
	default:
		return "error"
	}
}

func (t *Instrumented) timed(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	t.obs.Observe(op, Result(err), time.Since(start))
	return err
}

func (t *Instrumented) Get(ctx context.Context, key Key) (*Item, error) {
	var it *Item
	err := t.timed("get", func() (err error) {
		it, err = t.next.Get(ctx, key)
		return err
	})
	return it, err
}

func (t *Instrumented) BatchGet(ctx context.Context, keys []Key) ([]*Item, error) {
	var items []*Item
	err := t.timed("batch_get", func() (err error) {
		items, err = t.next.BatchGet(ctx, keys)
		return err
	})
	return items, err
}

func (t *Instrumented) Put(ctx context.Context, item *Item) error {
	return t.timed("put", func() error { return t.next.Put(ctx, item) })
}

func (t *Instrumented) PutIfAbsent(ctx context.Context, item *Item) error {
	return t.timed("put_if_absent", func() error { return t.next.PutIfAbsent(ctx, item) })
}

func (t *Instrumented) Update(ctx context.Context, key Key, attrs map[string]string) error {
	return t.timed("update", func() error { return t.next.Update(ctx, key, attrs) })
}

func (t *Instrumented) Add(ctx context.Context, key Key, attr string, delta int) error {
	return t.timed("add", func() error { return t.next.Add(ctx, key, attr, delta) })
}

func (t *Instrumented) Delete(ctx context.Context, keys ...Key) error {
	return t.timed("delete", func() error { return t.next.Delete(ctx, keys...) })
}

func (t *Instrumented) Query(ctx context.Context, pk, skPrefix string) ([]*Item, error) {
	var items []*Item
	err := t.timed("query", func() (err error) {
		items, err = t.next.Query(ctx, pk, skPrefix)
		return err
	})
	return items, err
}

func (t *Instrumented) QueryIndex(ctx context.Context, gsiPK string, limit int) ([]*Item, error) {
	var items []*Item
	err := t.timed("query_index", func() (err error) {
		items, err = t.next.QueryIndex(ctx, gsiPK, limit)
		return err
	})
	return items, err
}

func (t *Instrumented) Close() error {
	return t.next.Close()
}

// Unwrap returns the decorated table.
func (t *Instrumented) Unwrap() ItemTable {
	return t.next
}
