package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct{ op, result string }

type recorder struct{ samples []sample }

func (r *recorder) Observe(op, result string, _ time.Duration) {
	r.samples = append(r.samples, sample{op, result})
}

// stubTable answers every call with err.
type stubTable struct{ err error }

func (s stubTable) Get(context.Context, Key) (*Item, error) { return &Item{}, s.err }
func (s stubTable) BatchGet(context.Context, []Key) ([]*Item, error) { return nil, s.err }
func (s stubTable) Put(context.Context, *Item) error { return s.err }
func (s stubTable) PutIfAbsent(context.Context, *Item) error { return s.err }
func (s stubTable) Update(context.Context, Key, map[string]string) error { return s.err }
func (s stubTable) Add(context.Context, Key, string, int) error { return s.err }
func (s stubTable) Delete(context.Context, ...Key) error { return s.err }
func (s stubTable) Query(context.Context, string, string) ([]*Item, error) {
	return nil, s.err
}
func (s stubTable) QueryIndex(context.Context, string, int) ([]*Item, error) {
	return nil, s.err
}
func (s stubTable) Close() error { return nil }

func TestResult(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{ErrNotFound, "not_found"},
		{fmt.Errorf("wrapped: %w", ErrAlreadyExists), "exists"},
		{ErrGuardFailed, "guard"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Result(tt.err))
	}
}

func TestInstrumentedReportsEachCall(t *testing.T) {
	rec := &recorder{}
	table := NewInstrumented(stubTable{err: ErrGuardFailed}, rec)
	ctx := context.Background()

	err := table.Add(ctx, Key{PK: "p", SK: "s"}, AttrLikeCount, -1)
	require.ErrorIs(t, err, ErrGuardFailed)

	it, err := table.Get(ctx, Key{PK: "p", SK: "s"})
	require.ErrorIs(t, err, ErrGuardFailed)
	assert.NotNil(t, it)

	_, _ = table.Query(ctx, "p", "")
	_ = table.Delete(ctx)

	assert.Equal(t, []sample{
		{"add", "guard"},
		{"get", "guard"},
		{"query", "guard"},
		{"delete", "guard"},
	}, rec.samples)

	var _ ItemTable = table
	assert.Equal(t, ItemTable(stubTable{err: ErrGuardFailed}), table.Unwrap())
}
