// Package forum is the tenant-isolated threaded discussion engine.
//
// Threads, replies, likes and id pointers all live in one sorted item table,
// partitioned by tenant. There are no multi-item transactions: aggregate
// counters are separate writes, kept honest by conditional inserts, guarded
// decrements and an explicit Reconcile pass.
package forum

import (
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/echoforum/internal/repository"
	"go.uber.org/zap"
)

type Service struct {
	table  repository.ItemTable
	logger *zap.Logger
	now    func() time.Time
	newID  func() (string, error)
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDs replaces the UUIDv7 generator.
func WithIDs(newID func() (string, error)) Option {
	return func(s *Service) { s.newID = newID }
}

func New(table repository.ItemTable, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		table:  table,
		logger: logger,
		now:    time.Now,
		newID:  newUUIDv7,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newUUIDv7 returns a time-ordered id: 48 bits of milliseconds then random bits.
func newUUIDv7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (s *Service) timestamp() string {
	return formatTime(s.now())
}
