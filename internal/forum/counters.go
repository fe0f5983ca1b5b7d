package forum

import (
	"context"
	"errors"
	"fmt"

	"github.com/lalith-99/echoforum/internal/repository"
	"go.uber.org/zap"
)

// increment adds one to a counter, treating a missing attribute as zero.
func (s *Service) increment(ctx context.Context, key repository.Key, attr string) error {
	if err := s.table.Add(ctx, key, attr, 1); err != nil {
		return fmt.Errorf("increment %s: %w", attr, err)
	}
	return nil
}

// decrement subtracts one unless the counter is already zero. A failed
// guard or a vanished owner is a no-op.
func (s *Service) decrement(ctx context.Context, key repository.Key, attr string) error {
	err := s.table.Add(ctx, key, attr, -1)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrGuardFailed):
		s.logger.Warn("counter already zero, decrement skipped",
			zap.String("key", key.String()), zap.String("attr", attr))
		return nil
	case errors.Is(err, repository.ErrNotFound):
		s.logger.Debug("counter owner gone, decrement skipped",
			zap.String("key", key.String()), zap.String("attr", attr))
		return nil
	}
	return fmt.Errorf("decrement %s: %w", attr, err)
}

// decrementByID decrements the counter of a message known only by id
// within a context. A missing message is a no-op.
func (s *Service) decrementByID(ctx context.Context, tenant, contextID, id, attr string) error {
	item, err := s.locateInContext(ctx, tenant, contextID, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.decrement(ctx, item.Key(), attr)
}

// isSkippable reports errors that mean the counter's owner changed under us.
func isSkippable(err error) bool {
	return errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrGuardFailed)
}
