package forum

import (
	"context"
	"errors"
	"fmt"

	"github.com/lalith-99/echoforum/internal/models"
	"github.com/lalith-99/echoforum/internal/repository"
	"go.uber.org/zap"
)

func isMessage(item *repository.Item) bool {
	return item.EntityType == repository.EntityThread || item.EntityType == repository.EntityReply
}

// locate finds a thread or reply by id alone: two point reads through the
// id pointer, or a scan of the whole partition when the pointer is missing.
func (s *Service) locate(ctx context.Context, tenant, id string) (*repository.Item, error) {
	item, found, err := s.viaRef(ctx, PartitionKey(tenant), id)
	if err != nil {
		return nil, err
	}
	if found {
		if item == nil {
			return nil, fmt.Errorf("%w: message %s", ErrNotFound, id)
		}
		return item, nil
	}
	return s.scan(ctx, PartitionKey(tenant), "", id)
}

// locateInContext is locate for callers that know the context. The fallback
// scan is limited to that context's messages.
func (s *Service) locateInContext(ctx context.Context, tenant, contextID, id string) (*repository.Item, error) {
	pk := PartitionKey(tenant)
	item, found, err := s.viaRef(ctx, pk, id)
	if err != nil {
		return nil, err
	}
	if found {
		if item == nil || !inContext(item.SK, contextID) {
			return nil, fmt.Errorf("%w: message %s in context %s", ErrNotFound, id, contextID)
		}
		return item, nil
	}
	return s.scan(ctx, pk, MessagesPrefix(contextID), id)
}

// viaRef follows the id pointer. found is false when there is no pointer;
// a pointer whose target is gone yields found with a nil item.
func (s *Service) viaRef(ctx context.Context, pk, id string) (*repository.Item, bool, error) {
	ref, err := s.table.Get(ctx, repository.Key{PK: pk, SK: RefSK(id)})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get id pointer: %w", err)
	}

	item, err := s.table.Get(ctx, repository.Key{PK: pk, SK: ref.Ref})
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Debug("id pointer target missing", zap.String("message_id", id), zap.String("ref", ref.Ref))
		return nil, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get message: %w", err)
	}
	if item.ID != id || !isMessage(item) {
		return nil, true, nil
	}
	return item, true, nil
}

// scan filters a partition range for a message id.
func (s *Service) scan(ctx context.Context, pk, prefix, id string) (*repository.Item, error) {
	items, err := s.table.Query(ctx, pk, prefix)
	if err != nil {
		return nil, fmt.Errorf("scan for message: %w", err)
	}
	for _, item := range items {
		if item.ID == id && isMessage(item) {
			return item, nil
		}
	}
	return nil, fmt.Errorf("%w: message %s", ErrNotFound, id)
}

// ScanForMessage finds a message by filtering the whole tenant partition,
// without using id pointers. Its cost grows with the tenant's data.
func (s *Service) ScanForMessage(ctx context.Context, tenant, messageID string) (*models.Message, error) {
	if err := checkKeyParts("tenant", tenant, "message id", messageID); err != nil {
		return nil, err
	}
	item, err := s.scan(ctx, PartitionKey(tenant), "", messageID)
	if err != nil {
		return nil, err
	}
	m := messageFromItem(item)
	return &m, nil
}
