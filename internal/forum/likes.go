package forum

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lalith-99/echoforum/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const likeBatchSize = 100

// LikeMessage records one like per visitor. It returns false when the
// visitor already liked the message. Only the caller whose conditional
// insert wins increments likeCount, so concurrent duplicates cannot
// double-count.
func (s *Service) LikeMessage(ctx context.Context, tenant, contextID, messageID, visitorID string) (bool, error) {
	if err := checkKeyParts("tenant", tenant, "context", contextID, "message id", messageID, "visitor id", visitorID); err != nil {
		return false, err
	}

	target, err := s.locateInContext(ctx, tenant, contextID, messageID)
	if err != nil {
		return false, err
	}

	like := &repository.Item{
		PK:         target.PK,
		SK:         LikeSK(contextID, messageID, visitorID),
		EntityType: repository.EntityLike,
		TenantID:   tenant,
		Context:    contextID,
		MessageID:  messageID,
		VisitorID:  visitorID,
		LikedAt:    s.timestamp(),
	}
	err = s.table.PutIfAbsent(ctx, like)
	if errors.Is(err, repository.ErrAlreadyExists) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("put like: %w", err)
	}

	err = s.increment(ctx, target.Key(), repository.AttrLikeCount)
	if errors.Is(err, repository.ErrNotFound) {
		// The message was deleted between lookup and increment; drop the
		// like so it does not outlive its target.
		if derr := s.table.Delete(ctx, like.Key()); derr != nil {
			s.logger.Warn("orphan like not removed", zap.String("key", like.Key().String()), zap.Error(derr))
		}
		return false, fmt.Errorf("%w: message %s", ErrNotFound, messageID)
	}
	if err != nil {
		s.logger.Error("like stored but likeCount not incremented",
			zap.String("tenant", tenant),
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}

	s.logger.Info("message liked",
		zap.String("tenant", tenant),
		zap.String("context", contextID),
		zap.String("message_id", messageID),
	)
	return true, nil
}

// UnlikeMessage removes a visitor's like. It returns false when there was
// nothing to unlike.
func (s *Service) UnlikeMessage(ctx context.Context, tenant, contextID, messageID, visitorID string) (bool, error) {
	if err := checkKeyParts("tenant", tenant, "context", contextID, "message id", messageID, "visitor id", visitorID); err != nil {
		return false, err
	}

	key := repository.Key{PK: PartitionKey(tenant), SK: LikeSK(contextID, messageID, visitorID)}
	_, err := s.table.Get(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get like: %w", err)
	}

	if err := s.table.Delete(ctx, key); err != nil {
		return false, fmt.Errorf("delete like: %w", err)
	}
	if err := s.decrementByID(ctx, tenant, contextID, messageID, repository.AttrLikeCount); err != nil {
		s.logger.Error("like removed but likeCount not decremented",
			zap.String("tenant", tenant),
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}

	s.logger.Info("message unliked",
		zap.String("tenant", tenant),
		zap.String("context", contextID),
		zap.String("message_id", messageID),
	)
	return true, nil
}

func (s *Service) HasUserLiked(ctx context.Context, tenant, contextID, messageID, visitorID string) (bool, error) {
	if err := checkKeyParts("tenant", tenant, "context", contextID, "message id", messageID, "visitor id", visitorID); err != nil {
		return false, err
	}
	_, err := s.table.Get(ctx, repository.Key{PK: PartitionKey(tenant), SK: LikeSK(contextID, messageID, visitorID)})
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get like: %w", err)
	}
	return true, nil
}

// GetUserLikesForMessages reports, for every message id, whether visitorID
// liked it. Lookups are batched and batches run concurrently.
func (s *Service) GetUserLikesForMessages(ctx context.Context, tenant, contextID string, messageIDs []string, visitorID string) (map[string]bool, error) {
	if err := checkKeyParts("tenant", tenant, "context", contextID, "visitor id", visitorID); err != nil {
		return nil, err
	}
	result := make(map[string]bool, len(messageIDs))
	keys := make([]repository.Key, 0, len(messageIDs))
	pk := PartitionKey(tenant)
	for _, id := range messageIDs {
		if _, seen := result[id]; seen {
			continue
		}
		if err := checkKeyPart("message id", id); err != nil {
			return nil, err
		}
		result[id] = false
		keys = append(keys, repository.Key{PK: pk, SK: LikeSK(contextID, id, visitorID)})
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for start := 0; start < len(keys); start += likeBatchSize {
		batch := keys[start:min(start+likeBatchSize, len(keys))]
		g.Go(func() error {
			likes, err := s.table.BatchGet(gctx, batch)
			if err != nil {
				return fmt.Errorf("batch get likes: %w", err)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, like := range likes {
				result[like.MessageID] = true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}
