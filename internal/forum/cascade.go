package forum

import (
	"context"
	"fmt"
	"sync"

	"github.com/lalith-99/echoforum/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const tenantDeleteBatch = 500

// deleteThread removes a thread, its replies, every like on any of them,
// and their id pointers. Children go first; the thread item is deleted
// last so a failed cascade can be retried through the thread.
func (s *Service) deleteThread(ctx context.Context, thread *repository.Item) error {
	replies, err := s.table.Query(ctx, thread.PK, RepliesPrefix(thread.Context, thread.ID))
	if err != nil {
		return fmt.Errorf("query replies: %w", err)
	}

	ids := make([]string, 0, len(replies)+1)
	ids = append(ids, thread.ID)
	children := make([]repository.Key, 0, 2*len(replies))
	for _, r := range replies {
		ids = append(ids, r.ID)
		children = append(children, r.Key(), repository.Key{PK: r.PK, SK: RefSK(r.ID)})
	}

	likes, err := s.likeKeys(ctx, thread.PK, thread.Context, ids)
	if err != nil {
		return err
	}

	if err := s.table.Delete(ctx, append(likes, children...)...); err != nil {
		return fmt.Errorf("delete thread children: %w", err)
	}
	if err := s.table.Delete(ctx, thread.Key(), repository.Key{PK: thread.PK, SK: RefSK(thread.ID)}); err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}

	s.logger.Info("thread deleted",
		zap.String("tenant", thread.TenantID),
		zap.String("context", thread.Context),
		zap.String("thread_id", thread.ID),
		zap.Int("replies", len(replies)),
		zap.Int("likes", len(likes)),
	)
	return nil
}

// deleteReply removes a reply, its likes and its pointer, then decrements
// the thread's replyCount.
func (s *Service) deleteReply(ctx context.Context, reply *repository.Item) error {
	likes, err := s.likeKeys(ctx, reply.PK, reply.Context, []string{reply.ID})
	if err != nil {
		return err
	}
	keys := append(likes, reply.Key(), repository.Key{PK: reply.PK, SK: RefSK(reply.ID)})
	if err := s.table.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("delete reply: %w", err)
	}

	if err := s.decrementByID(ctx, reply.TenantID, reply.Context, reply.ThreadID, repository.AttrReplyCount); err != nil {
		s.logger.Error("reply deleted but replyCount not decremented",
			zap.String("tenant", reply.TenantID),
			zap.String("thread_id", reply.ThreadID),
			zap.String("message_id", reply.ID),
			zap.Error(err),
		)
	}

	s.logger.Info("reply deleted",
		zap.String("tenant", reply.TenantID),
		zap.String("context", reply.Context),
		zap.String("thread_id", reply.ThreadID),
		zap.String("message_id", reply.ID),
		zap.Int("likes", len(likes)),
	)
	return nil
}

// likeKeys collects the keys of every like on the given messages, scanning
// each message's like prefix concurrently.
func (s *Service) likeKeys(ctx context.Context, pk, contextID string, messageIDs []string) ([]repository.Key, error) {
	var (
		mu   sync.Mutex
		keys []repository.Key
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, id := range messageIDs {
		id := id
		g.Go(func() error {
			likes, err := s.table.Query(gctx, pk, LikePrefix(contextID, id))
			if err != nil {
				return fmt.Errorf("query likes of %s: %w", id, err)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, l := range likes {
				keys = append(keys, l.Key())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return keys, nil
}

// DeleteAllForTenant removes every item in the tenant's partition and
// returns how many were deleted.
func (s *Service) DeleteAllForTenant(ctx context.Context, tenant string) (int, error) {
	if err := checkKeyPart("tenant", tenant); err != nil {
		return 0, err
	}
	items, err := s.table.Query(ctx, PartitionKey(tenant), "")
	if err != nil {
		return 0, fmt.Errorf("query tenant: %w", err)
	}

	deleted := 0
	for start := 0; start < len(items); start += tenantDeleteBatch {
		batch := items[start:min(start+tenantDeleteBatch, len(items))]
		keys := make([]repository.Key, len(batch))
		for i, item := range batch {
			keys[i] = item.Key()
		}
		if err := s.table.Delete(ctx, keys...); err != nil {
			return deleted, fmt.Errorf("delete tenant items: %w", err)
		}
		deleted += len(keys)
	}

	s.logger.Info("tenant data deleted", zap.String("tenant", tenant), zap.Int("items", deleted))
	return deleted, nil
}
