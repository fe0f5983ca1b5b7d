package forum

import (
	"context"
	"errors"
	"fmt"

	"github.com/lalith-99/echoforum/internal/models"
	"github.com/lalith-99/echoforum/internal/repository"
	"go.uber.org/zap"
)

// assemble groups flat items into threads with their replies. Threads keep
// the order they arrive in, replies are attached in arrival order, and
// replies whose thread is not among the items are dropped.
func (s *Service) assemble(items []*repository.Item) []models.ThreadWithReplies {
	byID := make(map[string]int)
	var out []models.ThreadWithReplies

	for _, item := range items {
		if item.EntityType != repository.EntityThread {
			continue
		}
		byID[item.ID] = len(out)
		out = append(out, models.ThreadWithReplies{
			Thread:  threadFromItem(item),
			Replies: []models.Reply{},
		})
	}

	orphans := 0
	for _, item := range items {
		if item.EntityType != repository.EntityReply {
			continue
		}
		i, ok := byID[item.ThreadID]
		if !ok {
			orphans++
			continue
		}
		out[i].Replies = append(out[i].Replies, replyFromItem(item))
	}
	if orphans > 0 {
		s.logger.Warn("dropped replies without a thread", zap.Int("count", orphans))
	}
	return out
}

// GetThreadsByContext returns every thread of a context, oldest first, each
// with its replies.
func (s *Service) GetThreadsByContext(ctx context.Context, tenant, contextID string) ([]models.ThreadWithReplies, error) {
	if err := checkKeyParts("tenant", tenant, "context", contextID); err != nil {
		return nil, err
	}
	items, err := s.table.Query(ctx, PartitionKey(tenant), MessagesPrefix(contextID))
	if err != nil {
		return nil, fmt.Errorf("query context: %w", err)
	}
	threads := s.assemble(items)
	if threads == nil {
		threads = []models.ThreadWithReplies{}
	}

	s.logger.Debug("threads by context",
		zap.String("tenant", tenant),
		zap.String("context", contextID),
		zap.Int("threads", len(threads)),
	)
	return threads, nil
}

// GetThreadWithReplies reads one thread and the replies under its prefix.
func (s *Service) GetThreadWithReplies(ctx context.Context, tenant, contextID, threadID string) (*models.ThreadWithReplies, error) {
	if err := checkKeyParts("tenant", tenant, "context", contextID, "thread id", threadID); err != nil {
		return nil, err
	}

	thread, err := s.locateInContext(ctx, tenant, contextID, threadID)
	if err != nil {
		return nil, err
	}
	if thread.EntityType != repository.EntityThread {
		return nil, fmt.Errorf("%w: %s is not a thread", ErrNotFound, threadID)
	}

	replies, err := s.table.Query(ctx, thread.PK, RepliesPrefix(contextID, threadID))
	if err != nil {
		return nil, fmt.Errorf("query replies: %w", err)
	}

	threads := s.assemble(append([]*repository.Item{thread}, replies...))
	if len(threads) != 1 {
		return nil, errors.New("assemble thread: unexpected shape")
	}
	return &threads[0], nil
}

// GetRecentThreads returns the newest threads of a tenant across all
// contexts, read from the chronological index.
func (s *Service) GetRecentThreads(ctx context.Context, tenant string, limit int) ([]models.Thread, error) {
	if err := checkKeyPart("tenant", tenant); err != nil {
		return nil, err
	}
	items, err := s.table.QueryIndex(ctx, PartitionKey(tenant), pageLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query recent threads: %w", err)
	}

	threads := make([]models.Thread, 0, len(items))
	for _, item := range items {
		if item.EntityType == repository.EntityThread {
			threads = append(threads, threadFromItem(item))
		}
	}
	return threads, nil
}
