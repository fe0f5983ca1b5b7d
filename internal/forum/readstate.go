package forum

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/lalith-99/echoforum/internal/models"
	"github.com/lalith-99/echoforum/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// unread classifies a thread against the expert's last read time. A thread
// never marked read is new and so are all of its replies; otherwise a reply
// is new when it was created after the mark.
func unread(t models.ThreadWithReplies) models.DashboardThread {
	d := models.DashboardThread{
		ThreadWithReplies: t,
		LastActivityAt:    t.CreatedAt,
	}
	readAt := t.ExpertLastReadAt
	d.IsNew = readAt == ""

	for _, r := range t.Replies {
		if r.CreatedAt > d.LastActivityAt {
			d.LastActivityAt = r.CreatedAt
		}
		if d.IsNew || r.CreatedAt > readAt {
			d.NewReplyCount++
		}
	}
	d.HasNewReplies = d.NewReplyCount > 0
	return d
}

// GetAllThreadsForTenant is the expert dashboard: every thread of the
// tenant with unread state, most recent activity first, one page at a time.
func (s *Service) GetAllThreadsForTenant(ctx context.Context, tenant string, limit int, cursor string) (*models.DashboardPage, error) {
	if err := checkKeyPart("tenant", tenant); err != nil {
		return nil, err
	}
	limit = pageLimit(limit)

	var after *position
	if cursor != "" {
		p, err := decodeCursor(cursor)
		if err != nil {
			return nil, err
		}
		after = &p
	}

	items, err := s.table.Query(ctx, PartitionKey(tenant), contextPrefix)
	if err != nil {
		return nil, fmt.Errorf("query tenant: %w", err)
	}

	all := s.assemble(items)
	threads := make([]models.DashboardThread, 0, len(all))
	for _, t := range all {
		d := unread(t)
		if after != nil && after.before(d.LastActivityAt, d.ID) {
			continue
		}
		threads = append(threads, d)
	}
	sort.Slice(threads, func(i, j int) bool {
		if threads[i].LastActivityAt != threads[j].LastActivityAt {
			return threads[i].LastActivityAt > threads[j].LastActivityAt
		}
		return threads[i].ID > threads[j].ID
	})

	page := &models.DashboardPage{Threads: threads}
	if len(threads) > limit {
		page.Threads = threads[:limit]
		last := page.Threads[limit-1]
		page.Cursor = encodeCursor(position{Activity: last.LastActivityAt, ThreadID: last.ID})
	}

	s.logger.Debug("dashboard page",
		zap.String("tenant", tenant),
		zap.Int("threads", len(page.Threads)),
		zap.Bool("more", page.Cursor != ""),
	)
	return page, nil
}

// MarkThreadAsRead sets expertLastReadAt to now. It returns false when the
// thread does not exist.
func (s *Service) MarkThreadAsRead(ctx context.Context, tenant, threadID string) (bool, error) {
	if err := checkKeyParts("tenant", tenant, "thread id", threadID); err != nil {
		return false, err
	}
	return s.markRead(ctx, tenant, threadID)
}

func (s *Service) markRead(ctx context.Context, tenant, threadID string) (bool, error) {
	item, err := s.locate(ctx, tenant, threadID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if item.EntityType != repository.EntityThread {
		return false, nil
	}

	err = s.table.Update(ctx, item.Key(), map[string]string{
		repository.AttrExpertLastReadAt: s.timestamp(),
	})
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mark thread read: %w", err)
	}
	return true, nil
}

// MarkThreadsAsRead marks each thread independently and returns how many
// were updated. Missing threads and failed updates are skipped, never
// rolled back.
func (s *Service) MarkThreadsAsRead(ctx context.Context, tenant string, threadIDs []string) (int, error) {
	if err := checkKeyPart("tenant", tenant); err != nil {
		return 0, err
	}
	if len(threadIDs) > maxBatchIDs {
		return 0, invalid("at most %d thread ids per call", maxBatchIDs)
	}
	ids := make([]string, 0, len(threadIDs))
	seen := make(map[string]bool, len(threadIDs))
	for _, id := range threadIDs {
		if err := checkKeyPart("thread id", id); err != nil {
			return 0, err
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	var updated atomic.Int64
	var g errgroup.Group
	g.SetLimit(8)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			ok, err := s.markRead(ctx, tenant, id)
			if err != nil {
				s.logger.Warn("mark read failed", zap.String("tenant", tenant), zap.String("thread_id", id), zap.Error(err))
				return nil
			}
			if ok {
				updated.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	n := int(updated.Load())
	s.logger.Info("threads marked read",
		zap.String("tenant", tenant),
		zap.Int("requested", len(ids)),
		zap.Int("updated", n),
	)
	return n, nil
}
