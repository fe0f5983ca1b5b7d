package forum

import (
	"context"
	"fmt"

	"github.com/lalith-99/echoforum/internal/models"
	"github.com/lalith-99/echoforum/internal/repository"
	"go.uber.org/zap"
)

// Reconcile recomputes replyCount and likeCount from the live replies and
// likes of a tenant and rewrites the counters that drifted. Replies without
// a thread, likes without a message and id pointers without a target are
// deleted.
func (s *Service) Reconcile(ctx context.Context, tenant string) (*models.ReconcileReport, error) {
	if err := checkKeyPart("tenant", tenant); err != nil {
		return nil, err
	}
	pk := PartitionKey(tenant)
	items, err := s.table.Query(ctx, pk, contextPrefix)
	if err != nil {
		return nil, fmt.Errorf("query tenant: %w", err)
	}

	threads := make(map[string]*repository.Item)
	messages := make(map[string]*repository.Item)
	for _, item := range items {
		switch item.EntityType {
		case repository.EntityThread:
			threads[item.ID] = item
			messages[item.ID] = item
		case repository.EntityReply:
			messages[item.ID] = item
		}
	}

	report := &models.ReconcileReport{Threads: len(threads)}
	replies := make(map[string]int)
	likes := make(map[string]int)
	var orphans []repository.Key

	for _, item := range items {
		switch item.EntityType {
		case repository.EntityReply:
			t, ok := threads[item.ThreadID]
			if !ok || t.Context != item.Context {
				report.OrphanReplies++
				delete(messages, item.ID)
				orphans = append(orphans, item.Key())
				continue
			}
			report.Replies++
			replies[item.ThreadID]++
		}
	}
	for _, item := range items {
		if item.EntityType != repository.EntityLike {
			continue
		}
		m, ok := messages[item.MessageID]
		if !ok || m.Context != item.Context {
			report.OrphanLikes++
			orphans = append(orphans, item.Key())
			continue
		}
		likes[item.MessageID]++
	}

	refs, err := s.table.Query(ctx, pk, refPrefix)
	if err != nil {
		return nil, fmt.Errorf("query id pointers: %w", err)
	}
	for _, ref := range refs {
		if m, ok := messages[ref.ID]; ok && m.SK == ref.Ref {
			continue
		}
		report.OrphanRefs++
		orphans = append(orphans, ref.Key())
	}

	if len(orphans) > 0 {
		if err := s.table.Delete(ctx, orphans...); err != nil {
			return nil, fmt.Errorf("delete orphans: %w", err)
		}
	}

	for id, m := range messages {
		if m.EntityType == repository.EntityThread {
			fixed, err := s.setCounter(ctx, m, repository.AttrReplyCount, m.ReplyCount, replies[id])
			if err != nil {
				return nil, err
			}
			if fixed {
				report.FixedReplies++
			}
		}
		fixed, err := s.setCounter(ctx, m, repository.AttrLikeCount, m.LikeCount, likes[id])
		if err != nil {
			return nil, err
		}
		if fixed {
			report.FixedLikes++
		}
	}

	s.logger.Info("tenant reconciled",
		zap.String("tenant", tenant),
		zap.Int("threads", report.Threads),
		zap.Int("fixed_reply_counts", report.FixedReplies),
		zap.Int("fixed_like_counts", report.FixedLikes),
		zap.Int("orphan_replies", report.OrphanReplies),
		zap.Int("orphan_likes", report.OrphanLikes),
		zap.Int("orphan_refs", report.OrphanRefs),
	)
	return report, nil
}

// setCounter moves a counter from have to want with one additive write.
func (s *Service) setCounter(ctx context.Context, item *repository.Item, attr string, have, want int) (bool, error) {
	if have == want {
		return false, nil
	}
	err := s.table.Add(ctx, item.Key(), attr, want-have)
	if err != nil {
		s.logger.Warn("counter not reconciled",
			zap.String("key", item.Key().String()),
			zap.String("attr", attr),
			zap.Int("have", have),
			zap.Int("want", want),
			zap.Error(err),
		)
		if isSkippable(err) {
			return false, nil
		}
		return false, fmt.Errorf("reconcile %s: %w", attr, err)
	}
	return true, nil
}
