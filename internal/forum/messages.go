package forum

import (
	"context"
	"errors"
	"fmt"

	"github.com/lalith-99/echoforum/internal/models"
	"github.com/lalith-99/echoforum/internal/repository"
	"go.uber.org/zap"
)

// NewThread is the input of CreateThread.
type NewThread struct {
	Context           string
	ContextType       models.ContextType
	ContextVisibility models.Visibility
	Author            models.Author
	Content           string
	SourceTitle       string
	SourceURL         string
}

func (s *Service) CreateThread(ctx context.Context, tenant string, in NewThread) (*models.Thread, error) {
	if err := checkKeyParts("tenant", tenant, "context", in.Context); err != nil {
		return nil, err
	}
	if !in.ContextType.Valid() {
		return nil, invalid("unknown context type %q", in.ContextType)
	}
	if in.ContextVisibility == "" {
		in.ContextVisibility = models.VisibilityPublic
	}
	if !in.ContextVisibility.Valid() {
		return nil, invalid("unknown context visibility %q", in.ContextVisibility)
	}
	if err := checkAuthor(in.Author); err != nil {
		return nil, err
	}
	content, err := cleanContent(in.Content)
	if err != nil {
		return nil, err
	}

	id, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("generate thread id: %w", err)
	}
	now := s.timestamp()
	pk := PartitionKey(tenant)

	item := &repository.Item{
		PK:                pk,
		SK:                ThreadSK(in.Context, now, id),
		GSI1PK:            pk,
		GSI1SK:            IndexSK(now, id),
		EntityType:        repository.EntityThread,
		ID:                id,
		TenantID:          tenant,
		Context:           in.Context,
		ContextType:       string(in.ContextType),
		ContextVisibility: string(in.ContextVisibility),
		Content:           content,
		SourceTitle:       in.SourceTitle,
		SourceURL:         in.SourceURL,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	setAuthor(item, in.Author)

	if err := s.table.PutIfAbsent(ctx, item); err != nil {
		return nil, fmt.Errorf("put thread: %w", err)
	}
	s.putRef(ctx, item)

	s.logger.Info("thread created",
		zap.String("tenant", tenant),
		zap.String("context", in.Context),
		zap.String("thread_id", id),
	)
	t := threadFromItem(item)
	return &t, nil
}

// CreateReply stores the reply first and only then bumps the thread's
// replyCount, so a failure can under-count but never over-count.
func (s *Service) CreateReply(ctx context.Context, tenant, contextID, threadID string, author models.Author, content string) (*models.Reply, error) {
	if err := checkKeyParts("tenant", tenant, "context", contextID, "thread id", threadID); err != nil {
		return nil, err
	}
	if err := checkAuthor(author); err != nil {
		return nil, err
	}
	content, err := cleanContent(content)
	if err != nil {
		return nil, err
	}

	thread, err := s.locateInContext(ctx, tenant, contextID, threadID)
	if err != nil {
		return nil, err
	}
	if thread.EntityType != repository.EntityThread {
		return nil, fmt.Errorf("%w: %s is not a thread", ErrNotFound, threadID)
	}

	id, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("generate reply id: %w", err)
	}
	now := s.timestamp()

	item := &repository.Item{
		PK:          thread.PK,
		SK:          ReplySK(contextID, threadID, now, id),
		EntityType:  repository.EntityReply,
		ID:          id,
		TenantID:    tenant,
		Context:     contextID,
		ContextType: thread.ContextType,
		ThreadID:    threadID,
		Content:     content,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	setAuthor(item, author)

	if err := s.table.PutIfAbsent(ctx, item); err != nil {
		return nil, fmt.Errorf("put reply: %w", err)
	}
	s.putRef(ctx, item)

	if err := s.increment(ctx, thread.Key(), repository.AttrReplyCount); err != nil {
		// The reply is stored; Reconcile repairs the count.
		s.logger.Error("reply stored but replyCount not incremented",
			zap.String("tenant", tenant),
			zap.String("thread_id", threadID),
			zap.String("message_id", id),
			zap.Error(err),
		)
	}

	s.logger.Info("reply created",
		zap.String("tenant", tenant),
		zap.String("context", contextID),
		zap.String("thread_id", threadID),
		zap.String("message_id", id),
	)
	r := replyFromItem(item)
	return &r, nil
}

// GetMessage returns a thread or reply of a known context.
func (s *Service) GetMessage(ctx context.Context, tenant, contextID, messageID string) (*models.Message, error) {
	if err := checkKeyParts("tenant", tenant, "context", contextID, "message id", messageID); err != nil {
		return nil, err
	}
	item, err := s.locateInContext(ctx, tenant, contextID, messageID)
	if err != nil {
		return nil, err
	}
	m := messageFromItem(item)
	return &m, nil
}

// CanModify returns nil when caller wrote the message or is an expert,
// ErrForbidden otherwise.
func (s *Service) CanModify(ctx context.Context, tenant, contextID, messageID string, caller models.Author) error {
	m, err := s.GetMessage(ctx, tenant, contextID, messageID)
	if err != nil {
		return err
	}
	if caller.Role == models.RoleExpert || (caller.UserID != "" && caller.UserID == m.Author.UserID) {
		return nil
	}
	return fmt.Errorf("%w: %s is not the author of %s", ErrForbidden, caller.UserID, messageID)
}

// FindMessageByID returns a thread or reply when the context is unknown.
func (s *Service) FindMessageByID(ctx context.Context, tenant, messageID string) (*models.Message, error) {
	if err := checkKeyParts("tenant", tenant, "message id", messageID); err != nil {
		return nil, err
	}
	item, err := s.locate(ctx, tenant, messageID)
	if err != nil {
		return nil, err
	}
	m := messageFromItem(item)
	return &m, nil
}

// FindThreadByID returns a thread when the context is unknown.
func (s *Service) FindThreadByID(ctx context.Context, tenant, threadID string) (*models.Thread, error) {
	if err := checkKeyParts("tenant", tenant, "thread id", threadID); err != nil {
		return nil, err
	}
	item, err := s.locate(ctx, tenant, threadID)
	if err != nil {
		return nil, err
	}
	if item.EntityType != repository.EntityThread {
		return nil, fmt.Errorf("%w: %s is not a thread", ErrNotFound, threadID)
	}
	t := threadFromItem(item)
	return &t, nil
}

// UpdateMessage replaces the content of a thread or reply and stamps
// editedAt. It returns false when the message does not exist.
func (s *Service) UpdateMessage(ctx context.Context, tenant, contextID, messageID, content string) (bool, error) {
	if err := checkKeyParts("tenant", tenant, "context", contextID, "message id", messageID); err != nil {
		return false, err
	}
	content, err := cleanContent(content)
	if err != nil {
		return false, err
	}

	item, err := s.locateInContext(ctx, tenant, contextID, messageID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	now := s.timestamp()
	err = s.table.Update(ctx, item.Key(), map[string]string{
		repository.AttrContent:   content,
		repository.AttrUpdatedAt: now,
		repository.AttrEditedAt:  now,
	})
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("update message: %w", err)
	}

	s.logger.Info("message edited",
		zap.String("tenant", tenant),
		zap.String("context", contextID),
		zap.String("message_id", messageID),
	)
	return true, nil
}

// DeleteMessage deletes a thread with everything beneath it, or a reply
// with its likes. It returns false when the message does not exist.
func (s *Service) DeleteMessage(ctx context.Context, tenant, contextID, messageID string) (bool, error) {
	if err := checkKeyParts("tenant", tenant, "context", contextID, "message id", messageID); err != nil {
		return false, err
	}

	item, err := s.locateInContext(ctx, tenant, contextID, messageID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	switch item.EntityType {
	case repository.EntityThread:
		err = s.deleteThread(ctx, item)
	case repository.EntityReply:
		err = s.deleteReply(ctx, item)
	default:
		return false, fmt.Errorf("message %s has unexpected entity type %q", messageID, item.EntityType)
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) putRef(ctx context.Context, item *repository.Item) {
	ref := &repository.Item{
		PK:         item.PK,
		SK:         RefSK(item.ID),
		EntityType: repository.EntityRef,
		ID:         item.ID,
		TenantID:   item.TenantID,
		Context:    item.Context,
		ThreadID:   item.ThreadID,
		Ref:        item.SK,
	}
	if err := s.table.Put(ctx, ref); err != nil {
		// Lookups fall back to scanning, so the message is still reachable.
		s.logger.Warn("id pointer not written",
			zap.String("tenant", item.TenantID),
			zap.String("message_id", item.ID),
			zap.Error(err),
		)
	}
}

func setAuthor(item *repository.Item, a models.Author) {
	item.AuthorID = a.UserID
	item.AuthorRole = string(a.Role)
	item.AuthorName = a.Name
	item.AuthorAvatar = a.Avatar
}

func authorOf(item *repository.Item) models.Author {
	return models.Author{
		UserID: item.AuthorID,
		Role:   models.Role(item.AuthorRole),
		Name:   item.AuthorName,
		Avatar: item.AuthorAvatar,
	}
}

func threadFromItem(item *repository.Item) models.Thread {
	return models.Thread{
		ID:                item.ID,
		TenantID:          item.TenantID,
		Context:           item.Context,
		ContextType:       models.ContextType(item.ContextType),
		ContextVisibility: models.Visibility(item.ContextVisibility),
		Author:            authorOf(item),
		Content:           item.Content,
		LikeCount:         item.LikeCount,
		ReplyCount:        item.ReplyCount,
		SourceTitle:       item.SourceTitle,
		SourceURL:         item.SourceURL,
		EditedAt:          item.EditedAt,
		ExpertLastReadAt:  item.ExpertLastReadAt,
		CreatedAt:         item.CreatedAt,
		UpdatedAt:         item.UpdatedAt,
	}
}

func replyFromItem(item *repository.Item) models.Reply {
	return models.Reply{
		ID:          item.ID,
		TenantID:    item.TenantID,
		Context:     item.Context,
		ContextType: models.ContextType(item.ContextType),
		ThreadID:    item.ThreadID,
		Author:      authorOf(item),
		Content:     item.Content,
		LikeCount:   item.LikeCount,
		EditedAt:    item.EditedAt,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}

func messageFromItem(item *repository.Item) models.Message {
	kind := models.KindThread
	if item.EntityType == repository.EntityReply {
		kind = models.KindReply
	}
	return models.Message{
		Kind:      kind,
		ID:        item.ID,
		TenantID:  item.TenantID,
		Context:   item.Context,
		ThreadID:  item.ThreadID,
		Author:    authorOf(item),
		Content:   item.Content,
		LikeCount: item.LikeCount,
		EditedAt:  item.EditedAt,
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}
}
