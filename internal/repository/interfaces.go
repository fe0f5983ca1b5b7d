package repository

import (
	"context"
	"errors"
	"fmt"
)

// Entity type tags. Every item in the table carries exactly one.
const (
	EntityThread = "FORUM_THREAD"
	EntityReply  = "FORUM_REPLY"
	EntityLike   = "FORUM_LIKE"
	EntityRef    = "FORUM_REF"
)

// Attribute names shared by every backend. They double as JSON and
// DynamoDB attribute names, so they must match the Item struct tags.
const (
	AttrContent          = "content"
	AttrEditedAt         = "editedAt"
	AttrUpdatedAt        = "updatedAt"
	AttrExpertLastReadAt = "expertLastReadAt"
	AttrLikeCount        = "likeCount"
	AttrReplyCount       = "replyCount"
)

var (
	// ErrNotFound is returned when no item exists at the key.
	ErrNotFound = errors.New("item not found")

	// ErrAlreadyExists is returned by PutIfAbsent when the key is taken.
	ErrAlreadyExists = errors.New("item already exists")

	// ErrGuardFailed is returned by Add when a decrement would take the
	// counter below zero. Nothing is written.
	ErrGuardFailed = errors.New("counter guard failed")
)

// Key addresses one item: the tenant partition and the sort key inside it.
type Key struct {
	PK string
	SK string
}

func (k Key) String() string {
	return k.PK + "|" + k.SK
}

// Item is the single row shape of the forum table. It is a flat union of the
// attributes of threads, replies, likes and id pointers; EntityType says which
// fields are meaningful.
type Item struct {
	PK     string `json:"pk" dynamodbav:"pk"`
	SK     string `json:"sk" dynamodbav:"sk"`
	GSI1PK string `json:"gsi1pk,omitempty" dynamodbav:"gsi1pk,omitempty"`
	GSI1SK string `json:"gsi1sk,omitempty" dynamodbav:"gsi1sk,omitempty"`

	EntityType string `json:"entityType" dynamodbav:"entityType"`
	ID         string `json:"id,omitempty" dynamodbav:"id,omitempty"`
	TenantID   string `json:"tenantId" dynamodbav:"tenantId"`

	Context           string `json:"context,omitempty" dynamodbav:"context,omitempty"`
	ContextType       string `json:"contextType,omitempty" dynamodbav:"contextType,omitempty"`
	ContextVisibility string `json:"contextVisibility,omitempty" dynamodbav:"contextVisibility,omitempty"`
	ThreadID          string `json:"threadId,omitempty" dynamodbav:"threadId,omitempty"`

	AuthorID     string `json:"authorId,omitempty" dynamodbav:"authorId,omitempty"`
	AuthorRole   string `json:"authorRole,omitempty" dynamodbav:"authorRole,omitempty"`
	AuthorName   string `json:"authorName,omitempty" dynamodbav:"authorName,omitempty"`
	AuthorAvatar string `json:"authorAvatar,omitempty" dynamodbav:"authorAvatar,omitempty"`

	Content     string `json:"content,omitempty" dynamodbav:"content,omitempty"`
	SourceTitle string `json:"sourceTitle,omitempty" dynamodbav:"sourceTitle,omitempty"`
	SourceURL   string `json:"sourceUrl,omitempty" dynamodbav:"sourceUrl,omitempty"`

	LikeCount  int `json:"likeCount,omitempty" dynamodbav:"likeCount,omitempty"`
	ReplyCount int `json:"replyCount,omitempty" dynamodbav:"replyCount,omitempty"`

	EditedAt         string `json:"editedAt,omitempty" dynamodbav:"editedAt,omitempty"`
	ExpertLastReadAt string `json:"expertLastReadAt,omitempty" dynamodbav:"expertLastReadAt,omitempty"`
	CreatedAt        string `json:"createdAt,omitempty" dynamodbav:"createdAt,omitempty"`
	UpdatedAt        string `json:"updatedAt,omitempty" dynamodbav:"updatedAt,omitempty"`

	// Like records.
	MessageID string `json:"messageId,omitempty" dynamodbav:"messageId,omitempty"`
	VisitorID string `json:"visitorId,omitempty" dynamodbav:"visitorId,omitempty"`
	LikedAt   string `json:"likedAt,omitempty" dynamodbav:"likedAt,omitempty"`

	// Ref is the sort key an id pointer resolves to.
	Ref string `json:"ref,omitempty" dynamodbav:"ref,omitempty"`
}

func (it *Item) Key() Key {
	return Key{PK: it.PK, SK: it.SK}
}

// SetAttr assigns one of the updatable string attributes by name.
func (it *Item) SetAttr(name, value string) error {
	switch name {
	case AttrContent:
		it.Content = value
	case AttrEditedAt:
		it.EditedAt = value
	case AttrUpdatedAt:
		it.UpdatedAt = value
	case AttrExpertLastReadAt:
		it.ExpertLastReadAt = value
	default:
		return fmt.Errorf("attribute %q is not updatable", name)
	}
	return nil
}

// Counter returns a pointer to the named counter field.
func (it *Item) Counter(name string) (*int, error) {
	switch name {
	case AttrLikeCount:
		return &it.LikeCount, nil
	case AttrReplyCount:
		return &it.ReplyCount, nil
	}
	return nil, fmt.Errorf("attribute %q is not a counter", name)
}

// CheckUpdate rejects attribute maps naming anything other than the
// updatable string attributes. Backends call it before touching storage.
func CheckUpdate(attrs map[string]string) error {
	if len(attrs) == 0 {
		return errors.New("no attributes to update")
	}
	var probe Item
	for name := range attrs {
		if err := probe.SetAttr(name, ""); err != nil {
			return err
		}
	}
	return nil
}

// CheckCounter rejects anything that is not a counter attribute.
func CheckCounter(attr string) error {
	var probe Item
	_, err := probe.Counter(attr)
	return err
}

// ItemTable is the sorted key-value table every forum operation runs on.
//
// Items live in a partition (PK, one per tenant) and are ordered by SK in
// byte order. A single secondary index (GSI1PK, GSI1SK) gives tenant-wide
// chronological access. No method spans more than one item atomically,
// except that Put/Delete may batch for throughput.
type ItemTable interface {
	// Get returns the item at key, or ErrNotFound.
	Get(ctx context.Context, key Key) (*Item, error)

	// BatchGet returns the items that exist among keys. Missing keys are
	// skipped, and result order is unspecified.
	BatchGet(ctx context.Context, keys []Key) ([]*Item, error)

	// Put writes the item, replacing anything at its key.
	Put(ctx context.Context, item *Item) error

	// PutIfAbsent writes the item only if its key is free.
	// Returns ErrAlreadyExists otherwise.
	PutIfAbsent(ctx context.Context, item *Item) error

	// Update sets string attributes on an existing item.
	// Returns ErrNotFound if there is no item at key; it never creates one.
	Update(ctx context.Context, key Key, attrs map[string]string) error

	// Add atomically applies attr = (attr or 0) + delta to an existing item.
	// Returns ErrNotFound if the item is absent. A negative delta is guarded
	// so the counter never drops below zero; ErrGuardFailed means nothing
	// was written.
	Add(ctx context.Context, key Key, attr string, delta int) error

	// Delete removes every key. Keys that do not exist are ignored.
	Delete(ctx context.Context, keys ...Key) error

	// Query returns every item in partition pk whose SK starts with
	// skPrefix, ascending by SK. An empty prefix returns the whole partition.
	Query(ctx context.Context, pk, skPrefix string) ([]*Item, error)

	// QueryIndex returns items of the secondary index partition gsiPK,
	// newest (greatest GSI1SK) first. limit <= 0 means no limit.
	QueryIndex(ctx context.Context, gsiPK string, limit int) ([]*Item, error)

	Close() error
}
