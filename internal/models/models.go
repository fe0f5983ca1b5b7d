package models

// ContextType names the kind of surface a discussion is attached to.
type ContextType string

const (
	ContextBlog      ContextType = "blog"
	ContextCourse    ContextType = "course"
	ContextWebinar   ContextType = "webinar"
	ContextCommunity ContextType = "community"
)

func (t ContextType) Valid() bool {
	switch t {
	case ContextBlog, ContextCourse, ContextWebinar, ContextCommunity:
		return true
	}
	return false
}

// Visibility controls who may read and participate in a context.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityMembers  Visibility = "members"
	VisibilityEnrolled Visibility = "enrolled"
)

func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityMembers, VisibilityEnrolled:
		return true
	}
	return false
}

// Role is the participant role of a message author.
// Experts get the tenant-wide dashboard and read tracking.
type Role string

const (
	RoleLearner Role = "learner"
	RoleExpert  Role = "expert"
)

func (r Role) Valid() bool {
	return r == RoleLearner || r == RoleExpert
}

// MessageKind distinguishes top-level threads from replies.
type MessageKind string

const (
	KindThread MessageKind = "thread"
	KindReply  MessageKind = "reply"
)

// Author is the denormalized identity stored on every message.
// Identities come from the auth layer; the forum never looks users up.
type Author struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// Thread is a top-level message in a context.
//
// ReplyCount and LikeCount are maintained by separate counter writes, so they
// are eventually consistent with the live replies and likes beneath the thread.
// ExpertLastReadAt is only ever set by an explicit mark-as-read.
type Thread struct {
	ID                string      `json:"id"`
	TenantID          string      `json:"tenantId"`
	Context           string      `json:"context"`
	ContextType       ContextType `json:"contextType"`
	ContextVisibility Visibility  `json:"contextVisibility"`
	Author            Author      `json:"author"`
	Content           string      `json:"content"`
	LikeCount         int         `json:"likeCount"`
	ReplyCount        int         `json:"replyCount"`
	SourceTitle       string      `json:"sourceTitle,omitempty"`
	SourceURL         string      `json:"sourceUrl,omitempty"`
	EditedAt          string      `json:"editedAt,omitempty"`
	ExpertLastReadAt  string      `json:"expertLastReadAt,omitempty"`
	CreatedAt         string      `json:"createdAt"`
	UpdatedAt         string      `json:"updatedAt"`
}

// Reply is a flat child of exactly one thread. Context and ContextType are
// copied from the thread so replies can be range-scanned by context.
type Reply struct {
	ID          string      `json:"id"`
	TenantID    string      `json:"tenantId"`
	Context     string      `json:"context"`
	ContextType ContextType `json:"contextType"`
	ThreadID    string      `json:"threadId"`
	Author      Author      `json:"author"`
	Content     string      `json:"content"`
	LikeCount   int         `json:"likeCount"`
	EditedAt    string      `json:"editedAt,omitempty"`
	CreatedAt   string      `json:"createdAt"`
	UpdatedAt   string      `json:"updatedAt"`
}

// Like records that one visitor liked one message. Its existence is the
// only source of truth for "has this visitor liked this message".
type Like struct {
	TenantID  string `json:"tenantId"`
	Context   string `json:"context"`
	MessageID string `json:"messageId"`
	VisitorID string `json:"visitorId"`
	LikedAt   string `json:"likedAt"`
}

// Message is either a thread or a reply, returned by id lookups where the
// caller does not know which one it is asking for.
type Message struct {
	Kind      MessageKind `json:"kind"`
	ID        string      `json:"id"`
	TenantID  string      `json:"tenantId"`
	Context   string      `json:"context"`
	ThreadID  string      `json:"threadId,omitempty"`
	Author    Author      `json:"author"`
	Content   string      `json:"content"`
	LikeCount int         `json:"likeCount"`
	EditedAt  string      `json:"editedAt,omitempty"`
	CreatedAt string      `json:"createdAt"`
	UpdatedAt string      `json:"updatedAt"`
}

// ThreadWithReplies is the assembled view of a thread. Replies are a plain
// list in creation order; there is no reply to a reply.
type ThreadWithReplies struct {
	Thread
	Replies []Reply `json:"replies"`
}

// DashboardThread decorates a thread with the expert's unread state.
type DashboardThread struct {
	ThreadWithReplies
	IsNew          bool   `json:"isNew"`
	HasNewReplies  bool   `json:"hasNewReplies"`
	NewReplyCount  int    `json:"newReplyCount"`
	LastActivityAt string `json:"lastActivityAt"`
}

// DashboardPage is one page of the tenant-wide expert dashboard.
// Cursor is empty on the last page.
type DashboardPage struct {
	Threads []DashboardThread `json:"threads"`
	Cursor  string            `json:"cursor,omitempty"`
}

// ReconcileReport summarizes a counter reconciliation pass.
type ReconcileReport struct {
	Threads       int `json:"threads"`
	Replies       int `json:"replies"`
	FixedReplies  int `json:"fixedReplyCounts"`
	FixedLikes    int `json:"fixedLikeCounts"`
	OrphanReplies int `json:"orphanReplies"`
	OrphanLikes   int `json:"orphanLikes"`
	OrphanRefs    int `json:"orphanRefs"`
}
