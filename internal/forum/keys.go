package forum

import (
	"strings"
	"time"
)

// Timestamps are fixed-width so that string order is time order.
const timeLayout = "2006-01-02T15:04:05.000Z"

const (
	partitionPrefix = "TENANT#"
	contextPrefix   = "CTX#"
	refPrefix       = "REF#"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// PartitionKey is the partition holding every item of a tenant. The
// secondary index uses the same value as its partition key.
func PartitionKey(tenant string) string {
	return partitionPrefix + tenant
}

// ContextPrefix matches every thread, reply and like in a context.
func ContextPrefix(context string) string {
	return contextPrefix + context + "#"
}

// MessagesPrefix matches the threads and replies of a context but not its likes.
func MessagesPrefix(context string) string {
	return ContextPrefix(context) + "THREAD#"
}

// ThreadSK is CTX#{context}#THREAD#{createdAt}#{threadId}.
func ThreadSK(context, createdAt, threadID string) string {
	return MessagesPrefix(context) + createdAt + "#" + threadID
}

// RepliesPrefix matches every reply of one thread, oldest first.
func RepliesPrefix(context, threadID string) string {
	return MessagesPrefix(context) + threadID + "#REPLY#"
}

// ReplySK is CTX#{context}#THREAD#{threadId}#REPLY#{createdAt}#{replyId}.
func ReplySK(context, threadID, createdAt, replyID string) string {
	return RepliesPrefix(context, threadID) + createdAt + "#" + replyID
}

// LikePrefix matches every like on one message.
func LikePrefix(context, messageID string) string {
	return ContextPrefix(context) + "LIKE#" + messageID + "#"
}

// LikeSK is CTX#{context}#LIKE#{messageId}#{visitorId}.
func LikeSK(context, messageID, visitorID string) string {
	return LikePrefix(context, messageID) + visitorID
}

// RefSK addresses the id pointer of a thread or reply.
func RefSK(id string) string {
	return refPrefix + id
}

// IndexSK is the secondary index sort key {createdAt}#{id}.
func IndexSK(createdAt, id string) string {
	return createdAt + "#" + id
}

// inContext reports whether sk belongs to context.
func inContext(sk, context string) bool {
	return strings.HasPrefix(sk, ContextPrefix(context))
}
