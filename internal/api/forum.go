package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/echoforum/internal/forum"
	"github.com/lalith-99/echoforum/internal/middleware"
	"github.com/lalith-99/echoforum/internal/models"
	"go.uber.org/zap"
)

type ForumHandler struct {
	svc    *forum.Service
	logger *zap.Logger
}

func NewForumHandler(svc *forum.Service, logger *zap.Logger) *ForumHandler {
	return &ForumHandler{svc: svc, logger: logger}
}

// Register mounts the forum routes under rg. rg must already run
// AuthMiddleware.
func (h *ForumHandler) Register(rg *gin.RouterGroup) {
	f := rg.Group("/forum")

	ctx := f.Group("/contexts/:context")
	ctx.POST("/threads", h.CreateThread)
	ctx.GET("/threads", h.ListThreads)
	ctx.GET("/threads/:threadId", h.GetThread)
	ctx.POST("/threads/:threadId/replies", h.CreateReply)
	ctx.PATCH("/messages/:messageId", h.UpdateMessage)
	ctx.DELETE("/messages/:messageId", h.DeleteMessage)
	ctx.PUT("/messages/:messageId/like", h.Like)
	ctx.DELETE("/messages/:messageId/like", h.Unlike)

	dash := f.Group("/dashboard", middleware.RequireExpert())
	dash.GET("/threads", h.Dashboard)
	dash.GET("/recent", h.Recent)
	dash.POST("/threads/:threadId/read", h.MarkRead)
	dash.POST("/read", h.MarkManyRead)

	admin := f.Group("/admin", middleware.RequireExpert())
	admin.POST("/reconcile", h.Reconcile)
	admin.DELETE("/tenant", h.DeleteTenant)
}

// threadView is a thread with the caller's like state on it and its replies.
type threadView struct {
	models.Thread
	LikedByMe bool        `json:"likedByMe"`
	Replies   []replyView `json:"replies"`
}

type replyView struct {
	models.Reply
	LikedByMe bool `json:"likedByMe"`
}

type createThreadRequest struct {
	ContextType       models.ContextType `json:"contextType" binding:"required"`
	ContextVisibility models.Visibility  `json:"contextVisibility"`
	Content           string             `json:"content" binding:"required"`
	SourceTitle       string             `json:"sourceTitle"`
	SourceURL         string             `json:"sourceUrl"`
}

type contentRequest struct {
	Content string `json:"content" binding:"required"`
}

type markReadRequest struct {
	ThreadIDs []string `json:"threadIds" binding:"required"`
}

// CreateThread handles POST /v1/forum/contexts/:context/threads
func (h *ForumHandler) CreateThread(c *gin.Context) {
	var req createThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	th, err := h.svc.CreateThread(c.Request.Context(), middleware.GetTenantID(c), forum.NewThread{
		Context:           c.Param("context"),
		ContextType:       req.ContextType,
		ContextVisibility: req.ContextVisibility,
		Author:            middleware.GetAuthor(c),
		Content:           req.Content,
		SourceTitle:       req.SourceTitle,
		SourceURL:         req.SourceURL,
	})
	if err != nil {
		h.fail(c, err, "failed to create thread")
		return
	}
	c.JSON(http.StatusCreated, th)
}

// ListThreads handles GET /v1/forum/contexts/:context/threads
func (h *ForumHandler) ListThreads(c *gin.Context) {
	threads, err := h.svc.GetThreadsByContext(c.Request.Context(), middleware.GetTenantID(c), c.Param("context"))
	if err != nil {
		h.fail(c, err, "failed to list threads")
		return
	}
	views, err := h.decorate(c, threads)
	if err != nil {
		h.fail(c, err, "failed to list threads")
		return
	}
	c.JSON(http.StatusOK, gin.H{"threads": views})
}

// GetThread handles GET /v1/forum/contexts/:context/threads/:threadId
func (h *ForumHandler) GetThread(c *gin.Context) {
	th, err := h.svc.GetThreadWithReplies(c.Request.Context(), middleware.GetTenantID(c), c.Param("context"), c.Param("threadId"))
	if err != nil {
		h.fail(c, err, "failed to get thread")
		return
	}
	views, err := h.decorate(c, []models.ThreadWithReplies{*th})
	if err != nil {
		h.fail(c, err, "failed to get thread")
		return
	}
	c.JSON(http.StatusOK, views[0])
}

// CreateReply handles POST /v1/forum/contexts/:context/threads/:threadId/replies
func (h *ForumHandler) CreateReply(c *gin.Context) {
	var req contentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	r, err := h.svc.CreateReply(c.Request.Context(), middleware.GetTenantID(c),
		c.Param("context"), c.Param("threadId"), middleware.GetAuthor(c), req.Content)
	if err != nil {
		h.fail(c, err, "failed to create reply")
		return
	}
	c.JSON(http.StatusCreated, r)
}

// UpdateMessage handles PATCH /v1/forum/contexts/:context/messages/:messageId
//
// Only the author or an expert may edit.
func (h *ForumHandler) UpdateMessage(c *gin.Context) {
	var req contentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.authorize(c) {
		return
	}

	tenant, contextID, messageID := middleware.GetTenantID(c), c.Param("context"), c.Param("messageId")
	ok, err := h.svc.UpdateMessage(c.Request.Context(), tenant, contextID, messageID, req.Content)
	if err != nil {
		h.fail(c, err, "failed to update message")
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}

	m, err := h.svc.GetMessage(c.Request.Context(), tenant, contextID, messageID)
	if err != nil {
		h.fail(c, err, "failed to update message")
		return
	}
	c.JSON(http.StatusOK, m)
}

// DeleteMessage handles DELETE /v1/forum/contexts/:context/messages/:messageId
//
// Only the author or an expert may delete. Deleting a thread removes its
// replies and likes.
func (h *ForumHandler) DeleteMessage(c *gin.Context) {
	if !h.authorize(c) {
		return
	}
	ok, err := h.svc.DeleteMessage(c.Request.Context(), middleware.GetTenantID(c), c.Param("context"), c.Param("messageId"))
	if err != nil {
		h.fail(c, err, "failed to delete message")
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Like handles PUT /v1/forum/contexts/:context/messages/:messageId/like
//
// "changed" is false when the caller had already liked the message.
func (h *ForumHandler) Like(c *gin.Context) {
	ok, err := h.svc.LikeMessage(c.Request.Context(), middleware.GetTenantID(c),
		c.Param("context"), c.Param("messageId"), middleware.GetAuthor(c).UserID)
	if err != nil {
		h.fail(c, err, "failed to like message")
		return
	}
	c.JSON(http.StatusOK, gin.H{"liked": true, "changed": ok})
}

// Unlike handles DELETE /v1/forum/contexts/:context/messages/:messageId/like
func (h *ForumHandler) Unlike(c *gin.Context) {
	ok, err := h.svc.UnlikeMessage(c.Request.Context(), middleware.GetTenantID(c),
		c.Param("context"), c.Param("messageId"), middleware.GetAuthor(c).UserID)
	if err != nil {
		h.fail(c, err, "failed to unlike message")
		return
	}
	c.JSON(http.StatusOK, gin.H{"liked": false, "changed": ok})
}

// Dashboard handles GET /v1/forum/dashboard/threads?limit=20&cursor=...
func (h *ForumHandler) Dashboard(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	page, err := h.svc.GetAllThreadsForTenant(c.Request.Context(), middleware.GetTenantID(c), limit, c.Query("cursor"))
	if err != nil {
		h.fail(c, err, "failed to load dashboard")
		return
	}
	c.JSON(http.StatusOK, page)
}

// Recent handles GET /v1/forum/dashboard/recent?limit=10
func (h *ForumHandler) Recent(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	threads, err := h.svc.GetRecentThreads(c.Request.Context(), middleware.GetTenantID(c), limit)
	if err != nil {
		h.fail(c, err, "failed to load recent threads")
		return
	}
	c.JSON(http.StatusOK, gin.H{"threads": threads})
}

// MarkRead handles POST /v1/forum/dashboard/threads/:threadId/read
func (h *ForumHandler) MarkRead(c *gin.Context) {
	ok, err := h.svc.MarkThreadAsRead(c.Request.Context(), middleware.GetTenantID(c), c.Param("threadId"))
	if err != nil {
		h.fail(c, err, "failed to mark thread read")
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkManyRead handles POST /v1/forum/dashboard/read
func (h *ForumHandler) MarkManyRead(c *gin.Context) {
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	n, err := h.svc.MarkThreadsAsRead(c.Request.Context(), middleware.GetTenantID(c), req.ThreadIDs)
	if err != nil {
		h.fail(c, err, "failed to mark threads read")
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

// Reconcile handles POST /v1/forum/admin/reconcile
func (h *ForumHandler) Reconcile(c *gin.Context) {
	report, err := h.svc.Reconcile(c.Request.Context(), middleware.GetTenantID(c))
	if err != nil {
		h.fail(c, err, "failed to reconcile")
		return
	}
	c.JSON(http.StatusOK, report)
}

// DeleteTenant handles DELETE /v1/forum/admin/tenant
//
// Removes every forum item of the caller's tenant.
func (h *ForumHandler) DeleteTenant(c *gin.Context) {
	tenant := middleware.GetTenantID(c)
	n, err := h.svc.DeleteAllForTenant(c.Request.Context(), tenant)
	if err != nil {
		h.fail(c, err, "failed to delete tenant data")
		return
	}
	h.logger.Warn("tenant forum data deleted over API",
		zap.String("tenant", tenant),
		zap.String("by", middleware.GetAuthor(c).UserID),
		zap.Int("items", n),
	)
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

// authorize writes the error response itself and returns false when the
// caller may not change the message.
func (h *ForumHandler) authorize(c *gin.Context) bool {
	err := h.svc.CanModify(c.Request.Context(), middleware.GetTenantID(c),
		c.Param("context"), c.Param("messageId"), middleware.GetAuthor(c))
	if err != nil {
		h.fail(c, err, "failed to load message")
		return false
	}
	return true
}

// decorate attaches the caller's like state to threads and replies.
func (h *ForumHandler) decorate(c *gin.Context, threads []models.ThreadWithReplies) ([]threadView, error) {
	views := make([]threadView, len(threads))
	if len(threads) == 0 {
		return views, nil
	}

	var ids []string
	for _, th := range threads {
		ids = append(ids, th.ID)
		for _, r := range th.Replies {
			ids = append(ids, r.ID)
		}
	}
	liked, err := h.svc.GetUserLikesForMessages(c.Request.Context(), middleware.GetTenantID(c),
		c.Param("context"), ids, middleware.GetAuthor(c).UserID)
	if err != nil {
		return nil, err
	}

	for i, th := range threads {
		views[i] = threadView{Thread: th.Thread, LikedByMe: liked[th.ID], Replies: make([]replyView, len(th.Replies))}
		for j, r := range th.Replies {
			views[i].Replies[j] = replyView{Reply: r, LikedByMe: liked[r.ID]}
		}
	}
	return views, nil
}

// fail maps service errors onto HTTP statuses.
func (h *ForumHandler) fail(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, forum.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, forum.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, forum.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "only the author or an expert may change this message"})
	default:
		h.logger.Error(msg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

// queryLimit reads ?limit. Zero means the service default.
func queryLimit(c *gin.Context) (int, bool) {
	l := c.Query("limit")
	if l == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(l)
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'limit' parameter"})
		return 0, false
	}
	return limit, true
}
