package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/echoforum/internal/auth"
	"github.com/lalith-99/echoforum/internal/forum"
	"github.com/lalith-99/echoforum/internal/middleware"
	"github.com/lalith-99/echoforum/internal/models"
	"github.com/lalith-99/echoforum/internal/repository/pebbledb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const secret = "api-secret"

type client struct {
	t      *testing.T
	router http.Handler
}

func newClient(t *testing.T) *client {
	t.Helper()
	gin.SetMode(gin.TestMode)

	table, err := pebbledb.OpenInMemory(zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = table.Close() })

	r := gin.New()
	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(secret))
	NewForumHandler(forum.New(table, zap.NewNop()), zap.NewNop()).Register(v1)
	return &client{t: t, router: r}
}

func (c *client) token(tenant, user string, role models.Role) string {
	c.t.Helper()
	tok, err := auth.GenerateToken(auth.Claims{UserID: user, TenantID: tenant, Role: role, Name: user}, secret, time.Hour)
	require.NoError(c.t, err)
	return tok
}

func (c *client) do(method, path, token string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

const threads = "/v1/forum/contexts/post-1/threads"

func newThreadBody(content string) gin.H {
	return gin.H{"contextType": "blog", "content": content}
}

func TestThreadFlow(t *testing.T) {
	c := newClient(t)
	alice := c.token("acme", "alice", models.RoleLearner)
	bob := c.token("acme", "bob", models.RoleLearner)

	w := c.do(http.MethodPost, threads, alice, newThreadBody("first question"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	th := decode[models.Thread](t, w)
	assert.Equal(t, "alice", th.Author.UserID)
	assert.Equal(t, models.VisibilityPublic, th.ContextVisibility)

	w = c.do(http.MethodPost, threads+"/"+th.ID+"/replies", bob, gin.H{"content": "an answer"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	reply := decode[models.Reply](t, w)

	w = c.do(http.MethodPut, "/v1/forum/contexts/post-1/messages/"+reply.ID+"/like", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode[map[string]any](t, w)["changed"])

	w = c.do(http.MethodPut, "/v1/forum/contexts/post-1/messages/"+reply.ID+"/like", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode[map[string]any](t, w)["changed"])

	w = c.do(http.MethodGet, threads, alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Threads []threadView `json:"threads"`
	}](t, w)
	require.Len(t, list.Threads, 1)
	assert.False(t, list.Threads[0].LikedByMe)
	assert.Equal(t, 1, list.Threads[0].ReplyCount)
	require.Len(t, list.Threads[0].Replies, 1)
	assert.True(t, list.Threads[0].Replies[0].LikedByMe)
	assert.Equal(t, 1, list.Threads[0].Replies[0].LikeCount)

	w = c.do(http.MethodGet, threads+"/"+th.ID, bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[threadView](t, w)
	require.Len(t, view.Replies, 1)
	assert.False(t, view.Replies[0].LikedByMe)

	w = c.do(http.MethodDelete, "/v1/forum/contexts/post-1/messages/"+reply.ID+"/like", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode[map[string]any](t, w)["changed"])
}

func TestEditRequiresAuthorOrExpert(t *testing.T) {
	c := newClient(t)
	alice := c.token("acme", "alice", models.RoleLearner)
	bob := c.token("acme", "bob", models.RoleLearner)
	eve := c.token("acme", "eve", models.RoleExpert)

	th := decode[models.Thread](t, c.do(http.MethodPost, threads, alice, newThreadBody("original")))
	path := "/v1/forum/contexts/post-1/messages/" + th.ID

	w := c.do(http.MethodPatch, path, bob, gin.H{"content": "hijacked"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = c.do(http.MethodPatch, path, alice, gin.H{"content": "  edited  "})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	m := decode[models.Message](t, w)
	assert.Equal(t, "edited", m.Content)
	assert.NotEmpty(t, m.EditedAt)

	w = c.do(http.MethodPatch, path, alice, gin.H{"content": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = c.do(http.MethodDelete, path, bob, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = c.do(http.MethodDelete, path, eve, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = c.do(http.MethodDelete, path, eve, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = c.do(http.MethodGet, threads+"/"+th.ID, alice, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTenantIsolation(t *testing.T) {
	c := newClient(t)
	alice := c.token("acme", "alice", models.RoleLearner)
	mallory := c.token("globex", "mallory", models.RoleExpert)

	th := decode[models.Thread](t, c.do(http.MethodPost, threads, alice, newThreadBody("private to acme")))

	w := c.do(http.MethodGet, threads+"/"+th.ID, mallory, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = c.do(http.MethodGet, threads, mallory, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"threads":[]}`, w.Body.String())

	w = c.do(http.MethodDelete, "/v1/forum/contexts/post-1/messages/"+th.ID, mallory, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDashboardRoutes(t *testing.T) {
	c := newClient(t)
	alice := c.token("acme", "alice", models.RoleLearner)
	eve := c.token("acme", "eve", models.RoleExpert)

	first := decode[models.Thread](t, c.do(http.MethodPost, threads, alice, newThreadBody("one")))
	second := decode[models.Thread](t, c.do(http.MethodPost, "/v1/forum/contexts/post-2/threads", alice, newThreadBody("two")))

	w := c.do(http.MethodGet, "/v1/forum/dashboard/threads", alice, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = c.do(http.MethodGet, "/v1/forum/dashboard/threads?limit=1", eve, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	page := decode[models.DashboardPage](t, w)
	require.Len(t, page.Threads, 1)
	assert.True(t, page.Threads[0].IsNew)
	require.NotEmpty(t, page.Cursor)

	w = c.do(http.MethodGet, "/v1/forum/dashboard/threads?limit=1&cursor="+page.Cursor, eve, nil)
	require.Equal(t, http.StatusOK, w.Code)
	next := decode[models.DashboardPage](t, w)
	require.Len(t, next.Threads, 1)
	assert.ElementsMatch(t, []string{first.ID, second.ID}, []string{page.Threads[0].ID, next.Threads[0].ID})

	w = c.do(http.MethodGet, "/v1/forum/dashboard/threads?limit=zero", eve, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = c.do(http.MethodGet, "/v1/forum/dashboard/threads?cursor=%21%21", eve, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = c.do(http.MethodPost, "/v1/forum/dashboard/threads/"+first.ID+"/read", eve, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = c.do(http.MethodPost, "/v1/forum/dashboard/threads/nope/read", eve, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = c.do(http.MethodPost, "/v1/forum/dashboard/read", eve, gin.H{"threadIds": []string{first.ID, second.ID, "missing"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decode[map[string]any](t, w)["updated"])

	w = c.do(http.MethodGet, "/v1/forum/dashboard/recent?limit=5", eve, nil)
	require.Equal(t, http.StatusOK, w.Code)
	recent := decode[struct {
		Threads []models.Thread `json:"threads"`
	}](t, w)
	require.Len(t, recent.Threads, 2)
	assert.Equal(t, second.ID, recent.Threads[0].ID)
}

func TestAdminRoutes(t *testing.T) {
	c := newClient(t)
	alice := c.token("acme", "alice", models.RoleLearner)
	eve := c.token("acme", "eve", models.RoleExpert)

	th := decode[models.Thread](t, c.do(http.MethodPost, threads, alice, newThreadBody("hello")))
	c.do(http.MethodPost, threads+"/"+th.ID+"/replies", alice, gin.H{"content": "reply"})

	w := c.do(http.MethodPost, "/v1/forum/admin/reconcile", alice, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = c.do(http.MethodPost, "/v1/forum/admin/reconcile", eve, nil)
	require.Equal(t, http.StatusOK, w.Code)
	report := decode[models.ReconcileReport](t, w)
	assert.Equal(t, 1, report.Threads)
	assert.Equal(t, 1, report.Replies)
	assert.Zero(t, report.FixedReplies)

	w = c.do(http.MethodDelete, "/v1/forum/admin/tenant", eve, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Positive(t, decode[map[string]any](t, w)["deleted"])

	w = c.do(http.MethodGet, threads, alice, nil)
	assert.JSONEq(t, `{"threads":[]}`, w.Body.String())
}

func TestRequestErrors(t *testing.T) {
	c := newClient(t)
	alice := c.token("acme", "alice", models.RoleLearner)

	w := c.do(http.MethodGet, threads, "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = c.do(http.MethodPost, threads, alice, gin.H{"content": "no type"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = c.do(http.MethodPost, threads, alice, gin.H{"contextType": "podcast", "content": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = c.do(http.MethodPost, threads+"/missing/replies", alice, gin.H{"content": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = c.do(http.MethodPut, "/v1/forum/contexts/post-1/messages/missing/like", alice, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
