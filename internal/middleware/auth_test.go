package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/echoforum/internal/auth"
	"github.com/lalith-99/echoforum/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "mw-secret"

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(secret))
	r.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tenant": GetTenantID(c), "user": GetAuthor(c).UserID})
	})
	r.GET("/expert", RequireExpert(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func token(t *testing.T, role models.Role) string {
	t.Helper()
	tok, err := auth.GenerateToken(auth.Claims{UserID: "u1", TenantID: "acme", Role: role}, secret, time.Hour)
	require.NoError(t, err)
	return tok
}

func do(r http.Handler, path, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter()

	w := do(r, "/whoami", "Bearer "+token(t, models.RoleLearner))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"tenant":"acme","user":"u1"}`, w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, do(r, "/whoami", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/whoami", "Token abc").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/whoami", "Bearer abc").Code)
}

func TestRequireExpert(t *testing.T) {
	r := newRouter()

	assert.Equal(t, http.StatusForbidden, do(r, "/expert", "Bearer "+token(t, models.RoleLearner)).Code)
	assert.Equal(t, http.StatusNoContent, do(r, "/expert", "Bearer "+token(t, models.RoleExpert)).Code)
}

func TestGettersWithoutAuth(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Empty(t, GetTenantID(c))
	assert.Equal(t, models.Author{}, GetAuthor(c))
}
