package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndResolve(t *testing.T) {
	m := NewManager(NewMemoryStore())

	raw, tok, err := m.IssueToken(context.Background(), "usr_1", RoleUser)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	assert.NotEqual(t, raw, tok.Hash)

	id, err := m.Resolve(context.Background(), "Bearer "+raw)
	require.NoError(t, err)
	assert.Equal(t, "usr_1", id.UserID)
	assert.Equal(t, RoleUser, id.Role)
	assert.False(t, id.IsAdmin())
}

func TestResolve_Rejections(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store)

	_, err := m.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoToken)

	_, err = m.Resolve(context.Background(), "Bearer nonsense")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Resolve(context.Background(), "Bearer ct_0000000000000000000000000000000000000000000000000000000000000000")
	assert.ErrorIs(t, err, ErrInvalidToken)

	raw, tok, err := m.IssueToken(context.Background(), "usr_1", RoleUser)
	require.NoError(t, err)
	require.NoError(t, store.Revoke(context.Background(), tok.ID))
	_, err = m.Resolve(context.Background(), "Bearer "+raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestResolve_Expired(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store)

	raw, tok, err := m.IssueToken(context.Background(), "usr_1", RoleUser)
	require.NoError(t, err)
	past := time.Now().Add(-time.Hour)
	tok.ExpiresAt = &past
	require.NoError(t, store.Update(context.Background(), tok))

	_, err = m.Resolve(context.Background(), "Bearer "+raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func router(m *Manager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(m))
	r.GET("/me", RequireAuth(), func(c *gin.Context) {
		id, _ := IdentityFrom(c)
		c.JSON(http.StatusOK, gin.H{"userId": id.UserID})
	})
	r.GET("/admin", RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestMiddleware(t *testing.T) {
	m := NewManager(NewMemoryStore())
	userRaw, _, err := m.IssueToken(context.Background(), "usr_1", RoleUser)
	require.NoError(t, err)
	adminRaw, _, err := m.IssueToken(context.Background(), "usr_admin", RoleAdmin)
	require.NoError(t, err)
	r := router(m)

	// No token
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Valid user token
	w = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+userRaw)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "usr_1")

	// User token on admin route
	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+userRaw)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Admin token on admin route
	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+adminRaw)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
