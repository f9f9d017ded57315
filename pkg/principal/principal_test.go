package principal

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestRouter captures the principal Middleware resolves for each
// request.
func newTestRouter(captured *Principal) *gin.Engine {
	r := gin.New()
	r.Use(Middleware())
	r.GET("/whoami", func(c *gin.Context) {
		*captured = FromContext(c)
		c.Status(http.StatusOK)
	})
	r.GET("/rotate", func(c *gin.Context) {
		*captured = Rotate(c)
		c.Status(http.StatusOK)
	})
	return r
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, ck := range w.Result().Cookies() {
		if ck.Name == SessionCookie {
			return ck
		}
	}
	return nil
}

func TestMiddlewareMintsSessionForAnonymous(t *testing.T) {
	var got Principal
	r := newTestRouter(&got)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))

	assert.Empty(t, got.UserID)
	require.NotEmpty(t, got.SessionKey)
	assert.False(t, got.IsAuthenticated())

	ck := sessionCookie(t, w)
	require.NotNil(t, ck)
	assert.Equal(t, got.SessionKey, ck.Value)
	assert.True(t, ck.HttpOnly)
}

func TestMiddlewareReusesExistingSession(t *testing.T) {
	var got Principal
	r := newTestRouter(&got)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	first := got.SessionKey
	ck := sessionCookie(t, w)
	require.NotNil(t, ck)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(ck)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req)

	assert.Equal(t, first, got.SessionKey)
	// no fresh cookie when the existing one is accepted
	assert.Nil(t, sessionCookie(t, w2))
}

func TestMiddlewarePrefersUserHeader(t *testing.T) {
	var got Principal
	r := newTestRouter(&got)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(UserHeader, "user-42")
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "stale-session"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "user-42", got.UserID)
	assert.Empty(t, got.SessionKey)
	assert.True(t, got.IsAuthenticated())
}

func TestRotateReplacesAnonymousToken(t *testing.T) {
	var got Principal
	r := newTestRouter(&got)

	req := httptest.NewRequest(http.MethodGet, "/rotate", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "old-token"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.NotEmpty(t, got.SessionKey)
	assert.NotEqual(t, "old-token", got.SessionKey)

	ck := sessionCookie(t, w)
	require.NotNil(t, ck)
	assert.Equal(t, got.SessionKey, ck.Value)
}

func TestRotateKeepsAuthenticatedIdentity(t *testing.T) {
	var got Principal
	r := newTestRouter(&got)

	req := httptest.NewRequest(http.MethodGet, "/rotate", nil)
	req.Header.Set(UserHeader, "user-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "user-42", got.UserID)
	assert.Empty(t, got.SessionKey)
	assert.Nil(t, sessionCookie(t, w))
}
