package principal

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// SessionCookie carries the anonymous session token.
	SessionCookie = "am_session"
	// UserHeader is set by the authenticating front layer; auth
	// mechanics live outside this service.
	UserHeader = "X-User-ID"

	contextKey = "principal"

	cookieMaxAge = 30 * 24 * 60 * 60
)

// Principal is the identity every query and ownership check is scoped
// to. Exactly one of UserID/SessionKey is non-empty.
type Principal struct {
	UserID     string
	SessionKey string
}

func (p Principal) IsAuthenticated() bool {
	return p.UserID != ""
}

// Middleware resolves the calling principal. Unauthenticated callers
// without a session token get one minted and set as a cookie, so
// subsequent calls from the same client resolve to the same principal.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var p Principal
		if uid := c.GetHeader(UserHeader); uid != "" {
			p.UserID = uid
		} else {
			tok, err := c.Cookie(SessionCookie)
			if err != nil || tok == "" {
				tok = mint(c)
			}
			p.SessionKey = tok
		}
		c.Set(contextKey, p)
		c.Next()
	}
}

// FromContext returns the principal resolved by Middleware.
func FromContext(c *gin.Context) Principal {
	if v, ok := c.Get(contextKey); ok {
		if p, ok := v.(Principal); ok {
			return p
		}
	}
	return Principal{}
}

// Rotate invalidates the anonymous session by minting a fresh token.
// Authenticated principals are returned unchanged; their identity is
// never rotated.
func Rotate(c *gin.Context) Principal {
	p := FromContext(c)
	if p.IsAuthenticated() {
		return p
	}
	p.SessionKey = mint(c)
	c.Set(contextKey, p)
	return p
}

func mint(c *gin.Context) string {
	tok := uuid.NewString()
	c.SetCookie(SessionCookie, tok, cookieMaxAge, "/", "", false, true)
	return tok
}
