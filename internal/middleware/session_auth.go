package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/p2pcore/internal/session"
)

const (
	sessionLocal = "session"
	userIDLocal  = "user_id"
)

// SessionResolver maps a bearer token to an open session.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*session.Session, error)
}

// SessionAuth requires a bearer token naming an open session and exposes the
// session to downstream handlers.
func SessionAuth(sessions SessionResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := BearerToken(c)
		if token == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		sess, err := sessions.Resolve(c.UserContext(), token)
		if err != nil || !sess.Active() {
			return fiber.NewError(http.StatusUnauthorized, "session expired")
		}

		c.Locals(sessionLocal, sess)
		c.Locals(userIDLocal, sess.UserID)
		return c.Next()
	}
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(c *fiber.Ctx) string {
	authz := c.Get(fiber.HeaderAuthorization)
	if len(authz) < len("Bearer ") || !strings.EqualFold(authz[:len("Bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[len("Bearer "):])
}

// CurrentSession returns the session attached by SessionAuth.
func CurrentSession(c *fiber.Ctx) *session.Session {
	sess, _ := c.Locals(sessionLocal).(*session.Session)
	return sess
}

// UserID returns the authenticated user id, or "".
func UserID(c *fiber.Ctx) string {
	uid, _ := c.Locals(userIDLocal).(string)
	return uid
}
