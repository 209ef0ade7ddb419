package shared

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

type sessionContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context, nil when absent.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// Principal is the signed-in user a request acts for.
type Principal struct {
	UserID int64
	Role   string
}

// PrincipalFromContext resolves the session in ctx to a user id and role.
// The role may be empty; callers decide whether that is acceptable.
func PrincipalFromContext(ctx context.Context) (Principal, error) {
	sess := SessionFromContext(ctx)
	if sess == nil {
		return Principal{}, ErrNoSession
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return Principal{}, ErrNoSession
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return Principal{}, fmt.Errorf("%w: %q", ErrInvalidSessionUser, raw)
	}
	return Principal{UserID: id, Role: strings.TrimSpace(sess.Role())}, nil
}
