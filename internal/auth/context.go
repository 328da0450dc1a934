package auth

import (
	"context"
	"net/http"
)

const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"

	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

type UserContext struct {
	UserID string
	Role   string
}

func (u UserContext) IsAdmin() bool {
	return u.Role == RoleAdmin
}

type ctxKey struct{}

func WithUser(ctx context.Context, u UserContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

func FromContext(ctx context.Context) (UserContext, bool) {
	u, ok := ctx.Value(ctxKey{}).(UserContext)
	return u, ok && u.UserID != ""
}

// GetUserID returns the caller id or "" for anonymous requests.
func GetUserID(ctx context.Context) string {
	u, _ := FromContext(ctx)
	return u.UserID
}

// Middleware trusts identity headers set by the API gateway after it has
// verified the session token.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := UserContext{
			UserID: r.Header.Get(HeaderUserID),
			Role:   r.Header.Get(HeaderUserRole),
		}
		if u.UserID != "" {
			if u.Role == "" {
				u.Role = RoleCustomer
			}
			r = r.WithContext(WithUser(r.Context(), u))
		}
		next.ServeHTTP(w, r)
	})
}
