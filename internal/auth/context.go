package auth

import "context"

type contextKey struct{}

const (
	RoleMember  = "member"
	RoleAdmin   = "admin"
	RoleService = "service"
)

// AuthContext identifies the caller of a request: an end user, an admin,
// or a trusted service (webhook sender, internal cron).
type AuthContext struct {
	UserID string
	Role   string
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

// UserID returns the authenticated user ID, if any.
func UserID(ctx context.Context) (string, bool) {
	ac, ok := FromContext(ctx)
	if !ok || ac.UserID == "" {
		return "", false
	}
	return ac.UserID, true
}

func IsAdmin(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	return ok && ac.Role == RoleAdmin
}

func IsService(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	return ok && (ac.Role == RoleService || ac.Role == RoleAdmin)
}
