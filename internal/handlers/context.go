package handlers

import "context"

type ctxKey int

const (
	userIDKey ctxKey = iota
	roleKey
)

// WithUser stores the authenticated caller on ctx.
func WithUser(ctx context.Context, userID int64, role string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, roleKey, role)
}

// UserFrom returns the caller stored by WithUser.
func UserFrom(ctx context.Context) (int64, string, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	if !ok || id == 0 {
		return 0, "", false
	}
	role, _ := ctx.Value(roleKey).(string)
	return id, role, true
}
