package auth

import "context"

type ctxKey int

const (
	ctxUserID ctxKey = iota
)

// WithUserID stores the authenticated account id in ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxUserID, userID)
}

// UserID returns the authenticated account id or ErrUnauthenticated.
func UserID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxUserID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", ErrUnauthenticated
}
