package http

import (
	"context"

	"github.com/google/uuid"
)

// userKey is a context key type for storing the session user.
type userKey struct{}

// WithUserID stores the session user in the context.
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// GetUserID retrieves the session user stored by SessionMiddleware.
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(userKey{}).(uuid.UUID)
	return userID, ok
}
