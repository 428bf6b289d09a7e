// Package delivery holds the plumbing shared by the HTTP and WebSocket
// surfaces: the authenticated user travels in the request context, placed
// there by the auth middleware and read by every handler.
package delivery

import (
	"context"

	"github.com/pitchside/tacticsroom/internal/models"
)

type userKey struct{}

func UserToContext(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userKey{}).(models.User)
	return user, ok
}
