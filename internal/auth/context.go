package auth

import (
	"context"

	"github.com/tickwise/tickwise/internal/domain"
)

// contextKey is a private type so context values cannot collide with values
// set by other packages.
type contextKey string

const (
	userContextKey         contextKey = "user"
	subscriptionContextKey contextKey = "subscription"
)

// WithIdentity stores the authenticated user and their subscription in the
// request context.
func WithIdentity(ctx context.Context, user *domain.User, sub *domain.Subscription) context.Context {
	ctx = context.WithValue(ctx, userContextKey, user)
	return context.WithValue(ctx, subscriptionContextKey, sub)
}

// GetUser retrieves the authenticated user from the context, or nil if the
// request was not authenticated.
func GetUser(ctx context.Context) *domain.User {
	user, ok := ctx.Value(userContextKey).(*domain.User)
	if !ok {
		return nil
	}
	return user
}

// GetSubscription retrieves the caller's subscription from the context, or
// nil if the request was not authenticated.
func GetSubscription(ctx context.Context) *domain.Subscription {
	sub, ok := ctx.Value(subscriptionContextKey).(*domain.Subscription)
	if !ok {
		return nil
	}
	return sub
}
