// Package domain contains core business types and interfaces.
//
// This file defines the User and Subscription domain types. These are separate
// from the repository models so business logic never depends on database types.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionTier represents the pricing tier of a subscription.
type SubscriptionTier string

const (
	TierFree    SubscriptionTier = "free"
	TierPro     SubscriptionTier = "pro"
	TierPremium SubscriptionTier = "premium"
)

// tierRanks defines the strict total order free < pro < premium.
var tierRanks = map[SubscriptionTier]int{
	TierFree:    0,
	TierPro:     1,
	TierPremium: 2,
}

// TierRank returns the position of the tier in the upgrade order.
// Unknown tiers rank alongside free.
func TierRank(t SubscriptionTier) int {
	return tierRanks[t]
}

// IsValidTier reports whether t is one of the known tiers.
func IsValidTier(t SubscriptionTier) bool {
	_, ok := tierRanks[t]
	return ok
}

// CanUpgradeTo reports whether a subscription may move from tier t to target.
// Only strictly forward moves are allowed; downgrades and lateral changes are
// rejected before any mutation occurs.
func (t SubscriptionTier) CanUpgradeTo(target SubscriptionTier) bool {
	if !IsValidTier(t) || !IsValidTier(target) {
		return false
	}
	return TierRank(target) > TierRank(t)
}

// User represents a registered user of the API.
type User struct {
	ID           uuid.UUID
	Username     string
	Email        string
	PasswordHash string // Never expose this in API responses
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Subscription represents a user's active subscription.
type Subscription struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Tier      SubscriptionTier
	IsActive  bool
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RegisterParams contains the validated parameters for user registration.
type RegisterParams struct {
	Username string
	Email    string
	Password string // Raw password, hashed by the service
}

// LoginResult contains the result of a successful login.
type LoginResult struct {
	User         *User
	Subscription *Subscription
	Token        string // Signed JWT, only returned at login/registration
}
