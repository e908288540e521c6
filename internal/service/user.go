// Package service contains the business logic layer.
package service

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/tickwise/tickwise/internal/auth"
	"github.com/tickwise/tickwise/internal/domain"
	"github.com/tickwise/tickwise/internal/repository"
)

// Store is the persistence surface the user service needs.
type Store interface {
	CreateUser(ctx context.Context, username, email, passwordHash string) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	UserExists(ctx context.Context, username, email string) (bool, error)
	CreateSubscription(ctx context.Context, userID uuid.UUID, tier domain.SubscriptionTier) (*domain.Subscription, error)
	GetSubscriptionByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error)
	UpdateSubscriptionTier(ctx context.Context, userID uuid.UUID, tier domain.SubscriptionTier, expiresAt *time.Time) (*domain.Subscription, error)
}

// UserService defines account and subscription operations.
type UserService interface {
	// Register creates a user with a free-tier subscription and returns a
	// signed token.
	Register(ctx context.Context, params domain.RegisterParams) (*domain.LoginResult, error)

	// Login verifies credentials and returns a signed token.
	Login(ctx context.Context, username, password string) (*domain.LoginResult, error)

	// GetWithSubscription loads a user and their active subscription.
	GetWithSubscription(ctx context.Context, userID uuid.UUID) (*domain.User, *domain.Subscription, error)

	// UpgradeTier moves the user's subscription to a strictly higher tier.
	// Backward or lateral moves are rejected before any mutation.
	UpgradeTier(ctx context.Context, userID uuid.UUID, target domain.SubscriptionTier) (*domain.Subscription, error)
}

type userService struct {
	store  Store
	tokens *auth.TokenIssuer
	logger *slog.Logger
}

// NewUserService creates a UserService.
func NewUserService(store Store, tokens *auth.TokenIssuer, logger *slog.Logger) UserService {
	return &userService{
		store:  store,
		tokens: tokens,
		logger: logger,
	}
}

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,50}$`)
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func (s *userService) Register(ctx context.Context, params domain.RegisterParams) (*domain.LoginResult, error) {
	const op = "user.register"

	if !usernamePattern.MatchString(params.Username) {
		return nil, domain.Invalid(op, "Username must be 3-50 characters of letters, digits, or underscores")
	}
	if !emailPattern.MatchString(params.Email) {
		return nil, domain.Invalid(op, "Invalid email address")
	}
	if len(params.Password) < 8 {
		return nil, domain.Invalid(op, "Password must be at least 8 characters")
	}

	exists, err := s.store.UserExists(ctx, params.Username, params.Email)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to check existing users")
	}
	if exists {
		return nil, domain.Conflict(op, "Username or email already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to hash password")
	}

	user, err := s.store.CreateUser(ctx, params.Username, params.Email, string(hash))
	if err != nil {
		return nil, domain.Internal(err, op, "failed to create user")
	}

	sub, err := s.store.CreateSubscription(ctx, user.ID, domain.TierFree)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to create subscription")
	}

	token, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "user_id", user.ID, "username", user.Username)

	return &domain.LoginResult{User: user, Subscription: sub, Token: token}, nil
}

func (s *userService) Login(ctx context.Context, username, password string) (*domain.LoginResult, error) {
	const op = "user.login"

	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.Unauthorized(op, "Invalid username or password")
		}
		return nil, domain.Internal(err, op, "failed to load user")
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, domain.Unauthorized(op, "Invalid username or password")
	}

	sub, err := s.store.GetSubscriptionByUserID(ctx, user.ID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load subscription")
	}

	token, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", "user_id", user.ID, "username", user.Username)

	return &domain.LoginResult{User: user, Subscription: sub, Token: token}, nil
}

func (s *userService) GetWithSubscription(ctx context.Context, userID uuid.UUID) (*domain.User, *domain.Subscription, error) {
	const op = "user.get_with_subscription"

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, domain.Unauthorized(op, "User not found or inactive")
		}
		return nil, nil, domain.Internal(err, op, "failed to load user")
	}

	sub, err := s.store.GetSubscriptionByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, domain.NotFound(op, "User subscription not found", "SUBSCRIPTION_NOT_FOUND")
		}
		return nil, nil, domain.Internal(err, op, "failed to load subscription")
	}

	return user, sub, nil
}

func (s *userService) UpgradeTier(ctx context.Context, userID uuid.UUID, target domain.SubscriptionTier) (*domain.Subscription, error) {
	const op = "user.upgrade_tier"

	sub, err := s.store.GetSubscriptionByUserID(ctx, userID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load subscription")
	}

	if !sub.Tier.CanUpgradeTo(target) {
		return nil, domain.InvalidTierChange(op, sub.Tier, target)
	}

	// Premium buys a fixed year of access.
	var expiresAt *time.Time
	if target == domain.TierPremium {
		t := time.Now().UTC().AddDate(1, 0, 0)
		expiresAt = &t
	}

	updated, err := s.store.UpdateSubscriptionTier(ctx, userID, target, expiresAt)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to update subscription")
	}

	s.logger.Info("subscription upgraded",
		"user_id", userID,
		"from", sub.Tier,
		"to", target,
	)
	return updated, nil
}
