// Package service — authentication and profile business logic.
//
// AuthService is the business logic layer for identity. It sits between
// the HTTP handlers and the repository/auth utilities:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT), PINService (bcrypt)
//
// THREE WAYS IN:
//   - PIN: handle + PIN. First login with an unknown handle registers the
//     account; later logins verify the stored bcrypt hash.
//   - Login link: a signed-in user mints a single-use, expiring ULID token
//     and opens it on another device. Redeeming burns the token.
//   - GitHub OAuth: exchange the code, upsert by the stable GitHub ID,
//     issue a session.
//
// All three converge on AuthResult: the user plus a JWT the handler puts
// in an HttpOnly cookie.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/sakif/waveroom/internal/apperror"
	"github.com/sakif/waveroom/internal/auth"
	"github.com/sakif/waveroom/internal/idgen"
	"github.com/sakif/waveroom/internal/model"
	"github.com/sakif/waveroom/internal/repository"
)

const (
	MinPINLength = 4
	MaxPINLength = 64

	// LoginLinkTTL is how long a minted link stays redeemable.
	LoginLinkTTL = 15 * time.Minute
)

var handlePattern = regexp.MustCompile(`^[a-z0-9_]{3,30}$`)

// AuthService handles the authentication and profile business logic.
type AuthService struct {
	users  repository.UserRepository
	tokens *auth.TokenService
	pins   *auth.PINService
	logger *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	pins *auth.PINService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		pins:   pins,
		logger: logger,
	}
}

// AuthResult is returned by authentication operations. It bundles the
// user record and the issued JWT together so the caller (the HTTP
// handler) can set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// LoginPIN signs a user in with handle + PIN.
//
// An unknown handle REGISTERS: the account is created with the given PIN
// on the spot. This is deliberate — the app's identity model is "pick a
// handle and a PIN on your first visit", no email verification step.
// A known handle with a wrong PIN gets Unauthorized, never a hint about
// whether the handle exists.
func (s *AuthService) LoginPIN(ctx context.Context, handle, pin string) (*AuthResult, error) {
	handle = strings.ToLower(strings.TrimSpace(handle))
	if !handlePattern.MatchString(handle) {
		return nil, apperror.ValidationFailed("handle",
			"handle must be 3-30 characters: lowercase letters, digits, underscores")
	}
	if len(pin) < MinPINLength || len(pin) > MaxPINLength {
		return nil, apperror.ValidationFailed("pin",
			fmt.Sprintf("PIN must be between %d and %d characters", MinPINLength, MaxPINLength))
	}

	user, err := s.users.GetByHandle(ctx, handle)
	switch {
	case err == nil:
		if verr := s.pins.Verify(user.PINHash, pin); verr != nil {
			s.logger.Warn("PIN login failed", slog.String("handle", handle))
			return nil, apperror.Unauthorized("wrong handle or PIN")
		}

	case errors.Is(err, apperror.ErrNotFound):
		hash, herr := s.pins.Hash(pin)
		if herr != nil {
			return nil, fmt.Errorf("service/auth: hashing PIN: %w", herr)
		}
		user = &model.User{
			Handle:  handle,
			Name:    handle,
			PINHash: hash,
		}
		if cerr := s.users.Create(ctx, user); cerr != nil {
			return nil, fmt.Errorf("service/auth: registering user %s: %w", handle, cerr)
		}
		s.logger.Info("user registered via PIN",
			slog.String("userID", user.ID),
			slog.String("handle", handle),
		)

	default:
		return nil, fmt.Errorf("service/auth: looking up handle %s: %w", handle, err)
	}

	return s.issueSession(user)
}

// MintLoginLink creates a single-use login token for the signed-in user.
// The caller displays it as a link/QR for another device to open.
func (s *AuthService) MintLoginLink(ctx context.Context, userID string) (*model.LoginLink, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}

	link := &model.LoginLink{
		Token:     idgen.NewULID(),
		UserID:    userID,
		ExpiresAt: time.Now().Add(LoginLinkTTL),
	}
	if err := s.users.CreateLoginLink(ctx, link); err != nil {
		return nil, fmt.Errorf("service/auth: minting login link: %w", err)
	}

	s.logger.Info("login link minted", slog.String("userID", userID))
	return link, nil
}

// RedeemLoginLink signs in with a login-link token. The token must exist,
// be unexpired, and never have been used; redeeming burns it atomically,
// so of two racing redeems exactly one wins.
func (s *AuthService) RedeemLoginLink(ctx context.Context, token string) (*AuthResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperror.ValidationFailed("token", "login-link token is required")
	}

	link, err := s.users.GetLoginLink(ctx, token)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("invalid or expired login link")
		}
		return nil, err
	}
	if link.UsedAt != nil || time.Now().After(link.ExpiresAt) {
		return nil, apperror.Unauthorized("invalid or expired login link")
	}

	// MarkLinkUsed only succeeds for a link that is still unused; losing
	// the race surfaces as NotFound here.
	if err := s.users.MarkLinkUsed(ctx, token, time.Now()); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("invalid or expired login link")
		}
		return nil, err
	}

	user, err := s.users.GetByID(ctx, link.UserID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("login link redeemed", slog.String("userID", user.ID))
	return s.issueSession(user)
}

// LoginOrRegisterGitHub handles the GitHub OAuth callback: upsert by the
// stable GitHub ID, then issue a session.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	user, err := s.users.GetByGitHubID(ctx, ghUser.ID)
	switch {
	case err == nil:
		// Returning user: refresh the avatar in case it changed on GitHub.
		user.AvatarURL = ghUser.AvatarURL
		if uerr := s.users.Update(ctx, user); uerr != nil {
			return nil, fmt.Errorf("service/auth: refreshing user %s: %w", user.ID, uerr)
		}

	case errors.Is(err, apperror.ErrNotFound):
		user = &model.User{
			Handle:    githubHandle(ghUser.Login),
			Name:      ghUser.Login,
			AvatarURL: ghUser.AvatarURL,
			GitHubID:  ghUser.ID,
		}
		if cerr := s.users.Create(ctx, user); cerr != nil {
			return nil, fmt.Errorf("service/auth: registering user (githubID=%d): %w", ghUser.ID, cerr)
		}
		s.logger.Info("user registered via GitHub",
			slog.String("userID", user.ID),
			slog.String("handle", user.Handle),
		)

	default:
		return nil, fmt.Errorf("service/auth: looking up githubID %d: %w", ghUser.ID, err)
	}

	return s.issueSession(user)
}

// GetUserByID returns the user for the given internal ID. Used by the
// /api/me handler after the middleware validates the JWT.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: user ID must not be empty")
	}
	return s.users.GetByID(ctx, id)
}

// UpdateProfile changes the caller's display name, bio, and avatar.
func (s *AuthService) UpdateProfile(ctx context.Context, userID, name, bio, avatarURL string) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if name = strings.TrimSpace(name); name != "" {
		user.Name = name
	}
	user.Bio = strings.TrimSpace(bio)
	if avatarURL = strings.TrimSpace(avatarURL); avatarURL != "" {
		user.AvatarURL = avatarURL
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: updating profile %s: %w", userID, err)
	}
	return user, nil
}

// Follow makes followerID follow the user behind followeeID.
func (s *AuthService) Follow(ctx context.Context, followerID, followeeID string) error {
	if followerID == followeeID {
		return apperror.ValidationFailed("userId", "you cannot follow yourself")
	}
	if _, err := s.users.GetByID(ctx, followeeID); err != nil {
		return err
	}
	return s.users.Follow(ctx, followerID, followeeID)
}

// Unfollow removes the follow edge. Idempotent.
func (s *AuthService) Unfollow(ctx context.Context, followerID, followeeID string) error {
	return s.users.Unfollow(ctx, followerID, followeeID)
}

// ValidateToken validates a JWT string and returns the userID it encodes.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return userID, nil
}

func (s *AuthService) issueSession(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// githubHandle derives an app handle from a GitHub login. GitHub logins
// allow characters our handles don't; anything outside the alphabet maps
// to an underscore. Collisions get a numeric suffix server-side on the
// Create conflict, which the repository surfaces — rare enough that we
// let the user rename afterwards rather than loop here.
func githubHandle(login string) string {
	handle := strings.ToLower(login)
	mapped := make([]rune, 0, len(handle))
	for _, r := range handle {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			mapped = append(mapped, r)
		default:
			mapped = append(mapped, '_')
		}
	}
	for len(mapped) < 3 {
		mapped = append(mapped, '_')
	}
	if len(mapped) > 30 {
		mapped = mapped[:30]
	}
	return string(mapped)
}
