package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/snippetcms/internal/apperror"
	"github.com/sakif/snippetcms/internal/auth"
	"github.com/sakif/snippetcms/internal/model"
	"github.com/sakif/snippetcms/internal/repository"
)

// AuthService handles sign-in for the admin.
//
//	AuthHandler (HTTP) → AuthService → UserRepository (DB)
//	                   ↘ TokenService (JWT), PasswordService (bcrypt)
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the signed-in user with their session token.
type AuthResult struct {
	User  *model.User
	Token string
}

var errBadCredentials = apperror.Unauthorized("invalid username or password")

// Login checks a username/password pair. Unknown users, wrong passwords and
// inactive accounts all produce the same apperror.ErrUnauthorized.
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, errBadCredentials
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, errBadCredentials
		}
		return nil, fmt.Errorf("service/auth: loading user %q: %w", username, err)
	}

	if user.PasswordHash == "" || !user.IsActive {
		return nil, errBadCredentials
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			s.logger.Warn("failed admin login", slog.String("username", username))
			return nil, errBadCredentials
		}
		return nil, fmt.Errorf("service/auth: verifying password for %q: %w", username, err)
	}

	return s.issue(user, "password")
}

// LoginOrRegisterGitHub upserts the GitHub user and issues a session.
// First-time GitHub users get an account without admin rights; a superuser
// has to grant staff status and permissions before they can edit snippets.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	githubID := ghUser.ID
	user := &model.User{
		Username:  ghUser.Login,
		GitHubID:  &githubID,
		Email:     ghUser.Email,
		AvatarURL: ghUser.AvatarURL,
	}

	err := s.users.UpsertGitHubUser(ctx, user)
	if errors.Is(err, apperror.ErrConflict) {
		// The login is taken by a password account; keep both apart.
		user.Username = ghUser.Login + "-" + strconv.FormatInt(ghUser.ID, 10)
		err = s.users.UpsertGitHubUser(ctx, user)
	}
	if err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (githubID=%d): %w", ghUser.ID, err)
	}

	return s.issue(user, "github")
}

// GetUserByID returns the user for the given internal ID.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("id", "user ID is required")
	}
	return s.users.GetUserByID(ctx, id)
}

// EnsureSuperuser creates an active staff superuser named username unless
// an account with that name already exists.
func (s *AuthService) EnsureSuperuser(ctx context.Context, username, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperror.ValidationFailed("username", "username is required")
	}

	existing, err := s.users.GetUserByUsername(ctx, username)
	if err == nil {
		s.logger.Debug("superuser already exists", slog.String("username", username))
		return existing, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: loading user %q: %w", username, err)
	}

	if password == "" {
		return nil, apperror.ValidationFailed("password", "password is required")
	}
	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, apperror.ValidationFailed("password", err.Error())
	}

	user := &model.User{
		Username:     username,
		PasswordHash: hash,
		IsActive:     true,
		IsStaff:      true,
		IsSuperuser:  true,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating superuser %q: %w", username, err)
	}

	s.logger.Info("superuser created", slog.String("userID", user.ID), slog.String("username", username))
	return user, nil
}

// GrantAccess makes username a staff member holding exactly codenames.
// Unknown codenames are rejected.
func (s *AuthService) GrantAccess(ctx context.Context, username string, codenames []string) (*model.User, error) {
	known := model.AllPermissions()
	for _, c := range codenames {
		if !slices.Contains(known, c) {
			return nil, apperror.ValidationFailed("permissions", fmt.Sprintf("unknown permission %q", c))
		}
	}

	user, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	if err := s.users.SetStaff(ctx, user.ID, true); err != nil {
		return nil, fmt.Errorf("service/auth: granting staff to %q: %w", username, err)
	}
	if err := s.users.SetPermissions(ctx, user.ID, codenames); err != nil {
		return nil, fmt.Errorf("service/auth: setting permissions for %q: %w", username, err)
	}

	s.logger.Info("admin access granted",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
		slog.Any("permissions", codenames),
	)
	return s.users.GetUserByID(ctx, user.ID)
}

// ValidateToken returns the user ID encoded in a session token.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return userID, nil
}

// SessionTTL is the lifetime of issued session tokens.
func (s *AuthService) SessionTTL() time.Duration {
	return s.tokens.TTL()
}

func (s *AuthService) issue(user *model.User, method string) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}

	s.logger.Info("user authenticated",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
		slog.String("method", method),
	)

	return &AuthResult{User: user, Token: token}, nil
}
