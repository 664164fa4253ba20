// Package service holds the feature modules: booklists, challenges, reviews,
// follows, group chat, profiles, the book catalog and authentication.
//
// Every read goes through the shared query.Client under a fixed key, and every
// successful write invalidates the keys it can affect. Services never see
// HTTP; the handlers never see a repository.
//
//	Handler (HTTP) → Service (rules, keys) → query.Client → repository / catalog
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/readrealm/internal/apperror"
	"github.com/sakif/readrealm/internal/auth"
	"github.com/sakif/readrealm/internal/model"
	"github.com/sakif/readrealm/internal/repository"
	"github.com/sakif/readrealm/internal/session"
)

// Messages surfaced verbatim by the sign-in and sign-up forms.
const (
	msgInvalidCredentials = "Invalid login credentials"
	msgAlreadyRegistered  = "User already registered"
)

var _ session.Authenticator = (*AuthService)(nil)

// AuthService is the identity backend of a session.Provider.
type AuthService struct {
	users     repository.UserRepository
	profiles  repository.ProfileRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	profiles repository.ProfileRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		profiles:  profiles,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the user with the token the handler stores in a cookie.
type AuthResult struct {
	User  *model.User
	Token string
}

// SignUp creates an email/password account together with its profile row and
// returns a signed-in identity.
func (s *AuthService) SignUp(ctx context.Context, creds session.Credentials) (session.Identity, string, error) {
	email := normalizeEmail(creds.Email)
	if email == "" {
		return session.Identity{}, "", apperror.Required("email")
	}
	if err := auth.CheckStrength(creds.Password); err != nil {
		return session.Identity{}, "", apperror.ValidationFailed("password", err.Error())
	}

	hash, err := s.passwords.Hash(creds.Password)
	if err != nil {
		return session.Identity{}, "", fmt.Errorf("service/auth: %w", err)
	}

	user := &model.User{Email: email, PasswordHash: hash, Login: usernameFromEmail(email)}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return session.Identity{}, "", &apperror.AppError{
				Err:     apperror.ErrConflict,
				Message: msgAlreadyRegistered,
				Field:   "email",
			}
		}
		return session.Identity{}, "", fmt.Errorf("service/auth: creating user: %w", err)
	}

	if err := s.ensureProfile(ctx, user); err != nil {
		return session.Identity{}, "", err
	}

	s.logger.Info("user signed up", slog.String("user_id", user.ID))
	return s.issue(user)
}

// SignIn checks an email/password pair. Unknown email and wrong password fail
// with the same message.
func (s *AuthService) SignIn(ctx context.Context, creds session.Credentials) (session.Identity, string, error) {
	email := normalizeEmail(creds.Email)
	if email == "" || creds.Password == "" {
		return session.Identity{}, "", apperror.Unauthorized(msgInvalidCredentials)
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return session.Identity{}, "", apperror.Unauthorized(msgInvalidCredentials)
		}
		return session.Identity{}, "", fmt.Errorf("service/auth: looking up %s: %w", email, err)
	}
	if user.PasswordHash == "" {
		// GitHub-only account
		return session.Identity{}, "", apperror.Unauthorized(msgInvalidCredentials)
	}

	if err := s.passwords.Verify(user.PasswordHash, creds.Password); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			return session.Identity{}, "", apperror.Unauthorized(msgInvalidCredentials)
		}
		return session.Identity{}, "", fmt.Errorf("service/auth: %w", err)
	}

	return s.issue(user)
}

// Restore turns a token cookie back into an identity.
func (s *AuthService) Restore(ctx context.Context, token string) (session.Identity, error) {
	userID, err := s.ValidateToken(token)
	if err != nil {
		return session.Identity{}, err
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return session.Identity{}, fmt.Errorf("service/auth: restoring user %s: %w", userID, err)
	}
	return s.identity(user), nil
}

// LoginOrRegisterGitHub handles the OAuth callback: upsert the user on their
// GitHub id, create the profile on first login and issue a token.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	user := &model.User{
		GitHubID:  gh.ID,
		Login:     gh.Login,
		Email:     normalizeEmail(gh.Email),
		AvatarURL: gh.AvatarURL,
	}
	if err := s.users.UpsertGitHub(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (githubID=%d): %w", gh.ID, err)
	}
	if err := s.ensureProfile(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("user_id", user.ID),
		slog.String("login", user.Login),
	)

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// Identity is the session identity for user.
func (s *AuthService) Identity(user *model.User) session.Identity {
	return s.identity(user)
}

func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.Required("user id")
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// ValidateToken returns the user id a token was issued for.
func (s *AuthService) ValidateToken(token string) (string, error) {
	userID, err := s.tokens.Validate(token)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return userID, nil
}

// ensureProfile creates the profile row a new account needs. A profile that
// already exists is left alone.
func (s *AuthService) ensureProfile(ctx context.Context, user *model.User) error {
	exists, err := s.profiles.ProfileExists(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("service/auth: probing profile %s: %w", user.ID, err)
	}
	if exists {
		return nil
	}

	username := user.Login
	if username == "" {
		username = usernameFromEmail(user.Email)
	}
	p := &model.Profile{ID: user.ID, Username: username, AvatarURL: user.AvatarURL, Theme: model.DefaultTheme}
	if err := s.profiles.InsertProfile(ctx, p); err != nil && !errors.Is(err, apperror.ErrConflict) {
		return fmt.Errorf("service/auth: creating profile %s: %w", user.ID, err)
	}
	return nil
}

func (s *AuthService) issue(user *model.User) (session.Identity, string, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return session.Identity{}, "", fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return s.identity(user), token, nil
}

func (s *AuthService) identity(user *model.User) session.Identity {
	username := user.Login
	if username == "" {
		username = usernameFromEmail(user.Email)
	}
	return session.Identity{UserID: user.ID, Email: user.Email, Username: username}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// usernameFromEmail is the default username: the local part of the address.
func usernameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}
