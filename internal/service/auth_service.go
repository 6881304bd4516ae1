package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gotogrow/portal/internal/config"
	"gotogrow/portal/internal/ids"
	"gotogrow/portal/internal/models"
	"gotogrow/portal/internal/repository"
	"gotogrow/portal/internal/security"
	"gotogrow/portal/internal/session"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrTooManyAttempts    = errors.New("too many login attempts")
	ErrResetTokenInvalid  = errors.New("reset token invalid or expired")
	ErrCharacterUnknown   = errors.New("unknown character")
)

// Characters available to new players. The portal treats the list as static
// content; progress scenarios reference these by name.
var Characters = []string{"explorer", "strategist", "mentor", "builder"}

type AuthService struct {
	users   repository.UserStore
	markers session.MarkerStore
	cfg     *config.AppConfig
	log     zerolog.Logger
}

func NewAuthService(users repository.UserStore, markers session.MarkerStore, cfg *config.AppConfig, log zerolog.Logger) *AuthService {
	return &AuthService{
		users:   users,
		markers: markers,
		cfg:     cfg,
		log:     log,
	}
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

type AuthResult struct {
	Token string
	User  models.User
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	input.Username = strings.TrimSpace(strings.ToLower(input.Username))
	if input.Email == "" || input.Username == "" || input.Password == "" {
		return AuthResult{}, fmt.Errorf("username, email and password required")
	}

	if _, err := s.users.FindByEmail(ctx, input.Email); err == nil {
		return AuthResult{}, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return AuthResult{}, err
	}
	if _, err := s.users.FindByUsername(ctx, input.Username); err == nil {
		return AuthResult{}, ErrUsernameTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return AuthResult{}, err
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return AuthResult{}, err
	}

	user := models.User{
		ID:           ids.New(),
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: passwordHash,
		Role:         models.UserRoleUser,
		LastLoginAt:  time.Now(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		return AuthResult{}, err
	}

	return s.issue(user)
}

type LoginInput struct {
	Email    string
	Password string
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))

	attempts, err := s.markers.Incr(ctx, "login:"+input.Email, s.cfg.Security.LoginAttemptWindow)
	if err != nil {
		s.log.Warn().Err(err).Msg("login attempt counter failed")
	} else if attempts > s.cfg.Security.LoginAttemptLimit {
		return AuthResult{}, ErrTooManyAttempts
	}

	user, err := s.users.FindByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil || !ok {
		return AuthResult{}, ErrInvalidCredentials
	}

	user.LastLoginAt = time.Now()
	if err := s.users.TouchLogin(ctx, user.ID, user.LastLoginAt); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("touch login failed")
	}

	return s.issue(user)
}

func (s *AuthService) issue(user models.User) (AuthResult, error) {
	token, err := security.IssueSessionToken(s.cfg.Security.SessionSecret, user, s.cfg.Security.SessionTTL)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Token: token, User: user}, nil
}

func (s *AuthService) CurrentUser(ctx context.Context, userID string) (models.User, error) {
	return s.users.GetByID(ctx, userID)
}

// Reissue signs a fresh token for an already-authenticated user; used by the
// session refresh endpoint after re-reading the authoritative record.
func (s *AuthService) Reissue(user models.User) (AuthResult, error) {
	return s.issue(user)
}

// ForgotPassword starts a reset flow. The plaintext token is returned to the
// caller for delivery; only its hash is stored. An unknown email is not an
// error so the endpoint cannot be used to enumerate accounts.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", nil
		}
		return "", err
	}

	token, tokenHash, err := security.GenerateResetToken(32)
	if err != nil {
		return "", err
	}

	expire := time.Now().Add(s.cfg.Security.ResetTokenTTL)
	if err := s.users.SetResetToken(ctx, user.ID, tokenHash, expire); err != nil {
		return "", err
	}
	return token, nil
}

func (s *AuthService) VerifyResetToken(ctx context.Context, token string) (models.User, error) {
	user, err := s.users.FindByResetTokenHash(ctx, security.HashResetToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, ErrResetTokenInvalid
		}
		return models.User{}, err
	}
	return user, nil
}

func (s *AuthService) ResetPassword(ctx context.Context, token string, newPassword string) (AuthResult, error) {
	user, err := s.VerifyResetToken(ctx, token)
	if err != nil {
		return AuthResult{}, err
	}
	if newPassword == "" {
		return AuthResult{}, fmt.Errorf("password required")
	}

	passwordHash, err := security.HashPassword(newPassword)
	if err != nil {
		return AuthResult{}, err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, passwordHash); err != nil {
		return AuthResult{}, err
	}

	user.PasswordHash = passwordHash
	return s.issue(user)
}

// SelectCharacter assigns the persona and reissues the session token so the
// hasCharacter claim matches the stored state. The conditional write retries
// once with a fresh read; losing twice means another actor already selected.
func (s *AuthService) SelectCharacter(ctx context.Context, userID string, character string) (AuthResult, error) {
	if !validCharacter(character) {
		return AuthResult{}, ErrCharacterUnknown
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return AuthResult{}, err
	}

	err = s.users.SetCharacter(ctx, user.ID, character, user.Version)
	if errors.Is(err, repository.ErrVersionConflict) {
		if user, err = s.users.GetByID(ctx, userID); err != nil {
			return AuthResult{}, err
		}
		err = s.users.SetCharacter(ctx, user.ID, character, user.Version)
	}
	if err != nil {
		return AuthResult{}, err
	}

	user, err = s.users.GetByID(ctx, userID)
	if err != nil {
		return AuthResult{}, err
	}
	return s.issue(user)
}

func validCharacter(name string) bool {
	for _, c := range Characters {
		if c == name {
			return true
		}
	}
	return false
}
