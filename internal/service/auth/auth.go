package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Skotchmaster/bi_dashboard/internal/config"
	"github.com/Skotchmaster/bi_dashboard/internal/events"
	"github.com/Skotchmaster/bi_dashboard/internal/hash"
	"github.com/Skotchmaster/bi_dashboard/internal/logging"
	"github.com/Skotchmaster/bi_dashboard/internal/models"
	"github.com/Skotchmaster/bi_dashboard/internal/repo"
	"github.com/Skotchmaster/bi_dashboard/pkg/tokens"
)

type AccountStore interface {
	CreateAccount(ctx context.Context, a *models.Account) error
	AccountByEmail(ctx context.Context, email string) (*models.Account, error)
	AccountByID(ctx context.Context, id uint) (*models.Account, error)
	CountAccounts(ctx context.Context) (int64, error)
	CreateFirstAccount(ctx context.Context, a *models.Account) error
}

type SessionStore interface {
	CreateSession(ctx context.Context, accountID uint, token string, expiresAt time.Time) (*models.Session, error)
	FindValidSession(ctx context.Context, token string) (*models.Session, error)
	DeleteAccountSession(ctx context.Context, accountID uint, token string) error
	SessionsByAccount(ctx context.Context, accountID uint) ([]models.Session, error)
	DeleteSessionsByAccount(ctx context.Context, accountID uint) (int64, error)
}

type AuthService struct {
	Accounts AccountStore
	Sessions SessionStore
	Tokens   *tokens.Issuer
	Events   events.Publisher
	// RegistrationMode is config.RegistrationOpen or config.RegistrationBootstrap.
	RegistrationMode string
}

type RegisterInput struct {
	Email    string
	Username string
	Password string
}

type Result struct {
	Account      *models.Account
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
}

// dummyDigest keeps the unknown-email path as slow as a real password check.
var dummyDigest = sync.OnceValue(func() string {
	d, _ := hash.HashPassword("not-a-real-password")
	return d
})

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Result, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	in.Email = strings.TrimSpace(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	if in.Email == "" || in.Username == "" || in.Password == "" {
		return nil, ErrValidation
	}

	if s.RegistrationMode == config.RegistrationBootstrap {
		n, err := s.Accounts.CountAccounts(ctx)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			l.Warn("register_error", "status", 403, "reason", "registration closed")
			return nil, ErrRegistrationClosed
		}
	}

	if _, err := s.Accounts.AccountByEmail(ctx, in.Email); err == nil {
		l.Warn("register_error", "status", 400, "reason", "email already registered")
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	digest, err := hash.HashPassword(in.Password)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, err
	}

	acc := &models.Account{
		Email:        in.Email,
		Username:     in.Username,
		PasswordHash: digest,
		Role:         models.RoleAdmin,
	}
	if err := s.createAccount(ctx, acc); err != nil {
		if errors.Is(err, repo.ErrNotEmpty) {
			l.Warn("register_error", "status", 403, "reason", "registration closed")
			return nil, ErrRegistrationClosed
		}
		if errors.Is(err, repo.ErrAccountExists) {
			l.Warn("register_error", "status", 400, "reason", "email or username already registered")
			return nil, ErrAccountExists
		}
		return nil, err
	}

	res, err := s.issue(ctx, acc)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.TypeRegistered, acc.ID, acc.Email)
	l.Info("register_successful", "account_id", acc.ID)
	return res, nil
}

// createAccount re-checks the bootstrap condition inside the insert; the
// CountAccounts check above only short-circuits the password hash.
func (s *AuthService) createAccount(ctx context.Context, acc *models.Account) error {
	if s.RegistrationMode == config.RegistrationBootstrap {
		return s.Accounts.CreateFirstAccount(ctx, acc)
	}
	return s.Accounts.CreateAccount(ctx, acc)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*Result, error) {
	email = strings.TrimSpace(email)
	l := logging.FromContext(ctx).With("svc", "auth.login")

	if email == "" || password == "" {
		return nil, ErrValidation
	}

	acc, err := s.Accounts.AccountByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
		hash.CheckPassword(dummyDigest(), password)
		s.publish(ctx, events.TypeLoginFailed, 0, email)
		l.Warn("login_failed", "status", 401, "reason", "unknown email")
		return nil, ErrInvalidCredentials
	}

	if !hash.CheckPassword(acc.PasswordHash, password) {
		s.publish(ctx, events.TypeLoginFailed, acc.ID, email)
		l.Warn("login_failed", "status", 401, "reason", "wrong password", "account_id", acc.ID)
		return nil, ErrInvalidCredentials
	}

	if !acc.IsAdmin() {
		l.Warn("login_failed", "status", 403, "reason", "not an admin", "account_id", acc.ID)
		return nil, ErrForbidden
	}

	res, err := s.issue(ctx, acc)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.TypeLoggedIn, acc.ID, acc.Email)
	l.Info("login_successful", "account_id", acc.ID)
	return res, nil
}

// Refresh returns a new access token. The refresh token is not rotated and
// must pass both the session lookup and signature verification.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	if refreshToken == "" {
		return "", ErrRefreshRequired
	}

	sess, err := s.Sessions.FindValidSession(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("refresh_failed", "status", 401, "reason", "no live session")
			return "", ErrInvalidRefreshToken
		}
		return "", err
	}

	claims, err := s.Tokens.VerifyRefresh(refreshToken)
	if err != nil {
		l.Warn("refresh_failed", "status", 401, "reason", "bad refresh token", "error", err)
		return "", fmt.Errorf("%w: %v", ErrInvalidRefreshToken, err)
	}
	if claims.UserID != sess.AccountID {
		l.Warn("refresh_failed", "status", 401, "reason", "session owner mismatch")
		return "", ErrInvalidRefreshToken
	}

	acc, err := s.Accounts.AccountByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", ErrAccountNotFound
		}
		return "", err
	}

	pair, err := s.Tokens.IssuePair(acc.ID, string(acc.Role))
	if err != nil {
		return "", err
	}

	s.publish(ctx, events.TypeTokenRefreshed, acc.ID, acc.Email)
	return pair.AccessToken, nil
}

// Logout deletes the caller's session behind refreshToken. Unknown, empty or
// foreign tokens are a no-op.
func (s *AuthService) Logout(ctx context.Context, acc *models.Account, refreshToken string) error {
	if refreshToken != "" {
		if err := s.Sessions.DeleteAccountSession(ctx, acc.ID, refreshToken); err != nil {
			return err
		}
	}
	s.publish(ctx, events.TypeLoggedOut, acc.ID, acc.Email)
	return nil
}

// Authenticate resolves an access token to its account. Token errors are
// tokens.ErrTokenExpired or tokens.ErrTokenInvalid.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*models.Account, error) {
	claims, err := s.Tokens.VerifyAccess(accessToken)
	if err != nil {
		return nil, err
	}

	acc, err := s.Accounts.AccountByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return acc, nil
}

// IssueAndPersistRefresh mints a token pair, keeps only the refresh token and
// stores it as a session expiring with the token.
func (s *AuthService) IssueAndPersistRefresh(ctx context.Context, accountID uint, role models.Role) (string, error) {
	pair, err := s.issuePair(ctx, accountID, role)
	if err != nil {
		return "", err
	}
	return pair.RefreshToken, nil
}

func (s *AuthService) ListSessions(ctx context.Context, accountID uint) ([]models.Session, error) {
	return s.Sessions.SessionsByAccount(ctx, accountID)
}

func (s *AuthService) RevokeAll(ctx context.Context, acc *models.Account) (int64, error) {
	n, err := s.Sessions.DeleteSessionsByAccount(ctx, acc.ID)
	if err != nil {
		return 0, err
	}
	s.publish(ctx, events.TypeSessionsRevoked, acc.ID, acc.Email)
	return n, nil
}

func (s *AuthService) issue(ctx context.Context, acc *models.Account) (*Result, error) {
	pair, err := s.issuePair(ctx, acc.ID, acc.Role)
	if err != nil {
		return nil, err
	}
	return &Result{
		Account:      acc,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		AccessExp:    pair.AccessExp,
		RefreshExp:   pair.RefreshExp,
	}, nil
}

func (s *AuthService) issuePair(ctx context.Context, accountID uint, role models.Role) (tokens.Pair, error) {
	pair, err := s.Tokens.IssuePair(accountID, string(role))
	if err != nil {
		return tokens.Pair{}, err
	}
	if _, err := s.Sessions.CreateSession(ctx, accountID, pair.RefreshToken, pair.RefreshExp); err != nil {
		return tokens.Pair{}, err
	}
	return pair, nil
}

func (s *AuthService) publish(ctx context.Context, typ string, accountID uint, email string) {
	if s.Events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	e := events.Event{Type: typ, AccountID: accountID, Email: email, OccurredAt: s.Tokens.Now().UTC()}
	if err := s.Events.Publish(ctx, e); err != nil {
		logging.FromContext(ctx).Error("event_publish_failed", "type", typ, "error", err)
	}
}
