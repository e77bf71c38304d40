package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/bi_dashboard/internal/logging"
	"github.com/Skotchmaster/bi_dashboard/internal/models"
	authsvc "github.com/Skotchmaster/bi_dashboard/internal/service/auth"
	"github.com/Skotchmaster/bi_dashboard/pkg/tokens"
)

const accountKey = "account"

type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*models.Account, error)
}

type Middleware struct {
	Auth Authenticator
}

func New(a Authenticator) *Middleware {
	return &Middleware{Auth: a}
}

type ValidatorFunc func(acc *models.Account) error

func (m *Middleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return m.requireAuthWithValidator(next, nil)
}

func (m *Middleware) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return m.requireAuthWithValidator(next, func(acc *models.Account) error {
		if !acc.IsAdmin() {
			return echo.NewHTTPError(http.StatusForbidden, "Admin access required")
		}
		return nil
	})
}

func (m *Middleware) requireAuthWithValidator(next echo.HandlerFunc, validator ValidatorFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "No token provided")
		}

		ctx := c.Request().Context()
		acc, err := m.Auth.Authenticate(ctx, token)
		if err != nil {
			switch {
			case errors.Is(err, tokens.ErrTokenExpired):
				return echo.NewHTTPError(http.StatusUnauthorized, "Token expired")
			case errors.Is(err, tokens.ErrTokenInvalid):
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
			case errors.Is(err, authsvc.ErrAccountNotFound):
				return echo.NewHTTPError(http.StatusUnauthorized, "User not found")
			default:
				logging.FromContext(ctx).Error("auth_middleware_error", "status", 500, "error", err)
				return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
			}
		}

		if validator != nil {
			if err := validator(acc); err != nil {
				return err
			}
		}

		setAccountContext(c, acc)
		return next(c)
	}
}

// AccountFromContext returns the account stored by RequireAuth/RequireAdmin.
func AccountFromContext(c echo.Context) (*models.Account, bool) {
	acc, ok := c.Get(accountKey).(*models.Account)
	return acc, ok && acc != nil
}

func setAccountContext(c echo.Context, acc *models.Account) {
	c.Set(accountKey, acc)

	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("account_id", acc.ID)
	c.SetRequest(c.Request().WithContext(logging.IntoContext(ctx, l)))
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
