package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/bi_dashboard/internal/logging"
	authmw "github.com/Skotchmaster/bi_dashboard/internal/middleware/auth"
	"github.com/Skotchmaster/bi_dashboard/internal/models"
	authsvc "github.com/Skotchmaster/bi_dashboard/internal/service/auth"
)

type AuthHandler struct {
	Svc *authsvc.AuthService
}

type userView struct {
	ID       uint        `json:"id"`
	Email    string      `json:"email"`
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
}

func newUserView(a *models.Account) userView {
	return userView{ID: a.ID, Email: a.Email, Username: a.Username, Role: a.Role}
}

type authResponse struct {
	User         userView `json:"user"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
}

type sessionView struct {
	ID        uint      `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *AuthHandler) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.Register(ctx, authsvc.RegisterInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, authsvc.ErrValidation):
			return echo.NewHTTPError(http.StatusBadRequest, "Missing required fields")
		case errors.Is(err, authsvc.ErrEmailTaken):
			return echo.NewHTTPError(http.StatusBadRequest, "An account with this email already exists")
		case errors.Is(err, authsvc.ErrAccountExists):
			return echo.NewHTTPError(http.StatusBadRequest, "An account with this email or username already exists")
		case errors.Is(err, authsvc.ErrRegistrationClosed):
			return echo.NewHTTPError(http.StatusForbidden, "Registration is closed")
		default:
			l.Error("register_error", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to register admin")
		}
	}

	return c.JSON(http.StatusCreated, authResponse{
		User:         newUserView(res.Account),
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
	})
}

func (h *AuthHandler) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, authsvc.ErrValidation):
			return echo.NewHTTPError(http.StatusBadRequest, "Email and password are required")
		case errors.Is(err, authsvc.ErrInvalidCredentials):
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid email or password")
		case errors.Is(err, authsvc.ErrForbidden):
			return echo.NewHTTPError(http.StatusForbidden, "Admin access required")
		default:
			l.Error("login_error", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
		}
	}

	return c.JSON(http.StatusOK, authResponse{
		User:         newUserView(res.Account),
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
	})
}

func (h *AuthHandler) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("refresh_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	access, err := h.Svc.Refresh(ctx, req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, authsvc.ErrRefreshRequired):
			return echo.NewHTTPError(http.StatusUnauthorized, "Refresh token required")
		case errors.Is(err, authsvc.ErrInvalidRefreshToken):
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid refresh token")
		case errors.Is(err, authsvc.ErrAccountNotFound):
			return echo.NewHTTPError(http.StatusUnauthorized, "User not found")
		default:
			l.Error("refresh_error", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
		}
	}

	return c.JSON(http.StatusOK, echo.Map{"accessToken": access})
}

func (h *AuthHandler) LogOut(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	acc, ok := authmw.AccountFromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "No token provided")
	}

	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("logout_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if err := h.Svc.Logout(ctx, acc, req.RefreshToken); err != nil {
		l.Error("logout_failed", "status", 500, "reason", "cannot delete session", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}

	l.Info("successful_logout")
	return c.NoContent(http.StatusOK)
}

func (h *AuthHandler) Protected(c echo.Context) error {
	acc, ok := authmw.AccountFromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "No token provided")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message": "Admin access granted",
		"user":    newUserView(acc),
	})
}

func (h *AuthHandler) Me(c echo.Context) error {
	acc, ok := authmw.AccountFromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "No token provided")
	}
	return c.JSON(http.StatusOK, echo.Map{"user": newUserView(acc)})
}

func (h *AuthHandler) Sessions(c echo.Context) error {
	ctx := c.Request().Context()
	acc, ok := authmw.AccountFromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "No token provided")
	}

	list, err := h.Svc.ListSessions(ctx, acc.ID)
	if err != nil {
		logging.FromContext(ctx).Error("sessions_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}

	out := make([]sessionView, len(list))
	for i, s := range list {
		out[i] = sessionView{ID: s.ID, CreatedAt: s.CreatedAt, ExpiresAt: s.ExpiresAt}
	}
	return c.JSON(http.StatusOK, echo.Map{"sessions": out})
}

func (h *AuthHandler) RevokeSessions(c echo.Context) error {
	ctx := c.Request().Context()
	acc, ok := authmw.AccountFromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "No token provided")
	}

	n, err := h.Svc.RevokeAll(ctx, acc)
	if err != nil {
		logging.FromContext(ctx).Error("revoke_sessions_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}
	return c.JSON(http.StatusOK, echo.Map{"revoked": n})
}
