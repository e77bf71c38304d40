package httpserver

import (
	"net"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/Skotchmaster/bi_dashboard/internal/handlers"
	authmw "github.com/Skotchmaster/bi_dashboard/internal/middleware/auth"
	ratelimitmw "github.com/Skotchmaster/bi_dashboard/internal/middleware/ratelimit"
	"github.com/Skotchmaster/bi_dashboard/internal/ratelimit"
	"github.com/Skotchmaster/bi_dashboard/pkg/db"
)

type Deps struct {
	DB           *gorm.DB
	AuthHandler  *handlers.AuthHandler
	AuditHandler *handlers.AuditHandler
	Auth         *authmw.Middleware
	LoginLimiter ratelimit.Limiter
	// TrustedProxies are the only peers whose X-Forwarded-For is honoured.
	TrustedProxies []*net.IPNet
}

// ipExtractor keys clients by socket address unless the peer is a trusted proxy.
func ipExtractor(trusted []*net.IPNet) echo.IPExtractor {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect()
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, n := range trusted {
		opts = append(opts, echo.TrustIPRange(n))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}

func Register(e *echo.Echo, d *Deps) {
	e.IPExtractor = ipExtractor(d.TrustedProxies)

	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if err := db.Ping(c.Request().Context(), d.DB); err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
		}
		return c.NoContent(http.StatusOK)
	})

	admin := e.Group("/api/admin")

	admin.POST("/register", d.AuthHandler.Register)
	admin.POST("/login", d.AuthHandler.Login, ratelimitmw.Login(d.LoginLimiter))
	admin.POST("/refresh", d.AuthHandler.Refresh)
	admin.POST("/logout", d.AuthHandler.LogOut, d.Auth.RequireAuth)
	admin.GET("/me", d.AuthHandler.Me, d.Auth.RequireAuth)

	private := admin.Group("", d.Auth.RequireAdmin)

	private.GET("/protected", d.AuthHandler.Protected)
	private.GET("/sessions", d.AuthHandler.Sessions)
	private.DELETE("/sessions", d.AuthHandler.RevokeSessions)
	private.GET("/audit", d.AuditHandler.Search)
}
