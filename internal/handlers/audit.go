package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/bi_dashboard/internal/audit"
	"github.com/Skotchmaster/bi_dashboard/internal/logging"
)

type AuditSearcher interface {
	Search(ctx context.Context, q string, page, size int) (*audit.Page, error)
}

type AuditHandler struct {
	Store AuditSearcher
}

func (h *AuditHandler) Search(c echo.Context) error {
	if h.Store == nil {
		return echo.NewHTTPError(http.StatusNotFound, "Audit trail is disabled")
	}

	page, err := intParam(c, "page")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "page must be a number")
	}
	size, err := intParam(c, "size")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "size must be a number")
	}

	if page > audit.MaxResultWindow {
		return echo.NewHTTPError(http.StatusBadRequest, "page out of range")
	}
	if from, limit := audit.Calculate(page, size); from+limit > audit.MaxResultWindow {
		return echo.NewHTTPError(http.StatusBadRequest, "page out of range")
	}

	ctx := c.Request().Context()
	res, err := h.Store.Search(ctx, c.QueryParam("q"), page, size)
	if err != nil {
		logging.FromContext(ctx).Error("audit_search_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}
	return c.JSON(http.StatusOK, res)
}

func intParam(c echo.Context, name string) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
