package db

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	// TenantHeader carries the tenant for unauthenticated development
	// requests. It is ignored unless the auth layer allowed it.
	TenantHeader = "X-Tenant-ID"

	tenantKey = "tenant_id"
)

var (
	ErrTenantMissing = errors.New("tenant identifier is required")
	ErrTenantInvalid = errors.New("invalid tenant identifier")
)

// TenantMiddleware resolves the tenant for the request and stores it on the
// echo context. It never places the tenant in the request context, so
// handlers pass it to services explicitly.
func TenantMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tenantID, err := resolveTenant(c)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
			c.Set(tenantKey, tenantID)
			return next(c)
		}
	}
}

func resolveTenant(c echo.Context) (uuid.UUID, error) {
	raw := extractTenantID(c)
	if raw == "" {
		return uuid.Nil, ErrTenantMissing
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, ErrTenantInvalid
	}
	return id, nil
}

func extractTenantID(c echo.Context) string {
	if tid, ok := c.Get("jwt_tenant_id").(string); ok && strings.TrimSpace(tid) != "" {
		return strings.TrimSpace(tid)
	}
	if allowed, _ := c.Get("tenant_header_allowed").(bool); !allowed {
		return ""
	}
	return strings.TrimSpace(c.Request().Header.Get(TenantHeader))
}

// TenantFromContext returns the tenant resolved by TenantMiddleware, or
// uuid.Nil when the middleware did not run.
func TenantFromContext(c echo.Context) uuid.UUID {
	id, _ := c.Get(tenantKey).(uuid.UUID)
	return id
}
