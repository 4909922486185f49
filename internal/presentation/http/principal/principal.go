// Package principal resolves the caller identity forwarded by the API gateway.
package principal

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Additional-Code/comanda/internal/presentation/http/response"
	"github.com/Additional-Code/comanda/pkg/errorbank"
)

// Gateway headers.
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderUserID   = "X-User-ID"
	HeaderRole     = "X-User-Role"
)

const contextKey = "comanda.principal"

var managerRoles = map[string]bool{
	"MANAGER": true,
	"ADMIN":   true,
	"OWNER":   true,
}

// Principal is the authenticated caller of a request.
type Principal struct {
	TenantID string
	UserID   string
	Role     string
}

// IsManager reports whether the caller may see every order of the tenant.
func (p Principal) IsManager() bool {
	return managerRoles[p.Role]
}

// Middleware rejects requests without tenant or user identity and stores the
// principal on the echo context.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Request().Header
			p := Principal{
				TenantID: strings.TrimSpace(h.Get(HeaderTenantID)),
				UserID:   strings.TrimSpace(h.Get(HeaderUserID)),
				Role:     strings.ToUpper(strings.TrimSpace(h.Get(HeaderRole))),
			}
			if p.TenantID == "" || p.UserID == "" {
				return response.New(c).WithError(errorbank.Unauthorized("tenant and user identity are required",
					errorbank.WithCode(errorbank.CodeMissingIdentity))).Build()
			}
			c.Set(contextKey, p)
			return next(c)
		}
	}
}

// From returns the principal stored by Middleware.
func From(c echo.Context) Principal {
	p, _ := c.Get(contextKey).(Principal)
	return p
}
