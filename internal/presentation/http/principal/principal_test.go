package principal_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/comanda/internal/presentation/http/principal"
	"github.com/Additional-Code/comanda/internal/presentation/http/response"
)

func serve(t *testing.T, headers map[string]string) (*httptest.ResponseRecorder, principal.Principal) {
	t.Helper()

	var seen principal.Principal
	e := echo.New()
	e.GET("/whoami", func(c echo.Context) error {
		seen = principal.From(c)
		return c.NoContent(http.StatusNoContent)
	}, principal.Middleware())

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec, seen
}

func TestMiddlewareStoresPrincipal(t *testing.T) {
	rec, p := serve(t, map[string]string{
		principal.HeaderTenantID: "t1",
		principal.HeaderUserID:   "u1",
		principal.HeaderRole:     "manager",
	})

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, principal.Principal{TenantID: "t1", UserID: "u1", Role: "MANAGER"}, p)
	assert.True(t, p.IsManager())
}

func TestManagerRoles(t *testing.T) {
	for role, want := range map[string]bool{"MANAGER": true, "ADMIN": true, "OWNER": true, "WAITER": false, "": false} {
		assert.Equal(t, want, principal.Principal{Role: role}.IsManager(), role)
	}
}

func TestMiddlewareRejectsMissingIdentity(t *testing.T) {
	for name, headers := range map[string]map[string]string{
		"no headers": {},
		"no user":    {principal.HeaderTenantID: "t1"},
		"no tenant":  {principal.HeaderUserID: "u1"},
		"blank user": {principal.HeaderTenantID: "t1", principal.HeaderUserID: "  "},
	} {
		t.Run(name, func(t *testing.T) {
			rec, _ := serve(t, headers)
			require.Equal(t, http.StatusUnauthorized, rec.Code)

			var body response.Envelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.False(t, body.Success)
			require.NotNil(t, body.Error)
			assert.Equal(t, "MISSING_IDENTITY", body.Error.Code)
			assert.Equal(t, "unauthorized", body.Error.Kind)
		})
	}
}
