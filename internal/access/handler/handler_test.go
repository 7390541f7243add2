package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medorder/internal/access/directory"
	"medorder/internal/access/directory/store/memory"
	"medorder/internal/access/middleware"
	"medorder/internal/access/models"
	"medorder/internal/access/navigation"
	"medorder/internal/access/policy"
	"medorder/pkg/platform/middleware/auth"
	"medorder/pkg/testutil"
)

func newAccessRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver, err := directory.New(memory.NewInMemoryStore(map[string]models.Role{
		"user_admin":  models.RoleAdmin,
		"user_seller": models.RoleSeller,
	}), directory.WithLogger(logger))
	require.NoError(t, err)

	pol := policy.Default()
	r := chi.NewRouter()
	r.Use(auth.RequirePrincipal(auth.DefaultPrincipalHeader, logger))
	r.Use(middleware.ResolvePrincipal(resolver, logger, nil))
	r.Use(middleware.Enforce(pol, logger, nil))
	New(pol, navigation.New(pol, navigation.DefaultItems()), logger).Register(r)
	return r
}

func get(t *testing.T, router http.Handler, principalID, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.NewRequest(t, http.MethodGet, path)
	if principalID != "" {
		req.Header.Set(auth.DefaultPrincipalHeader, principalID)
	}
	return testutil.DoRequest(router, req)
}

func TestMe(t *testing.T) {
	router := newAccessRouter(t)

	t.Run("seller", func(t *testing.T) {
		rr := get(t, router, "user_seller", "/api/me")
		testutil.AssertStatus(t, rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[meResponse](t, rr)
		assert.Equal(t, meResponse{PrincipalID: "user_seller", Role: "seller", RoleDisplayName: "Seller"}, *resp)
	})

	t.Run("principal without record is a buyer", func(t *testing.T) {
		rr := get(t, router, "user_new", "/api/me")
		testutil.AssertStatus(t, rr, http.StatusOK)
		testutil.AssertJSONContains(t, rr, "role", "buyer")
	})

	t.Run("anonymous request", func(t *testing.T) {
		rr := get(t, router, "", "/api/me")
		testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "identity_missing")
	})
}

func TestNavigation(t *testing.T) {
	router := newAccessRouter(t)

	rr := get(t, router, "user_seller", "/api/navigation")
	testutil.AssertStatus(t, rr, http.StatusOK)
	resp := testutil.UnmarshalResponse[navigationResponse](t, rr)
	assert.Equal(t, "seller", resp.Role)
	require.Len(t, resp.Items, 7)
	assert.Equal(t, "/products/manage", resp.Items[3].Href)
}

func TestAccess(t *testing.T) {
	router := newAccessRouter(t)

	t.Run("denied decision is reported, not enforced", func(t *testing.T) {
		rr := get(t, router, "user_seller", "/api/access?path=/orders/pending")
		testutil.AssertStatus(t, rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[accessResponse](t, rr)
		assert.True(t, resp.Restricted)
		assert.False(t, resp.Permitted)
		assert.Equal(t, []string{"admin"}, resp.RequiredRoles)
	})

	t.Run("admin override", func(t *testing.T) {
		rr := get(t, router, "user_admin", "/api/access?path=/inventory/3")
		resp := testutil.UnmarshalResponse[accessResponse](t, rr)
		assert.True(t, resp.Permitted)
	})

	t.Run("unrestricted path", func(t *testing.T) {
		rr := get(t, router, "user_new", "/api/access?path=/dashboard")
		resp := testutil.UnmarshalResponse[accessResponse](t, rr)
		assert.False(t, resp.Restricted)
		assert.True(t, resp.Permitted)
		assert.Empty(t, resp.RequiredRoles)
	})

	t.Run("relative path is rejected", func(t *testing.T) {
		rr := get(t, router, "user_admin", "/api/access?path=orders")
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
	})
}
