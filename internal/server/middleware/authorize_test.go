package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuthThenAuthorize_AttachesIdentityForDownstreamHandlers(t *testing.T) {
	var sawIdentity bool
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawIdentity = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	chain := Auth("secret")(Authorize()(final))

	req := httptest.NewRequest(http.MethodGet, "/api/services", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()

	chain.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, sawIdentity)
}

func TestAuthorize_RejectsWithoutValidCredentials(t *testing.T) {
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	chain := Auth("secret")(Authorize()(final))

	req := httptest.NewRequest(http.MethodGet, "/api/services", nil)
	rec := httptest.NewRecorder()

	chain.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_UnauthorizedBodyIsFixedRegardlessOfReason(t *testing.T) {
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	chain := Auth("secret")(final)

	missing := httptest.NewRequest(http.MethodGet, "/api/services", nil)
	recMissing := httptest.NewRecorder()
	chain.ServeHTTP(recMissing, missing)

	invalid := httptest.NewRequest(http.MethodGet, "/api/services", nil)
	invalid.Header.Set("X-API-Key", "wrong")
	recInvalid := httptest.NewRecorder()
	chain.ServeHTTP(recInvalid, invalid)

	require.Equal(t, http.StatusUnauthorized, recMissing.Code)
	require.JSONEq(t, `{"error":"Authentication required"}`, recMissing.Body.String())
	require.Equal(t, http.StatusUnauthorized, recInvalid.Code)
	require.JSONEq(t, `{"error":"Authentication required"}`, recInvalid.Body.String())
}

func TestLeader_RejectsWhenNotLeader(t *testing.T) {
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	chain := Leader(func() bool { return false })(final)

	req := httptest.NewRequest(http.MethodPost, "/api/services/engine/restart", nil)
	rec := httptest.NewRecorder()

	chain.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}
