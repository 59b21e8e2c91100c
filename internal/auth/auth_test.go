package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"n8n-mcp/backend/internal/config"

	"github.com/coreos/go-oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NoOpLogger for testing
type NoOpLogger struct{}

func (l *NoOpLogger) Debug(msg string, args ...any) {}
func (l *NoOpLogger) Info(msg string, args ...any)  {}
func (l *NoOpLogger) Error(msg string, args ...any) {}

// MockKeySet satisfies oidc.KeySet to bypass signature verification
type MockKeySet struct{}

func (m *MockKeySet) VerifySignature(ctx context.Context, jwtToken string) ([]byte, error) {
	parts := strings.Split(jwtToken, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed jwt")
	}
	return base64.RawURLEncoding.DecodeString(parts[1])
}

const testIssuer = "https://test-issuer.com"

func fakeToken(t *testing.T, extra map[string]interface{}) string {
	t.Helper()
	claims := map[string]interface{}{
		"iss": testIssuer,
		"aud": "api://n8n-mcp",
		"sub": "test-user",
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Add(-1 * time.Minute).Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}
	headerBytes, err := json.Marshal(map[string]interface{}{"alg": "RS256", "typ": "JWT", "kid": "test-key"})
	require.NoError(t, err)
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(headerBytes) + "." +
		base64.RawURLEncoding.EncodeToString(payload) + "." +
		base64.RawURLEncoding.EncodeToString([]byte("fakesignature"))
}

func testAuth() *Auth {
	verifier := oidc.NewVerifier(testIssuer, &MockKeySet{}, &oidc.Config{
		ClientID: "api://n8n-mcp",
	})
	return &Auth{verifier: verifier, logger: &NoOpLogger{}, enabled: true}
}

func TestRequireAuth_BearerToken_StoresPrincipal(t *testing.T) {
	a := testAuth()
	token := fakeToken(t, map[string]interface{}{"email": "ops@acme.com", "scope": "openid n8n:read"})

	req := httptest.NewRequest(http.MethodGet, "/workflows", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := FromContext(r.Context())
		require.True(t, ok, "principal should be in context")
		assert.Equal(t, "test-user", p.Subject)
		assert.Equal(t, "ops@acme.com", p.Email)
		assert.True(t, p.HasScope(ScopeRead))
		assert.False(t, p.HasScope(ScopeWrite))
		w.WriteHeader(http.StatusOK)
	})

	a.RequireAuth(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Logf("Response Body: %s", rec.Body.String())
	}
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAuth_MissingToken(t *testing.T) {
	a := testAuth()
	req := httptest.NewRequest(http.MethodPost, "/mcp/tools/call", nil)
	rec := httptest.NewRecorder()

	a.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_WrongAudience(t *testing.T) {
	a := testAuth()
	token := fakeToken(t, map[string]interface{}{"aud": "someone-else"})

	req := httptest.NewRequest(http.MethodGet, "/workflows", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	a.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireScope(t *testing.T) {
	a := testAuth()
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	chain := a.RequireAuth(a.RequireScope(ScopeWrite)(ok))

	t.Run("granted via scp claim", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/mcp/tools/call", nil)
		req.Header.Set("Authorization", "Bearer "+fakeToken(t, map[string]interface{}{"scp": []string{ScopeWrite}}))
		rec := httptest.NewRecorder()
		chain.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing scope", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/mcp/tools/call", nil)
		req.Header.Set("Authorization", "Bearer "+fakeToken(t, map[string]interface{}{"scope": ScopeRead}))
		rec := httptest.NewRecorder()
		chain.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestNew_DisabledPassesThrough(t *testing.T) {
	a, err := New(context.Background(), &config.Config{}, &NoOpLogger{})
	require.NoError(t, err)
	assert.False(t, a.Enabled())

	req := httptest.NewRequest(http.MethodGet, "/workflows", nil)
	rec := httptest.NewRecorder()
	chain := a.RequireAuth(a.RequireScope(ScopeWrite)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))
	chain.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestNew_EnabledRequiresIssuer(t *testing.T) {
	cfg := &config.Config{}
	cfg.Auth.Enabled = true

	_, err := New(context.Background(), cfg, &NoOpLogger{})
	assert.Error(t, err)
}
