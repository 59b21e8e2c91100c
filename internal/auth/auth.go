package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"n8n-mcp/backend/internal/config"

	"github.com/coreos/go-oidc"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type contextKey struct{}

// Principal is the verified caller of a request.
type Principal struct {
	Subject string
	Email   string
	Scopes  []string
}

// HasScope reports whether the principal was granted scope.
func (p *Principal) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// FromContext returns the principal stored by RequireAuth.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(*Principal)
	return p, ok
}

// Auth verifies bearer access tokens issued by an OpenID Connect provider.
// A disabled Auth lets every request through.
type Auth struct {
	verifier *oidc.IDTokenVerifier
	logger   Logger
	enabled  bool
}

// New creates an Auth from the application configuration. When auth is
// enabled it discovers the provider and prepares a token verifier.
func New(ctx context.Context, cfg *config.Config, logger Logger) (*Auth, error) {
	if !cfg.Auth.Enabled {
		return &Auth{logger: logger}, nil
	}
	if cfg.Auth.Issuer == "" {
		return nil, errors.New("auth configuration is incomplete: issuer is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.Auth.Issuer)
	if err != nil {
		return nil, err
	}

	// Access tokens often carry an API audience rather than a client id.
	verifier := provider.Verifier(&oidc.Config{
		ClientID:          cfg.Auth.Audience,
		SkipClientIDCheck: cfg.Auth.Audience == "",
	})
	return &Auth{verifier: verifier, logger: logger, enabled: true}, nil
}

// Enabled reports whether requests are verified.
func (a *Auth) Enabled() bool {
	return a.enabled
}

// RequireAuth is middleware that requires a valid bearer token and stores the
// caller's Principal in the request context.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.enabled {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		token, err := a.verifier.Verify(r.Context(), strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			if a.logger != nil {
				a.logger.Debug("bearer token rejected", "error", err)
			}
			http.Error(w, "invalid token: "+err.Error(), http.StatusUnauthorized)
			return
		}

		var claims struct {
			Email string   `json:"email"`
			Scope string   `json:"scope"`
			Scp   []string `json:"scp"`
		}
		if err := token.Claims(&claims); err != nil {
			http.Error(w, "failed to parse token claims", http.StatusUnauthorized)
			return
		}

		principal := &Principal{
			Subject: token.Subject,
			Email:   claims.Email,
			Scopes:  append(strings.Fields(claims.Scope), claims.Scp...),
		}
		ctx := context.WithValue(r.Context(), contextKey{}, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireScope is middleware that rejects verified callers lacking scope.
// It must run after RequireAuth and is a no-op when auth is disabled.
func (a *Auth) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.enabled {
				next.ServeHTTP(w, r)
				return
			}
			p, ok := FromContext(r.Context())
			if !ok || !p.HasScope(scope) {
				http.Error(w, "missing scope: "+scope, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
