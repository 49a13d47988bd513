package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/closetline/api/internal/platform/httpx"
	"github.com/closetline/api/internal/platform/requestctx"
)

const defaultVerifyTimeout = 5 * time.Second

// TokenVerifier turns a bearer token into claims.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

// TokenVerifierFunc adapts plain functions to TokenVerifier.
type TokenVerifierFunc func(ctx context.Context, token string) (Claims, error)

// Verify calls f.
func (f TokenVerifierFunc) Verify(ctx context.Context, token string) (Claims, error) {
	return f(ctx, token)
}

// ChainVerifier tries each verifier in order and returns the first success.
// When every verifier rejects the token, an expiry error wins over a generic invalid error.
type ChainVerifier []TokenVerifier

// Verify implements TokenVerifier.
func (c ChainVerifier) Verify(ctx context.Context, token string) (Claims, error) {
	err := ErrTokenInvalid
	for _, verifier := range c {
		if verifier == nil {
			continue
		}
		claims, verr := verifier.Verify(ctx, token)
		if verr == nil {
			return claims, nil
		}
		if errors.Is(verr, ErrTokenExpired) {
			err = verr
		} else if !errors.Is(err, ErrTokenExpired) {
			err = verr
		}
	}
	return Claims{}, err
}

// Authenticator wires token verification into HTTP middleware.
type Authenticator struct {
	verifier     TokenVerifier
	fallbackRole string
	timeout      time.Duration
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithFallbackRole sets the role assumed when a token carries none.
func WithFallbackRole(role string) Option {
	return func(a *Authenticator) {
		if role = normaliseRole(role); role != "" {
			a.fallbackRole = role
		}
	}
}

// WithVerificationTimeout sets the timeout used when verifying tokens.
func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAuthenticator constructs an Authenticator for middleware composition.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier:     verifier,
		fallbackRole: RoleUser,
		timeout:      defaultVerifyTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireAuth verifies the Authorization bearer token. When allowedRoles is non-empty the identity
// must hold at least one of them; a valid token without the role is rejected with 403.
func (a *Authenticator) RequireAuth(allowedRoles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, role := range allowedRoles {
		if role = normaliseRole(role); role != "" {
			allowed[role] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(ctx, w, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}
			if a == nil || a.verifier == nil {
				respondAuthError(ctx, w, http.StatusUnauthorized, "unauthenticated", "authorization service unavailable")
				return
			}

			verifyCtx, cancel := context.WithTimeout(ctx, a.timeout)
			claims, err := a.verifier.Verify(verifyCtx, tokenStr)
			cancel()
			if err != nil {
				if errors.Is(err, ErrTokenExpired) {
					respondAuthError(ctx, w, http.StatusUnauthorized, "token_expired", "access token expired")
					return
				}
				respondAuthError(ctx, w, http.StatusUnauthorized, "invalid_token", "access token invalid")
				return
			}

			identity := &Identity{
				UID:   claims.Subject,
				Email: claims.Email,
				Roles: compactRoles(claims.Roles),
			}
			if len(identity.Roles) == 0 {
				identity.Roles = []string{a.fallbackRole}
			}

			if len(allowed) > 0 && !hasAllowedRole(identity.Roles, allowed) {
				respondAuthError(ctx, w, http.StatusForbidden, "insufficient_role", "identity does not have required role")
				return
			}

			ctx = WithIdentity(ctx, identity)
			ctx = requestctx.WithUserID(ctx, identity.UID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func hasAllowedRole(identityRoles []string, allowed map[string]struct{}) bool {
	for _, role := range identityRoles {
		if _, ok := allowed[normaliseRole(role)]; ok {
			return true
		}
	}
	return false
}

func compactRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	seen := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		role = normaliseRole(role)
		if role == "" {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func respondAuthError(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}
