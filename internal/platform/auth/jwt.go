package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	// ErrTokenExpired signals that the presented access token has expired.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid signals that the presented access token failed verification.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

type accessClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// JWTIssuer signs and verifies HS256 access tokens carrying sub, email and role claims.
type JWTIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  func() time.Time
}

// JWTOption customises a JWTIssuer.
type JWTOption func(*JWTIssuer)

// WithJWTClock overrides the clock used for iat/exp and validation.
func WithJWTClock(clock func() time.Time) JWTOption {
	return func(i *JWTIssuer) {
		if clock != nil {
			i.clock = clock
		}
	}
}

// NewJWTIssuer constructs an issuer. The secret must not be empty.
func NewJWTIssuer(secret, issuer string, ttl time.Duration, opts ...JWTOption) (*JWTIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: jwt ttl must be positive")
	}
	i := &JWTIssuer{
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
		ttl:    ttl,
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}
	return i, nil
}

// Issue signs a token for subject with a single role.
func (i *JWTIssuer) Issue(subject, email, role string) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("auth: token subject is required")
	}
	role = normaliseRole(role)
	if role == "" {
		role = RoleUser
	}
	now := i.clock().UTC()
	claims := accessClaims{
		Email: strings.ToLower(strings.TrimSpace(email)),
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Verify implements TokenVerifier. Time based claims are checked against the issuer's clock.
func (i *JWTIssuer) Verify(_ context.Context, raw string) (Claims, error) {
	var claims accessClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if _, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	now := i.clock()
	if !claims.VerifyExpiresAt(now, true) {
		return Claims{}, ErrTokenExpired
	}
	if !claims.VerifyIssuedAt(now.Add(time.Minute), false) {
		return Claims{}, fmt.Errorf("%w: issued in the future", ErrTokenInvalid)
	}
	if i.issuer != "" && !claims.VerifyIssuer(i.issuer, true) {
		return Claims{}, fmt.Errorf("%w: unexpected issuer", ErrTokenInvalid)
	}
	if claims.Subject == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return Claims{
		Subject: claims.Subject,
		Email:   claims.Email,
		Roles:   []string{normaliseRole(claims.Role)},
	}, nil
}
