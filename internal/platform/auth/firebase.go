package auth

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/closetline/api/internal/platform/config"
)

const firebaseRoleClaim = "role"

// idTokenVerifier is the subset of the Firebase Admin auth client used here.
type idTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// FirebaseVerifier accepts Firebase ID tokens as an alternative credential.
type FirebaseVerifier struct {
	client idTokenVerifier
}

// NewFirebaseVerifier initialises the Firebase Admin SDK for token verification.
func NewFirebaseVerifier(ctx context.Context, cfg config.FirebaseConfig) (*FirebaseVerifier, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firebase project id is required")
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase auth client: %w", err)
	}
	return &FirebaseVerifier{client: authClient}, nil
}

// Verify implements TokenVerifier.
func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (Claims, error) {
	if v == nil || v.client == nil {
		return Claims{}, errors.New("firebase verifier not initialised")
	}
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		if firebaseauth.IsIDTokenExpired(err) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims := Claims{Subject: token.UID}
	if email, ok := token.Claims["email"].(string); ok {
		claims.Email = email
	}
	switch raw := token.Claims[firebaseRoleClaim].(type) {
	case string:
		claims.Roles = []string{raw}
	case []any:
		for _, item := range raw {
			if role, ok := item.(string); ok {
				claims.Roles = append(claims.Roles, role)
			}
		}
	}
	return claims, nil
}
