package client

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pesio-ai/be-permits-portal/internal/platform/auth"
	"github.com/pesio-ai/be-permits-portal/internal/platform/errors"
)

// IdentityClient verifies Supabase-issued access tokens and implements
// auth.Verifier.
//
// The portal role is read from app_metadata.role, which only the service key
// can set. The top-level role claim ("authenticated") is the fallback.
type IdentityClient struct {
	secret   []byte
	audience string
}

// NewIdentityClient creates a verifier for HS256 tokens signed with secret.
func NewIdentityClient(secret, audience string) *IdentityClient {
	return &IdentityClient{secret: []byte(secret), audience: audience}
}

type supabaseClaims struct {
	Email       string         `json:"email"`
	Role        string         `json:"role"`
	AppMetadata map[string]any `json:"app_metadata"`
	jwt.RegisteredClaims
}

// Verify checks signature, expiry and audience, and returns the caller.
func (c *IdentityClient) Verify(ctx context.Context, token string) (*auth.UserContext, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
	}
	if c.audience != "" {
		opts = append(opts, jwt.WithAudience(c.audience))
	}

	var claims supabaseClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnauthorized, "invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New(errors.ErrCodeUnauthorized, "token has no subject")
	}

	role := claims.Role
	if r, ok := claims.AppMetadata["role"].(string); ok && r != "" {
		role = r
	}

	return &auth.UserContext{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   role,
	}, nil
}

// SignToken issues an HS256 token for uc. It is used by the CLI to mint
// operator tokens for local environments.
func (c *IdentityClient) SignToken(uc auth.UserContext, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = uc.UserID
	if c.audience != "" && len(claims.Audience) == 0 {
		claims.Audience = jwt.ClaimStrings{c.audience}
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, supabaseClaims{
		Email:            uc.Email,
		Role:             "authenticated",
		AppMetadata:      map[string]any{"role": uc.Role},
		RegisteredClaims: claims,
	})
	s, err := t.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return s, nil
}
