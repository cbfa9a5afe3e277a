package api

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v4"

	"datapilot/internal/core"
)

// JWTVerifier verifies HS256 bearer tokens issued by the identity provider
// and extracts the identity claims the rest of the service consumes.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

type providerClaims struct {
	Email   string `json:"email"`
	OrgID   string `json:"org_id"`
	OrgRole string `json:"org_role"`
	OrgName string `json:"org_name"`
	jwt.RegisteredClaims
}

func (v *JWTVerifier) Verify(token string) (*core.Claims, error) {
	var claims providerClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims.Subject == "" {
		return nil, errors.New("invalid token: missing user ID")
	}

	role := "member"
	if claims.OrgRole != "" {
		role = claims.OrgRole
	}

	out := &core.Claims{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   role,
	}
	if claims.OrgID != "" {
		orgID := claims.OrgID
		out.OrganizationID = &orgID
	}
	return out, nil
}
