package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nimbusworks/console-identity-service/internal/ports"
)

// JWTCodec signs both token kinds with HS256. The auth secret is fixed at
// construction; region tokens take the target region's secret per call since
// every region verifies with its own key.
type JWTCodec struct {
	authSecret []byte
}

func NewJWTCodec(authSecret string) (*JWTCodec, error) {
	if len(authSecret) < 32 {
		return nil, errors.New("auth jwt secret must be at least 32 bytes")
	}
	return &JWTCodec{authSecret: []byte(authSecret)}, nil
}

type authJWTClaims struct {
	AccountUID string `json:"account_uid"`
	AccountID  string `json:"account_id"`
	jwt.RegisteredClaims
}

type regionJWTClaims struct {
	AccountUID   string `json:"account_uid"`
	AccountID    string `json:"account_id"`
	RegionUID    string `json:"region_uid"`
	UserCrUID    string `json:"user_cr_uid"`
	UserCrName   string `json:"user_cr_name"`
	WorkspaceUID string `json:"workspace_uid"`
	WorkspaceID  string `json:"workspace_id"`
	jwt.RegisteredClaims
}

func (c *JWTCodec) SignAuth(claims ports.AuthClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, authJWTClaims{
		AccountUID: claims.AccountUID.String(),
		AccountID:  claims.AccountID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	})
	return token.SignedString(c.authSecret)
}

func (c *JWTCodec) ParseAuth(raw string) (ports.AuthClaims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &authJWTClaims{}, func(token *jwt.Token) (any, error) {
		return c.authSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(30*time.Second))
	if err != nil {
		return ports.AuthClaims{}, err
	}
	claims, ok := parsed.Claims.(*authJWTClaims)
	if !ok || !parsed.Valid {
		return ports.AuthClaims{}, errors.New("invalid token claims")
	}
	accountUID, err := uuid.Parse(claims.AccountUID)
	if err != nil {
		return ports.AuthClaims{}, fmt.Errorf("parse account_uid: %w", err)
	}
	return ports.AuthClaims{
		AccountUID: accountUID,
		AccountID:  claims.AccountID,
		IssuedAt:   claims.IssuedAt.Time.UTC(),
		ExpiresAt:  claims.ExpiresAt.Time.UTC(),
	}, nil
}

func (c *JWTCodec) SignRegion(secret string, claims ports.RegionClaims) (string, error) {
	if secret == "" {
		return "", errors.New("region jwt secret is empty")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, regionJWTClaims{
		AccountUID:   claims.AccountUID.String(),
		AccountID:    claims.AccountID,
		RegionUID:    claims.RegionUID.String(),
		UserCrUID:    claims.UserCrUID.String(),
		UserCrName:   claims.UserCrName,
		WorkspaceUID: claims.WorkspaceUID.String(),
		WorkspaceID:  claims.WorkspaceID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	})
	return token.SignedString([]byte(secret))
}

func (c *JWTCodec) ParseRegion(secret, raw string) (ports.RegionClaims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &regionJWTClaims{}, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(30*time.Second))
	if err != nil {
		return ports.RegionClaims{}, err
	}
	claims, ok := parsed.Claims.(*regionJWTClaims)
	if !ok || !parsed.Valid {
		return ports.RegionClaims{}, errors.New("invalid token claims")
	}

	out := ports.RegionClaims{
		AccountID:   claims.AccountID,
		UserCrName:  claims.UserCrName,
		WorkspaceID: claims.WorkspaceID,
		IssuedAt:    claims.IssuedAt.Time.UTC(),
		ExpiresAt:   claims.ExpiresAt.Time.UTC(),
	}
	for _, f := range []struct {
		raw  string
		dst  *uuid.UUID
		name string
	}{
		{claims.AccountUID, &out.AccountUID, "account_uid"},
		{claims.RegionUID, &out.RegionUID, "region_uid"},
		{claims.UserCrUID, &out.UserCrUID, "user_cr_uid"},
		{claims.WorkspaceUID, &out.WorkspaceUID, "workspace_uid"},
	} {
		parsed, err := uuid.Parse(f.raw)
		if err != nil {
			return ports.RegionClaims{}, fmt.Errorf("parse %s: %w", f.name, err)
		}
		*f.dst = parsed
	}
	return out, nil
}
