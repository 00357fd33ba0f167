package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nimbusworks/console-identity-service/internal/domain"
)

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// AuthClaims is the payload of the long-lived console auth token.
type AuthClaims struct {
	AccountUID uuid.UUID `json:"account_uid"`
	AccountID  string    `json:"account_id"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// RegionClaims is the payload of a region-scoped access token. It carries
// the region identity and workspace context so the region API needs no
// callback to the console database.
type RegionClaims struct {
	AccountUID   uuid.UUID `json:"account_uid"`
	AccountID    string    `json:"account_id"`
	RegionUID    uuid.UUID `json:"region_uid"`
	UserCrUID    uuid.UUID `json:"user_cr_uid"`
	UserCrName   string    `json:"user_cr_name"`
	WorkspaceUID uuid.UUID `json:"workspace_uid"`
	WorkspaceID  string    `json:"workspace_id"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// TokenCodec signs and validates both token kinds. Auth tokens use the
// service's own secret; region tokens are signed per call with the target
// region's secret from the registry.
type TokenCodec interface {
	SignAuth(claims AuthClaims) (string, error)
	ParseAuth(token string) (AuthClaims, error)
	SignRegion(secret string, claims RegionClaims) (string, error)
	ParseRegion(secret, token string) (RegionClaims, error)
}

// OAuthIdentity is the identity asserted by an upstream OAuth provider
// after a successful code exchange.
type OAuthIdentity struct {
	Provider    domain.ProviderType
	ProviderID  string
	DisplayName string
	AvatarURL   string
	Email       string
}

// OAuthExchanger swaps an authorization code for the upstream identity.
type OAuthExchanger interface {
	Exchange(ctx context.Context, provider domain.ProviderType, code string) (OAuthIdentity, error)
}
