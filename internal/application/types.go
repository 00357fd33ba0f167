package application

import (
	"time"

	"github.com/google/uuid"

	"github.com/nimbusworks/console-identity-service/internal/domain"
)

type Config struct {
	AuthTokenTTL          time.Duration
	RegionTokenTTL        time.Duration
	CodeTTL               time.Duration
	CodeCooldown          time.Duration
	PasswordSignupEnabled bool
	// EnabledProviders switches providers on per deployment. A nil map
	// enables everything, which is the development default.
	EnabledProviders map[domain.ProviderType]bool
}

func (c Config) providerEnabled(p domain.ProviderType) bool {
	if c.EnabledProviders == nil {
		return true
	}
	return c.EnabledProviders[p]
}

func (c Config) codeTTL() time.Duration {
	if c.CodeTTL <= 0 {
		return domain.CodeTTL
	}
	return c.CodeTTL
}

func (c Config) codeCooldown() time.Duration {
	if c.CodeCooldown <= 0 {
		return domain.CodeCooldown
	}
	return c.CodeCooldown
}

type SendCodeRequest struct {
	Identifier string `json:"identifier"`
	Purpose    string `json:"purpose"`
}

type SendCodeResponse struct {
	CooldownSeconds int64 `json:"cooldown_seconds"`
}

type VerifyCodeRequest struct {
	Identifier string `json:"identifier"`
	Purpose    string `json:"purpose"`
	Code       string `json:"code"`
}

type SignInCodeRequest struct {
	Provider   string `json:"provider"`
	Identifier string `json:"identifier"`
	Code       string `json:"code"`
}

type SignInPasswordRequest struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

type SignInOAuthRequest struct {
	Provider          string `json:"provider"`
	AuthorizationCode string `json:"authorization_code"`
}

type SignInResponse struct {
	Token      string    `json:"token"`
	ExpiresIn  int64     `json:"expires_in"`
	AccountUID uuid.UUID `json:"account_uid"`
	AccountID  string    `json:"account_id"`
	NewAccount bool      `json:"new_account"`
}

type ProviderItem struct {
	Provider   string    `json:"provider"`
	ProviderID string    `json:"provider_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type BindRequest struct {
	Identifier        string `json:"identifier,omitempty"`
	Code              string `json:"code,omitempty"`
	AuthorizationCode string `json:"authorization_code,omitempty"`
	Password          string `json:"password,omitempty"`
}

type UnbindRequest struct {
	Code              string `json:"code,omitempty"`
	AuthorizationCode string `json:"authorization_code,omitempty"`
	Password          string `json:"password,omitempty"`
}

type ChangeVerifyOldRequest struct {
	Code string `json:"code"`
}

type ChangeVerifyOldResponse struct {
	ProofID   string `json:"proof_id"`
	ExpiresIn int64  `json:"expires_in"`
}

type ChangeVerifyNewRequest struct {
	ProofID    string `json:"proof_id"`
	Identifier string `json:"identifier"`
	Code       string `json:"code"`
}

type UpdateProfileRequest struct {
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type RegionTokenRequest struct {
	RegionUID   string `json:"region_uid"`
	WorkspaceID string `json:"workspace_id,omitempty"`
}

type RegionTokenResponse struct {
	Token        string `json:"token"`
	ExpiresIn    int64  `json:"expires_in"`
	RegionDomain string `json:"region_domain"`
	UserCrName   string `json:"user_cr_name"`
	WorkspaceID  string `json:"workspace_id"`
}

type WorkspaceItem struct {
	WorkspaceID string `json:"workspace_id"`
	Role        string `json:"role"`
	Status      string `json:"status"`
	IsPrivate   bool   `json:"is_private"`
}

type RegionItem struct {
	UID         uuid.UUID `json:"uid"`
	DisplayName string    `json:"display_name"`
	Domain      string    `json:"domain"`
}

type AccountResponse struct {
	UID         uuid.UUID `json:"uid"`
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toProviderItem(b domain.ProviderBinding) ProviderItem {
	return ProviderItem{
		Provider:   string(b.ProviderType),
		ProviderID: b.ProviderID,
		CreatedAt:  b.CreatedAt,
	}
}

func toAccountResponse(a domain.GlobalAccount) AccountResponse {
	return AccountResponse{
		UID:         a.UID,
		ID:          a.ID,
		DisplayName: a.DisplayName,
		AvatarURL:   a.AvatarURL,
		CreatedAt:   a.CreatedAt,
	}
}
