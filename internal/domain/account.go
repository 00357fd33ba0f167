package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProviderType names an identity provider a binding can come from.
type ProviderType string

const (
	ProviderPassword ProviderType = "PASSWORD"
	ProviderPhone    ProviderType = "PHONE"
	ProviderEmail    ProviderType = "EMAIL"
	ProviderGithub   ProviderType = "GITHUB"
	ProviderGoogle   ProviderType = "GOOGLE"
	ProviderWechat   ProviderType = "WECHAT"
	ProviderOAuth2   ProviderType = "OAUTH2"
)

// ParseProviderType validates a raw provider name case-insensitively.
func ParseProviderType(raw string) (ProviderType, bool) {
	p := ProviderType(normalizeUpper(raw))
	switch p {
	case ProviderPassword, ProviderPhone, ProviderEmail,
		ProviderGithub, ProviderGoogle, ProviderWechat, ProviderOAuth2:
		return p, true
	}
	return "", false
}

// IsOAuth reports whether the provider identity is asserted by an external
// OAuth exchange rather than a verification code or password.
func (p ProviderType) IsOAuth() bool {
	switch p {
	case ProviderGithub, ProviderGoogle, ProviderWechat, ProviderOAuth2:
		return true
	}
	return false
}

// GlobalAccount is the tenant-wide identity every binding hangs off.
// ID is the human-facing short handle, UID the stable primary key.
type GlobalAccount struct {
	UID         uuid.UUID
	ID          string
	DisplayName string
	AvatarURL   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProviderBinding links one external identity to one account. The pair
// (ProviderType, ProviderID) is unique across the whole store.
type ProviderBinding struct {
	UID          uuid.UUID
	AccountUID   uuid.UUID
	ProviderType ProviderType
	ProviderID   string
	PasswordHash string
	CreatedAt    time.Time
}

// Region is a federated cluster that accepts exchanged tokens. Each region
// keeps its own signing secret.
type Region struct {
	UID         uuid.UUID
	DisplayName string
	Domain      string
	JWTSecret   string
	CreatedAt   time.Time
}

// RegionIdentity is the per-region materialization of a global account,
// created lazily on first exchange into the region.
type RegionIdentity struct {
	AccountUID uuid.UUID
	RegionUID  uuid.UUID
	UserCrUID  uuid.UUID
	UserCrName string
	CreatedAt  time.Time
}

// JoinStatus tracks how far a user is into a workspace.
type JoinStatus string

const (
	JoinStatusInWorkspace    JoinStatus = "IN_WORKSPACE"
	JoinStatusInvited        JoinStatus = "INVITED"
	JoinStatusNotInWorkspace JoinStatus = "NOT_IN_WORKSPACE"
)

// WorkspaceRole is the member's role inside one workspace.
type WorkspaceRole string

const (
	RoleOwner     WorkspaceRole = "OWNER"
	RoleDeveloper WorkspaceRole = "DEVELOPER"
)

// Workspace is a named tenancy unit inside a region.
type Workspace struct {
	UID         uuid.UUID
	ID          string
	RegionUID   uuid.UUID
	DisplayName string
	CreatedAt   time.Time
}

// WorkspaceMembership joins an account to a workspace. IsPrivate marks the
// personal workspace created alongside the region identity.
type WorkspaceMembership struct {
	AccountUID   uuid.UUID
	WorkspaceUID uuid.UUID
	WorkspaceID  string
	RegionUID    uuid.UUID
	Role         WorkspaceRole
	Status       JoinStatus
	IsPrivate    bool
	CreatedAt    time.Time
}
