package postgres

import (
	"time"

	"github.com/google/uuid"
)

type accountModel struct {
	UID         uuid.UUID `gorm:"column:uid;type:uuid;primaryKey"`
	ID          string    `gorm:"column:id"`
	DisplayName string    `gorm:"column:display_name"`
	AvatarURL   string    `gorm:"column:avatar_url"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (accountModel) TableName() string { return "accounts" }

type bindingModel struct {
	UID          uuid.UUID `gorm:"column:uid;type:uuid;primaryKey"`
	AccountUID   uuid.UUID `gorm:"column:account_uid"`
	ProviderType string    `gorm:"column:provider_type"`
	ProviderID   string    `gorm:"column:provider_id"`
	PasswordHash string    `gorm:"column:password_hash"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

func (bindingModel) TableName() string { return "provider_bindings" }

type regionModel struct {
	UID         uuid.UUID `gorm:"column:uid;type:uuid;primaryKey"`
	DisplayName string    `gorm:"column:display_name"`
	Domain      string    `gorm:"column:domain"`
	JWTSecret   string    `gorm:"column:jwt_secret"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (regionModel) TableName() string { return "regions" }

type regionIdentityModel struct {
	AccountUID uuid.UUID `gorm:"column:account_uid;type:uuid;primaryKey"`
	RegionUID  uuid.UUID `gorm:"column:region_uid;type:uuid;primaryKey"`
	UserCrUID  uuid.UUID `gorm:"column:user_cr_uid;type:uuid"`
	UserCrName string    `gorm:"column:user_cr_name"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (regionIdentityModel) TableName() string { return "region_identities" }

type workspaceModel struct {
	UID         uuid.UUID `gorm:"column:uid;type:uuid;primaryKey"`
	ID          string    `gorm:"column:id"`
	RegionUID   uuid.UUID `gorm:"column:region_uid"`
	DisplayName string    `gorm:"column:display_name"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (workspaceModel) TableName() string { return "workspaces" }

type membershipModel struct {
	AccountUID   uuid.UUID `gorm:"column:account_uid;type:uuid;primaryKey"`
	WorkspaceUID uuid.UUID `gorm:"column:workspace_uid;type:uuid;primaryKey"`
	WorkspaceID  string    `gorm:"column:workspace_id"`
	RegionUID    uuid.UUID `gorm:"column:region_uid"`
	Role         string    `gorm:"column:role"`
	Status       string    `gorm:"column:status"`
	IsPrivate    bool      `gorm:"column:is_private"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

func (membershipModel) TableName() string { return "workspace_memberships" }

type identityOutboxModel struct {
	OutboxID       uuid.UUID  `gorm:"column:outbox_id;type:uuid;primaryKey"`
	EventType      string     `gorm:"column:event_type"`
	PartitionKey   string     `gorm:"column:partition_key"`
	Payload        string     `gorm:"column:payload;type:jsonb"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	PublishedAt    *time.Time `gorm:"column:published_at"`
	RetryCount     int        `gorm:"column:retry_count"`
	LastError      *string    `gorm:"column:last_error"`
	LastErrorAt    *time.Time `gorm:"column:last_error_at"`
	ClaimToken     *string    `gorm:"column:claim_token"`
	ClaimUntil     *time.Time `gorm:"column:claim_until"`
	DeadLetteredAt *time.Time `gorm:"column:dead_lettered_at"`
}

func (identityOutboxModel) TableName() string { return "identity_outbox" }
