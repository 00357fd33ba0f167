package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nimbusworks/console-identity-service/internal/domain"
)

// AccountRepository defines persistence for global accounts.
// The transactional create method exists so a sign-up writes the account and
// its first binding as one unit, never an account with zero bindings.
type AccountRepository interface {
	CreateWithBindingTx(ctx context.Context, account domain.GlobalAccount, binding domain.ProviderBinding) (domain.GlobalAccount, error)
	GetByUID(ctx context.Context, accountUID uuid.UUID) (domain.GlobalAccount, error)
	UpdateProfile(ctx context.Context, accountUID uuid.UUID, displayName, avatarURL string, updatedAt time.Time) error
}

// BindingRepository manages provider bindings. Create relies on the store's
// unique (provider_type, provider_id) constraint as the final arbiter of
// concurrent binds; a constraint hit surfaces as domain.ErrConflict.
type BindingRepository interface {
	Create(ctx context.Context, binding domain.ProviderBinding) error
	FindByProvider(ctx context.Context, providerType domain.ProviderType, providerID string) (domain.ProviderBinding, error)
	FindByAccountAndType(ctx context.Context, accountUID uuid.UUID, providerType domain.ProviderType) (domain.ProviderBinding, error)
	ListByAccount(ctx context.Context, accountUID uuid.UUID) ([]domain.ProviderBinding, error)
	CountByAccount(ctx context.Context, accountUID uuid.UUID) (int64, error)
	Delete(ctx context.Context, accountUID uuid.UUID, providerType domain.ProviderType, providerID string) (bool, error)
	// Replace removes the old binding and creates the new one in a single
	// transaction. A failure on either side leaves the old binding intact.
	Replace(ctx context.Context, accountUID uuid.UUID, providerType domain.ProviderType, oldProviderID string, newBinding domain.ProviderBinding) error
	UpdatePasswordHash(ctx context.Context, accountUID uuid.UUID, passwordHash string) error
}

// RegionRepository reads the region registry.
type RegionRepository interface {
	GetByUID(ctx context.Context, regionUID uuid.UUID) (domain.Region, error)
	List(ctx context.Context) ([]domain.Region, error)
}

// RegionIdentityRepository provisions per-region identities. EnsureTx is
// insert-or-reread: a lost uniqueness race rereads the winner's row, so two
// concurrent first exchanges converge on one identity.
type RegionIdentityRepository interface {
	EnsureTx(ctx context.Context, identity domain.RegionIdentity, privateWorkspace domain.Workspace, membership domain.WorkspaceMembership) (domain.RegionIdentity, error)
	Get(ctx context.Context, accountUID, regionUID uuid.UUID) (domain.RegionIdentity, error)
}

// WorkspaceRepository reads workspace membership for token exchange.
type WorkspaceRepository interface {
	GetMembership(ctx context.Context, accountUID, regionUID uuid.UUID, workspaceID string) (domain.WorkspaceMembership, error)
	ListMemberships(ctx context.Context, accountUID, regionUID uuid.UUID) ([]domain.WorkspaceMembership, error)
}

// OutboxEvent is the write-side delivery request prior to storage.
type OutboxEvent struct {
	EventID      uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	OccurredAt   time.Time
}

// OutboxRecord represents durable outbox state, including retry metadata.
type OutboxRecord struct {
	OutboxID       uuid.UUID
	EventType      string
	PartitionKey   string
	Payload        []byte
	RetryCount     int
	LastError      *string
	CreatedAt      time.Time
	PublishedAt    *time.Time
	LastErrorAt    *time.Time
	ClaimToken     *string
	ClaimUntil     *time.Time
	DeadLetteredAt *time.Time
}

// OutboxRepository controls the claim-and-retry workflow for code delivery
// and account lifecycle events. Claims are leased so a crashed worker's batch
// becomes claimable again after ClaimUntil.
type OutboxRepository interface {
	Enqueue(ctx context.Context, event OutboxEvent) error
	ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
	MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
}
