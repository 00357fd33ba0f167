package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nimbusworks/console-identity-service/internal/domain"
)

// CodeStore keeps live verification codes keyed by (identifier, purpose).
// Consume is the only read path for checks so compare and delete happen as
// one storage operation and a reissued code can never be double-spent.
type CodeStore interface {
	// ReserveCooldown atomically claims the resend slot for an identifier.
	// It returns false when a previous send is still inside the cooldown.
	ReserveCooldown(ctx context.Context, identifier string, purpose domain.Purpose, ttl time.Duration) (bool, error)
	Put(ctx context.Context, identifier string, purpose domain.Purpose, code domain.VerificationCode, ttl time.Duration) error
	// Consume compares the live code against submitted and removes it only
	// on a match, atomically. It returns the live payload as it was at
	// decision time (nil when no code is live) and whether the match won.
	Consume(ctx context.Context, identifier string, purpose domain.Purpose, submitted string) (*domain.VerificationCode, bool, error)
}

// ChangeProof records that the holder verified ownership of the old
// identifier during a change-binding flow. It carries the binding context so
// the second phase needs no extra lookups.
type ChangeProof struct {
	AccountUID    uuid.UUID           `json:"account_uid"`
	ProviderType  domain.ProviderType `json:"provider_type"`
	OldProviderID string              `json:"old_provider_id"`
	CreatedAt     time.Time           `json:"created_at"`
}

// ChangeProofStore persists short-lived change-binding proofs.
type ChangeProofStore interface {
	Put(ctx context.Context, proofID string, proof ChangeProof, ttl time.Duration) error
	Get(ctx context.Context, proofID string) (*ChangeProof, error)
	Delete(ctx context.Context, proofID string) error
}
