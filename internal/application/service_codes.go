package application

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/nimbusworks/console-identity-service/internal/domain"
	"github.com/nimbusworks/console-identity-service/internal/ports"
)

// backstopFactor stretches the configured validity window into the
// cache-level TTL on a live code key. Longer than the validity window so
// expiry stays an application decision, short enough that abandoned codes
// cannot pile up.
const backstopFactor = 6

// SendCode issues a verification code for one (identifier, purpose) pair and
// queues it for delivery. At most one live send per cooldown window.
func (s *Service) SendCode(ctx context.Context, req SendCodeRequest) (SendCodeResponse, error) {
	purpose, channel, err := domain.ParsePurpose(req.Purpose)
	if err != nil {
		return SendCodeResponse{}, err
	}
	if !s.cfg.providerEnabled(channel) {
		return SendCodeResponse{}, fmt.Errorf("%w: %s", domain.ErrProviderDisabled, channel)
	}
	identifier, err := domain.NormalizeIdentifier(channel, req.Identifier)
	if err != nil {
		return SendCodeResponse{}, err
	}

	cooldown := s.cfg.codeCooldown()
	reserved, err := s.codes.ReserveCooldown(ctx, identifier, purpose, cooldown)
	if err != nil {
		return SendCodeResponse{}, fmt.Errorf("reserve cooldown: %w", err)
	}
	if !reserved {
		return SendCodeResponse{}, fmt.Errorf("%w: code already sent, retry later", domain.ErrRateLimited)
	}

	code, err := domain.GenerateCode()
	if err != nil {
		return SendCodeResponse{}, err
	}
	now := s.nowFn()
	// Overwrites any previous live code for the pair. Only the latest send
	// is ever checkable.
	if err := s.codes.Put(ctx, identifier, purpose, domain.VerificationCode{Code: code, IssuedAt: now}, backstopFactor*s.cfg.codeTTL()); err != nil {
		return SendCodeResponse{}, fmt.Errorf("store code: %w", err)
	}

	payload, _ := json.Marshal(map[string]any{
		"channel":   channel,
		"recipient": identifier,
		"code":      code,
		"purpose":   purpose,
		"issued_at": now,
	})
	if err := s.outbox.Enqueue(ctx, ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    "code.delivery",
		PartitionKey: identifier,
		Payload:      payload,
		OccurredAt:   now,
	}); err != nil {
		return SendCodeResponse{}, fmt.Errorf("enqueue delivery: %w", err)
	}

	return SendCodeResponse{CooldownSeconds: int64(cooldown.Seconds())}, nil
}

// consumeCode checks a submitted code and burns it. The store performs
// compare and delete as one atomic operation, so a code reissued while a
// check is in flight can neither be spent by the old value nor destroyed
// by it.
func (s *Service) consumeCode(ctx context.Context, identifier string, purpose domain.Purpose, submitted string) error {
	if submitted == "" {
		return fmt.Errorf("%w: code is required", domain.ErrInvalidInput)
	}
	live, consumed, err := s.codes.Consume(ctx, identifier, purpose, submitted)
	if err != nil {
		return fmt.Errorf("consume code: %w", err)
	}
	if live == nil {
		return domain.ErrVerificationFailed
	}
	if live.Expired(s.nowFn(), s.cfg.codeTTL()) {
		return domain.ErrCodeExpired
	}
	if !consumed {
		return domain.ErrVerificationFailed
	}
	return nil
}

// VerifyCode checks and burns a verification code without signing anyone in.
// Internal callers such as the alerting service use it to confirm codes they
// asked this service to deliver, for purposes they own end to end.
func (s *Service) VerifyCode(ctx context.Context, req VerifyCodeRequest) error {
	purpose, channel, err := domain.ParsePurpose(req.Purpose)
	if err != nil {
		return err
	}
	identifier, err := domain.NormalizeIdentifier(channel, req.Identifier)
	if err != nil {
		return err
	}
	return s.consumeCode(ctx, identifier, purpose, req.Code)
}
