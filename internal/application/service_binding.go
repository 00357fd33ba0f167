package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nimbusworks/console-identity-service/internal/domain"
	"github.com/nimbusworks/console-identity-service/internal/ports"
)

// BindProvider attaches a new provider identity to the caller's account.
// The order is fixed: caller identity, parameter validation, possession
// proof, then conflict check and commit. Possession runs before the conflict
// check so a probe without a valid code learns nothing about other accounts.
func (s *Service) BindProvider(ctx context.Context, accountUID uuid.UUID, providerRaw string, req BindRequest) error {
	account, err := s.accounts.GetByUID(ctx, accountUID)
	if err != nil {
		return err
	}

	provider, ok := domain.ParseProviderType(providerRaw)
	if !ok {
		return fmt.Errorf("%w: unknown provider %q", domain.ErrInvalidInput, providerRaw)
	}
	if !s.cfg.providerEnabled(provider) {
		return fmt.Errorf("%w: %s", domain.ErrProviderDisabled, provider)
	}

	var providerID, passwordHash string
	switch {
	case provider == domain.ProviderPhone || provider == domain.ProviderEmail:
		identifier, err := domain.NormalizeIdentifier(provider, req.Identifier)
		if err != nil {
			return err
		}
		if err := s.consumeCode(ctx, identifier, bindPurpose(provider), req.Code); err != nil {
			return err
		}
		providerID = identifier
	case provider.IsOAuth():
		identity, err := s.oauth.Exchange(ctx, provider, req.AuthorizationCode)
		if err != nil {
			return err
		}
		providerID = identity.ProviderID
	case provider == domain.ProviderPassword:
		if err := domain.ValidatePassword(req.Password); err != nil {
			return err
		}
		passwordHash, err = s.hasher.Hash(req.Password)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		providerID = account.ID
	}

	if _, err := s.bindings.FindByAccountAndType(ctx, accountUID, provider); err == nil {
		return domain.ErrAlreadyBound
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	err = s.bindings.Create(ctx, domain.ProviderBinding{
		UID:          uuid.New(),
		AccountUID:   accountUID,
		ProviderType: provider,
		ProviderID:   providerID,
		PasswordHash: passwordHash,
		CreatedAt:    s.nowFn(),
	})
	if errors.Is(err, domain.ErrConflict) {
		return s.classifyBindConflict(ctx, accountUID, provider, providerID)
	}
	return err
}

// classifyBindConflict turns a commit-time uniqueness hit into the caller's
// view of it. Runs only after possession succeeded, so telling the caller
// the identity belongs elsewhere leaks nothing they could not already prove.
func (s *Service) classifyBindConflict(ctx context.Context, accountUID uuid.UUID, provider domain.ProviderType, providerID string) error {
	existing, err := s.bindings.FindByProvider(ctx, provider, providerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrConflict
		}
		return err
	}
	if existing.AccountUID == accountUID {
		return domain.ErrAlreadyBound
	}
	return domain.ErrBoundToOtherAccount
}

// UnbindProvider removes a provider binding after a fresh possession proof.
// The final binding on an account can never be removed.
func (s *Service) UnbindProvider(ctx context.Context, accountUID uuid.UUID, providerRaw string, req UnbindRequest) error {
	if _, err := s.accounts.GetByUID(ctx, accountUID); err != nil {
		return err
	}
	provider, ok := domain.ParseProviderType(providerRaw)
	if !ok {
		return fmt.Errorf("%w: unknown provider %q", domain.ErrInvalidInput, providerRaw)
	}

	binding, err := s.bindings.FindByAccountAndType(ctx, accountUID, provider)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotBound
		}
		return err
	}

	switch {
	case provider == domain.ProviderPhone || provider == domain.ProviderEmail:
		if err := s.consumeCode(ctx, binding.ProviderID, unbindPurpose(provider), req.Code); err != nil {
			return err
		}
	case provider.IsOAuth():
		identity, err := s.oauth.Exchange(ctx, provider, req.AuthorizationCode)
		if err != nil {
			return err
		}
		if identity.ProviderID != binding.ProviderID {
			return domain.ErrVerificationFailed
		}
	case provider == domain.ProviderPassword:
		if err := s.hasher.Compare(binding.PasswordHash, req.Password); err != nil {
			return domain.ErrVerificationFailed
		}
	}

	count, err := s.bindings.CountByAccount(ctx, accountUID)
	if err != nil {
		return err
	}
	if count <= 1 {
		return domain.ErrCannotUnbindLast
	}

	removed, err := s.bindings.Delete(ctx, accountUID, provider, binding.ProviderID)
	if err != nil {
		return err
	}
	if !removed {
		return domain.ErrNotBound
	}
	return nil
}

// ChangeVerifyOld is phase one of changing a phone or email binding. It
// burns a code sent to the current identifier and returns a short-lived
// proof for phase two.
func (s *Service) ChangeVerifyOld(ctx context.Context, accountUID uuid.UUID, providerRaw string, req ChangeVerifyOldRequest) (ChangeVerifyOldResponse, error) {
	if _, err := s.accounts.GetByUID(ctx, accountUID); err != nil {
		return ChangeVerifyOldResponse{}, err
	}
	provider, ok := domain.ParseProviderType(providerRaw)
	if !ok || (provider != domain.ProviderPhone && provider != domain.ProviderEmail) {
		return ChangeVerifyOldResponse{}, fmt.Errorf("%w: change supports PHONE and EMAIL", domain.ErrInvalidInput)
	}

	binding, err := s.bindings.FindByAccountAndType(ctx, accountUID, provider)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ChangeVerifyOldResponse{}, domain.ErrNotBound
		}
		return ChangeVerifyOldResponse{}, err
	}
	if err := s.consumeCode(ctx, binding.ProviderID, changeOldPurpose(provider), req.Code); err != nil {
		return ChangeVerifyOldResponse{}, err
	}

	proofID := uuid.NewString()
	proof := ports.ChangeProof{
		AccountUID:    accountUID,
		ProviderType:  provider,
		OldProviderID: binding.ProviderID,
		CreatedAt:     s.nowFn(),
	}
	if err := s.changeProofs.Put(ctx, proofID, proof, domain.ChangeProofTTL); err != nil {
		return ChangeVerifyOldResponse{}, fmt.Errorf("store change proof: %w", err)
	}
	return ChangeVerifyOldResponse{
		ProofID:   proofID,
		ExpiresIn: int64(domain.ChangeProofTTL.Seconds()),
	}, nil
}

// ChangeVerifyNew is phase two: it burns a code sent to the new identifier,
// checks the phase-one proof, and swaps the binding in one transaction.
// If the swap fails the old binding stays intact.
func (s *Service) ChangeVerifyNew(ctx context.Context, accountUID uuid.UUID, providerRaw string, req ChangeVerifyNewRequest) error {
	if _, err := s.accounts.GetByUID(ctx, accountUID); err != nil {
		return err
	}
	provider, ok := domain.ParseProviderType(providerRaw)
	if !ok || (provider != domain.ProviderPhone && provider != domain.ProviderEmail) {
		return fmt.Errorf("%w: change supports PHONE and EMAIL", domain.ErrInvalidInput)
	}

	proof, err := s.changeProofs.Get(ctx, req.ProofID)
	if err != nil {
		return fmt.Errorf("load change proof: %w", err)
	}
	if proof == nil || proof.AccountUID != accountUID || proof.ProviderType != provider {
		return domain.ErrVerificationFailed
	}
	if s.nowFn().Sub(proof.CreatedAt) > domain.ChangeProofTTL {
		_ = s.changeProofs.Delete(ctx, req.ProofID)
		return domain.ErrVerificationFailed
	}

	identifier, err := domain.NormalizeIdentifier(provider, req.Identifier)
	if err != nil {
		return err
	}
	if identifier == proof.OldProviderID {
		return fmt.Errorf("%w: new identifier equals the current one", domain.ErrInvalidInput)
	}
	if err := s.consumeCode(ctx, identifier, changeNewPurpose(provider), req.Code); err != nil {
		return err
	}

	err = s.bindings.Replace(ctx, accountUID, provider, proof.OldProviderID, domain.ProviderBinding{
		UID:          uuid.New(),
		AccountUID:   accountUID,
		ProviderType: provider,
		ProviderID:   identifier,
		CreatedAt:    s.nowFn(),
	})
	if errors.Is(err, domain.ErrConflict) {
		return s.classifyBindConflict(ctx, accountUID, provider, identifier)
	}
	if err != nil {
		return err
	}
	_ = s.changeProofs.Delete(ctx, req.ProofID)
	return nil
}

func bindPurpose(p domain.ProviderType) domain.Purpose {
	if p == domain.ProviderEmail {
		return domain.PurposeEmailBind
	}
	return domain.PurposePhoneBind
}

func unbindPurpose(p domain.ProviderType) domain.Purpose {
	if p == domain.ProviderEmail {
		return domain.PurposeEmailUnbind
	}
	return domain.PurposePhoneUnbind
}

func changeOldPurpose(p domain.ProviderType) domain.Purpose {
	if p == domain.ProviderEmail {
		return domain.PurposeEmailChangeOld
	}
	return domain.PurposePhoneChangeOld
}

func changeNewPurpose(p domain.ProviderType) domain.Purpose {
	if p == domain.ProviderEmail {
		return domain.PurposeEmailChangeNew
	}
	return domain.PurposePhoneChangeNew
}
