package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nimbusworks/console-identity-service/internal/domain"
	"github.com/nimbusworks/console-identity-service/internal/ports"
)

const accountIDLength = 10

type Service struct {
	cfg              Config
	accounts         ports.AccountRepository
	bindings         ports.BindingRepository
	regions          ports.RegionRepository
	regionIdentities ports.RegionIdentityRepository
	workspaces       ports.WorkspaceRepository
	outbox           ports.OutboxRepository
	codes            ports.CodeStore
	changeProofs     ports.ChangeProofStore
	hasher           ports.PasswordHasher
	tokens           ports.TokenCodec
	oauth            ports.OAuthExchanger
	nowFn            func() time.Time
}

type Dependencies struct {
	Config           Config
	Accounts         ports.AccountRepository
	Bindings         ports.BindingRepository
	Regions          ports.RegionRepository
	RegionIdentities ports.RegionIdentityRepository
	Workspaces       ports.WorkspaceRepository
	Outbox           ports.OutboxRepository
	Codes            ports.CodeStore
	ChangeProofs     ports.ChangeProofStore
	Hasher           ports.PasswordHasher
	Tokens           ports.TokenCodec
	OAuth            ports.OAuthExchanger
}

func NewService(deps Dependencies) *Service {
	return &Service{
		cfg:              deps.Config,
		accounts:         deps.Accounts,
		bindings:         deps.Bindings,
		regions:          deps.Regions,
		regionIdentities: deps.RegionIdentities,
		workspaces:       deps.Workspaces,
		outbox:           deps.Outbox,
		codes:            deps.Codes,
		changeProofs:     deps.ChangeProofs,
		hasher:           deps.Hasher,
		tokens:           deps.Tokens,
		oauth:            deps.OAuth,
		nowFn:            time.Now().UTC,
	}
}

// SignInWithCode authenticates a phone or email identifier with a live
// verification code. An unknown identifier becomes a fresh account with the
// identifier as its first binding.
func (s *Service) SignInWithCode(ctx context.Context, req SignInCodeRequest) (SignInResponse, error) {
	provider, ok := domain.ParseProviderType(req.Provider)
	if !ok || (provider != domain.ProviderPhone && provider != domain.ProviderEmail) {
		return SignInResponse{}, fmt.Errorf("%w: code sign-in supports PHONE and EMAIL", domain.ErrInvalidInput)
	}
	if !s.cfg.providerEnabled(provider) {
		return SignInResponse{}, fmt.Errorf("%w: %s", domain.ErrProviderDisabled, provider)
	}

	identifier, err := domain.NormalizeIdentifier(provider, req.Identifier)
	if err != nil {
		return SignInResponse{}, err
	}

	purpose := domain.PurposePhoneLogin
	if provider == domain.ProviderEmail {
		purpose = domain.PurposeEmailLogin
	}
	if err := s.consumeCode(ctx, identifier, purpose, req.Code); err != nil {
		return SignInResponse{}, err
	}

	return s.signInBinding(ctx, provider, identifier, "", "", "")
}

// SignInWithPassword authenticates a username against its password binding.
// When signup is enabled an unknown username registers a new account.
func (s *Service) SignInWithPassword(ctx context.Context, req SignInPasswordRequest) (SignInResponse, error) {
	if !s.cfg.providerEnabled(domain.ProviderPassword) {
		return SignInResponse{}, fmt.Errorf("%w: %s", domain.ErrProviderDisabled, domain.ProviderPassword)
	}
	user := strings.TrimSpace(req.User)
	if user == "" || req.Password == "" {
		return SignInResponse{}, fmt.Errorf("%w: user and password are required", domain.ErrInvalidInput)
	}

	binding, err := s.bindings.FindByProvider(ctx, domain.ProviderPassword, user)
	switch {
	case err == nil:
		if err := s.hasher.Compare(binding.PasswordHash, req.Password); err != nil {
			return SignInResponse{}, domain.ErrUnauthorized
		}
		account, err := s.accounts.GetByUID(ctx, binding.AccountUID)
		if err != nil {
			return SignInResponse{}, err
		}
		return s.issueAuthToken(account, false)
	case errors.Is(err, domain.ErrNotFound):
		if !s.cfg.PasswordSignupEnabled {
			return SignInResponse{}, domain.ErrUnauthorized
		}
		if err := domain.ValidatePassword(req.Password); err != nil {
			return SignInResponse{}, err
		}
		hash, err := s.hasher.Hash(req.Password)
		if err != nil {
			return SignInResponse{}, fmt.Errorf("hash password: %w", err)
		}
		return s.signInBinding(ctx, domain.ProviderPassword, user, hash, user, "")
	default:
		return SignInResponse{}, err
	}
}

// SignInWithOAuth exchanges an upstream authorization code and signs in the
// asserted identity, registering it on first sight.
func (s *Service) SignInWithOAuth(ctx context.Context, req SignInOAuthRequest) (SignInResponse, error) {
	provider, ok := domain.ParseProviderType(req.Provider)
	if !ok || !provider.IsOAuth() {
		return SignInResponse{}, fmt.Errorf("%w: %q is not an OAuth provider", domain.ErrInvalidInput, req.Provider)
	}
	if !s.cfg.providerEnabled(provider) {
		return SignInResponse{}, fmt.Errorf("%w: %s", domain.ErrProviderDisabled, provider)
	}
	if strings.TrimSpace(req.AuthorizationCode) == "" {
		return SignInResponse{}, fmt.Errorf("%w: authorization_code is required", domain.ErrInvalidInput)
	}

	identity, err := s.oauth.Exchange(ctx, provider, req.AuthorizationCode)
	if err != nil {
		return SignInResponse{}, err
	}

	return s.signInBinding(ctx, provider, identity.ProviderID, "", identity.DisplayName, identity.AvatarURL)
}

// signInBinding resolves a verified external identity to an account,
// creating account plus first binding atomically when the identity is new.
// A lost creation race rereads the winner instead of failing the sign-in.
func (s *Service) signInBinding(ctx context.Context, provider domain.ProviderType, providerID, passwordHash, displayName, avatarURL string) (SignInResponse, error) {
	binding, err := s.bindings.FindByProvider(ctx, provider, providerID)
	if err == nil {
		account, err := s.accounts.GetByUID(ctx, binding.AccountUID)
		if err != nil {
			return SignInResponse{}, err
		}
		return s.issueAuthToken(account, false)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return SignInResponse{}, err
	}

	account, err := s.registerAccount(ctx, provider, providerID, passwordHash, displayName, avatarURL)
	if errors.Is(err, domain.ErrConflict) {
		binding, ferr := s.bindings.FindByProvider(ctx, provider, providerID)
		if ferr != nil {
			return SignInResponse{}, ferr
		}
		account, ferr := s.accounts.GetByUID(ctx, binding.AccountUID)
		if ferr != nil {
			return SignInResponse{}, ferr
		}
		return s.issueAuthToken(account, false)
	}
	if err != nil {
		return SignInResponse{}, err
	}
	return s.issueAuthToken(account, true)
}

func (s *Service) registerAccount(ctx context.Context, provider domain.ProviderType, providerID, passwordHash, displayName, avatarURL string) (domain.GlobalAccount, error) {
	id, err := domain.GenerateID(accountIDLength)
	if err != nil {
		return domain.GlobalAccount{}, err
	}
	if displayName == "" {
		displayName = id
	}
	now := s.nowFn()
	account := domain.GlobalAccount{
		UID:         uuid.New(),
		ID:          id,
		DisplayName: displayName,
		AvatarURL:   avatarURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	binding := domain.ProviderBinding{
		UID:          uuid.New(),
		AccountUID:   account.UID,
		ProviderType: provider,
		ProviderID:   providerID,
		PasswordHash: passwordHash,
		CreatedAt:    now,
	}

	created, err := s.accounts.CreateWithBindingTx(ctx, account, binding)
	if err != nil {
		return domain.GlobalAccount{}, err
	}

	payload, _ := json.Marshal(map[string]any{
		"account_uid": created.UID,
		"account_id":  created.ID,
		"provider":    provider,
		"created_at":  now,
	})
	if err := s.outbox.Enqueue(ctx, ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    "account.created",
		PartitionKey: created.UID.String(),
		Payload:      payload,
		OccurredAt:   now,
	}); err != nil {
		return domain.GlobalAccount{}, fmt.Errorf("enqueue account.created: %w", err)
	}
	return created, nil
}

func (s *Service) issueAuthToken(account domain.GlobalAccount, newAccount bool) (SignInResponse, error) {
	now := s.nowFn()
	claims := ports.AuthClaims{
		AccountUID: account.UID,
		AccountID:  account.ID,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.cfg.AuthTokenTTL),
	}
	token, err := s.tokens.SignAuth(claims)
	if err != nil {
		return SignInResponse{}, fmt.Errorf("sign auth token: %w", err)
	}
	return SignInResponse{
		Token:      token,
		ExpiresIn:  int64(s.cfg.AuthTokenTTL.Seconds()),
		AccountUID: account.UID,
		AccountID:  account.ID,
		NewAccount: newAccount,
	}, nil
}

// ValidateAuthToken parses and checks an auth token, confirming the account
// still exists. Deleted accounts fail validation even with a live token.
func (s *Service) ValidateAuthToken(ctx context.Context, token string) (ports.AuthClaims, error) {
	claims, err := s.tokens.ParseAuth(token)
	if err != nil {
		return ports.AuthClaims{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if !s.nowFn().Before(claims.ExpiresAt) {
		return ports.AuthClaims{}, fmt.Errorf("%w: token expired", domain.ErrUnauthorized)
	}
	if _, err := s.accounts.GetByUID(ctx, claims.AccountUID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ports.AuthClaims{}, domain.ErrUnauthorized
		}
		return ports.AuthClaims{}, err
	}
	return claims, nil
}

// GetAccount returns the caller's own profile.
func (s *Service) GetAccount(ctx context.Context, accountUID uuid.UUID) (AccountResponse, error) {
	account, err := s.accounts.GetByUID(ctx, accountUID)
	if err != nil {
		return AccountResponse{}, err
	}
	return toAccountResponse(account), nil
}

// UpdateProfile changes the caller's display name and avatar.
func (s *Service) UpdateProfile(ctx context.Context, accountUID uuid.UUID, req UpdateProfileRequest) (AccountResponse, error) {
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		return AccountResponse{}, fmt.Errorf("%w: display_name is required", domain.ErrInvalidInput)
	}
	if err := s.accounts.UpdateProfile(ctx, accountUID, displayName, req.AvatarURL, s.nowFn()); err != nil {
		return AccountResponse{}, err
	}
	return s.GetAccount(ctx, accountUID)
}

// ChangePassword rotates the caller's password binding after checking the
// current password.
func (s *Service) ChangePassword(ctx context.Context, accountUID uuid.UUID, req ChangePasswordRequest) error {
	binding, err := s.bindings.FindByAccountAndType(ctx, accountUID, domain.ProviderPassword)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotBound
		}
		return err
	}
	if err := s.hasher.Compare(binding.PasswordHash, req.OldPassword); err != nil {
		return domain.ErrVerificationFailed
	}
	if err := domain.ValidatePassword(req.NewPassword); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.bindings.UpdatePasswordHash(ctx, accountUID, hash)
}

// ListProviders returns the caller's bindings, password hashes excluded.
func (s *Service) ListProviders(ctx context.Context, accountUID uuid.UUID) ([]ProviderItem, error) {
	bindings, err := s.bindings.ListByAccount(ctx, accountUID)
	if err != nil {
		return nil, err
	}
	items := make([]ProviderItem, 0, len(bindings))
	for _, b := range bindings {
		items = append(items, toProviderItem(b))
	}
	return items, nil
}

// ListRegions returns the region registry without signing secrets.
func (s *Service) ListRegions(ctx context.Context) ([]RegionItem, error) {
	regions, err := s.regions.List(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]RegionItem, 0, len(regions))
	for _, r := range regions {
		items = append(items, RegionItem{UID: r.UID, DisplayName: r.DisplayName, Domain: r.Domain})
	}
	return items, nil
}
