package unit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nimbusworks/console-identity-service/internal/application"
	"github.com/nimbusworks/console-identity-service/internal/domain"
	"github.com/nimbusworks/console-identity-service/internal/ports"
)

type fixture struct {
	service          *application.Service
	accounts         *fakeAccounts
	bindings         *fakeBindings
	regions          *fakeRegions
	regionIdentities *fakeRegionIdentities
	workspaces       *fakeWorkspaces
	outbox           *fakeOutbox
	codes            *fakeCodeStore
	proofs           *fakeChangeProofs
	oauth            *fakeOAuth
}

func defaultTestConfig() application.Config {
	return application.Config{
		AuthTokenTTL:          7 * 24 * time.Hour,
		RegionTokenTTL:        2 * time.Hour,
		PasswordSignupEnabled: true,
	}
}

func newFixture() *fixture {
	return newFixtureWithConfig(defaultTestConfig())
}

func newFixtureWithConfig(cfg application.Config) *fixture {
	bindings := &fakeBindings{byKey: map[string]domain.ProviderBinding{}}
	accounts := &fakeAccounts{byUID: map[uuid.UUID]domain.GlobalAccount{}, bindings: bindings}
	regions := &fakeRegions{byUID: map[uuid.UUID]domain.Region{}}
	workspaces := &fakeWorkspaces{byKey: map[string]domain.WorkspaceMembership{}}
	regionIdentities := &fakeRegionIdentities{byKey: map[string]domain.RegionIdentity{}, workspaces: workspaces}
	outbox := &fakeOutbox{}
	codes := &fakeCodeStore{
		live:      map[string]domain.VerificationCode{},
		cooldowns: map[string]bool{},
	}
	proofs := &fakeChangeProofs{byID: map[string]ports.ChangeProof{}}
	oauth := &fakeOAuth{identities: map[string]ports.OAuthIdentity{}}

	svc := application.NewService(application.Dependencies{
		Config:           cfg,
		Accounts:         accounts,
		Bindings:         bindings,
		Regions:          regions,
		RegionIdentities: regionIdentities,
		Workspaces:       workspaces,
		Outbox:           outbox,
		Codes:            codes,
		ChangeProofs:     proofs,
		Hasher:           &fakeHasher{},
		Tokens:           newFakeTokens(),
		OAuth:            oauth,
	})

	return &fixture{
		service:          svc,
		accounts:         accounts,
		bindings:         bindings,
		regions:          regions,
		regionIdentities: regionIdentities,
		workspaces:       workspaces,
		outbox:           outbox,
		codes:            codes,
		proofs:           proofs,
		oauth:            oauth,
	}
}

// seedRegion registers a region in the fake registry and returns it.
func (f *fixture) seedRegion(name string) domain.Region {
	region := domain.Region{
		UID:         uuid.New(),
		DisplayName: name,
		Domain:      name + ".cloud.example.com",
		JWTSecret:   "region-secret-" + name,
		CreatedAt:   time.Now().UTC(),
	}
	f.regions.put(region)
	return region
}

// sendCodeFor issues a code through the service and reads it back from the
// fake store so the test can submit it.
func (f *fixture) sendCodeFor(t *testing.T, identifier string, purpose domain.Purpose) string {
	t.Helper()
	if _, err := f.service.SendCode(context.Background(), application.SendCodeRequest{
		Identifier: identifier,
		Purpose:    string(purpose),
	}); err != nil {
		t.Fatalf("send code for %s/%s failed: %v", identifier, purpose, err)
	}
	code, ok := f.codes.liveCode(identifier, purpose)
	if !ok {
		t.Fatalf("no live code stored for %s/%s", identifier, purpose)
	}
	return code
}

type fakeAccounts struct {
	mu       sync.Mutex
	byUID    map[uuid.UUID]domain.GlobalAccount
	bindings *fakeBindings
}

func (f *fakeAccounts) CreateWithBindingTx(_ context.Context, account domain.GlobalAccount, binding domain.ProviderBinding) (domain.GlobalAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.bindings.create(binding); err != nil {
		return domain.GlobalAccount{}, err
	}
	f.byUID[account.UID] = account
	return account, nil
}

func (f *fakeAccounts) GetByUID(_ context.Context, accountUID uuid.UUID) (domain.GlobalAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.byUID[accountUID]
	if !ok {
		return domain.GlobalAccount{}, domain.ErrNotFound
	}
	return account, nil
}

func (f *fakeAccounts) UpdateProfile(_ context.Context, accountUID uuid.UUID, displayName, avatarURL string, updatedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.byUID[accountUID]
	if !ok {
		return domain.ErrNotFound
	}
	account.DisplayName = displayName
	account.AvatarURL = avatarURL
	account.UpdatedAt = updatedAt
	f.byUID[accountUID] = account
	return nil
}

func (f *fakeAccounts) remove(accountUID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byUID, accountUID)
}

type fakeBindings struct {
	mu    sync.Mutex
	byKey map[string]domain.ProviderBinding
}

func bindingKey(providerType domain.ProviderType, providerID string) string {
	return string(providerType) + "|" + providerID
}

func (f *fakeBindings) create(binding domain.ProviderBinding) error {
	key := bindingKey(binding.ProviderType, binding.ProviderID)
	if _, exists := f.byKey[key]; exists {
		return domain.ErrConflict
	}
	f.byKey[key] = binding
	return nil
}

func (f *fakeBindings) Create(_ context.Context, binding domain.ProviderBinding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.create(binding)
}

func (f *fakeBindings) FindByProvider(_ context.Context, providerType domain.ProviderType, providerID string) (domain.ProviderBinding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	binding, ok := f.byKey[bindingKey(providerType, providerID)]
	if !ok {
		return domain.ProviderBinding{}, domain.ErrNotFound
	}
	return binding, nil
}

func (f *fakeBindings) FindByAccountAndType(_ context.Context, accountUID uuid.UUID, providerType domain.ProviderType) (domain.ProviderBinding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, binding := range f.byKey {
		if binding.AccountUID == accountUID && binding.ProviderType == providerType {
			return binding, nil
		}
	}
	return domain.ProviderBinding{}, domain.ErrNotFound
}

func (f *fakeBindings) ListByAccount(_ context.Context, accountUID uuid.UUID) ([]domain.ProviderBinding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ProviderBinding
	for _, binding := range f.byKey {
		if binding.AccountUID == accountUID {
			out = append(out, binding)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeBindings) CountByAccount(_ context.Context, accountUID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, binding := range f.byKey {
		if binding.AccountUID == accountUID {
			count++
		}
	}
	return count, nil
}

func (f *fakeBindings) Delete(_ context.Context, accountUID uuid.UUID, providerType domain.ProviderType, providerID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := bindingKey(providerType, providerID)
	binding, ok := f.byKey[key]
	if !ok || binding.AccountUID != accountUID {
		return false, nil
	}
	delete(f.byKey, key)
	return true, nil
}

func (f *fakeBindings) Replace(_ context.Context, accountUID uuid.UUID, providerType domain.ProviderType, oldProviderID string, newBinding domain.ProviderBinding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	oldKey := bindingKey(providerType, oldProviderID)
	old, ok := f.byKey[oldKey]
	if !ok || old.AccountUID != accountUID {
		return domain.ErrNotBound
	}
	newKey := bindingKey(newBinding.ProviderType, newBinding.ProviderID)
	if _, exists := f.byKey[newKey]; exists {
		return domain.ErrConflict
	}
	delete(f.byKey, oldKey)
	f.byKey[newKey] = newBinding
	return nil
}

func (f *fakeBindings) UpdatePasswordHash(_ context.Context, accountUID uuid.UUID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, binding := range f.byKey {
		if binding.AccountUID == accountUID && binding.ProviderType == domain.ProviderPassword {
			binding.PasswordHash = passwordHash
			f.byKey[key] = binding
			return nil
		}
	}
	return domain.ErrNotBound
}

type fakeRegions struct {
	mu    sync.Mutex
	byUID map[uuid.UUID]domain.Region
}

func (f *fakeRegions) put(region domain.Region) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byUID[region.UID] = region
}

func (f *fakeRegions) GetByUID(_ context.Context, regionUID uuid.UUID) (domain.Region, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	region, ok := f.byUID[regionUID]
	if !ok {
		return domain.Region{}, domain.ErrNotFound
	}
	return region, nil
}

func (f *fakeRegions) List(_ context.Context) ([]domain.Region, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Region, 0, len(f.byUID))
	for _, region := range f.byUID {
		out = append(out, region)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out, nil
}

type fakeRegionIdentities struct {
	mu         sync.Mutex
	byKey      map[string]domain.RegionIdentity
	workspaces *fakeWorkspaces
}

func identityKey(accountUID, regionUID uuid.UUID) string {
	return accountUID.String() + "|" + regionUID.String()
}

func (f *fakeRegionIdentities) EnsureTx(_ context.Context, identity domain.RegionIdentity, _ domain.Workspace, membership domain.WorkspaceMembership) (domain.RegionIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := identityKey(identity.AccountUID, identity.RegionUID)
	if existing, ok := f.byKey[key]; ok {
		return existing, nil
	}
	f.byKey[key] = identity
	f.workspaces.put(membership)
	return identity, nil
}

func (f *fakeRegionIdentities) Get(_ context.Context, accountUID, regionUID uuid.UUID) (domain.RegionIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	identity, ok := f.byKey[identityKey(accountUID, regionUID)]
	if !ok {
		return domain.RegionIdentity{}, domain.ErrNotFound
	}
	return identity, nil
}

type fakeWorkspaces struct {
	mu    sync.Mutex
	byKey map[string]domain.WorkspaceMembership
}

func membershipKey(accountUID, regionUID uuid.UUID, workspaceID string) string {
	return accountUID.String() + "|" + regionUID.String() + "|" + workspaceID
}

func (f *fakeWorkspaces) put(membership domain.WorkspaceMembership) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byKey[membershipKey(membership.AccountUID, membership.RegionUID, membership.WorkspaceID)] = membership
}

func (f *fakeWorkspaces) GetMembership(_ context.Context, accountUID, regionUID uuid.UUID, workspaceID string) (domain.WorkspaceMembership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	membership, ok := f.byKey[membershipKey(accountUID, regionUID, workspaceID)]
	if !ok {
		return domain.WorkspaceMembership{}, domain.ErrNotFound
	}
	return membership, nil
}

func (f *fakeWorkspaces) ListMemberships(_ context.Context, accountUID, regionUID uuid.UUID) ([]domain.WorkspaceMembership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.WorkspaceMembership
	for _, membership := range f.byKey {
		if membership.AccountUID == accountUID && membership.RegionUID == regionUID {
			out = append(out, membership)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkspaceID < out[j].WorkspaceID })
	return out, nil
}

type fakeOutbox struct {
	mu     sync.Mutex
	events []ports.OutboxEvent
}

func (f *fakeOutbox) Enqueue(_ context.Context, event ports.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeOutbox) ClaimUnpublished(_ context.Context, _ int, _ string, _ time.Time) ([]ports.OutboxRecord, error) {
	return nil, nil
}

func (f *fakeOutbox) MarkPublished(_ context.Context, _ uuid.UUID, _ string, _ time.Time) error {
	return nil
}

func (f *fakeOutbox) MarkFailed(_ context.Context, _ uuid.UUID, _, _ string, _ time.Time) error {
	return nil
}

func (f *fakeOutbox) MarkDeadLettered(_ context.Context, _ uuid.UUID, _, _ string, _ time.Time) error {
	return nil
}

func (f *fakeOutbox) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, event := range f.events {
		out = append(out, event.EventType)
	}
	return out
}

type fakeCodeStore struct {
	mu        sync.Mutex
	live      map[string]domain.VerificationCode
	cooldowns map[string]bool
}

func codeKey(identifier string, purpose domain.Purpose) string {
	return string(purpose) + "|" + identifier
}

func (f *fakeCodeStore) ReserveCooldown(_ context.Context, identifier string, purpose domain.Purpose, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := codeKey(identifier, purpose)
	if f.cooldowns[key] {
		return false, nil
	}
	f.cooldowns[key] = true
	return true, nil
}

func (f *fakeCodeStore) Put(_ context.Context, identifier string, purpose domain.Purpose, code domain.VerificationCode, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live[codeKey(identifier, purpose)] = code
	return nil
}

func (f *fakeCodeStore) Consume(_ context.Context, identifier string, purpose domain.Purpose, submitted string) (*domain.VerificationCode, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := codeKey(identifier, purpose)
	code, ok := f.live[key]
	if !ok {
		return nil, false, nil
	}
	out := code
	if code.Code != submitted {
		return &out, false, nil
	}
	delete(f.live, key)
	return &out, true, nil
}

func (f *fakeCodeStore) liveCode(identifier string, purpose domain.Purpose) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	code, ok := f.live[codeKey(identifier, purpose)]
	return code.Code, ok
}

// age rewinds a stored code's issue time so expiry paths can run against
// the real clock.
func (f *fakeCodeStore) age(identifier string, purpose domain.Purpose, by time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := codeKey(identifier, purpose)
	if code, ok := f.live[key]; ok {
		code.IssuedAt = code.IssuedAt.Add(-by)
		f.live[key] = code
	}
}

func (f *fakeCodeStore) clearCooldown(identifier string, purpose domain.Purpose) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.cooldowns, codeKey(identifier, purpose))
}

type fakeChangeProofs struct {
	mu   sync.Mutex
	byID map[string]ports.ChangeProof
}

func (f *fakeChangeProofs) Put(_ context.Context, proofID string, proof ports.ChangeProof, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[proofID] = proof
	return nil
}

func (f *fakeChangeProofs) Get(_ context.Context, proofID string) (*ports.ChangeProof, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	proof, ok := f.byID[proofID]
	if !ok {
		return nil, nil
	}
	out := proof
	return &out, nil
}

func (f *fakeChangeProofs) Delete(_ context.Context, proofID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, proofID)
	return nil
}

func (f *fakeChangeProofs) age(proofID string, by time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if proof, ok := f.byID[proofID]; ok {
		proof.CreatedAt = proof.CreatedAt.Add(-by)
		f.byID[proofID] = proof
	}
}

type fakeHasher struct{}

func (f *fakeHasher) Hash(password string) (string, error) { return "hash:" + password, nil }

func (f *fakeHasher) Compare(hash, password string) error {
	if hash != "hash:"+password {
		return errors.New("hash mismatch")
	}
	return nil
}

type fakeTokens struct {
	mu           sync.Mutex
	counter      int
	authClaims   map[string]ports.AuthClaims
	regionClaims map[string]ports.RegionClaims
	regionSecret map[string]string
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{
		authClaims:   map[string]ports.AuthClaims{},
		regionClaims: map[string]ports.RegionClaims{},
		regionSecret: map[string]string{},
	}
}

func (f *fakeTokens) SignAuth(claims ports.AuthClaims) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counter++
	token := fmt.Sprintf("auth-token-%d", f.counter)
	f.authClaims[token] = claims
	return token, nil
}

func (f *fakeTokens) ParseAuth(token string) (ports.AuthClaims, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	claims, ok := f.authClaims[token]
	if !ok {
		return ports.AuthClaims{}, errors.New("unknown token")
	}
	return claims, nil
}

func (f *fakeTokens) SignRegion(secret string, claims ports.RegionClaims) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counter++
	token := fmt.Sprintf("region-token-%d", f.counter)
	f.regionClaims[token] = claims
	f.regionSecret[token] = secret
	return token, nil
}

func (f *fakeTokens) ParseRegion(secret, token string) (ports.RegionClaims, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	claims, ok := f.regionClaims[token]
	if !ok || f.regionSecret[token] != secret {
		return ports.RegionClaims{}, errors.New("bad signature")
	}
	return claims, nil
}

type fakeOAuth struct {
	mu         sync.Mutex
	identities map[string]ports.OAuthIdentity
}

func (f *fakeOAuth) put(code string, identity ports.OAuthIdentity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identities[code] = identity
}

func (f *fakeOAuth) Exchange(_ context.Context, provider domain.ProviderType, code string) (ports.OAuthIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	identity, ok := f.identities[code]
	if !ok || identity.Provider != provider {
		return ports.OAuthIdentity{}, domain.ErrVerificationFailed
	}
	return identity, nil
}
