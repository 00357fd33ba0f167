package unit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nimbusworks/console-identity-service/internal/application"
	"github.com/nimbusworks/console-identity-service/internal/domain"
	"github.com/nimbusworks/console-identity-service/internal/ports"
)

func TestCodeSignInRegistersAndThenReuses(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	code := f.sendCodeFor(t, "+8613800138000", domain.PurposePhoneLogin)

	first, err := f.service.SignInWithCode(ctx, application.SignInCodeRequest{
		Provider:   "PHONE",
		Identifier: "+86 138-0013-8000",
		Code:       code,
	})
	if err != nil {
		t.Fatalf("first sign-in failed: %v", err)
	}
	if !first.NewAccount {
		t.Fatalf("expected first sign-in to register a new account")
	}
	if first.Token == "" || first.AccountID == "" {
		t.Fatalf("expected token and account id in response")
	}

	claims, err := f.service.ValidateAuthToken(ctx, first.Token)
	if err != nil {
		t.Fatalf("validate auth token failed: %v", err)
	}
	if claims.AccountUID != first.AccountUID {
		t.Fatalf("claims account mismatch: %s vs %s", claims.AccountUID, first.AccountUID)
	}

	types := f.outbox.eventTypes()
	var sawDelivery, sawCreated bool
	for _, et := range types {
		switch et {
		case "code.delivery":
			sawDelivery = true
		case "account.created":
			sawCreated = true
		}
	}
	if !sawDelivery || !sawCreated {
		t.Fatalf("expected code.delivery and account.created events, got %v", types)
	}

	f.codes.clearCooldown("+8613800138000", domain.PurposePhoneLogin)
	code = f.sendCodeFor(t, "+8613800138000", domain.PurposePhoneLogin)
	second, err := f.service.SignInWithCode(ctx, application.SignInCodeRequest{
		Provider:   "PHONE",
		Identifier: "+8613800138000",
		Code:       code,
	})
	if err != nil {
		t.Fatalf("second sign-in failed: %v", err)
	}
	if second.NewAccount {
		t.Fatalf("expected second sign-in to reuse the account")
	}
	if second.AccountUID != first.AccountUID {
		t.Fatalf("expected same account, got %s vs %s", second.AccountUID, first.AccountUID)
	}
}

func TestSendCodeCooldown(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	if _, err := f.service.SendCode(ctx, application.SendCodeRequest{
		Identifier: "user@example.com",
		Purpose:    "email_login",
	}); err != nil {
		t.Fatalf("first send failed: %v", err)
	}
	_, err := f.service.SendCode(ctx, application.SendCodeRequest{
		Identifier: "User@Example.COM",
		Purpose:    "email_login",
	})
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected rate limit on resend, got %v", err)
	}
}

func TestSendCodeRejectsBadInput(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	if _, err := f.service.SendCode(ctx, application.SendCodeRequest{
		Identifier: "user@example.com",
		Purpose:    "email_selfdestruct",
	}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for unknown purpose, got %v", err)
	}
	if _, err := f.service.SendCode(ctx, application.SendCodeRequest{
		Identifier: "not-an-email",
		Purpose:    "email_login",
	}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for malformed email, got %v", err)
	}
	if _, err := f.service.SendCode(ctx, application.SendCodeRequest{
		Identifier: "burner@mailinator.com",
		Purpose:    "email_login",
	}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for disposable domain, got %v", err)
	}
}

func TestExpiredCodeRejectedAndRemoved(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	code := f.sendCodeFor(t, "user@example.com", domain.PurposeEmailLogin)
	f.codes.age("user@example.com", domain.PurposeEmailLogin, domain.CodeTTL+time.Minute)

	_, err := f.service.SignInWithCode(ctx, application.SignInCodeRequest{
		Provider:   "EMAIL",
		Identifier: "user@example.com",
		Code:       code,
	})
	if !errors.Is(err, domain.ErrCodeExpired) {
		t.Fatalf("expected expired code error, got %v", err)
	}
	if _, ok := f.codes.liveCode("user@example.com", domain.PurposeEmailLogin); ok {
		t.Fatalf("expected expired code to be purged from the store")
	}
}

func TestCodeIsSingleUse(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	code := f.sendCodeFor(t, "user@example.com", domain.PurposeEmailLogin)

	if _, err := f.service.SignInWithCode(ctx, application.SignInCodeRequest{
		Provider:   "EMAIL",
		Identifier: "user@example.com",
		Code:       code,
	}); err != nil {
		t.Fatalf("first use failed: %v", err)
	}
	_, err := f.service.SignInWithCode(ctx, application.SignInCodeRequest{
		Provider:   "EMAIL",
		Identifier: "user@example.com",
		Code:       code,
	})
	if !errors.Is(err, domain.ErrVerificationFailed) {
		t.Fatalf("expected replay to fail verification, got %v", err)
	}
}

func TestCodeScopedToPurpose(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	code := f.sendCodeFor(t, "user@example.com", domain.PurposeEmailBind)

	_, err := f.service.SignInWithCode(ctx, application.SignInCodeRequest{
		Provider:   "EMAIL",
		Identifier: "user@example.com",
		Code:       code,
	})
	if !errors.Is(err, domain.ErrVerificationFailed) {
		t.Fatalf("expected bind code to fail login purpose, got %v", err)
	}
	if _, ok := f.codes.liveCode("user@example.com", domain.PurposeEmailBind); !ok {
		t.Fatalf("expected bind code to stay live after cross-purpose attempt")
	}
}

func TestWrongCodeDoesNotBurnLiveCode(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	code := f.sendCodeFor(t, "+4915112345678", domain.PurposePhoneLogin)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	if _, err := f.service.SignInWithCode(ctx, application.SignInCodeRequest{
		Provider:   "PHONE",
		Identifier: "+4915112345678",
		Code:       wrong,
	}); !errors.Is(err, domain.ErrVerificationFailed) {
		t.Fatalf("expected wrong code to fail verification, got %v", err)
	}

	if _, err := f.service.SignInWithCode(ctx, application.SignInCodeRequest{
		Provider:   "PHONE",
		Identifier: "+4915112345678",
		Code:       code,
	}); err != nil {
		t.Fatalf("correct code after failed attempt should work, got %v", err)
	}
}

func TestReissuedCodeInvalidatesPreviousOne(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	now := time.Now()
	put := func(code string) {
		if err := f.codes.Put(ctx, "user@example.com", domain.PurposeEmailLogin, domain.VerificationCode{
			Code:     code,
			IssuedAt: now,
		}, 30*time.Minute); err != nil {
			t.Fatalf("seed code failed: %v", err)
		}
	}
	put("111111")
	put("222222")

	// The superseded code must neither sign in nor destroy the live one.
	if _, err := f.service.SignInWithCode(ctx, application.SignInCodeRequest{
		Provider:   "EMAIL",
		Identifier: "user@example.com",
		Code:       "111111",
	}); !errors.Is(err, domain.ErrVerificationFailed) {
		t.Fatalf("expected superseded code to fail verification, got %v", err)
	}
	if live, ok := f.codes.liveCode("user@example.com", domain.PurposeEmailLogin); !ok || live != "222222" {
		t.Fatalf("expected latest code to stay live, got %q ok=%v", live, ok)
	}

	if _, err := f.service.SignInWithCode(ctx, application.SignInCodeRequest{
		Provider:   "EMAIL",
		Identifier: "user@example.com",
		Code:       "222222",
	}); err != nil {
		t.Fatalf("latest code should sign in, got %v", err)
	}
}

func TestConcurrentCodeUseHasOneWinner(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	code := f.sendCodeFor(t, "user@example.com", domain.PurposeEmailLogin)

	const attempts = 16
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.service.SignInWithCode(ctx, application.SignInCodeRequest{
				Provider:   "EMAIL",
				Identifier: "user@example.com",
				Code:       code,
			})
		}(i)
	}
	wg.Wait()

	var won int
	for i, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, domain.ErrVerificationFailed):
		default:
			t.Fatalf("attempt %d: unexpected error %v", i, err)
		}
	}
	if won != 1 {
		t.Fatalf("expected exactly one successful use, got %d", won)
	}
}

func TestCodeWindowsFollowConfig(t *testing.T) {
	t.Parallel()

	cfg := defaultTestConfig()
	cfg.CodeTTL = 2 * time.Minute
	cfg.CodeCooldown = 90 * time.Second
	f := newFixtureWithConfig(cfg)
	ctx := context.Background()

	res, err := f.service.SendCode(ctx, application.SendCodeRequest{
		Identifier: "user@example.com",
		Purpose:    "email_login",
	})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if res.CooldownSeconds != 90 {
		t.Fatalf("expected configured cooldown of 90s, got %d", res.CooldownSeconds)
	}

	code, ok := f.codes.liveCode("user@example.com", domain.PurposeEmailLogin)
	if !ok {
		t.Fatalf("expected a live code after send")
	}
	// Three minutes is inside the default window but past the configured one.
	f.codes.age("user@example.com", domain.PurposeEmailLogin, 3*time.Minute)

	if _, err := f.service.SignInWithCode(ctx, application.SignInCodeRequest{
		Provider:   "EMAIL",
		Identifier: "user@example.com",
		Code:       code,
	}); !errors.Is(err, domain.ErrCodeExpired) {
		t.Fatalf("expected configured window to expire the code, got %v", err)
	}
}

func TestAlertContactCodeVerifiedOnce(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	code := f.sendCodeFor(t, "ops@example.com", domain.PurposeAlertBindEmail)

	if err := f.service.VerifyCode(ctx, application.VerifyCodeRequest{
		Identifier: "Ops@Example.COM",
		Purpose:    "alert_bind_email",
		Code:       code,
	}); err != nil {
		t.Fatalf("verify alert code failed: %v", err)
	}
	if err := f.service.VerifyCode(ctx, application.VerifyCodeRequest{
		Identifier: "ops@example.com",
		Purpose:    "alert_bind_email",
		Code:       code,
	}); !errors.Is(err, domain.ErrVerificationFailed) {
		t.Fatalf("expected replay to fail verification, got %v", err)
	}
}

func TestPasswordSignInAndSignup(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	created, err := f.service.SignInWithPassword(ctx, application.SignInPasswordRequest{
		User:     "alice",
		Password: "Sup3rSecret",
	})
	if err != nil {
		t.Fatalf("password signup failed: %v", err)
	}
	if !created.NewAccount {
		t.Fatalf("expected signup to register a new account")
	}

	if _, err := f.service.SignInWithPassword(ctx, application.SignInPasswordRequest{
		User:     "alice",
		Password: "wrong-password1",
	}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for wrong password, got %v", err)
	}

	again, err := f.service.SignInWithPassword(ctx, application.SignInPasswordRequest{
		User:     "alice",
		Password: "Sup3rSecret",
	})
	if err != nil {
		t.Fatalf("password sign-in failed: %v", err)
	}
	if again.NewAccount || again.AccountUID != created.AccountUID {
		t.Fatalf("expected sign-in to resolve the existing account")
	}
}

func TestPasswordSignupDisabled(t *testing.T) {
	t.Parallel()

	cfg := defaultTestConfig()
	cfg.PasswordSignupEnabled = false
	f := newFixtureWithConfig(cfg)

	_, err := f.service.SignInWithPassword(context.Background(), application.SignInPasswordRequest{
		User:     "nobody",
		Password: "Sup3rSecret",
	})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized when signup is off, got %v", err)
	}
}

func TestPasswordPolicyEnforcedAtSignup(t *testing.T) {
	t.Parallel()

	f := newFixture()

	_, err := f.service.SignInWithPassword(context.Background(), application.SignInPasswordRequest{
		User:     "bob",
		Password: "onlyletters",
	})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected weak password to be rejected, got %v", err)
	}
}

func TestProviderDisabledByConfig(t *testing.T) {
	t.Parallel()

	cfg := defaultTestConfig()
	cfg.EnabledProviders = map[domain.ProviderType]bool{
		domain.ProviderEmail:    true,
		domain.ProviderPassword: true,
	}
	f := newFixtureWithConfig(cfg)
	ctx := context.Background()

	if _, err := f.service.SendCode(ctx, application.SendCodeRequest{
		Identifier: "+8613800138000",
		Purpose:    "phone_login",
	}); !errors.Is(err, domain.ErrProviderDisabled) {
		t.Fatalf("expected disabled provider error for phone, got %v", err)
	}
	if _, err := f.service.SignInWithOAuth(ctx, application.SignInOAuthRequest{
		Provider:          "GITHUB",
		AuthorizationCode: "gh-code",
	}); !errors.Is(err, domain.ErrProviderDisabled) {
		t.Fatalf("expected disabled provider error for github, got %v", err)
	}
}

func TestOAuthSignInResolvesSameAccount(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	f.oauth.put("gh-code", testOAuthIdentity(domain.ProviderGithub, "9916217", "octo-dev"))

	first, err := f.service.SignInWithOAuth(ctx, application.SignInOAuthRequest{
		Provider:          "GITHUB",
		AuthorizationCode: "gh-code",
	})
	if err != nil {
		t.Fatalf("oauth sign-in failed: %v", err)
	}
	if !first.NewAccount {
		t.Fatalf("expected first oauth sign-in to register")
	}

	account, err := f.service.GetAccount(ctx, first.AccountUID)
	if err != nil {
		t.Fatalf("get account failed: %v", err)
	}
	if account.DisplayName != "octo-dev" {
		t.Fatalf("expected upstream display name, got %q", account.DisplayName)
	}

	second, err := f.service.SignInWithOAuth(ctx, application.SignInOAuthRequest{
		Provider:          "GITHUB",
		AuthorizationCode: "gh-code",
	})
	if err != nil {
		t.Fatalf("repeat oauth sign-in failed: %v", err)
	}
	if second.NewAccount || second.AccountUID != first.AccountUID {
		t.Fatalf("expected repeat sign-in to resolve the same account")
	}

	if _, err := f.service.SignInWithOAuth(ctx, application.SignInOAuthRequest{
		Provider:          "GITHUB",
		AuthorizationCode: "bogus",
	}); !errors.Is(err, domain.ErrVerificationFailed) {
		t.Fatalf("expected bad code to fail verification, got %v", err)
	}
}

func TestBindProviderAndConflicts(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	owner := passwordAccount(t, f, "owner")
	other := passwordAccount(t, f, "other")

	code := f.sendCodeFor(t, "owner@example.com", domain.PurposeEmailBind)
	if err := f.service.BindProvider(ctx, owner.AccountUID, "EMAIL", application.BindRequest{
		Identifier: "owner@example.com",
		Code:       code,
	}); err != nil {
		t.Fatalf("bind email failed: %v", err)
	}

	code = f.sendCodeFor(t, "owner2@example.com", domain.PurposeEmailBind)
	if err := f.service.BindProvider(ctx, owner.AccountUID, "EMAIL", application.BindRequest{
		Identifier: "owner2@example.com",
		Code:       code,
	}); !errors.Is(err, domain.ErrAlreadyBound) {
		t.Fatalf("expected already bound for second email, got %v", err)
	}

	// A probe with a wrong code must fail on possession before the
	// conflict check can reveal the identifier is taken.
	if err := f.service.BindProvider(ctx, other.AccountUID, "EMAIL", application.BindRequest{
		Identifier: "owner@example.com",
		Code:       "999999",
	}); !errors.Is(err, domain.ErrVerificationFailed) {
		t.Fatalf("expected verification failure before conflict, got %v", err)
	}

	f.codes.clearCooldown("owner@example.com", domain.PurposeEmailBind)
	code = f.sendCodeFor(t, "owner@example.com", domain.PurposeEmailBind)
	if err := f.service.BindProvider(ctx, other.AccountUID, "EMAIL", application.BindRequest{
		Identifier: "owner@example.com",
		Code:       code,
	}); !errors.Is(err, domain.ErrBoundToOtherAccount) {
		t.Fatalf("expected bound to other account, got %v", err)
	}
}

func TestBindOAuthProvider(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	account := passwordAccount(t, f, "carol")
	f.oauth.put("wx-code", testOAuthIdentity(domain.ProviderWechat, "union-123", "carol-wx"))

	if err := f.service.BindProvider(ctx, account.AccountUID, "WECHAT", application.BindRequest{
		AuthorizationCode: "wx-code",
	}); err != nil {
		t.Fatalf("bind wechat failed: %v", err)
	}

	providers, err := f.service.ListProviders(ctx, account.AccountUID)
	if err != nil {
		t.Fatalf("list providers failed: %v", err)
	}
	if len(providers) != 2 {
		t.Fatalf("expected password and wechat bindings, got %d", len(providers))
	}
}

func TestUnbindRequiresProofAndKeepsLastBinding(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	account := passwordAccount(t, f, "dave")

	if err := f.service.UnbindProvider(ctx, account.AccountUID, "PASSWORD", application.UnbindRequest{
		Password: "Sup3rSecret",
	}); !errors.Is(err, domain.ErrCannotUnbindLast) {
		t.Fatalf("expected last binding guard, got %v", err)
	}

	code := f.sendCodeFor(t, "dave@example.com", domain.PurposeEmailBind)
	if err := f.service.BindProvider(ctx, account.AccountUID, "EMAIL", application.BindRequest{
		Identifier: "dave@example.com",
		Code:       code,
	}); err != nil {
		t.Fatalf("bind email failed: %v", err)
	}

	if err := f.service.UnbindProvider(ctx, account.AccountUID, "EMAIL", application.UnbindRequest{
		Code: "123456",
	}); !errors.Is(err, domain.ErrVerificationFailed) {
		t.Fatalf("expected wrong code to fail unbind, got %v", err)
	}

	code = f.sendCodeFor(t, "dave@example.com", domain.PurposeEmailUnbind)
	if err := f.service.UnbindProvider(ctx, account.AccountUID, "EMAIL", application.UnbindRequest{
		Code: code,
	}); err != nil {
		t.Fatalf("unbind email failed: %v", err)
	}

	providers, err := f.service.ListProviders(ctx, account.AccountUID)
	if err != nil {
		t.Fatalf("list providers failed: %v", err)
	}
	if len(providers) != 1 || providers[0].Provider != "PASSWORD" {
		t.Fatalf("expected only the password binding to remain, got %+v", providers)
	}

	if err := f.service.UnbindProvider(ctx, account.AccountUID, "GITHUB", application.UnbindRequest{}); !errors.Is(err, domain.ErrNotBound) {
		t.Fatalf("expected not bound for absent provider, got %v", err)
	}
}

func TestChangeBindingTwoPhase(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	account := passwordAccount(t, f, "erin")

	code := f.sendCodeFor(t, "old@example.com", domain.PurposeEmailBind)
	if err := f.service.BindProvider(ctx, account.AccountUID, "EMAIL", application.BindRequest{
		Identifier: "old@example.com",
		Code:       code,
	}); err != nil {
		t.Fatalf("bind email failed: %v", err)
	}

	code = f.sendCodeFor(t, "old@example.com", domain.PurposeEmailChangeOld)
	oldProof, err := f.service.ChangeVerifyOld(ctx, account.AccountUID, "EMAIL", application.ChangeVerifyOldRequest{Code: code})
	if err != nil {
		t.Fatalf("change verify-old failed: %v", err)
	}
	if oldProof.ProofID == "" {
		t.Fatalf("expected a proof id from phase one")
	}

	code = f.sendCodeFor(t, "new@example.com", domain.PurposeEmailChangeNew)
	if err := f.service.ChangeVerifyNew(ctx, account.AccountUID, "EMAIL", application.ChangeVerifyNewRequest{
		ProofID:    oldProof.ProofID,
		Identifier: "new@example.com",
		Code:       code,
	}); err != nil {
		t.Fatalf("change verify-new failed: %v", err)
	}

	providers, err := f.service.ListProviders(ctx, account.AccountUID)
	if err != nil {
		t.Fatalf("list providers failed: %v", err)
	}
	var emailID string
	for _, p := range providers {
		if p.Provider == "EMAIL" {
			emailID = p.ProviderID
		}
	}
	if emailID != "new@example.com" {
		t.Fatalf("expected binding swapped to new identifier, got %q", emailID)
	}
}

func TestChangeBindingExpiredProof(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	account := passwordAccount(t, f, "frank")

	code := f.sendCodeFor(t, "frank-old@example.com", domain.PurposeEmailBind)
	if err := f.service.BindProvider(ctx, account.AccountUID, "EMAIL", application.BindRequest{
		Identifier: "frank-old@example.com",
		Code:       code,
	}); err != nil {
		t.Fatalf("bind email failed: %v", err)
	}

	code = f.sendCodeFor(t, "frank-old@example.com", domain.PurposeEmailChangeOld)
	proof, err := f.service.ChangeVerifyOld(ctx, account.AccountUID, "EMAIL", application.ChangeVerifyOldRequest{Code: code})
	if err != nil {
		t.Fatalf("change verify-old failed: %v", err)
	}

	f.proofs.age(proof.ProofID, domain.ChangeProofTTL+time.Minute)

	code = f.sendCodeFor(t, "frank-new@example.com", domain.PurposeEmailChangeNew)
	err = f.service.ChangeVerifyNew(ctx, account.AccountUID, "EMAIL", application.ChangeVerifyNewRequest{
		ProofID:    proof.ProofID,
		Identifier: "frank-new@example.com",
		Code:       code,
	})
	if !errors.Is(err, domain.ErrVerificationFailed) {
		t.Fatalf("expected expired proof to fail verification, got %v", err)
	}

	binding, err := f.service.ListProviders(ctx, account.AccountUID)
	if err != nil {
		t.Fatalf("list providers failed: %v", err)
	}
	var emailID string
	for _, p := range binding {
		if p.Provider == "EMAIL" {
			emailID = p.ProviderID
		}
	}
	if emailID != "frank-old@example.com" {
		t.Fatalf("expected old binding intact after failed change, got %q", emailID)
	}
}

func TestChangeBindingTargetTaken(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	account := passwordAccount(t, f, "gina")
	rival := passwordAccount(t, f, "rival")

	code := f.sendCodeFor(t, "gina@example.com", domain.PurposeEmailBind)
	if err := f.service.BindProvider(ctx, account.AccountUID, "EMAIL", application.BindRequest{
		Identifier: "gina@example.com",
		Code:       code,
	}); err != nil {
		t.Fatalf("bind email failed: %v", err)
	}
	code = f.sendCodeFor(t, "taken@example.com", domain.PurposeEmailBind)
	if err := f.service.BindProvider(ctx, rival.AccountUID, "EMAIL", application.BindRequest{
		Identifier: "taken@example.com",
		Code:       code,
	}); err != nil {
		t.Fatalf("bind rival email failed: %v", err)
	}

	code = f.sendCodeFor(t, "gina@example.com", domain.PurposeEmailChangeOld)
	proof, err := f.service.ChangeVerifyOld(ctx, account.AccountUID, "EMAIL", application.ChangeVerifyOldRequest{Code: code})
	if err != nil {
		t.Fatalf("change verify-old failed: %v", err)
	}

	code = f.sendCodeFor(t, "taken@example.com", domain.PurposeEmailChangeNew)
	err = f.service.ChangeVerifyNew(ctx, account.AccountUID, "EMAIL", application.ChangeVerifyNewRequest{
		ProofID:    proof.ProofID,
		Identifier: "taken@example.com",
		Code:       code,
	})
	if !errors.Is(err, domain.ErrBoundToOtherAccount) {
		t.Fatalf("expected bound to other account, got %v", err)
	}

	providers, err := f.service.ListProviders(ctx, account.AccountUID)
	if err != nil {
		t.Fatalf("list providers failed: %v", err)
	}
	var emailID string
	for _, p := range providers {
		if p.Provider == "EMAIL" {
			emailID = p.ProviderID
		}
	}
	if emailID != "gina@example.com" {
		t.Fatalf("expected old binding intact after conflicted change, got %q", emailID)
	}
}

func TestRegionTokenExchangeProvisionsPrivateWorkspace(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	account := passwordAccount(t, f, "henry")
	region := f.seedRegion("eu-west")

	res, err := f.service.ExchangeRegionToken(ctx, account.AccountUID, application.RegionTokenRequest{
		RegionUID: region.UID.String(),
	})
	if err != nil {
		t.Fatalf("region token exchange failed: %v", err)
	}
	if res.Token == "" || res.RegionDomain != region.Domain {
		t.Fatalf("unexpected exchange response: %+v", res)
	}
	if res.WorkspaceID != "ns-"+res.UserCrName {
		t.Fatalf("expected private workspace id ns-<cr>, got %q", res.WorkspaceID)
	}

	claims, err := f.service.ValidateRegionToken(ctx, region.UID, res.Token)
	if err != nil {
		t.Fatalf("validate region token failed: %v", err)
	}
	if claims.AccountUID != account.AccountUID || claims.UserCrName != res.UserCrName {
		t.Fatalf("region claims mismatch: %+v", claims)
	}

	again, err := f.service.ExchangeRegionToken(ctx, account.AccountUID, application.RegionTokenRequest{
		RegionUID: region.UID.String(),
	})
	if err != nil {
		t.Fatalf("repeat exchange failed: %v", err)
	}
	if again.UserCrName != res.UserCrName {
		t.Fatalf("expected provisioning to be idempotent: %q vs %q", again.UserCrName, res.UserCrName)
	}
}

func TestConcurrentExchangesConvergeOnOneIdentity(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	account := passwordAccount(t, f, "ida")
	region := f.seedRegion("ap-south")

	const workers = 8
	results := make([]application.RegionTokenResponse, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.service.ExchangeRegionToken(ctx, account.AccountUID, application.RegionTokenRequest{
				RegionUID: region.UID.String(),
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("exchange %d failed: %v", i, err)
		}
	}
	for i := 1; i < workers; i++ {
		if results[i].UserCrName != results[0].UserCrName {
			t.Fatalf("exchange %d provisioned a second identity: %q vs %q", i, results[i].UserCrName, results[0].UserCrName)
		}
		if results[i].WorkspaceID != results[0].WorkspaceID {
			t.Fatalf("exchange %d landed in a second workspace: %q vs %q", i, results[i].WorkspaceID, results[0].WorkspaceID)
		}
	}
}

func TestConcurrentBindOfSameIdentityHasOneWinner(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	first := passwordAccount(t, f, "jan")
	second := passwordAccount(t, f, "kim")
	f.oauth.put("gh-shared", testOAuthIdentity(domain.ProviderGithub, "777001", "shared-dev"))

	accounts := []uuid.UUID{first.AccountUID, second.AccountUID}
	errs := make([]error, len(accounts))
	var wg sync.WaitGroup
	for i, accountUID := range accounts {
		wg.Add(1)
		go func(i int, accountUID uuid.UUID) {
			defer wg.Done()
			errs[i] = f.service.BindProvider(ctx, accountUID, "GITHUB", application.BindRequest{
				AuthorizationCode: "gh-shared",
			})
		}(i, accountUID)
	}
	wg.Wait()

	var won, lost int
	for i, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, domain.ErrBoundToOtherAccount):
			lost++
		default:
			t.Fatalf("bind %d: unexpected error %v", i, err)
		}
	}
	if won != 1 || lost != 1 {
		t.Fatalf("expected one winner and one conflict, got %d winners and %d conflicts", won, lost)
	}
}

func TestListWorkspaces(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	account := passwordAccount(t, f, "mona")
	region := f.seedRegion("us-west")

	items, err := f.service.ListWorkspaces(ctx, account.AccountUID, region.UID)
	if err != nil {
		t.Fatalf("list workspaces failed: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no workspaces before first exchange, got %d", len(items))
	}

	res, err := f.service.ExchangeRegionToken(ctx, account.AccountUID, application.RegionTokenRequest{
		RegionUID: region.UID.String(),
	})
	if err != nil {
		t.Fatalf("region token exchange failed: %v", err)
	}

	items, err = f.service.ListWorkspaces(ctx, account.AccountUID, region.UID)
	if err != nil {
		t.Fatalf("list workspaces failed: %v", err)
	}
	if len(items) != 1 || items[0].WorkspaceID != res.WorkspaceID || !items[0].IsPrivate {
		t.Fatalf("expected the private workspace, got %+v", items)
	}

	if _, err := f.service.ListWorkspaces(ctx, account.AccountUID, uuid.New()); !errors.Is(err, domain.ErrRegionNotFound) {
		t.Fatalf("expected region not found, got %v", err)
	}
}

func TestRegionTokenExchangeErrors(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	account := passwordAccount(t, f, "iris")
	region := f.seedRegion("ap-south")

	if _, err := f.service.ExchangeRegionToken(ctx, account.AccountUID, application.RegionTokenRequest{
		RegionUID: "not-a-uuid",
	}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for bad region uid, got %v", err)
	}

	if _, err := f.service.ExchangeRegionToken(ctx, account.AccountUID, application.RegionTokenRequest{
		RegionUID: uuid.NewString(),
	}); !errors.Is(err, domain.ErrRegionNotFound) {
		t.Fatalf("expected region not found, got %v", err)
	}

	if _, err := f.service.ExchangeRegionToken(ctx, account.AccountUID, application.RegionTokenRequest{
		RegionUID:   region.UID.String(),
		WorkspaceID: "ns-someone-elses",
	}); !errors.Is(err, domain.ErrWorkspaceNotFound) {
		t.Fatalf("expected workspace not found, got %v", err)
	}
}

func TestValidateAuthTokenRejectsDeletedAccount(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	account := passwordAccount(t, f, "judy")

	if _, err := f.service.ValidateAuthToken(ctx, "garbage"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for garbage token, got %v", err)
	}

	f.accounts.remove(account.AccountUID)
	if _, err := f.service.ValidateAuthToken(ctx, account.Token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized after account removal, got %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	account := passwordAccount(t, f, "kate")

	updated, err := f.service.UpdateProfile(ctx, account.AccountUID, application.UpdateProfileRequest{
		DisplayName: "Kate N",
		AvatarURL:   "https://cdn.example.com/kate.png",
	})
	if err != nil {
		t.Fatalf("update profile failed: %v", err)
	}
	if updated.DisplayName != "Kate N" || updated.AvatarURL != "https://cdn.example.com/kate.png" {
		t.Fatalf("unexpected profile after update: %+v", updated)
	}

	if _, err := f.service.UpdateProfile(ctx, account.AccountUID, application.UpdateProfileRequest{
		DisplayName: "   ",
	}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for blank display name, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	account := passwordAccount(t, f, "liam")

	if err := f.service.ChangePassword(ctx, account.AccountUID, application.ChangePasswordRequest{
		OldPassword: "wrong-old1",
		NewPassword: "Fresh3rSecret",
	}); !errors.Is(err, domain.ErrVerificationFailed) {
		t.Fatalf("expected wrong old password to fail, got %v", err)
	}

	if err := f.service.ChangePassword(ctx, account.AccountUID, application.ChangePasswordRequest{
		OldPassword: "Sup3rSecret",
		NewPassword: "Fresh3rSecret",
	}); err != nil {
		t.Fatalf("change password failed: %v", err)
	}

	if _, err := f.service.SignInWithPassword(ctx, application.SignInPasswordRequest{
		User:     "liam",
		Password: "Sup3rSecret",
	}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected old password to stop working, got %v", err)
	}
	if _, err := f.service.SignInWithPassword(ctx, application.SignInPasswordRequest{
		User:     "liam",
		Password: "Fresh3rSecret",
	}); err != nil {
		t.Fatalf("sign-in with new password failed: %v", err)
	}
}

func TestListRegionsOmitsSecrets(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.seedRegion("us-east")
	f.seedRegion("eu-central")

	regions, err := f.service.ListRegions(context.Background())
	if err != nil {
		t.Fatalf("list regions failed: %v", err)
	}
	if len(regions) != 2 {
		t.Fatalf("expected two regions, got %d", len(regions))
	}
	if regions[0].DisplayName != "eu-central" {
		t.Fatalf("expected regions sorted by name, got %+v", regions)
	}
}

// passwordAccount registers an account through the password flow and
// returns the sign-in response.
func passwordAccount(t *testing.T, f *fixture, user string) application.SignInResponse {
	t.Helper()
	res, err := f.service.SignInWithPassword(context.Background(), application.SignInPasswordRequest{
		User:     user,
		Password: "Sup3rSecret",
	})
	if err != nil {
		t.Fatalf("register %s failed: %v", user, err)
	}
	return res
}

func testOAuthIdentity(provider domain.ProviderType, providerID, name string) ports.OAuthIdentity {
	return ports.OAuthIdentity{
		Provider:    provider,
		ProviderID:  providerID,
		DisplayName: name,
	}
}
