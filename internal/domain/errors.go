package domain

import "errors"

var (
	// ErrNotFound is returned when the requested resource does not exist.
	// Keeping this sentinel in domain lets adapters map it consistently to 404.
	ErrNotFound = errors.New("resource not found")
	// ErrUnauthorized covers missing, invalid, or expired tokens.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidInput covers malformed identifiers and parameters.
	ErrInvalidInput = errors.New("invalid input")
	// ErrRateLimited signals a verification code resent inside the cooldown.
	ErrRateLimited = errors.New("rate limited")
	// ErrVerificationFailed hides whether a code was wrong, consumed, or the
	// upstream OAuth exchange rejected the authorization code. The reason is
	// to keep code-guessing and binding probes indistinguishable.
	ErrVerificationFailed = errors.New("verification failed")
	// ErrCodeExpired is distinct from a mismatch so the UI can offer a resend.
	ErrCodeExpired = errors.New("verification code expired")
	// ErrBoundToOtherAccount means the external identity already belongs to a
	// different global account.
	ErrBoundToOtherAccount = errors.New("provider already bound to another account")
	// ErrAlreadyBound means the caller already holds this exact binding.
	ErrAlreadyBound = errors.New("provider already bound to this account")
	// ErrNotBound means the caller asked to remove a binding it does not hold.
	ErrNotBound = errors.New("provider not bound")
	// ErrCannotUnbindLast prevents removing the account's final sign-in path.
	// Without this guard users can lock themselves out permanently.
	ErrCannotUnbindLast = errors.New("cannot unbind last provider")
	// ErrWorkspaceNotFound covers both unknown workspaces and memberships the
	// caller does not effectively hold.
	ErrWorkspaceNotFound = errors.New("workspace not found")
	// ErrRegionNotFound means the target region is not registered.
	ErrRegionNotFound = errors.New("region not found")
	// ErrConflict is a commit-time loss of a uniqueness race. Safe to retry.
	ErrConflict = errors.New("conflict")
	// ErrUpstreamTimeout means the SMS/email/OAuth upstream did not answer in
	// time. Never treated as implicit success. Safe to retry.
	ErrUpstreamTimeout = errors.New("upstream timeout")
	// ErrProviderDisabled means the provider is switched off by configuration.
	ErrProviderDisabled = errors.New("provider disabled")
)
