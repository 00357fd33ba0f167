package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// Purpose scopes a verification code to one operation so a code issued for
// sign-in can never be replayed against an unbind.
type Purpose string

const (
	PurposePhoneLogin     Purpose = "phone_login"
	PurposePhoneBind      Purpose = "phone_bind"
	PurposePhoneUnbind    Purpose = "phone_unbind"
	PurposePhoneChangeOld Purpose = "phone_change_old"
	PurposePhoneChangeNew Purpose = "phone_change_new"
	PurposeEmailLogin     Purpose = "email_login"
	PurposeEmailBind      Purpose = "email_bind"
	PurposeEmailUnbind    Purpose = "email_unbind"
	PurposeEmailChangeOld Purpose = "email_change_old"
	PurposeEmailChangeNew Purpose = "email_change_new"
	PurposeAlertBindEmail Purpose = "alert_bind_email"
)

var knownPurposes = map[Purpose]ProviderType{
	PurposePhoneLogin:     ProviderPhone,
	PurposePhoneBind:      ProviderPhone,
	PurposePhoneUnbind:    ProviderPhone,
	PurposePhoneChangeOld: ProviderPhone,
	PurposePhoneChangeNew: ProviderPhone,
	PurposeEmailLogin:     ProviderEmail,
	PurposeEmailBind:      ProviderEmail,
	PurposeEmailUnbind:    ProviderEmail,
	PurposeEmailChangeOld: ProviderEmail,
	PurposeEmailChangeNew: ProviderEmail,
	PurposeAlertBindEmail: ProviderEmail,
}

// ParsePurpose validates a purpose string and reports the provider channel
// the purpose delivers over.
func ParsePurpose(raw string) (Purpose, ProviderType, error) {
	p := Purpose(strings.ToLower(strings.TrimSpace(raw)))
	channel, ok := knownPurposes[p]
	if !ok {
		return "", "", fmt.Errorf("%w: unknown purpose %q", ErrInvalidInput, raw)
	}
	return p, channel, nil
}

var (
	phonePattern = regexp.MustCompile(`^\+?[0-9]{6,15}$`)
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// Throwaway mailbox domains rejected at issue time. Codes sent there are
// wasted delivery budget and a spam-registration vector.
var disposableEmailDomains = map[string]struct{}{
	"mailinator.com":    {},
	"guerrillamail.com": {},
	"10minutemail.com":  {},
	"tempmail.com":      {},
	"throwawaymail.com": {},
	"yopmail.com":       {},
}

// NormalizePhone strips separators and validates the result as an E.164-ish
// subscriber number.
func NormalizePhone(raw string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	if !phonePattern.MatchString(cleaned) {
		return "", fmt.Errorf("%w: invalid phone number", ErrInvalidInput)
	}
	return cleaned, nil
}

// NormalizeEmail lowercases and validates an email address, rejecting known
// disposable mailbox domains.
func NormalizeEmail(raw string) (string, error) {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	if !emailPattern.MatchString(cleaned) {
		return "", fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	at := strings.LastIndex(cleaned, "@")
	if _, blocked := disposableEmailDomains[cleaned[at+1:]]; blocked {
		return "", fmt.Errorf("%w: disposable email domain", ErrInvalidInput)
	}
	return cleaned, nil
}

// NormalizeIdentifier dispatches on the delivery channel.
func NormalizeIdentifier(channel ProviderType, raw string) (string, error) {
	switch channel {
	case ProviderPhone:
		return NormalizePhone(raw)
	case ProviderEmail:
		return NormalizeEmail(raw)
	default:
		return "", fmt.Errorf("%w: channel %s does not carry verification codes", ErrInvalidInput, channel)
	}
}

func normalizeUpper(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
