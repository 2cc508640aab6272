package resolver

import (
	"github.com/nimbleworks/chatrelay/internal/domain"
)

// ResolveCredentials merges per-call credentials over user-scoped stored
// credentials. Explicit keys win per provider. The result may be empty;
// absence of every credential is not an error, since the remote platform
// holds system-level keys and the call proceeds on those.
func ResolveCredentials(explicit, stored domain.CredentialSet) domain.CredentialSet {
	merged := make(domain.CredentialSet, len(explicit)+len(stored))
	for provider, key := range stored {
		if key != "" {
			merged[provider] = key
		}
	}
	for provider, key := range explicit {
		if key != "" {
			merged[provider] = key
		}
	}
	return merged
}

// ValidateCredentials reports which credentials the resolved settings need
// but the caller did not supply.
//
// The rule is asymmetric on purpose: a caller that supplied no credentials
// at all is in full fallback mode and always validates, trusting the
// platform's system keys. Only a caller that supplied at least one key of
// its own, an intentionally partial configuration, is told what is
// missing. This policy decides whether requests silently ride on system
// credentials, so it must not be "simplified".
func ValidateCredentials(settings domain.ChatSettings, credentials domain.CredentialSet) domain.ValidationResult {
	if len(credentials) == 0 {
		return domain.ValidationResult{Valid: true}
	}

	var missing []string
	if settings.Provider != "" && !credentials.Has(settings.Provider) {
		missing = append(missing, settings.Provider)
	}

	return domain.ValidationResult{Valid: len(missing) == 0, Missing: missing}
}
