package config

import (
	"os"
	"strings"
)

// RequireApplyLock hardens same-resource serialization: when enabled, a fix
// application that cannot obtain the per-resource redis lock fails retryable
// instead of proceeding on the optimistic value check alone.
//
// Set via env:
// - REQUIRE_APPLY_LOCK=true
func RequireApplyLock() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("REQUIRE_APPLY_LOCK")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// AutoApplyEnabledFor allows rolling AUTOMATIC-mode application out per provider.
//
// Set via env:
// - AUTO_APPLY_PROVIDERS="shopify,wordpress,script"
//
// Provider keys are case-insensitive. Empty means all providers.
func AutoApplyEnabledFor(provider string) bool {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return false
	}
	raw := os.Getenv("AUTO_APPLY_PROVIDERS")
	if strings.TrimSpace(raw) == "" {
		return true
	}
	for _, part := range strings.Split(raw, ",") {
		if strings.ToLower(strings.TrimSpace(part)) == provider {
			return true
		}
	}
	return false
}
