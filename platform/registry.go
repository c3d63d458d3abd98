package platform

import (
	"fmt"
	"os"
	"strings"

	"github.com/rankhive/seofix_backend/models"
)

// ForConnection builds the adapter for a connection. Credentials are resolved
// from the environment variable named by the connection's auth secret ref
// (Cloud Run secret mounts expose secrets that way).
func ForConnection(conn *models.PlatformConnection) (Adapter, error) {
	switch conn.Provider {
	case models.PlatformProviderShopify:
		token := resolveSecret(conn.AuthSecretRef)
		if token == "" {
			return nil, &Error{Provider: "shopify", Message: "access token is empty"}
		}
		return NewShopifyAdapter(conn.StoreDomain, token), nil
	case models.PlatformProviderWordPress:
		cred := resolveSecret(conn.AuthSecretRef)
		if cred == "" {
			return nil, &Error{Provider: "wordpress", Message: "application password is empty"}
		}
		return NewWordpressAdapter(conn.StoreDomain, cred), nil
	case models.PlatformProviderScript:
		return NewScriptBridgeAdapter(conn.ID), nil
	default:
		return nil, fmt.Errorf("unsupported platform provider: %s", conn.Provider)
	}
}

func resolveSecret(ref string) string {
	return strings.TrimSpace(os.Getenv(strings.TrimSpace(ref)))
}
