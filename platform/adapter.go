package platform

import (
	"context"
	"errors"
	"fmt"
)

// Fields is the subset of a resource's SEO-relevant fields keyed by canonical
// field name (metaTitle, metaDescription, altText, h1, canonicalUrl).
type Fields map[string]string

type ResourceRef struct {
	Type string `json:"type"` // product | page | post | media | url
	Id   string `json:"id"`
}

func (r ResourceRef) String() string {
	return fmt.Sprintf("%s/%s", r.Type, r.Id)
}

// Adapter is the seam between the fix lifecycle and a merchant's storefront.
// Implementations translate canonical field names into platform-native calls.
type Adapter interface {
	// ReadResource returns the current values of the requested fields.
	// Missing fields come back as empty strings, not errors.
	ReadResource(ctx context.Context, ref ResourceRef, fields []string) (Fields, error)
	// WriteResource applies the given field values to the live resource.
	WriteResource(ctx context.Context, ref ResourceRef, changes Fields) error
	// CountResources reports how many resources of the given type exist on
	// the storefront, for audit sizing and progress reporting.
	CountResources(ctx context.Context, resourceType string) (int, error)
}

// Error carries the platform failure classification. Retryable covers
// timeouts, connection failures, 429s and 5xxs; anything the platform
// rejected outright (bad id, revoked auth) is terminal.
type Error struct {
	Provider   string
	StatusCode int
	Retryable  bool
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s adapter error %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s adapter error: %s", e.Provider, e.Message)
}

func newHTTPError(provider string, status int, body string) *Error {
	return &Error{
		Provider:   provider,
		StatusCode: status,
		Retryable:  status == 429 || status >= 500,
		Message:    body,
	}
}

func newTransportError(provider string, err error) *Error {
	return &Error{Provider: provider, Retryable: true, Message: err.Error()}
}

// IsRetryable reports whether the adapter failure is worth another attempt.
// Unknown errors are treated as retryable so transient faults are not
// misclassified as terminal.
func IsRetryable(err error) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	return true
}
