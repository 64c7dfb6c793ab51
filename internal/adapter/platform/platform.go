// Package platform defines the port (C6) through which the orchestrator
// and ingress gateway talk to a concrete forge (GitHub, Gitea) without
// knowing which one it is: normalize an inbound webhook, fetch the diff
// it describes, post a review back, and verify the webhook's signature.
package platform

import (
	"context"
	stderrors "errors"

	"github.com/aegisreview/aegis/internal/domain"
)

// ErrUnsupportedEvent is returned by ParseWebhook when the event type
// is recognized by the platform but carries nothing reviewable (e.g. a
// ping, a star, an issue comment).
var ErrUnsupportedEvent = stderrors.New("platform: event does not describe a reviewable change")

// Adapter is the four-operation interface a concrete platform
// implements (spec §4.1): parse_webhook, get_diff, post_review,
// verify_signature.
type Adapter interface {
	// ParseWebhook normalizes a raw webhook body of the given event type
	// into a PRMetadata. It validates that repository identity, head
	// SHA, and every other required field are present; a SHA shorter
	// than 40 hex characters or a missing repository identity is a
	// KindValidation error.
	ParseWebhook(eventType string, payload []byte) (domain.PRMetadata, error)

	// GetDiff returns the per-file unified diff blocks for the change
	// described by metadata.
	GetDiff(ctx context.Context, metadata domain.PRMetadata) ([]string, error)

	// PostReview publishes the review back to the platform: a native
	// review with inline comments for a pull request, a tracking issue
	// for a push event.
	PostReview(ctx context.Context, metadata domain.PRMetadata, review domain.ReviewResponse) error

	// VerifySignature checks the platform's HMAC-SHA256 webhook
	// signature header against body using secret. Returns true if
	// signature verification is disabled (secret is empty).
	VerifySignature(body []byte, headerValue, secret string) bool
}

// Registry resolves a platform name (domain.PlatformGitHub,
// domain.PlatformGitea) to its Adapter implementation.
type Registry map[string]Adapter

// For returns the adapter registered for platform, or false if none is
// registered.
func (r Registry) For(platform string) (Adapter, bool) {
	a, ok := r[platform]
	return a, ok
}
