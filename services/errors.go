package services

import (
	"github.com/pkg/errors"
)

// Error taxonomy shared by the resolver, the cache and the HTTP surface.
// The web error handler maps these onto wire statuses, nothing else leaks.
var (
	// ErrUpstreamAuth means the provider rejected our credentials. Never
	// retried automatically, requires operator intervention.
	ErrUpstreamAuth = errors.New("upstream auth rejected")

	// ErrRateLimited means the provider throttled us. Retried with backoff
	// up to the configured attempt budget.
	ErrRateLimited = errors.New("upstream rate limited")

	// ErrLinkExpired is observed while actually using a resolved link
	// (401/403/410 from the byte server). Triggers one invalidate+retry.
	ErrLinkExpired = errors.New("link expired or forbidden")

	// ErrNotFound means the provider does not know the file id.
	ErrNotFound = errors.New("not found")

	// ErrUpstreamUnavailable covers transient 5xx/timeout failures that
	// survived the retry budget.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// IsTransient reports whether err is worth another attempt.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, ErrRateLimited)
}
