package services

import "errors"

var (
	ErrEmbedding           = errors.New("embedding error")
	ErrRetrieval           = errors.New("retrieval error")
	ErrScoring             = errors.New("scoring error")
	ErrStore               = errors.New("store error")
	ErrConfiguration       = errors.New("configuration error")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrCVNotFound          = errors.New("cv not found")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrProviderRejected marks a provider refusing the request itself (bad
	// credentials, unknown model). Retrying it cannot succeed.
	ErrProviderRejected = errors.New("provider rejected request")
)
