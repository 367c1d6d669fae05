package feature

import "errors"

var (
	ErrFlagNotFound   = errors.New("feature flag not found")
	ErrInvalidFlag    = errors.New("invalid feature flag parameters")
	ErrInvalidSeed    = errors.New("invalid feature flag seed")
	ErrProviderClosed = errors.New("feature provider is closed")
)
