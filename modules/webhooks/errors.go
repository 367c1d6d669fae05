package webhooks

import "errors"

var (
	ErrEndpointNotFound = errors.New("webhook endpoint not found")
	ErrInvalidEndpoint  = errors.New("invalid webhook endpoint")
	ErrDuplicateURL     = errors.New("webhook endpoint url already registered for tenant")
	ErrUnknownEvent     = errors.New("unknown webhook event")

	ErrAttemptNotFound   = errors.New("webhook attempt not found")
	ErrAttemptConflict   = errors.New("webhook attempt changed concurrently")
	ErrInvalidTransition = errors.New("invalid attempt status transition")
	ErrInvalidFilter     = errors.New("invalid attempt filter")
	ErrLeaseLost         = errors.New("webhook attempt lease held by another worker")

	ErrSerialization = errors.New("failed to serialize webhook envelope")
)
