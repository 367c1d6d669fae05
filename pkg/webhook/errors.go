package webhook

import "errors"

var (
	ErrInvalidURL     = errors.New("invalid webhook url")
	ErrInsecureURL    = errors.New("webhook url must use https")
	ErrInvalidPayload = errors.New("invalid webhook payload")

	// Delivery failures. Every one of them is retryable by the caller.
	ErrInvalidRequest   = errors.New("failed to build webhook request")
	ErrTimeout          = errors.New("webhook request timed out")
	ErrTransport        = errors.New("webhook transport error")
	ErrUnexpectedStatus = errors.New("webhook endpoint returned non-2xx status")

	ErrMissingSecret     = errors.New("webhook secret is required")
	ErrMissingSignature  = errors.New("webhook signature is missing")
	ErrSignatureMismatch = errors.New("webhook signature mismatch")
)
