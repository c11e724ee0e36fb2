package webhookhandler

import "errors"

var (
	// ErrInvalidSignature means the delivery failed signature verification and
	// must be rejected without recording.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrInvalidPayload means the event body could not be read or decoded.
	ErrInvalidPayload = errors.New("invalid webhook payload")
)
