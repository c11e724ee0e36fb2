package billing

import "errors"

// Provider outcomes the coordinator branches on. Everything else is wrapped
// with ErrProvider; the provider's error code stays in the message for logs
// and is never echoed to clients.
var (
	ErrProvider            = errors.New("billing provider error")
	ErrSubscriptionMissing = errors.New("subscription not found at billing provider")
)
