package entitlement

import "errors"

var (
	ErrInvalidFeature = errors.New("unknown feature")
	ErrLimitExceeded  = errors.New("usage limit exceeded")
)
