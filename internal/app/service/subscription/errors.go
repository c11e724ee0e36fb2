package subscription

import "errors"

var (
	ErrInvalidPlan         = errors.New("unknown plan")
	ErrNoSubscriptionFound = errors.New("no subscription found")
	ErrAlreadySubscribed   = errors.New("subscription already active")
	ErrAlreadyCanceled     = errors.New("subscription already canceled")
	ErrDiscountAlreadyUsed = errors.New("retention discount already used")
)
