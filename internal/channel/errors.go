package channel

import "errors"

// Reasons a middleware refuses a request. Handlers map each to a reply in
// the user's language.
var (
	ErrDenied         = errors.New("channel: sender not allowed")
	ErrNotSubscribed  = errors.New("channel: sender not subscribed")
	ErrBudgetExceeded = errors.New("channel: budget exceeded")
	ErrRateLimited    = errors.New("channel: too many requests")
)
