package notifications

import "errors"

// Pipeline errors.
var (
	ErrJobNotFound = errors.New("notification job not found")
	ErrNoRecipient = errors.New("no recipient resolved")
)
