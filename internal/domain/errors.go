package domain

import "errors"

var (
	// ErrValidation marks bad user input; callers report it to the issuer and change nothing.
	ErrValidation = errors.New("validation failed")
	// ErrStorage marks a persistence failure; scheduling continues on its next tick.
	ErrStorage = errors.New("storage unavailable")
	// ErrDelivery marks a send the platform rejected or failed.
	ErrDelivery = errors.New("delivery failed")
)
