package burn

import "errors"

var (
	ErrUnauthorized       = errors.New("burn: unauthorized")
	ErrInactive           = errors.New("burn: ledger inactive")
	ErrUntrustedCaller    = errors.New("burn: caller is not the registered item registry")
	ErrIneligibleItem     = errors.New("burn: item does not meet the trait restriction")
	ErrExpectationNotMet  = errors.New("burn: actual reward less than expected reward")
	ErrPoolExhausted      = errors.New("burn: not enough rewards left in pool")
	ErrPoolBusy           = errors.New("burn: pools still hold rewards")
	ErrMalformedRequest   = errors.New("burn: malformed request")
	ErrNotInitialized     = errors.New("burn: ledger not initialized")
	ErrAlreadyInitialized = errors.New("burn: ledger already initialized")
	ErrInvalidPool        = errors.New("burn: invalid pool")
	ErrUnknownToken       = errors.New("burn: caller is not a registered pool token")
	ErrInvalidRank        = errors.New("burn: invalid rank entry")

	errNilState    = errors.New("burn engine: state not configured")
	errNilRegistry = errors.New("burn engine: item registry not configured")
	errNilVerifier = errors.New("burn engine: credential verifier not configured")
)
