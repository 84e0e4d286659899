package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidOrder       = errors.New("invalid order parameters")
	ErrOrderRejected      = errors.New("order rejected")
	ErrSigningFailed      = errors.New("signing failed")
	ErrWSDisconnect       = errors.New("websocket disconnected")
	ErrLockHeld           = errors.New("lock already held")
	ErrMalformedQuote     = errors.New("malformed quote")
	ErrDuplicateCondition = errors.New("duplicate condition id")
	ErrStalePeriod        = errors.New("stale period")
	ErrActivePosition     = errors.New("active position exists")
	ErrTooLate            = errors.New("not enough time remaining")
	ErrInvalidTransition  = errors.New("invalid position transition")
	ErrNoMarket           = errors.New("no market discovered")
	ErrSettlementFailed   = errors.New("settlement failed")
)
