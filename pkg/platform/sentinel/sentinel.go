package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and services translate them into domain errors:
//   - ErrNotFound: entity does not exist in store
//   - ErrAlreadyUsed: a single-use record (claim, nonce) was already consumed
//   - ErrConflict: a uniqueness constraint rejected the write
//   - ErrExpired: a time-bound record (challenge nonce) has lapsed
//   - ErrInvalidState: the store was asked to do something its contract forbids
//   - ErrUnavailable: backing service temporarily unavailable
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrExpired     = errors.New("expired")
	ErrAlreadyUsed = errors.New("already used")
	ErrUnavailable = errors.New("unavailable")

	ErrInvalidState = errors.New("invalid state")
)
