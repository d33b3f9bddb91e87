// Copyright 2025 Certen Protocol
//
// Error taxonomy for the Dragon Net verification core. Each kind carries the
// HTTP status it surfaces as, per §7. Sentinel values are used where no
// extra context is needed; typed errors carry the extra fields callers
// need (e.g. the level a block is actually accepting).

package dnerrors

import (
	"errors"
	"fmt"
)

// Sentinel errors with no additional context.
var (
	ErrBadRequest          = errors.New("bad request")
	ErrValidation          = errors.New("validation failed")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("action forbidden")
	ErrRateLimited         = errors.New("api rate limit exceeded")
	ErrNotFound            = errors.New("not found")
	ErrContractConflict    = errors.New("contract conflict")
	ErrTxnTypeConflict     = errors.New("transaction type conflict")
	ErrInterchainConflict  = errors.New("interchain conflict")
	ErrContractLimit       = errors.New("contract limit exceeded")
	ErrBadState            = errors.New("bad state")
	ErrInvalidNodeLevel    = errors.New("invalid node level")
	ErrNotEnoughCrypto     = errors.New("not enough crypto")
	ErrAddressRegistration = errors.New("address registration failure")
	ErrRPCError            = errors.New("rpc error")
	ErrStorage             = errors.New("storage error")
	ErrSanityCheckFailure  = errors.New("sanity check failure")

	// ErrTransactionNotFound is raised by an interchain adapter when a
	// previously published transaction can no longer be found on the
	// external chain (it was dropped from the mempool / reorged out).
	ErrTransactionNotFound = errors.New("rpc transaction not found")
)

// NotAcceptingVerifications is raised when a receipt arrives for a level a
// block is not currently accepting (HTTP 412).
type NotAcceptingVerifications struct {
	BlockID        string
	AcceptingLevel int
	GotLevel       int
}

func (e *NotAcceptingVerifications) Error() string {
	return fmt.Sprintf("block %s is only accepting verifications for level %d (not %d) at the moment", e.BlockID, e.AcceptingLevel, e.GotLevel)
}

// InsufficientFunds is raised by the matchmaking/anchor collaborators when
// an L5 node cannot afford to anchor. The broadcast processor's main loop
// treats this as a signal to sleep the whole batch for 30 minutes.
type InsufficientFunds struct {
	ChainID string
	Have    int64
	Need    int64
}

func (e *InsufficientFunds) Error() string {
	return fmt.Sprintf("chain %s has insufficient funds: have %d, need %d", e.ChainID, e.Have, e.Need)
}

// HTTPStatus maps a core error to the HTTP status code it surfaces as (§7).
// Unrecognized errors map to 500.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return 200
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrValidation):
		return 400
	case errors.Is(err, ErrUnauthorized):
		return 401
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrContractLimit):
		return 403
	case errors.Is(err, ErrNotFound):
		return 404
	case errors.Is(err, ErrContractConflict), errors.Is(err, ErrTxnTypeConflict), errors.Is(err, ErrInterchainConflict):
		return 409
	case errors.Is(err, ErrBadState), errors.Is(err, ErrInvalidNodeLevel), errors.Is(err, ErrNotEnoughCrypto):
		return 400
	case isNotAcceptingVerifications(err):
		return 412
	case errors.Is(err, ErrRateLimited):
		return 429
	case errors.Is(err, ErrRPCError), errors.Is(err, ErrStorage), errors.Is(err, ErrSanityCheckFailure):
		return 500
	default:
		return 500
	}
}

func isNotAcceptingVerifications(err error) bool {
	var target *NotAcceptingVerifications
	return errors.As(err, &target)
}
