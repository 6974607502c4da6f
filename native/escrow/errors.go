package escrow

import "errors"

// The escrow ledger reports failures through this closed error set. Callers
// match with errors.Is; wrapped variants only add context.
var (
	// ErrNotFound is returned when no escrow exists for the supplied id.
	ErrNotFound = errors.New("escrow: not found")
	// ErrAlreadyExists is returned when creating an escrow under an id that
	// is already in use.
	ErrAlreadyExists = errors.New("escrow: already exists")
	// ErrUnauthorized is returned when the acting party is not the depositor.
	ErrUnauthorized = errors.New("escrow: unauthorized caller")
	// ErrSelfDealing is returned when depositor and recipient are the same
	// party.
	ErrSelfDealing = errors.New("escrow: depositor and recipient must differ")
	// ErrVectorTooLarge is returned when more than MaxMilestones milestones
	// are supplied.
	ErrVectorTooLarge = errors.New("escrow: too many milestones")
	// ErrZeroAmount is returned when a milestone amount is zero or negative.
	ErrZeroAmount = errors.New("escrow: milestone amount must be positive")
	// ErrInvalidAmount is returned when an amount or running sum leaves the
	// signed 128-bit range.
	ErrInvalidAmount = errors.New("escrow: amount out of range")
	// ErrNotActive is returned when an operation requires the Active state.
	ErrNotActive = errors.New("escrow: not active")
	// ErrAlreadyFunded is returned when funding an escrow that is no longer
	// in the Created state.
	ErrAlreadyFunded = errors.New("escrow: already funded")
	// ErrMilestoneNotFound is returned when a milestone index is out of
	// bounds.
	ErrMilestoneNotFound = errors.New("escrow: milestone not found")
	// ErrAlreadyReleased is returned when releasing a released milestone, or
	// cancelling after any payout.
	ErrAlreadyReleased = errors.New("escrow: milestone already released")
	// ErrTransferFailed wraps a value-transfer failure; the surrounding
	// state transition is discarded wholesale.
	ErrTransferFailed = errors.New("escrow: token transfer failed")
)
