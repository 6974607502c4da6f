package confirm

import "errors"

// The confirmation ledger reports failures through this closed error set.
var (
	// ErrUnauthorizedParty is returned when the caller is not in the
	// authorized party list.
	ErrUnauthorizedParty = errors.New("confirm: caller is not an authorized party")
	// ErrDuplicateConfirmation is returned when a party confirms twice.
	ErrDuplicateConfirmation = errors.New("confirm: party already confirmed")
	// ErrEscrowLocked is returned once the overlay status is Locked.
	ErrEscrowLocked = errors.New("confirm: escrow confirmations are locked")
	// ErrEmptyPartyList is returned when no authorized parties are supplied.
	ErrEmptyPartyList = errors.New("confirm: party list is empty")
	// ErrInvalidThreshold is returned for malformed threshold policies.
	ErrInvalidThreshold = errors.New("confirm: invalid threshold")
	// ErrPartySetChanged is returned when a confirmation supplies a party
	// set that differs from the one recorded at the first confirmation.
	ErrPartySetChanged = errors.New("confirm: party set differs from recorded set")
	// ErrThresholdChanged is returned when a confirmation supplies a policy
	// that differs from the one recorded at the first confirmation.
	ErrThresholdChanged = errors.New("confirm: threshold differs from recorded policy")
)
