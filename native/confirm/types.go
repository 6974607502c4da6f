package confirm

import "fmt"

// ThresholdMode selects the rule deciding how many authorized parties must
// confirm before consensus is reached.
type ThresholdMode uint8

const (
	// ThresholdAll requires every authorized party to confirm.
	ThresholdAll ThresholdMode = iota
	// ThresholdMajority requires at least ceil(n/2) of n parties.
	ThresholdMajority
	// ThresholdCustom requires a fixed number of confirmations.
	ThresholdCustom
)

// Valid reports whether the mode value is within the supported range.
func (m ThresholdMode) Valid() bool {
	switch m {
	case ThresholdAll, ThresholdMajority, ThresholdCustom:
		return true
	default:
		return false
	}
}

func (m ThresholdMode) String() string {
	switch m {
	case ThresholdAll:
		return "all"
	case ThresholdMajority:
		return "majority"
	case ThresholdCustom:
		return "custom"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Threshold is the confirmation policy. Required is only meaningful for the
// Custom mode.
type Threshold struct {
	Mode     ThresholdMode
	Required uint32
}

// Validate rejects unknown modes and a Custom requirement of zero, which would
// declare consensus before anyone confirmed.
func (t Threshold) Validate() error {
	if !t.Mode.Valid() {
		return fmt.Errorf("%w: unknown mode %d", ErrInvalidThreshold, t.Mode)
	}
	if t.Mode == ThresholdCustom && t.Required == 0 {
		return fmt.Errorf("%w: custom requirement must be positive", ErrInvalidThreshold)
	}
	return nil
}

// State represents a single party's confirmation state.
type State uint8

const (
	// StatePending indicates the party has not confirmed.
	StatePending State = iota
	// StateConfirmed indicates the party has confirmed.
	StateConfirmed
	// StateRejected is reserved for rejection handling. No transition in
	// this engine produces it.
	StateRejected
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConfirmed:
		return "confirmed"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Status is the overlay confirmation status attached to an escrow id. It is
// independent of the escrow ledger's own lifecycle status.
type Status uint8

const (
	// StatusPending is the default while confirmations accrue.
	StatusPending Status = iota
	// StatusConfirmed latches once the threshold is met.
	StatusConfirmed
	// StatusFailed is reserved for failed consensus. No transition in this
	// engine produces it.
	StatusFailed
	// StatusLocked is terminal and rejects all further confirmations.
	StatusLocked
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusFailed, StatusLocked:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	case StatusFailed:
		return "failed"
	case StatusLocked:
		return "locked"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// PartyConfirmation records one party's sign-off. Count is the global
// confirmation counter value at the moment this party last confirmed.
type PartyConfirmation struct {
	Party       [20]byte
	State       State
	ConfirmedAt int64
	Count       uint32
}

// Clone returns a copy safe for modification.
func (c *PartyConfirmation) Clone() *PartyConfirmation {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Event reports the outcome of a single confirmation call. Transient; never
// persisted.
type Event struct {
	EscrowID     uint64
	Party        [20]byte
	ConfirmedAt  int64
	Count        uint32
	ThresholdMet bool
}
