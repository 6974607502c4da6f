package escrow

import (
	"fmt"
	"math/big"
	"strings"
)

// Status represents the lifecycle states of a custodial escrow.
type Status uint8

const (
	// StatusCreated marks escrows that exist but have not been funded yet.
	StatusCreated Status = iota
	// StatusActive marks escrows whose full amount is locked in custody.
	StatusActive
	// StatusCompleted marks escrows that have released every milestone.
	StatusCompleted
	// StatusCancelled marks escrows cancelled before any milestone payout.
	// Cancelled escrows accept no further transitions.
	StatusCancelled
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusActive, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusActive:
		return "active"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// MilestoneStatus represents the state of an individual milestone.
type MilestoneStatus uint8

const (
	// MilestonePending indicates a milestone awaiting release.
	MilestonePending MilestoneStatus = iota
	// MilestoneReleased indicates the milestone amount has been paid out to
	// the recipient. Released milestones never revert.
	MilestoneReleased
	// MilestoneDisputed is reserved for dispute handling. No transition in
	// this engine produces it.
	MilestoneDisputed
)

// Valid reports whether the milestone status is within the supported range.
func (s MilestoneStatus) Valid() bool {
	switch s {
	case MilestonePending, MilestoneReleased, MilestoneDisputed:
		return true
	default:
		return false
	}
}

func (s MilestoneStatus) String() string {
	switch s {
	case MilestonePending:
		return "pending"
	case MilestoneReleased:
		return "released"
	case MilestoneDisputed:
		return "disputed"
	default:
		return fmt.Sprintf("milestone(%d)", uint8(s))
	}
}

// MaxMilestones bounds the milestone vector so the linear validation and
// summation pass stays cheap on every mutation.
const MaxMilestones = 20

// maxAmount is the largest value representable as a signed 128-bit integer.
// All escrow amounts and running sums are checked against it.
var maxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))

// fitsAmount reports whether a non-negative value fits the signed 128-bit range.
func fitsAmount(v *big.Int) bool {
	return v.Sign() >= 0 && v.Cmp(maxAmount) <= 0
}

// Milestone captures a single fixed-amount tranche of an escrow.
type Milestone struct {
	Amount      *big.Int
	Status      MilestoneStatus
	Description string
}

// Clone returns a deep copy of the milestone so callers can safely mutate the
// copy without affecting the stored instance.
func (m *Milestone) Clone() *Milestone {
	if m == nil {
		return nil
	}
	clone := *m
	if m.Amount != nil {
		clone.Amount = new(big.Int).Set(m.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// Validate ensures the milestone fields are sane prior to persistence.
func (m *Milestone) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: milestone must not be nil", ErrZeroAmount)
	}
	if m.Amount == nil || m.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: milestone amount must be positive", ErrZeroAmount)
	}
	if !fitsAmount(m.Amount) {
		return fmt.Errorf("%w: milestone amount exceeds 128-bit range", ErrInvalidAmount)
	}
	if !m.Status.Valid() {
		return fmt.Errorf("%w: invalid milestone status %d", ErrInvalidAmount, m.Status)
	}
	return nil
}

// Escrow captures the parties, custody accounting and milestone schedule of a
// single escrow agreement. The identifier is externally assigned and unique.
type Escrow struct {
	ID            uint64
	Depositor     [20]byte
	Recipient     [20]byte
	Asset         string
	TotalAmount   *big.Int
	TotalReleased *big.Int
	Milestones    []*Milestone
	Status        Status
	Deadline      int64
	CreatedAt     int64
}

// Clone returns a deep copy of the escrow object so callers can safely mutate
// the copy without affecting the stored instance.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	if e.TotalAmount != nil {
		clone.TotalAmount = new(big.Int).Set(e.TotalAmount)
	} else {
		clone.TotalAmount = big.NewInt(0)
	}
	if e.TotalReleased != nil {
		clone.TotalReleased = new(big.Int).Set(e.TotalReleased)
	} else {
		clone.TotalReleased = big.NewInt(0)
	}
	if len(e.Milestones) > 0 {
		clone.Milestones = make([]*Milestone, len(e.Milestones))
		for i, m := range e.Milestones {
			clone.Milestones[i] = m.Clone()
		}
	}
	return &clone
}

// AllReleased reports whether every milestone has been paid out.
func (e *Escrow) AllReleased() bool {
	if e == nil || len(e.Milestones) == 0 {
		return false
	}
	for _, m := range e.Milestones {
		if m == nil || m.Status != MilestoneReleased {
			return false
		}
	}
	return true
}

// NormalizeAsset canonicalises an asset symbol to its trimmed uppercase form.
func NormalizeAsset(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return "", fmt.Errorf("escrow: empty asset symbol")
	}
	return trimmed, nil
}

// SanitizeEscrow validates and normalises the supplied escrow record, returning
// a cloned instance with canonical asset casing and non-nil amount fields. The
// function does not mutate the original value.
func SanitizeEscrow(e *Escrow) (*Escrow, error) {
	if e == nil {
		return nil, fmt.Errorf("escrow: nil escrow")
	}
	clone := e.Clone()
	asset, err := NormalizeAsset(clone.Asset)
	if err != nil {
		return nil, err
	}
	clone.Asset = asset
	if !fitsAmount(clone.TotalAmount) {
		return nil, fmt.Errorf("%w: total amount out of range", ErrInvalidAmount)
	}
	if !fitsAmount(clone.TotalReleased) {
		return nil, fmt.Errorf("%w: total released out of range", ErrInvalidAmount)
	}
	if clone.TotalReleased.Cmp(clone.TotalAmount) > 0 {
		return nil, fmt.Errorf("%w: released exceeds total", ErrInvalidAmount)
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("escrow: invalid status %d", clone.Status)
	}
	for _, m := range clone.Milestones {
		if err := m.Validate(); err != nil {
			return nil, err
		}
	}
	return clone, nil
}
