package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"vaultix/core/events"
	"vaultix/core/types"
)

var (
	errNilState  = errors.New("escrow engine: state not configured")
	errNilLedger = errors.New("escrow engine: token ledger not configured")
)

// engineState is the durable-store surface the engine mutates. Implementations
// must buffer writes so the host can commit one operation atomically.
type engineState interface {
	EscrowPut(*Escrow) error
	EscrowGet(id uint64) (*Escrow, bool, error)
	EscrowHas(id uint64) (bool, error)
}

// TokenLedger is the external value-transfer collaborator. Pull moves funds
// from a party into custody and requires a prior allowance; Push moves funds
// out of custody. Both are fallible and a failure must abort the operation.
type TokenLedger interface {
	Pull(asset string, from, to [20]byte, amount *big.Int) error
	Push(asset string, from, to [20]byte, amount *big.Int) error
	VaultAddress(asset string) [20]byte
}

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// Engine wires the escrow lifecycle logic with external state, the token
// ledger and event emitters.
type Engine struct {
	state   engineState
	ledger  TokenLedger
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates an escrow engine with a no-op emitter. Callers can override
// the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the value-transfer collaborator.
func (e *Engine) SetLedger(ledger TokenLedger) { e.ledger = ledger }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(escrowEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) loadEscrow(id uint64) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	esc, ok, err := e.state.EscrowGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return esc, nil
}

func (e *Engine) storeEscrow(esc *Escrow) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.EscrowPut(esc)
}

// sumMilestones validates each milestone amount and returns the running total,
// checked against the signed 128-bit range at every step.
func sumMilestones(milestones []*Milestone) (*big.Int, error) {
	total := big.NewInt(0)
	for _, m := range milestones {
		if m == nil || m.Amount == nil || m.Amount.Sign() <= 0 {
			return nil, ErrZeroAmount
		}
		total = new(big.Int).Add(total, m.Amount)
		if !fitsAmount(total) {
			return nil, ErrInvalidAmount
		}
	}
	return total, nil
}

// Create initialises and persists a new escrow in the Created state. No value
// transfer occurs; funds are locked separately via Fund.
func (e *Engine) Create(id uint64, depositor, recipient [20]byte, asset string, milestones []*Milestone, deadline int64) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if depositor == recipient {
		return nil, ErrSelfDealing
	}
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	exists, err := e.state.EscrowHas(id)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyExists
	}
	if len(milestones) > MaxMilestones {
		return nil, ErrVectorTooLarge
	}
	total, err := sumMilestones(milestones)
	if err != nil {
		return nil, err
	}
	if total.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	normalizedMilestones := make([]*Milestone, len(milestones))
	for i, m := range milestones {
		clone := m.Clone()
		clone.Status = MilestonePending
		normalizedMilestones[i] = clone
	}
	esc := &Escrow{
		ID:            id,
		Depositor:     depositor,
		Recipient:     recipient,
		Asset:         normalized,
		TotalAmount:   total,
		TotalReleased: big.NewInt(0),
		Milestones:    normalizedMilestones,
		Status:        StatusCreated,
		Deadline:      deadline,
		CreatedAt:     e.now(),
	}
	if err := e.storeEscrow(esc); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(esc))
	return esc.Clone(), nil
}

// Fund pulls the escrow total from the depositor into the custody vault and
// marks the escrow Active. The depositor must have granted an allowance to the
// vault beforehand.
func (e *Engine) Fund(id uint64, caller [20]byte) error {
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if caller != esc.Depositor {
		return ErrUnauthorized
	}
	if esc.Status != StatusCreated {
		return ErrAlreadyFunded
	}
	if e.ledger == nil {
		return errNilLedger
	}
	vault := e.ledger.VaultAddress(esc.Asset)
	if err := e.ledger.Pull(esc.Asset, esc.Depositor, vault, esc.TotalAmount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	esc.Status = StatusActive
	if err := e.storeEscrow(esc); err != nil {
		return err
	}
	e.emit(NewFundedEvent(esc))
	return nil
}

// Release pays out one milestone to the recipient. Re-invocation on a released
// index fails cleanly; a milestone is never paid twice.
func (e *Engine) Release(id uint64, caller [20]byte, index uint32) error {
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if caller != esc.Depositor {
		return ErrUnauthorized
	}
	if esc.Status != StatusActive {
		return ErrNotActive
	}
	if int(index) >= len(esc.Milestones) {
		return ErrMilestoneNotFound
	}
	milestone := esc.Milestones[index]
	if milestone.Status == MilestoneReleased {
		return ErrAlreadyReleased
	}
	if e.ledger == nil {
		return errNilLedger
	}
	vault := e.ledger.VaultAddress(esc.Asset)
	if err := e.ledger.Push(esc.Asset, vault, esc.Recipient, milestone.Amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	milestone.Status = MilestoneReleased
	released := new(big.Int).Add(esc.TotalReleased, milestone.Amount)
	if !fitsAmount(released) || released.Cmp(esc.TotalAmount) > 0 {
		return ErrInvalidAmount
	}
	esc.TotalReleased = released
	if err := e.storeEscrow(esc); err != nil {
		return err
	}
	e.emit(NewReleasedEvent(esc, index, milestone.Amount))
	return nil
}

// Cancel voids the escrow before any milestone payout. A funded escrow refunds
// its full amount to the depositor; an unfunded one transitions without any
// transfer.
func (e *Engine) Cancel(id uint64, caller [20]byte) error {
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if caller != esc.Depositor {
		return ErrUnauthorized
	}
	if esc.TotalReleased != nil && esc.TotalReleased.Sign() > 0 {
		return ErrAlreadyReleased
	}
	if esc.Status == StatusActive {
		if e.ledger == nil {
			return errNilLedger
		}
		vault := e.ledger.VaultAddress(esc.Asset)
		if err := e.ledger.Push(esc.Asset, vault, esc.Depositor, esc.TotalAmount); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	}
	esc.Status = StatusCancelled
	if err := e.storeEscrow(esc); err != nil {
		return err
	}
	e.emit(NewCancelledEvent(esc))
	return nil
}

// Complete marks the escrow Completed once every milestone has been released.
// Pure bookkeeping, no transfer.
func (e *Engine) Complete(id uint64, caller [20]byte) error {
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if caller != esc.Depositor {
		return ErrUnauthorized
	}
	if !esc.AllReleased() {
		return ErrNotActive
	}
	esc.Status = StatusCompleted
	if err := e.storeEscrow(esc); err != nil {
		return err
	}
	e.emit(NewCompletedEvent(esc))
	return nil
}

// Get returns a copy of the stored escrow record.
func (e *Engine) Get(id uint64) (*Escrow, error) {
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	return esc.Clone(), nil
}

// StatusOf returns the lifecycle status of the escrow.
func (e *Engine) StatusOf(id uint64) (Status, error) {
	esc, err := e.loadEscrow(id)
	if err != nil {
		return 0, err
	}
	return esc.Status, nil
}
