package confirm

import (
	"bytes"
	"errors"
	"sort"
	"time"

	"vaultix/core/events"
	"vaultix/core/types"
)

var errNilState = errors.New("confirm engine: state not configured")

// ledgerState is the durable-store surface holding per-escrow confirmation
// data: lazily created party records, the overlay status, the running counter
// and the policy snapshot slots.
type ledgerState interface {
	ConfirmationGet(escrowID uint64, party [20]byte) (*PartyConfirmation, bool, error)
	ConfirmationPut(escrowID uint64, conf *PartyConfirmation) error
	ConfirmationStatusGet(escrowID uint64) (Status, error)
	ConfirmationStatusSet(escrowID uint64, status Status) error
	ConfirmationCountGet(escrowID uint64) (uint32, error)
	ConfirmationCountSet(escrowID uint64, count uint32) error
	ConfirmationPartiesGet(escrowID uint64) ([][20]byte, bool, error)
	ConfirmationPartiesSet(escrowID uint64, parties [][20]byte) error
	ConfirmationThresholdGet(escrowID uint64) (Threshold, bool, error)
	ConfirmationThresholdSet(escrowID uint64, threshold Threshold) error
}

type confirmEvent struct {
	evt *types.Event
}

func (e confirmEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e confirmEvent) Event() *types.Event { return e.evt }

// Engine tracks multi-party sign-off per escrow against a threshold policy.
type Engine struct {
	state   ledgerState
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates a confirmation engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state ledgerState) { e.state = state }

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
	e.emitter.Emit(confirmEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func containsParty(parties [][20]byte, party [20]byte) bool {
	for _, p := range parties {
		if p == party {
			return true
		}
	}
	return false
}

// samePartySet compares two party lists as sets, ignoring order.
func samePartySet(a, b [][20]byte) bool {
	if len(a) != len(b) {
		return false
	}
	as := make([][20]byte, len(a))
	bs := make([][20]byte, len(b))
	copy(as, a)
	copy(bs, b)
	sort.Slice(as, func(i, j int) bool { return bytes.Compare(as[i][:], as[j][:]) < 0 })
	sort.Slice(bs, func(i, j int) bool { return bytes.Compare(bs[i][:], bs[j][:]) < 0 })
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// checkSnapshot verifies the caller-supplied parties and policy against the
// snapshot recorded at the first confirmation, persisting the snapshot when
// none exists yet. A moving party set or policy would corrupt the meaning of
// "majority" mid-flight, so mismatches are rejected rather than recomputed.
func (e *Engine) checkSnapshot(escrowID uint64, parties [][20]byte, threshold Threshold) error {
	recorded, ok, err := e.state.ConfirmationPartiesGet(escrowID)
	if err != nil {
		return err
	}
	if ok {
		if !samePartySet(recorded, parties) {
			return ErrPartySetChanged
		}
	} else if err := e.state.ConfirmationPartiesSet(escrowID, parties); err != nil {
		return err
	}
	recordedThreshold, ok, err := e.state.ConfirmationThresholdGet(escrowID)
	if err != nil {
		return err
	}
	if ok {
		if recordedThreshold != threshold {
			return ErrThresholdChanged
		}
	} else if err := e.state.ConfirmationThresholdSet(escrowID, threshold); err != nil {
		return err
	}
	return nil
}

// Confirm records one party's sign-off and reports whether the threshold was
// met by this call. Once the overlay status latches to Confirmed it is never
// cleared; Lock is the only transition that closes the ledger.
func (e *Engine) Confirm(escrowID uint64, caller [20]byte, parties [][20]byte, threshold Threshold) (*Event, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	status, err := e.state.ConfirmationStatusGet(escrowID)
	if err != nil {
		return nil, err
	}
	if status == StatusLocked {
		return nil, ErrEscrowLocked
	}
	if len(parties) == 0 {
		return nil, ErrEmptyPartyList
	}
	if !containsParty(parties, caller) {
		return nil, ErrUnauthorizedParty
	}
	existing, ok, err := e.state.ConfirmationGet(escrowID, caller)
	if err != nil {
		return nil, err
	}
	if ok && existing.State == StateConfirmed {
		return nil, ErrDuplicateConfirmation
	}
	if err := threshold.Validate(); err != nil {
		return nil, err
	}
	if err := e.checkSnapshot(escrowID, parties, threshold); err != nil {
		return nil, err
	}

	count, err := e.state.ConfirmationCountGet(escrowID)
	if err != nil {
		return nil, err
	}
	count++
	timestamp := e.now()
	conf := &PartyConfirmation{
		Party:       caller,
		State:       StateConfirmed,
		ConfirmedAt: timestamp,
		Count:       count,
	}
	if err := e.state.ConfirmationPut(escrowID, conf); err != nil {
		return nil, err
	}
	if err := e.state.ConfirmationCountSet(escrowID, count); err != nil {
		return nil, err
	}

	met := Met(threshold, count, uint32(len(parties)))
	if met && status != StatusConfirmed {
		if err := e.state.ConfirmationStatusSet(escrowID, StatusConfirmed); err != nil {
			return nil, err
		}
	}

	event := &Event{
		EscrowID:     escrowID,
		Party:        caller,
		ConfirmedAt:  timestamp,
		Count:        count,
		ThresholdMet: met,
	}
	e.emit(NewConfirmedEvent(event))
	return event, nil
}

// Lock closes the confirmation ledger for an escrow unconditionally. Intended
// to be called once the escrow reaches a terminal lifecycle state; the engine
// does not wire that call itself.
func (e *Engine) Lock(escrowID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.state.ConfirmationStatusSet(escrowID, StatusLocked); err != nil {
		return err
	}
	e.emit(NewLockedEvent(escrowID))
	return nil
}

// StatusOf returns the overlay confirmation status, defaulting to Pending when
// no confirmation activity has been recorded.
func (e *Engine) StatusOf(escrowID uint64) (Status, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.ConfirmationStatusGet(escrowID)
}

// Count returns the running confirmation counter for an escrow.
func (e *Engine) Count(escrowID uint64) (uint32, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.ConfirmationCountGet(escrowID)
}

// PartyState returns the recorded confirmation state for a party, defaulting
// to Pending when the party has never confirmed.
func (e *Engine) PartyState(escrowID uint64, party [20]byte) (State, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	conf, ok, err := e.state.ConfirmationGet(escrowID, party)
	if err != nil {
		return 0, err
	}
	if !ok {
		return StatePending, nil
	}
	return conf.State, nil
}

// CanConfirm reports whether a party is still able to confirm: false once the
// ledger is locked or the party already holds a Confirmed record.
func (e *Engine) CanConfirm(escrowID uint64, party [20]byte) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	status, err := e.state.ConfirmationStatusGet(escrowID)
	if err != nil {
		return false, err
	}
	if status == StatusLocked {
		return false, nil
	}
	conf, ok, err := e.state.ConfirmationGet(escrowID, party)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return conf.State != StateConfirmed, nil
}

// RemainingOf returns how many further confirmations the clamped requirement
// needs given the current counter.
func (e *Engine) RemainingOf(escrowID uint64, threshold Threshold, totalParties uint32) (uint32, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	count, err := e.state.ConfirmationCountGet(escrowID)
	if err != nil {
		return 0, err
	}
	return Remaining(threshold, count, totalParties), nil
}
