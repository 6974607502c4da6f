package confirm

import (
	"encoding/hex"
	"strconv"

	"vaultix/core/types"
)

const (
	EventTypeConfirmed = "confirm.recorded"
	EventTypeLocked    = "confirm.locked"
)

// NewConfirmedEvent returns the canonical event payload for a recorded
// confirmation.
func NewConfirmedEvent(e *Event) *types.Event {
	attrs := make(map[string]string)
	if e == nil {
		return &types.Event{Type: EventTypeConfirmed, Attributes: attrs}
	}
	attrs["escrowId"] = strconv.FormatUint(e.EscrowID, 10)
	attrs["party"] = hex.EncodeToString(e.Party[:])
	attrs["confirmedAt"] = strconv.FormatInt(e.ConfirmedAt, 10)
	attrs["confirmations"] = strconv.FormatUint(uint64(e.Count), 10)
	attrs["thresholdMet"] = strconv.FormatBool(e.ThresholdMet)
	return &types.Event{Type: EventTypeConfirmed, Attributes: attrs}
}

// NewLockedEvent returns the canonical event payload emitted when the
// confirmation ledger closes for an escrow.
func NewLockedEvent(escrowID uint64) *types.Event {
	return &types.Event{
		Type: EventTypeLocked,
		Attributes: map[string]string{
			"escrowId": strconv.FormatUint(escrowID, 10),
		},
	}
}
