package escrow

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"vaultix/core/types"
)

const (
	EventTypeEscrowCreated           = "escrow.created"
	EventTypeEscrowFunded            = "escrow.funded"
	EventTypeEscrowMilestoneReleased = "escrow.milestone_released"
	EventTypeEscrowCancelled         = "escrow.cancelled"
	EventTypeEscrowCompleted         = "escrow.completed"
)

// NewCreatedEvent returns the canonical event payload for a newly created
// escrow.
func NewCreatedEvent(e *Escrow) *types.Event { return newEscrowEvent(EventTypeEscrowCreated, e) }

// NewFundedEvent returns the canonical event payload emitted when the full
// escrow amount enters custody.
func NewFundedEvent(e *Escrow) *types.Event { return newEscrowEvent(EventTypeEscrowFunded, e) }

// NewReleasedEvent returns the canonical event payload for a milestone payout.
func NewReleasedEvent(e *Escrow, index uint32, amount *big.Int) *types.Event {
	evt := newEscrowEvent(EventTypeEscrowMilestoneReleased, e)
	evt.Attributes["milestoneIndex"] = strconv.FormatUint(uint64(index), 10)
	if amount != nil {
		evt.Attributes["milestoneAmount"] = amount.String()
	}
	return evt
}

// NewCancelledEvent returns the canonical event payload emitted when an escrow
// is cancelled and any custody refunded.
func NewCancelledEvent(e *Escrow) *types.Event { return newEscrowEvent(EventTypeEscrowCancelled, e) }

// NewCompletedEvent returns the canonical event payload emitted once every
// milestone has been released.
func NewCompletedEvent(e *Escrow) *types.Event { return newEscrowEvent(EventTypeEscrowCompleted, e) }

func newEscrowEvent(eventType string, e *Escrow) *types.Event {
	attrs := make(map[string]string)
	if e == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeEscrow(e)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = strconv.FormatUint(sanitized.ID, 10)
	attrs["depositor"] = hex.EncodeToString(sanitized.Depositor[:])
	attrs["recipient"] = hex.EncodeToString(sanitized.Recipient[:])
	attrs["asset"] = sanitized.Asset
	attrs["totalAmount"] = sanitized.TotalAmount.String()
	attrs["totalReleased"] = sanitized.TotalReleased.String()
	attrs["status"] = sanitized.Status.String()
	attrs["deadline"] = strconv.FormatInt(sanitized.Deadline, 10)
	attrs["createdAt"] = strconv.FormatInt(sanitized.CreatedAt, 10)
	return &types.Event{Type: eventType, Attributes: attrs}
}
