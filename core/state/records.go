package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"vaultix/native/confirm"
	"vaultix/native/escrow"
)

// Persisted record layouts. RLP has no signed integers, so timestamps are
// stored as uint64; amounts are strictly non-negative by construction.

type storedMilestone struct {
	Amount      *big.Int
	Status      uint8
	Description string
}

type storedEscrow struct {
	ID            uint64
	Depositor     [20]byte
	Recipient     [20]byte
	Asset         string
	TotalAmount   *big.Int
	TotalReleased *big.Int
	Milestones    []storedMilestone
	Status        uint8
	Deadline      uint64
	CreatedAt     uint64
}

type storedConfirmation struct {
	Party       [20]byte
	State       uint8
	ConfirmedAt uint64
	Count       uint32
}

type storedThreshold struct {
	Mode     uint8
	Required uint32
}

func encodeEscrow(e *escrow.Escrow) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("state: nil escrow")
	}
	record := storedEscrow{
		ID:            e.ID,
		Depositor:     e.Depositor,
		Recipient:     e.Recipient,
		Asset:         e.Asset,
		TotalAmount:   e.TotalAmount,
		TotalReleased: e.TotalReleased,
		Milestones:    make([]storedMilestone, len(e.Milestones)),
		Status:        uint8(e.Status),
		Deadline:      uint64(e.Deadline),
		CreatedAt:     uint64(e.CreatedAt),
	}
	for i, m := range e.Milestones {
		record.Milestones[i] = storedMilestone{
			Amount:      m.Amount,
			Status:      uint8(m.Status),
			Description: m.Description,
		}
	}
	return rlp.EncodeToBytes(&record)
}

func decodeEscrow(data []byte) (*escrow.Escrow, error) {
	var record storedEscrow
	if err := rlp.DecodeBytes(data, &record); err != nil {
		return nil, err
	}
	e := &escrow.Escrow{
		ID:            record.ID,
		Depositor:     record.Depositor,
		Recipient:     record.Recipient,
		Asset:         record.Asset,
		TotalAmount:   record.TotalAmount,
		TotalReleased: record.TotalReleased,
		Milestones:    make([]*escrow.Milestone, len(record.Milestones)),
		Status:        escrow.Status(record.Status),
		Deadline:      int64(record.Deadline),
		CreatedAt:     int64(record.CreatedAt),
	}
	for i, m := range record.Milestones {
		e.Milestones[i] = &escrow.Milestone{
			Amount:      m.Amount,
			Status:      escrow.MilestoneStatus(m.Status),
			Description: m.Description,
		}
	}
	return e, nil
}

func encodeConfirmation(c *confirm.PartyConfirmation) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("state: nil confirmation")
	}
	record := storedConfirmation{
		Party:       c.Party,
		State:       uint8(c.State),
		ConfirmedAt: uint64(c.ConfirmedAt),
		Count:       c.Count,
	}
	return rlp.EncodeToBytes(&record)
}

func decodeConfirmation(data []byte) (*confirm.PartyConfirmation, error) {
	var record storedConfirmation
	if err := rlp.DecodeBytes(data, &record); err != nil {
		return nil, err
	}
	return &confirm.PartyConfirmation{
		Party:       record.Party,
		State:       confirm.State(record.State),
		ConfirmedAt: int64(record.ConfirmedAt),
		Count:       record.Count,
	}, nil
}

func encodeThreshold(t confirm.Threshold) ([]byte, error) {
	return rlp.EncodeToBytes(&storedThreshold{Mode: uint8(t.Mode), Required: t.Required})
}

func decodeThreshold(data []byte) (confirm.Threshold, error) {
	var record storedThreshold
	if err := rlp.DecodeBytes(data, &record); err != nil {
		return confirm.Threshold{}, err
	}
	return confirm.Threshold{Mode: confirm.ThresholdMode(record.Mode), Required: record.Required}, nil
}
