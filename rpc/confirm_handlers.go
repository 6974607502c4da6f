package rpc

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"vaultix/crypto"
	"vaultix/native/confirm"
)

const (
	codeConfirmInvalidParams = -32031
	codeConfirmForbidden     = -32032
	codeConfirmConflict      = -32033
	codeConfirmLocked        = -32034
	codeConfirmInternal      = -32035
)

type thresholdParams struct {
	Mode     string `json:"mode"`
	Required uint32 `json:"required,omitempty"`
}

func (p thresholdParams) toThreshold() (confirm.Threshold, error) {
	switch strings.ToLower(strings.TrimSpace(p.Mode)) {
	case "all":
		return confirm.Threshold{Mode: confirm.ThresholdAll}, nil
	case "majority":
		return confirm.Threshold{Mode: confirm.ThresholdMajority}, nil
	case "custom":
		return confirm.Threshold{Mode: confirm.ThresholdCustom, Required: p.Required}, nil
	default:
		return confirm.Threshold{}, fmt.Errorf("unknown threshold mode %q", p.Mode)
	}
}

type confirmParams struct {
	EscrowID  uint64          `json:"escrowId"`
	Caller    string          `json:"caller"`
	Parties   []string        `json:"parties"`
	Threshold thresholdParams `json:"threshold"`
}

type confirmIDParams struct {
	EscrowID uint64 `json:"escrowId"`
}

type confirmPartyParams struct {
	EscrowID uint64 `json:"escrowId"`
	Party    string `json:"party"`
}

type confirmRemainingParams struct {
	EscrowID     uint64          `json:"escrowId"`
	Threshold    thresholdParams `json:"threshold"`
	TotalParties uint32          `json:"totalParties"`
}

type confirmEventJSON struct {
	EscrowID     uint64 `json:"escrowId"`
	Party        string `json:"party"`
	ConfirmedAt  int64  `json:"confirmedAt"`
	Count        uint32 `json:"count"`
	ThresholdMet bool   `json:"thresholdMet"`
}

func writeConfirmError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, confirm.ErrEscrowLocked):
		writeError(w, http.StatusConflict, id, codeConfirmLocked, err.Error(), nil)
	case errors.Is(err, confirm.ErrUnauthorizedParty):
		writeError(w, http.StatusForbidden, id, codeConfirmForbidden, err.Error(), nil)
	case errors.Is(err, confirm.ErrEmptyPartyList), errors.Is(err, confirm.ErrInvalidThreshold):
		writeError(w, http.StatusBadRequest, id, codeConfirmInvalidParams, err.Error(), nil)
	case errors.Is(err, confirm.ErrDuplicateConfirmation), errors.Is(err, confirm.ErrPartySetChanged),
		errors.Is(err, confirm.ErrThresholdChanged):
		writeError(w, http.StatusConflict, id, codeConfirmConflict, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, id, codeConfirmInternal, "internal error", err.Error())
	}
}

func decodeParties(raw []string) ([][20]byte, error) {
	parties := make([][20]byte, len(raw))
	for i, p := range raw {
		addr, err := crypto.DecodeAddress(p)
		if err != nil {
			return nil, fmt.Errorf("party %d: %w", i, err)
		}
		parties[i] = addr.Raw()
	}
	return parties, nil
}

func (s *Server) handleConfirm(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params confirmParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeConfirmInvalidParams, "invalid params", err.Error())
		return
	}
	caller, err := crypto.DecodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeConfirmInvalidParams, "invalid caller address", err.Error())
		return
	}
	parties, err := decodeParties(params.Parties)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeConfirmInvalidParams, "invalid party address", err.Error())
		return
	}
	threshold, err := params.Threshold.toThreshold()
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeConfirmInvalidParams, "invalid threshold", err.Error())
		return
	}

	tx := s.state.Begin()
	engine := s.confirmEngine(tx)
	event, err := engine.Confirm(params.EscrowID, caller.Raw(), parties, threshold)
	if err != nil {
		tx.Discard()
		writeConfirmError(w, req.ID, err)
		return
	}
	if err := tx.Commit(); err != nil {
		writeConfirmError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, confirmEventJSON{
		EscrowID:     event.EscrowID,
		Party:        crypto.FromRaw(event.Party).String(),
		ConfirmedAt:  event.ConfirmedAt,
		Count:        event.Count,
		ThresholdMet: event.ThresholdMet,
	})
}

func (s *Server) handleConfirmLock(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params confirmIDParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeConfirmInvalidParams, "invalid params", err.Error())
		return
	}

	tx := s.state.Begin()
	engine := s.confirmEngine(tx)
	if err := engine.Lock(params.EscrowID); err != nil {
		tx.Discard()
		writeConfirmError(w, req.ID, err)
		return
	}
	if err := tx.Commit(); err != nil {
		writeConfirmError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": confirm.StatusLocked.String()})
}

func (s *Server) handleConfirmGetStatus(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params confirmIDParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeConfirmInvalidParams, "invalid params", err.Error())
		return
	}

	tx := s.state.Begin()
	defer tx.Discard()
	status, err := s.confirmEngine(tx).StatusOf(params.EscrowID)
	if err != nil {
		writeConfirmError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": status.String()})
}

func (s *Server) handleConfirmGetCount(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params confirmIDParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeConfirmInvalidParams, "invalid params", err.Error())
		return
	}

	tx := s.state.Begin()
	defer tx.Discard()
	count, err := s.confirmEngine(tx).Count(params.EscrowID)
	if err != nil {
		writeConfirmError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint32{"count": count})
}

func (s *Server) handleConfirmGetPartyState(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params confirmPartyParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeConfirmInvalidParams, "invalid params", err.Error())
		return
	}
	party, err := crypto.DecodeAddress(params.Party)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeConfirmInvalidParams, "invalid party address", err.Error())
		return
	}

	tx := s.state.Begin()
	defer tx.Discard()
	stateValue, err := s.confirmEngine(tx).PartyState(params.EscrowID, party.Raw())
	if err != nil {
		writeConfirmError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"state": stateValue.String()})
}

func (s *Server) handleConfirmCanConfirm(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params confirmPartyParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeConfirmInvalidParams, "invalid params", err.Error())
		return
	}
	party, err := crypto.DecodeAddress(params.Party)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeConfirmInvalidParams, "invalid party address", err.Error())
		return
	}

	tx := s.state.Begin()
	defer tx.Discard()
	able, err := s.confirmEngine(tx).CanConfirm(params.EscrowID, party.Raw())
	if err != nil {
		writeConfirmError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"canConfirm": able})
}

func (s *Server) handleConfirmRemaining(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params confirmRemainingParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeConfirmInvalidParams, "invalid params", err.Error())
		return
	}
	threshold, err := params.Threshold.toThreshold()
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeConfirmInvalidParams, "invalid threshold", err.Error())
		return
	}
	if err := threshold.Validate(); err != nil {
		writeConfirmError(w, req.ID, err)
		return
	}

	tx := s.state.Begin()
	defer tx.Discard()
	remaining, err := s.confirmEngine(tx).RemainingOf(params.EscrowID, threshold, params.TotalParties)
	if err != nil {
		writeConfirmError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint32{"remaining": remaining})
}
