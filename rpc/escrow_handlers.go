package rpc

import (
	"errors"
	"net/http"

	"vaultix/core/state"
	"vaultix/crypto"
	"vaultix/native/confirm"
	"vaultix/native/escrow"
)

const (
	codeEscrowInvalidParams = -32021
	codeEscrowNotFound      = -32022
	codeEscrowForbidden     = -32023
	codeEscrowConflict      = -32024
	codeEscrowInternal      = -32025
)

type escrowCreateParams struct {
	ID         uint64 `json:"id"`
	Depositor  string `json:"depositor"`
	Recipient  string `json:"recipient"`
	Asset      string `json:"asset"`
	Milestones []struct {
		Amount      string `json:"amount"`
		Description string `json:"description,omitempty"`
	} `json:"milestones"`
	Deadline int64 `json:"deadline,omitempty"`
}

type escrowCallParams struct {
	ID     uint64 `json:"id"`
	Caller string `json:"caller"`
}

type escrowReleaseParams struct {
	ID             uint64 `json:"id"`
	Caller         string `json:"caller"`
	MilestoneIndex uint32 `json:"milestoneIndex"`
}

type escrowIDParams struct {
	ID uint64 `json:"id"`
}

type milestoneJSON struct {
	Amount      string `json:"amount"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
}

type escrowJSON struct {
	ID            uint64          `json:"id"`
	Depositor     string          `json:"depositor"`
	Recipient     string          `json:"recipient"`
	Asset         string          `json:"asset"`
	TotalAmount   string          `json:"totalAmount"`
	TotalReleased string          `json:"totalReleased"`
	Milestones    []milestoneJSON `json:"milestones"`
	Status        string          `json:"status"`
	Deadline      int64           `json:"deadline,omitempty"`
	CreatedAt     int64           `json:"createdAt"`
}

func escrowToJSON(e *escrow.Escrow) *escrowJSON {
	if e == nil {
		return nil
	}
	milestones := make([]milestoneJSON, len(e.Milestones))
	for i, m := range e.Milestones {
		milestones[i] = milestoneJSON{
			Amount:      m.Amount.String(),
			Status:      m.Status.String(),
			Description: m.Description,
		}
	}
	return &escrowJSON{
		ID:            e.ID,
		Depositor:     crypto.FromRaw(e.Depositor).String(),
		Recipient:     crypto.FromRaw(e.Recipient).String(),
		Asset:         e.Asset,
		TotalAmount:   e.TotalAmount.String(),
		TotalReleased: e.TotalReleased.String(),
		Milestones:    milestones,
		Status:        e.Status.String(),
		Deadline:      e.Deadline,
		CreatedAt:     e.CreatedAt,
	}
}

// writeEscrowError translates engine errors into the module's JSON-RPC error
// space, keeping the HTTP status aligned with the error class.
func writeEscrowError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, escrow.ErrNotFound), errors.Is(err, escrow.ErrMilestoneNotFound):
		writeError(w, http.StatusNotFound, id, codeEscrowNotFound, err.Error(), nil)
	case errors.Is(err, escrow.ErrUnauthorized), errors.Is(err, escrow.ErrSelfDealing):
		writeError(w, http.StatusForbidden, id, codeEscrowForbidden, err.Error(), nil)
	case errors.Is(err, escrow.ErrZeroAmount), errors.Is(err, escrow.ErrInvalidAmount),
		errors.Is(err, escrow.ErrVectorTooLarge):
		writeError(w, http.StatusBadRequest, id, codeEscrowInvalidParams, err.Error(), nil)
	case errors.Is(err, escrow.ErrAlreadyExists), errors.Is(err, escrow.ErrAlreadyFunded),
		errors.Is(err, escrow.ErrNotActive), errors.Is(err, escrow.ErrAlreadyReleased),
		errors.Is(err, escrow.ErrTransferFailed):
		writeError(w, http.StatusConflict, id, codeEscrowConflict, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, id, codeEscrowInternal, "internal error", err.Error())
	}
}

func (s *Server) escrowEngine(tx *state.Txn) *escrow.Engine {
	engine := escrow.NewEngine()
	engine.SetState(tx)
	engine.SetLedger(tx)
	engine.SetEmitter(s.emitter)
	engine.SetNowFunc(s.nowFn)
	return engine
}

func (s *Server) confirmEngine(tx *state.Txn) *confirm.Engine {
	engine := confirm.NewEngine()
	engine.SetState(tx)
	engine.SetEmitter(s.emitter)
	engine.SetNowFunc(s.nowFn)
	return engine
}

func (s *Server) handleEscrowCreate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params escrowCreateParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid params", err.Error())
		return
	}
	depositor, err := crypto.DecodeAddress(params.Depositor)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid depositor address", err.Error())
		return
	}
	recipient, err := crypto.DecodeAddress(params.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid recipient address", err.Error())
		return
	}
	milestones := make([]*escrow.Milestone, len(params.Milestones))
	for i, m := range params.Milestones {
		amount, err := parsePositiveBigInt(m.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid milestone amount", err.Error())
			return
		}
		milestones[i] = &escrow.Milestone{Amount: amount, Description: m.Description}
	}

	tx := s.state.Begin()
	engine := s.escrowEngine(tx)
	created, err := engine.Create(params.ID, depositor.Raw(), recipient.Raw(), params.Asset, milestones, params.Deadline)
	if err != nil {
		tx.Discard()
		writeEscrowError(w, req.ID, err)
		return
	}
	if err := tx.Commit(); err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, escrowToJSON(created))
}

func (s *Server) handleEscrowFund(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params escrowCallParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid params", err.Error())
		return
	}
	caller, err := crypto.DecodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid caller address", err.Error())
		return
	}

	tx := s.state.Begin()
	engine := s.escrowEngine(tx)
	if err := engine.Fund(params.ID, caller.Raw()); err != nil {
		tx.Discard()
		writeEscrowError(w, req.ID, err)
		return
	}
	if err := tx.Commit(); err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": escrow.StatusActive.String()})
}

func (s *Server) handleEscrowRelease(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params escrowReleaseParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid params", err.Error())
		return
	}
	caller, err := crypto.DecodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid caller address", err.Error())
		return
	}

	tx := s.state.Begin()
	engine := s.escrowEngine(tx)
	if err := engine.Release(params.ID, caller.Raw(), params.MilestoneIndex); err != nil {
		tx.Discard()
		writeEscrowError(w, req.ID, err)
		return
	}
	if err := tx.Commit(); err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"milestoneIndex": params.MilestoneIndex,
		"released":       true,
	})
}

// handleEscrowCancel voids the escrow and closes its confirmation ledger in the
// same transaction, so a cancelled escrow never accepts late confirmations.
func (s *Server) handleEscrowCancel(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params escrowCallParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid params", err.Error())
		return
	}
	caller, err := crypto.DecodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid caller address", err.Error())
		return
	}

	tx := s.state.Begin()
	engine := s.escrowEngine(tx)
	if err := engine.Cancel(params.ID, caller.Raw()); err != nil {
		tx.Discard()
		writeEscrowError(w, req.ID, err)
		return
	}
	if err := s.confirmEngine(tx).Lock(params.ID); err != nil {
		tx.Discard()
		writeEscrowError(w, req.ID, err)
		return
	}
	if err := tx.Commit(); err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": escrow.StatusCancelled.String()})
}

// handleEscrowComplete finalises a fully-released escrow and locks its
// confirmation ledger in the same transaction.
func (s *Server) handleEscrowComplete(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params escrowCallParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid params", err.Error())
		return
	}
	caller, err := crypto.DecodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid caller address", err.Error())
		return
	}

	tx := s.state.Begin()
	engine := s.escrowEngine(tx)
	if err := engine.Complete(params.ID, caller.Raw()); err != nil {
		tx.Discard()
		writeEscrowError(w, req.ID, err)
		return
	}
	if err := s.confirmEngine(tx).Lock(params.ID); err != nil {
		tx.Discard()
		writeEscrowError(w, req.ID, err)
		return
	}
	if err := tx.Commit(); err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": escrow.StatusCompleted.String()})
}

func (s *Server) handleEscrowGet(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params escrowIDParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid params", err.Error())
		return
	}

	tx := s.state.Begin()
	defer tx.Discard()
	engine := s.escrowEngine(tx)
	esc, err := engine.Get(params.ID)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, escrowToJSON(esc))
}

func (s *Server) handleEscrowGetStatus(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params escrowIDParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid params", err.Error())
		return
	}

	tx := s.state.Begin()
	defer tx.Discard()
	engine := s.escrowEngine(tx)
	status, err := engine.StatusOf(params.ID)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": status.String()})
}
