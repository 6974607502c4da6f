package rpc

import (
	"net/http"
	"strings"

	"vaultix/crypto"
)

const (
	codeLedgerInvalidParams = -32041
	codeLedgerInternal      = -32042
)

type ledgerApproveParams struct {
	Asset  string `json:"asset"`
	Owner  string `json:"owner"`
	Amount string `json:"amount"`
}

type ledgerBalanceParams struct {
	Asset   string `json:"asset"`
	Address string `json:"address"`
}

// handleLedgerApprove records the owner's allowance towards the custody vault.
// Funding an escrow consumes this allowance.
func (s *Server) handleLedgerApprove(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params ledgerApproveParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeLedgerInvalidParams, "invalid params", err.Error())
		return
	}
	owner, err := crypto.DecodeAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeLedgerInvalidParams, "invalid owner address", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeLedgerInvalidParams, "invalid amount", err.Error())
		return
	}
	asset := strings.ToUpper(strings.TrimSpace(params.Asset))
	if asset == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeLedgerInvalidParams, "asset required", nil)
		return
	}

	tx := s.state.Begin()
	if err := tx.Approve(asset, owner.Raw(), amount); err != nil {
		tx.Discard()
		writeError(w, http.StatusInternalServerError, req.ID, codeLedgerInternal, "internal error", err.Error())
		return
	}
	if err := tx.Commit(); err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeLedgerInternal, "internal error", err.Error())
		return
	}
	writeResult(w, req.ID, map[string]string{
		"asset":     asset,
		"owner":     owner.String(),
		"allowance": amount.String(),
	})
}

func (s *Server) handleLedgerGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params ledgerBalanceParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeLedgerInvalidParams, "invalid params", err.Error())
		return
	}
	addr, err := crypto.DecodeAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeLedgerInvalidParams, "invalid address", err.Error())
		return
	}
	asset := strings.ToUpper(strings.TrimSpace(params.Asset))
	if asset == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeLedgerInvalidParams, "asset required", nil)
		return
	}

	tx := s.state.Begin()
	defer tx.Discard()
	balance, err := tx.BalanceOf(asset, addr.Raw())
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeLedgerInternal, "internal error", err.Error())
		return
	}
	writeResult(w, req.ID, map[string]string{
		"asset":   asset,
		"address": addr.String(),
		"balance": balance.String(),
	})
}
