package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"vaultix/core/state"
	"vaultix/crypto"
	"vaultix/storage"
)

const testToken = "test-rpc-token"

func testServer(t *testing.T) (*Server, *state.Manager) {
	t.Helper()
	t.Setenv("VAULTIX_RPC_TOKEN", testToken)
	manager := state.NewManager(storage.NewMemDB())
	server := NewServer(manager, nil, nil)
	server.SetNowFunc(func() int64 { return 1700000000 })
	return server, manager
}

func bech(b byte) string {
	var raw [20]byte
	raw[19] = b
	return crypto.FromRaw(raw).String()
}

func rawAddr(b byte) [20]byte {
	var raw [20]byte
	raw[19] = b
	return raw
}

func call(t *testing.T, server *Server, method string, params interface{}, authed bool) (*httptest.ResponseRecorder, RPCResponse) {
	t.Helper()
	encoded, err := json.Marshal(params)
	require.NoError(t, err)
	payload := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":%q,"params":[%s]}`, method, encoded)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(payload))
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	recorder := httptest.NewRecorder()
	server.handle(recorder, req)

	var resp RPCResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	return recorder, resp
}

func seedFunds(t *testing.T, manager *state.Manager, asset string, owner [20]byte, amount int64) {
	t.Helper()
	tx := manager.Begin()
	require.NoError(t, tx.Mint(asset, owner, big.NewInt(amount)))
	require.NoError(t, tx.Approve(asset, owner, big.NewInt(amount)))
	require.NoError(t, tx.Commit())
}

func createParams(id uint64) map[string]interface{} {
	return map[string]interface{}{
		"id":        id,
		"depositor": bech(1),
		"recipient": bech(2),
		"asset":     "USDC",
		"milestones": []map[string]string{
			{"amount": "3000", "description": "design"},
			{"amount": "3000"},
			{"amount": "4000"},
		},
	}
}

func TestMutatingMethodsRequireAuth(t *testing.T) {
	server, _ := testServer(t)

	recorder, resp := call(t, server, "escrow_create", createParams(1), false)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)
}

func TestReadMethodsSkipAuth(t *testing.T) {
	server, _ := testServer(t)

	recorder, resp := call(t, server, "escrow_get", map[string]uint64{"id": 404}, false)
	require.Equal(t, http.StatusNotFound, recorder.Code)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeEscrowNotFound, resp.Error.Code)
}

func TestUnknownMethod(t *testing.T) {
	server, _ := testServer(t)

	recorder, resp := call(t, server, "escrow_destroy", map[string]uint64{"id": 1}, true)
	require.Equal(t, http.StatusNotFound, recorder.Code)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestInvalidJSONPayload(t *testing.T) {
	server, _ := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("{not json"))
	recorder := httptest.NewRecorder()
	server.handle(recorder, req)

	var resp RPCResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, codeParseError, resp.Error.Code)
}

func TestEscrowLifecycleOverRPC(t *testing.T) {
	server, manager := testServer(t)
	seedFunds(t, manager, "USDC", rawAddr(1), 10000)

	recorder, resp := call(t, server, "escrow_create", createParams(1), true)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Nil(t, resp.Error)

	var created escrowJSON
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &created))
	require.Equal(t, uint64(1), created.ID)
	require.Equal(t, "10000", created.TotalAmount)
	require.Equal(t, "created", created.Status)

	recorder, resp = call(t, server, "escrow_fund", map[string]interface{}{
		"id": 1, "caller": bech(1),
	}, true)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Nil(t, resp.Error)

	recorder, resp = call(t, server, "escrow_getStatus", map[string]uint64{"id": 1}, false)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, map[string]interface{}{"status": "active"}, resp.Result)

	for index := 0; index < 3; index++ {
		recorder, resp = call(t, server, "escrow_release", map[string]interface{}{
			"id": 1, "caller": bech(1), "milestoneIndex": index,
		}, true)
		require.Equal(t, http.StatusOK, recorder.Code)
		require.Nil(t, resp.Error)
	}

	recorder, resp = call(t, server, "ledger_getBalance", map[string]string{
		"asset": "USDC", "address": bech(2),
	}, false)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "10000", resp.Result.(map[string]interface{})["balance"])

	recorder, resp = call(t, server, "escrow_complete", map[string]interface{}{
		"id": 1, "caller": bech(1),
	}, true)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Nil(t, resp.Error)

	// Completion locks the confirmation ledger.
	recorder, resp = call(t, server, "confirm_getStatus", map[string]uint64{"escrowId": 1}, false)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, map[string]interface{}{"status": "locked"}, resp.Result)
}

func TestEscrowCancelRefundsAndLocks(t *testing.T) {
	server, manager := testServer(t)
	seedFunds(t, manager, "USDC", rawAddr(1), 10000)

	_, resp := call(t, server, "escrow_create", createParams(1), true)
	require.Nil(t, resp.Error)
	_, resp = call(t, server, "escrow_fund", map[string]interface{}{"id": 1, "caller": bech(1)}, true)
	require.Nil(t, resp.Error)

	recorder, resp := call(t, server, "escrow_cancel", map[string]interface{}{
		"id": 1, "caller": bech(1),
	}, true)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Nil(t, resp.Error)

	_, resp = call(t, server, "ledger_getBalance", map[string]string{
		"asset": "USDC", "address": bech(1),
	}, false)
	require.Equal(t, "10000", resp.Result.(map[string]interface{})["balance"])

	_, resp = call(t, server, "confirm_getStatus", map[string]uint64{"escrowId": 1}, false)
	require.Equal(t, map[string]interface{}{"status": "locked"}, resp.Result)
}

func TestEscrowErrorsAreMapped(t *testing.T) {
	server, _ := testServer(t)

	// Self-dealing create.
	params := createParams(1)
	params["recipient"] = bech(1)
	recorder, resp := call(t, server, "escrow_create", params, true)
	require.Equal(t, http.StatusForbidden, recorder.Code)
	require.Equal(t, codeEscrowForbidden, resp.Error.Code)

	// Funding without an allowance conflicts.
	_, resp = call(t, server, "escrow_create", createParams(2), true)
	require.Nil(t, resp.Error)
	recorder, resp = call(t, server, "escrow_fund", map[string]interface{}{
		"id": 2, "caller": bech(1),
	}, true)
	require.Equal(t, http.StatusConflict, recorder.Code)
	require.Equal(t, codeEscrowConflict, resp.Error.Code)

	// Wrong caller is forbidden.
	recorder, resp = call(t, server, "escrow_cancel", map[string]interface{}{
		"id": 2, "caller": bech(9),
	}, true)
	require.Equal(t, http.StatusForbidden, recorder.Code)
	require.Equal(t, codeEscrowForbidden, resp.Error.Code)
}

func TestConfirmFlowOverRPC(t *testing.T) {
	server, _ := testServer(t)
	parties := []string{bech(1), bech(2), bech(3)}
	threshold := map[string]interface{}{"mode": "majority"}

	recorder, resp := call(t, server, "confirm_confirm", map[string]interface{}{
		"escrowId": 5, "caller": bech(1), "parties": parties, "threshold": threshold,
	}, true)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]interface{})
	require.Equal(t, false, result["thresholdMet"])

	recorder, resp = call(t, server, "confirm_confirm", map[string]interface{}{
		"escrowId": 5, "caller": bech(2), "parties": parties, "threshold": threshold,
	}, true)
	require.Equal(t, http.StatusOK, recorder.Code)
	result = resp.Result.(map[string]interface{})
	require.Equal(t, true, result["thresholdMet"])

	_, resp = call(t, server, "confirm_getStatus", map[string]uint64{"escrowId": 5}, false)
	require.Equal(t, map[string]interface{}{"status": "confirmed"}, resp.Result)

	_, resp = call(t, server, "confirm_getCount", map[string]uint64{"escrowId": 5}, false)
	require.Equal(t, float64(2), resp.Result.(map[string]interface{})["count"])

	_, resp = call(t, server, "confirm_getPartyState", map[string]interface{}{
		"escrowId": 5, "party": bech(1),
	}, false)
	require.Equal(t, map[string]interface{}{"state": "confirmed"}, resp.Result)

	_, resp = call(t, server, "confirm_canConfirm", map[string]interface{}{
		"escrowId": 5, "party": bech(3),
	}, false)
	require.Equal(t, map[string]interface{}{"canConfirm": true}, resp.Result)

	// Duplicate confirmation conflicts.
	recorder, resp = call(t, server, "confirm_confirm", map[string]interface{}{
		"escrowId": 5, "caller": bech(1), "parties": parties, "threshold": threshold,
	}, true)
	require.Equal(t, http.StatusConflict, recorder.Code)
	require.Equal(t, codeConfirmConflict, resp.Error.Code)

	// Locking closes the ledger.
	_, resp = call(t, server, "confirm_lock", map[string]uint64{"escrowId": 5}, true)
	require.Nil(t, resp.Error)
	recorder, resp = call(t, server, "confirm_confirm", map[string]interface{}{
		"escrowId": 5, "caller": bech(3), "parties": parties, "threshold": threshold,
	}, true)
	require.Equal(t, http.StatusConflict, recorder.Code)
	require.Equal(t, codeConfirmLocked, resp.Error.Code)
}

func TestConfirmRemainingOverRPC(t *testing.T) {
	server, _ := testServer(t)

	_, resp := call(t, server, "confirm_remaining", map[string]interface{}{
		"escrowId":     77,
		"threshold":    map[string]interface{}{"mode": "custom", "required": 2},
		"totalParties": 3,
	}, false)
	require.Nil(t, resp.Error)
	require.Equal(t, float64(2), resp.Result.(map[string]interface{})["remaining"])
}

func TestLedgerApproveOverRPC(t *testing.T) {
	server, manager := testServer(t)

	recorder, resp := call(t, server, "ledger_approve", map[string]string{
		"asset": "usdc", "owner": bech(1), "amount": "500",
	}, true)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Nil(t, resp.Error)

	tx := manager.Begin()
	defer tx.Discard()
	allowance, err := tx.Allowance("USDC", rawAddr(1))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(500), allowance)
}
