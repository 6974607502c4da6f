package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"vaultix/core/events"
	"vaultix/core/state"
	"vaultix/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20

	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeUnauthorized   = -32001
	codeThrottled      = -32002
)

// Per-source request budget for mutating methods.
const (
	sourceRateLimit = rate.Limit(10)
	sourceRateBurst = 20
)

// Server exposes the escrow and confirmation ledgers over JSON-RPC.
type Server struct {
	state   *state.Manager
	emitter events.Emitter
	logger  *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	authToken string
	nowFn     func() int64
}

// NewServer constructs an RPC server bound to the given state manager. The
// bearer token is read from VAULTIX_RPC_TOKEN; mutating methods reject all
// requests until it is configured.
func NewServer(manager *state.Manager, emitter events.Emitter, logger *slog.Logger) *Server {
	token := strings.TrimSpace(os.Getenv("VAULTIX_RPC_TOKEN"))
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		state:     manager,
		emitter:   emitter,
		logger:    logger,
		limiters:  make(map[string]*rate.Limiter),
		authToken: token,
		nowFn:     func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the timestamp source used by the engines. Primarily
// intended for tests.
func (s *Server) SetNowFunc(now func() int64) {
	if now == nil {
		s.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	s.nowFn = now
}

// Start blocks serving JSON-RPC on the supplied address.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	s.logger.Info("starting JSON-RPC server", slog.String("addr", addr))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}

// Handler returns the request handler for tests and embedding.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	return mux
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// statusRecorder captures the status code written by a handler so module
// metrics can report it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

type methodSpec struct {
	module   string
	auth     bool
	throttle bool
	handler  func(w http.ResponseWriter, r *http.Request, req *RPCRequest)
}

func (s *Server) methods() map[string]methodSpec {
	return map[string]methodSpec{
		"escrow_create":   {module: "escrow", auth: true, throttle: true, handler: s.handleEscrowCreate},
		"escrow_fund":     {module: "escrow", auth: true, throttle: true, handler: s.handleEscrowFund},
		"escrow_release":  {module: "escrow", auth: true, throttle: true, handler: s.handleEscrowRelease},
		"escrow_cancel":   {module: "escrow", auth: true, throttle: true, handler: s.handleEscrowCancel},
		"escrow_complete": {module: "escrow", auth: true, throttle: true, handler: s.handleEscrowComplete},
		"escrow_get":      {module: "escrow", handler: s.handleEscrowGet},
		"escrow_getStatus": {
			module: "escrow", handler: s.handleEscrowGetStatus,
		},
		"confirm_confirm":       {module: "confirm", auth: true, throttle: true, handler: s.handleConfirm},
		"confirm_lock":          {module: "confirm", auth: true, throttle: true, handler: s.handleConfirmLock},
		"confirm_getStatus":     {module: "confirm", handler: s.handleConfirmGetStatus},
		"confirm_getCount":      {module: "confirm", handler: s.handleConfirmGetCount},
		"confirm_getPartyState": {module: "confirm", handler: s.handleConfirmGetPartyState},
		"confirm_canConfirm":    {module: "confirm", handler: s.handleConfirmCanConfirm},
		"confirm_remaining":     {module: "confirm", handler: s.handleConfirmRemaining},
		"ledger_approve":        {module: "ledger", auth: true, throttle: true, handler: s.handleLedgerApprove},
		"ledger_getBalance":     {module: "ledger", handler: s.handleLedgerGetBalance},
	}
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	spec, ok := s.methods()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}

	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	started := time.Now()
	defer func() {
		observability.ModuleMetrics().Observe(spec.module, req.Method, recorder.status, time.Since(started))
	}()

	if spec.throttle && !s.allowSource(clientSource(r)) {
		observability.ModuleMetrics().RecordThrottle(spec.module, "rate_limit")
		writeError(recorder, http.StatusTooManyRequests, req.ID, codeThrottled, "request rate exceeded", nil)
		return
	}
	if spec.auth {
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(recorder, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}
	spec.handler(recorder, r, req)
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func (s *Server) allowSource(source string) bool {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, ok := s.limiters[source]
	if !ok {
		limiter = rate.NewLimiter(sourceRateLimit, sourceRateBurst)
		s.limiters[source] = limiter
	}
	return limiter.Allow()
}

func clientSource(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			candidate := strings.TrimSpace(parts[0])
			if candidate != "" {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func singleParam(req *RPCRequest, target interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], target)
}

func parsePositiveBigInt(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}
