// Package api provides the HTTP handlers through which traders, keepers and
// the operator drive the auction engine, plus a WebSocket hub that streams
// engine events.
//
// All monetary values use shopspring/decimal, never float64 for money.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/auction-engine/internal/auction"
	"github.com/atmx/auction-engine/internal/model"
	"github.com/atmx/auction-engine/internal/store"
)

// History serves batches and commitments the engine does not hold, such
// as records persisted by an earlier process.
type History interface {
	GetBatch(ctx context.Context, id uint64) (*model.Batch, error)
	GetCommitment(ctx context.Context, id common.Hash) (*model.Commitment, error)
}

// Handler exposes engine operations over HTTP. The engine serializes all
// mutations itself, so handlers hold no locks.
type Handler struct {
	engine  *auction.Engine
	history History
	now     func() time.Time
	window  time.Duration
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithHistory sets the fallback consulted when the engine reports an
// unknown batch or commitment.
func WithHistory(hist History) HandlerOption {
	return func(h *Handler) { h.history = hist }
}

// WithClock sets the clock used to check signed request timestamps.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) { h.now = now }
}

// WithSignatureWindow sets the accepted skew for signed timestamps.
func WithSignatureWindow(d time.Duration) HandlerOption {
	return func(h *Handler) { h.window = d }
}

// NewHandler creates a new handler around engine.
func NewHandler(engine *auction.Engine, opts ...HandlerOption) *Handler {
	h := &Handler{engine: engine, now: time.Now, window: DefaultSignatureWindow}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Routes registers the /api/v1 endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/commitments", h.SubmitCommit)
	r.Get("/commitments/{commitID}", h.GetCommitment)
	r.Post("/commitments/{commitID}/slash", h.Slash)
	r.Post("/commitments/{commitID}/withdraw", h.WithdrawDeposit)

	r.Post("/reveals", h.RevealOrder)

	r.Get("/batches/current", h.GetCurrentBatch)
	r.Post("/batches/advance", h.AdvancePhase)
	r.Post("/batches/settle", h.SettleBatch)
	r.Get("/batches/{batchID}", h.GetBatch)
	r.Post("/batches/{batchID}/settle", h.SettleBatch)
	r.Get("/batches/{batchID}/order", h.GetExecutionOrder)
	r.Get("/batches/{batchID}/reveals", h.GetRevealedOrders)

	r.Get("/balances/{address}", h.GetBalance)
	r.Post("/balances/{address}/claim", h.Claim)

	r.Get("/params", h.GetParams)
	r.Put("/params", h.UpdateParams)
}

// --- Request/Response types ---

// CommitRequest is the JSON body for POST /commitments.
type CommitRequest struct {
	CommitHash common.Hash     `json:"commit_hash"`
	Deposit    decimal.Decimal `json:"deposit"` // attached value, base units
}

// RevealRequest is the JSON body for POST /reveals.
type RevealRequest struct {
	CommitID     common.Hash     `json:"commit_id"`
	TokenIn      common.Address  `json:"token_in"`
	TokenOut     common.Address  `json:"token_out"`
	AmountIn     decimal.Decimal `json:"amount_in"`
	MinAmountOut decimal.Decimal `json:"min_amount_out"`
	Secret       common.Hash     `json:"secret"`
	PriorityBid  decimal.Decimal `json:"priority_bid"`
	Value        decimal.Decimal `json:"value"` // must equal priority_bid
}

// SettleResponse is returned from the settle endpoints.
type SettleResponse struct {
	Batch     *model.Batch          `json:"batch"`
	Ordered   []model.RevealedOrder `json:"ordered"`
	NextBatch *model.Batch          `json:"next_batch"`
}

// AdvanceResponse is returned from POST /batches/advance.
type AdvanceResponse struct {
	Advanced bool        `json:"advanced"`
	BatchID  uint64      `json:"batch_id"`
	Phase    model.Phase `json:"phase"`
}

// BalanceResponse reports a withdrawable balance or a claimed amount.
type BalanceResponse struct {
	Address common.Address  `json:"address"`
	Amount  decimal.Decimal `json:"amount"`
}

// CurrentBatchResponse wraps the current batch with its live phase.
type CurrentBatchResponse struct {
	Batch *model.Batch `json:"batch"`
	Phase model.Phase  `json:"phase"`
}

// --- HTTP Handlers ---

// SubmitCommit handles POST /api/v1/commitments
func (h *Handler) SubmitCommit(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.callerFrom(w, r)
	if !ok {
		return
	}
	var req CommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	c, err := h.engine.Commit(r.Context(), caller, req.CommitHash, req.Deposit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// RevealOrder handles POST /api/v1/reveals
func (h *Handler) RevealOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.callerFrom(w, r)
	if !ok {
		return
	}
	var req RevealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	order, err := h.engine.Reveal(r.Context(), caller, auction.RevealRequest{
		CommitID:     req.CommitID,
		TokenIn:      req.TokenIn,
		TokenOut:     req.TokenOut,
		AmountIn:     req.AmountIn,
		MinAmountOut: req.MinAmountOut,
		Secret:       req.Secret,
		PriorityBid:  req.PriorityBid,
	}, req.Value)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// AdvancePhase handles POST /api/v1/batches/advance
// Permissionless; reports whether a transition was recorded.
func (h *Handler) AdvancePhase(w http.ResponseWriter, r *http.Request) {
	advanced := h.engine.AdvancePhase(r.Context())
	writeJSON(w, http.StatusOK, AdvanceResponse{
		Advanced: advanced,
		BatchID:  h.engine.CurrentBatchID(),
		Phase:    h.engine.CurrentPhase(),
	})
}

// SettleBatch handles POST /api/v1/batches/settle and
// POST /api/v1/batches/{batchID}/settle. Without a batch id the current
// batch is settled.
func (h *Handler) SettleBatch(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.callerFrom(w, r)
	if !ok {
		return
	}
	batchID := h.engine.CurrentBatchID()
	if chi.URLParam(r, "batchID") != "" {
		if batchID, ok = batchIDFrom(w, r); !ok {
			return
		}
	}

	s, err := h.engine.SettleBatch(r.Context(), caller, batchID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SettleResponse{Batch: s.Batch, Ordered: s.Orders, NextBatch: s.Next})
}

// Slash handles POST /api/v1/commitments/{commitID}/slash
func (h *Handler) Slash(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.callerFrom(w, r)
	if !ok {
		return
	}
	commitID, ok := commitIDFrom(w, r)
	if !ok {
		return
	}

	res, err := h.engine.Slash(r.Context(), caller, commitID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// WithdrawDeposit handles POST /api/v1/commitments/{commitID}/withdraw
func (h *Handler) WithdrawDeposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.callerFrom(w, r)
	if !ok {
		return
	}
	commitID, ok := commitIDFrom(w, r)
	if !ok {
		return
	}

	c, err := h.engine.WithdrawDeposit(r.Context(), caller, commitID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// GetCurrentBatch handles GET /api/v1/batches/current
func (h *Handler) GetCurrentBatch(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CurrentBatchResponse{
		Batch: h.engine.CurrentBatch(),
		Phase: h.engine.CurrentPhase(),
	})
}

// GetBatch handles GET /api/v1/batches/{batchID}
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	batchID, ok := batchIDFrom(w, r)
	if !ok {
		return
	}
	b, err := h.engine.Batch(batchID)
	if errors.Is(err, auction.ErrBatchNotFound) && h.history != nil {
		b, err = fromHistory(r.Context(), err, func(ctx context.Context) (*model.Batch, error) {
			return h.history.GetBatch(ctx, batchID)
		})
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// GetExecutionOrder handles GET /api/v1/batches/{batchID}/order
func (h *Handler) GetExecutionOrder(w http.ResponseWriter, r *http.Request) {
	batchID, ok := batchIDFrom(w, r)
	if !ok {
		return
	}
	order, err := h.engine.ExecutionOrder(batchID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// GetRevealedOrders handles GET /api/v1/batches/{batchID}/reveals
// Returns reveals in arrival order.
func (h *Handler) GetRevealedOrders(w http.ResponseWriter, r *http.Request) {
	batchID, ok := batchIDFrom(w, r)
	if !ok {
		return
	}
	orders, err := h.engine.RevealedOrders(batchID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetCommitment handles GET /api/v1/commitments/{commitID}
func (h *Handler) GetCommitment(w http.ResponseWriter, r *http.Request) {
	commitID, ok := commitIDFrom(w, r)
	if !ok {
		return
	}
	c, err := h.engine.Commitment(commitID)
	if errors.Is(err, auction.ErrCommitmentNotFound) && h.history != nil {
		c, err = fromHistory(r.Context(), err, func(ctx context.Context) (*model.Commitment, error) {
			return h.history.GetCommitment(ctx, commitID)
		})
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// GetBalance handles GET /api/v1/balances/{address}
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressFrom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Address: addr, Amount: h.engine.Balance(addr)})
}

// Claim handles POST /api/v1/balances/{address}/claim
// Only the balance holder may claim.
func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.callerFrom(w, r)
	if !ok {
		return
	}
	addr, ok := addressFrom(w, r)
	if !ok {
		return
	}
	if caller != addr {
		writeError(w, "caller does not own balance", http.StatusForbidden)
		return
	}
	amount := h.engine.Claim(r.Context(), addr)
	writeJSON(w, http.StatusOK, BalanceResponse{Address: addr, Amount: amount})
}

// GetParams handles GET /api/v1/params
func (h *Handler) GetParams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Params())
}

// UpdateParams handles PUT /api/v1/params
// Fields missing from the body keep their current values.
func (h *Handler) UpdateParams(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.callerFrom(w, r)
	if !ok {
		return
	}
	p := h.engine.Params()
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.engine.UpdateParams(r.Context(), caller, p); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Params())
}

// --- helpers ---

// callerFrom authenticates the caller of a mutating request.
func (h *Handler) callerFrom(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	v := r.Header.Get(CallerHeader)
	if !common.IsHexAddress(v) {
		writeError(w, CallerHeader+" header must be a hex address", http.StatusBadRequest)
		return common.Address{}, false
	}
	caller := common.HexToAddress(v)
	if err := h.verifyCaller(r, caller); err != nil {
		slog.Debug("caller authentication failed", "caller", caller.Hex(), "err", err)
		writeError(w, err.Error(), http.StatusUnauthorized)
		return common.Address{}, false
	}
	return caller, true
}

// fromHistory runs lookup and keeps the engine's not-found error when the
// history has no record either.
func fromHistory[T any](ctx context.Context, notFound error, lookup func(context.Context) (*T, error)) (*T, error) {
	v, err := lookup(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, notFound
	case err != nil:
		return nil, fmt.Errorf("history lookup: %w", err)
	}
	return v, nil
}

func addressFrom(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	v := chi.URLParam(r, "address")
	if !common.IsHexAddress(v) {
		writeError(w, "invalid address", http.StatusBadRequest)
		return common.Address{}, false
	}
	return common.HexToAddress(v), true
}

func batchIDFrom(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "batchID"), 10, 64)
	if err != nil {
		writeError(w, "invalid batch id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func commitIDFrom(w http.ResponseWriter, r *http.Request) (common.Hash, bool) {
	var id common.Hash
	if err := id.UnmarshalText([]byte(chi.URLParam(r, "commitID"))); err != nil {
		writeError(w, "invalid commitment id", http.StatusBadRequest)
		return common.Hash{}, false
	}
	return id, true
}

// statusFor maps an engine error kind onto an HTTP status.
func statusFor(err error) int {
	switch auction.KindOf(err) {
	case auction.KindPhaseViolation, auction.KindStateConflict:
		return http.StatusConflict
	case auction.KindAuthorization:
		return http.StatusForbidden
	case auction.KindValidation:
		return http.StatusBadRequest
	case auction.KindInsufficientFunds:
		return http.StatusPaymentRequired
	case auction.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeEngineError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("engine call failed", "err", err)
		msg = "internal error"
	}
	var kind string
	var ae *auction.Error
	if errors.As(err, &ae) {
		kind = ae.Kind.String()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg, "kind": kind})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
