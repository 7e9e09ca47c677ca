// Package auction implements the commit-reveal batch auction engine: the
// phase clock, commitment store, reveal validation, execution sequencing,
// batch lifecycle and deposit slashing.
//
// All state transitions are serialized by a single mutex and follow
// validate -> mutate -> notify. No call ever leaves partial state behind, and
// value is only credited to the pull-based ledger after the state change that
// earned it.
package auction

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/auction-engine/internal/model"
)

// batchState owns one batch and every commitment created in it. All lookups
// are scoped through the owning batch so keys never leak across batches.
type batchState struct {
	batch *model.Batch
	// params is the snapshot taken when the batch opened. Admission,
	// settlement and slashing of this batch read it, never Engine.params.
	params  Params
	commits map[common.Hash]*model.Commitment // commitID -> commitment
	hashes  map[common.Hash]common.Hash       // commitHash -> commitID
}

func newBatchState(b *model.Batch, p Params) *batchState {
	return &batchState{
		batch:   b,
		params:  p.clone(),
		commits: make(map[common.Hash]*model.Commitment),
		hashes:  make(map[common.Hash]common.Hash),
	}
}

// Engine is the batch auction state machine. It is safe for concurrent use;
// calls are totally ordered by the engine lock, which also fixes the reveal
// arrival order used for tie-breaks.
type Engine struct {
	mu      sync.Mutex
	params  Params
	owner   common.Address
	batches map[uint64]*batchState // arena indexed by batch id
	current uint64
	// owners maps a commitID to its batch for O(1) lookup; the commitment
	// itself is only reachable through that batch.
	owners map[common.Hash]uint64
	ledger *ledger

	now       func() time.Time
	auth      Authorizer
	sink      SettlementSink
	entropy   EntropySource
	listeners []Listener

	// outbox holds events in mutation order until delivered. At most one
	// goroutine delivers at a time (delivering), always without mu held.
	outbox     []model.Event
	delivering bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithAuthorizer gates Commit behind a.
func WithAuthorizer(a Authorizer) Option {
	return func(e *Engine) { e.auth = a }
}

// WithSettlementSink sets the consumer of settled batches.
func WithSettlementSink(s SettlementSink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithEntropySource sets the block-level entropy source. Without one, the
// engine chains keccak256(previous seed || settlement time).
func WithEntropySource(s EntropySource) Option {
	return func(e *Engine) { e.entropy = s }
}

// WithOwner sets the address allowed to update parameters.
func WithOwner(owner common.Address) Option {
	return func(e *Engine) { e.owner = owner }
}

// New creates an engine and opens batch 1.
func New(p Params, opts ...Option) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		params:  p.clone(),
		batches: make(map[uint64]*batchState),
		owners:  make(map[common.Hash]uint64),
		ledger:  newLedger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	e.openBatch(1, nil)
	return e, nil
}

// Subscribe registers l for all subsequent events.
func (e *Engine) Subscribe(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// unlockAndEmit queues events, releases mu and delivers the queue to
// listeners. Caller holds mu.
//
// If another goroutine is already delivering, the events are left for it and
// the call returns at once, so a slow listener delays only the delivering
// caller and never blocks engine state access.
func (e *Engine) unlockAndEmit(events ...model.Event) {
	e.outbox = append(e.outbox, events...)
	if e.delivering {
		e.mu.Unlock()
		return
	}
	e.delivering = true
	for len(e.outbox) > 0 {
		pending := e.outbox
		e.outbox = nil
		listeners := append([]Listener(nil), e.listeners...)
		e.mu.Unlock()

		for _, ev := range pending {
			for _, l := range listeners {
				l(ev)
			}
		}
		e.mu.Lock()
	}
	e.delivering = false
	e.mu.Unlock()
}

// openBatch creates batch id using the duration policy. Caller holds the lock.
func (e *Engine) openBatch(id uint64, prev *model.Batch) *model.Batch {
	now := e.now()
	commitDur, revealDur := NextDurations(e.params, prev)
	b := &model.Batch{
		ID:             id,
		OpenedAt:       now,
		CommitPhaseEnd: now.Add(commitDur),
		RevealPhaseEnd: now.Add(commitDur + revealDur),
		CommitDuration: commitDur,
		RevealDuration: revealDur,
		Phase:          model.PhaseCommit,
		ExecutionOrder: []int{},
		RevealedOrders: []model.RevealedOrder{},
		EscrowedBids:   decimal.Zero,
	}
	e.batches[id] = newBatchState(b, e.params)
	e.current = id
	return b
}

func (e *Engine) currentState() *batchState {
	return e.batches[e.current]
}

// lookup resolves a commitID through its owning batch. Caller holds the lock.
func (e *Engine) lookup(commitID common.Hash) (*batchState, *model.Commitment, error) {
	batchID, ok := e.owners[commitID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrCommitmentNotFound, commitID.Hex())
	}
	bs := e.batches[batchID]
	c, ok := bs.commits[commitID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrCommitmentNotFound, commitID.Hex())
	}
	return bs, c, nil
}

func (e *Engine) event(t model.EventType, b *model.Batch, c *model.Commitment, at time.Time) model.Event {
	ev := model.Event{Type: t, At: at}
	if b != nil {
		ev.BatchID = b.ID
		ev.Batch = b.Clone()
	}
	if c != nil {
		ev.BatchID = c.BatchID
		ev.Commitment = c.Clone()
	}
	return ev
}

// Commit registers a sealed order commitment in the current batch and
// escrows deposit. The returned commitment's ID is needed to reveal.
func (e *Engine) Commit(ctx context.Context, caller common.Address, commitHash common.Hash, deposit decimal.Decimal) (*model.Commitment, error) {
	if commitHash == (common.Hash{}) {
		return nil, ErrInvalidCommitment
	}
	if e.auth != nil {
		ok, err := e.auth.IsAuthorized(ctx, caller)
		if err != nil {
			return nil, fmt.Errorf("auction: authorize %s: %w", caller.Hex(), err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnauthorized, caller.Hex())
		}
	}

	e.mu.Lock()
	now := e.now()
	bs := e.currentState()
	b := bs.batch

	if phase := PhaseAt(b, now); phase != model.PhaseCommit {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: batch %d is in %s", ErrPhaseViolation, b.ID, phase)
	}
	if !deposit.IsInteger() || deposit.LessThan(bs.params.MinDeposit) {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: got %s, minimum %s", ErrInsufficientDeposit, deposit, bs.params.MinDeposit)
	}
	if _, dup := bs.hashes[commitHash]; dup {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateCommitment, commitHash.Hex())
	}
	if capacity := bs.params.MaxOrdersPerBatch; capacity > 0 && b.CommitCount >= capacity {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %d commitments", ErrBatchFull, capacity)
	}

	c := &model.Commitment{
		ID:          CommitID(caller, commitHash, b.ID, now),
		Hash:        commitHash,
		Depositor:   caller,
		Deposit:     deposit,
		BatchID:     b.ID,
		Status:      model.StatusPending,
		SubmittedAt: now,
	}
	bs.commits[c.ID] = c
	bs.hashes[commitHash] = c.ID
	e.owners[c.ID] = b.ID
	b.CommitCount++

	ev := e.event(model.EventCommitSubmitted, b, c, now)
	out := c.Clone()
	e.unlockAndEmit(ev)

	slog.Info("commitment submitted",
		"batch_id", out.BatchID,
		"commit_id", out.ID.Hex(),
		"depositor", out.Depositor.Hex(),
		"deposit", out.Deposit.String(),
	)
	return out, nil
}

// RevealRequest carries the order details disclosed in the reveal phase.
type RevealRequest struct {
	CommitID     common.Hash
	TokenIn      common.Address
	TokenOut     common.Address
	AmountIn     decimal.Decimal
	MinAmountOut decimal.Decimal
	Secret       common.Hash
	PriorityBid  decimal.Decimal
}

func (r RevealRequest) validate() error {
	switch {
	case r.TokenIn == (common.Address{}) || r.TokenOut == (common.Address{}):
		return fmt.Errorf("%w: token addresses required", ErrInvalidOrder)
	case r.TokenIn == r.TokenOut:
		return fmt.Errorf("%w: token_in equals token_out", ErrInvalidOrder)
	case !r.AmountIn.IsPositive():
		return fmt.Errorf("%w: amount_in must be positive", ErrInvalidOrder)
	case r.MinAmountOut.IsNegative():
		return fmt.Errorf("%w: min_amount_out must be non-negative", ErrInvalidOrder)
	case r.PriorityBid.IsNegative() || !r.PriorityBid.IsInteger():
		return fmt.Errorf("%w: priority_bid must be a non-negative integer", ErrInvalidOrder)
	}
	return nil
}

// Reveal discloses the order behind a commitment. value is the amount the
// caller attached and must equal req.PriorityBid exactly.
func (e *Engine) Reveal(_ context.Context, caller common.Address, req RevealRequest, value decimal.Decimal) (*model.RevealedOrder, error) {
	e.mu.Lock()
	now := e.now()

	bs, c, err := e.lookup(req.CommitID)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	b := bs.batch

	if c.Depositor != caller {
		e.mu.Unlock()
		return nil, ErrNotCommitOwner
	}
	if b.ID != e.current {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: commitment batch %d, current batch %d", ErrWrongBatch, b.ID, e.current)
	}
	switch phase := PhaseAt(b, now); phase {
	case model.PhaseReveal:
	case model.PhaseCommit:
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: batch %d is in %s", ErrPhaseViolation, b.ID, phase)
	default:
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: batch %d", ErrRevealWindowClosed, b.ID)
	}
	switch c.Status {
	case model.StatusRevealed:
		e.mu.Unlock()
		return nil, ErrAlreadyRevealed
	case model.StatusSlashed:
		e.mu.Unlock()
		return nil, ErrCommitmentSlashed
	}

	if err := req.validate(); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	h, err := CommitHash(OrderFields{
		Trader:       c.Depositor,
		TokenIn:      req.TokenIn,
		TokenOut:     req.TokenOut,
		AmountIn:     req.AmountIn,
		MinAmountOut: req.MinAmountOut,
		Secret:       req.Secret,
	})
	if err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	if h != c.Hash {
		e.mu.Unlock()
		return nil, ErrInvalidReveal
	}
	if !value.Equal(req.PriorityBid) {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: attached %s, bid %s", ErrPriorityBidMismatch, value, req.PriorityBid)
	}

	order := model.RevealedOrder{
		CommitID:     c.ID,
		Trader:       c.Depositor,
		TokenIn:      req.TokenIn,
		TokenOut:     req.TokenOut,
		AmountIn:     req.AmountIn,
		MinAmountOut: req.MinAmountOut,
		PriorityBid:  req.PriorityBid,
		Secret:       req.Secret,
		RevealIndex:  len(b.RevealedOrders),
	}
	c.Status = model.StatusRevealed
	revealedAt := now
	c.RevealedAt = &revealedAt
	b.RevealedOrders = append(b.RevealedOrders, order)
	b.EntropyAccumulator = AccumulateEntropy(b.EntropyAccumulator, req.Secret)
	b.EscrowedBids = b.EscrowedBids.Add(req.PriorityBid)

	ev := e.event(model.EventOrderRevealed, b, c, now)
	e.unlockAndEmit(ev)

	slog.Info("order revealed",
		"batch_id", ev.BatchID,
		"commit_id", order.CommitID.Hex(),
		"reveal_index", order.RevealIndex,
		"priority_bid", order.PriorityBid.String(),
	)
	return &order, nil
}
