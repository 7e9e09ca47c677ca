// Package model defines the core domain types shared across the auction engine.
// All monetary values use shopspring/decimal, never float64.
// Amounts are integer base units (wei-style) so they hash as uint256 words.
package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Phase is the lifecycle position of a batch.
type Phase string

const (
	PhaseCommit Phase = "COMMIT"
	PhaseReveal Phase = "REVEAL"
	// PhaseSettlementReady is reported by the phase clock once the reveal
	// window has elapsed but the batch has not been settled yet.
	PhaseSettlementReady Phase = "SETTLEMENT_READY"
	PhaseSettled         Phase = "SETTLED"
)

// CommitStatus is the state of a single commitment.
// Transitions: PENDING -> REVEALED or PENDING -> SLASHED, never backward.
type CommitStatus string

const (
	StatusPending  CommitStatus = "PENDING"
	StatusRevealed CommitStatus = "REVEALED"
	StatusSlashed  CommitStatus = "SLASHED"
)

// Commitment is a hidden pledge to reveal an order later, bound by a one-way
// hash and backed by a deposit. One per (trader, batch).
type Commitment struct {
	ID          common.Hash     `json:"id" db:"id"`
	Hash        common.Hash     `json:"commit_hash" db:"commit_hash"` // immutable
	Depositor   common.Address  `json:"depositor" db:"depositor"`
	Deposit     decimal.Decimal `json:"deposit" db:"deposit"`
	BatchID     uint64          `json:"batch_id" db:"batch_id"`
	Status      CommitStatus    `json:"status" db:"status"`
	SubmittedAt time.Time       `json:"submitted_at" db:"submitted_at"`
	RevealedAt  *time.Time      `json:"revealed_at,omitempty" db:"revealed_at"`
	Refunded    bool            `json:"refunded" db:"refunded"` // deposit returned via withdrawal
}

// Clone returns a deep copy.
func (c *Commitment) Clone() *Commitment {
	cp := *c
	if c.RevealedAt != nil {
		t := *c.RevealedAt
		cp.RevealedAt = &t
	}
	return &cp
}

// RevealedOrder is produced when a PENDING commitment is successfully revealed.
type RevealedOrder struct {
	CommitID     common.Hash     `json:"commit_id"`
	Trader       common.Address  `json:"trader"`
	TokenIn      common.Address  `json:"token_in"`
	TokenOut     common.Address  `json:"token_out"`
	AmountIn     decimal.Decimal `json:"amount_in"`
	MinAmountOut decimal.Decimal `json:"min_amount_out"`
	PriorityBid  decimal.Decimal `json:"priority_bid"` // zero = no priority
	Secret       common.Hash     `json:"secret"`       // kept so the shuffle seed is auditable
	RevealIndex  int             `json:"reveal_index"` // arrival order within the batch
}

// HasPriority reports whether the order paid for execution priority.
func (o RevealedOrder) HasPriority() bool {
	return o.PriorityBid.IsPositive()
}

// Batch is one discrete round of the auction and the aggregate root for its
// commitments and reveals. Batches are append-only history: once settled they
// are frozen and never deleted.
type Batch struct {
	ID             uint64        `json:"id" db:"id"`
	OpenedAt       time.Time     `json:"opened_at" db:"opened_at"`
	CommitPhaseEnd time.Time     `json:"commit_phase_end" db:"commit_phase_end"`
	RevealPhaseEnd time.Time     `json:"reveal_phase_end" db:"reveal_phase_end"`
	CommitDuration time.Duration `json:"commit_duration" db:"commit_duration"`
	RevealDuration time.Duration `json:"reveal_duration" db:"reveal_duration"`
	Phase          Phase         `json:"phase" db:"phase"` // last recorded transition
	Settled        bool          `json:"settled" db:"settled"`
	SettledAt      *time.Time    `json:"settled_at,omitempty" db:"settled_at"`

	// EntropyAccumulator is the running hash of every revealed secret:
	// acc = keccak256(acc || secret).
	EntropyAccumulator common.Hash `json:"entropy_accumulator" db:"entropy_accumulator"`
	BlockEntropy       common.Hash `json:"block_entropy" db:"block_entropy"`
	ShuffleSeed        common.Hash `json:"shuffle_seed" db:"shuffle_seed"`

	// ExecutionOrder holds indices into RevealedOrders. Always a permutation
	// of [0, len(RevealedOrders)) once the batch is settled.
	ExecutionOrder []int           `json:"execution_order" db:"execution_order"`
	RevealedOrders []RevealedOrder `json:"revealed_orders" db:"revealed_orders"`

	CommitCount  int             `json:"commit_count" db:"commit_count"`
	EscrowedBids decimal.Decimal `json:"escrowed_bids" db:"escrowed_bids"`
}

// Clone returns a deep copy.
func (b *Batch) Clone() *Batch {
	cp := *b
	if b.SettledAt != nil {
		t := *b.SettledAt
		cp.SettledAt = &t
	}
	if b.ExecutionOrder != nil {
		cp.ExecutionOrder = append([]int(nil), b.ExecutionOrder...)
	}
	if b.RevealedOrders != nil {
		cp.RevealedOrders = append([]RevealedOrder(nil), b.RevealedOrders...)
	}
	return &cp
}

// OrderedReveals returns the revealed orders in execution order. It returns
// nil for a batch that has not been settled.
func (b *Batch) OrderedReveals() []RevealedOrder {
	if !b.Settled {
		return nil
	}
	out := make([]RevealedOrder, 0, len(b.ExecutionOrder))
	for _, idx := range b.ExecutionOrder {
		out = append(out, b.RevealedOrders[idx])
	}
	return out
}

// EventType names an engine notification.
type EventType string

const (
	EventBatchOpened       EventType = "batch_opened"
	EventCommitSubmitted   EventType = "commit_submitted"
	EventOrderRevealed     EventType = "order_revealed"
	EventPhaseAdvanced     EventType = "phase_advanced"
	EventBatchSettled      EventType = "batch_settled"
	EventCommitmentSlashed EventType = "commitment_slashed"
	EventDepositRefunded   EventType = "deposit_refunded"
	EventBalanceCredited   EventType = "balance_credited"
	EventParamsUpdated     EventType = "params_updated"
)

// Balance is a withdrawable amount owed to an address.
type Balance struct {
	Address common.Address  `json:"address" db:"address"`
	Amount  decimal.Decimal `json:"amount" db:"amount"`
}

// Event is emitted by the engine after every successful state change.
// Snapshots are copies and safe to retain.
type Event struct {
	Type       EventType   `json:"type"`
	BatchID    uint64      `json:"batch_id"`
	Batch      *Batch      `json:"batch,omitempty"`
	Commitment *Commitment `json:"commitment,omitempty"`
	Balances   []Balance   `json:"balances,omitempty"`
	At         time.Time   `json:"at"`
}
