// Package crosschain adapts messages from remote chains into engine calls and
// relays settlement results back. Inbound messages are accepted only from the
// trusted sender configured for their source chain and are processed at most
// once.
package crosschain

import (
	"encoding/json"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	ErrUntrustedSender = errors.New("crosschain: untrusted sender")
	ErrReplay          = errors.New("crosschain: message already processed")
	ErrUnknownKind     = errors.New("crosschain: unknown message kind")
	ErrBadPayload      = errors.New("crosschain: malformed payload")
)

// Kind identifies what a message asks for.
type Kind string

const (
	KindCommit Kind = "commit"
	KindReveal Kind = "reveal"
	KindResult Kind = "result"
)

// Message is the envelope carried by the transport.
type Message struct {
	ID          string          `json:"id"`
	SourceChain string          `json:"source_chain"`
	Sender      common.Address  `json:"sender"`
	Kind        Kind            `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
}

// CommitPayload submits a commitment on behalf of a trader on the source chain.
type CommitPayload struct {
	Trader     common.Address  `json:"trader"`
	CommitHash common.Hash     `json:"commit_hash"`
	Deposit    decimal.Decimal `json:"deposit"`
}

// RevealPayload reveals a commitment on behalf of a trader. Value is the
// amount bridged alongside the message.
type RevealPayload struct {
	Trader       common.Address  `json:"trader"`
	CommitID     common.Hash     `json:"commit_id"`
	TokenIn      common.Address  `json:"token_in"`
	TokenOut     common.Address  `json:"token_out"`
	AmountIn     decimal.Decimal `json:"amount_in"`
	MinAmountOut decimal.Decimal `json:"min_amount_out"`
	Secret       common.Hash     `json:"secret"`
	PriorityBid  decimal.Decimal `json:"priority_bid"`
	Value        decimal.Decimal `json:"value"`
}

// ResultPayload announces a settled batch to remote chains.
type ResultPayload struct {
	BatchID        uint64        `json:"batch_id"`
	ShuffleSeed    common.Hash   `json:"shuffle_seed"`
	ExecutionOrder []int         `json:"execution_order"`
	CommitIDs      []common.Hash `json:"commit_ids"` // in execution order
}
