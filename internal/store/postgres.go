package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/auction-engine/internal/model"
)

//go:embed schema.sql
var schema string

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveBatch(ctx context.Context, b *model.Batch) error {
	order, err := json.Marshal(b.ExecutionOrder)
	if err != nil {
		return err
	}
	reveals, err := json.Marshal(b.RevealedOrders)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO batches (id, opened_at, commit_phase_end, reveal_phase_end,
		                      commit_duration_ns, reveal_duration_ns, phase, settled, settled_at,
		                      entropy_accumulator, block_entropy, shuffle_seed,
		                      execution_order, revealed_orders, commit_count, escrowed_bids)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::JSONB, $14::JSONB, $15, $16::NUMERIC)
		 ON CONFLICT (id) DO UPDATE SET
		     phase = EXCLUDED.phase,
		     settled = EXCLUDED.settled,
		     settled_at = EXCLUDED.settled_at,
		     entropy_accumulator = EXCLUDED.entropy_accumulator,
		     block_entropy = EXCLUDED.block_entropy,
		     shuffle_seed = EXCLUDED.shuffle_seed,
		     execution_order = EXCLUDED.execution_order,
		     revealed_orders = EXCLUDED.revealed_orders,
		     commit_count = EXCLUDED.commit_count,
		     escrowed_bids = EXCLUDED.escrowed_bids`,
		int64(b.ID), b.OpenedAt, b.CommitPhaseEnd, b.RevealPhaseEnd,
		int64(b.CommitDuration), int64(b.RevealDuration), string(b.Phase), b.Settled, b.SettledAt,
		b.EntropyAccumulator.Hex(), b.BlockEntropy.Hex(), b.ShuffleSeed.Hex(),
		string(order), string(reveals), b.CommitCount, b.EscrowedBids.String(),
	)
	return err
}

const batchColumns = `id, opened_at, commit_phase_end, reveal_phase_end,
	commit_duration_ns, reveal_duration_ns, phase, settled, settled_at,
	entropy_accumulator, block_entropy, shuffle_seed,
	execution_order, revealed_orders, commit_count, escrowed_bids::TEXT`

func (s *PostgresStore) GetBatch(ctx context.Context, id uint64) (*model.Batch, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = $1`, int64(id))
	b, err := scanBatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("batch %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get batch %d: %w", id, err)
	}
	return b, nil
}

func (s *PostgresStore) ListBatches(ctx context.Context) ([]model.Batch, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+batchColumns+` FROM batches ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []model.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *b)
	}
	return batches, rows.Err()
}

func (s *PostgresStore) SaveCommitment(ctx context.Context, c *model.Commitment) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO commitments (id, commit_hash, depositor, deposit, batch_id, status, submitted_at, revealed_at, refunded)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		     status = EXCLUDED.status,
		     revealed_at = EXCLUDED.revealed_at,
		     refunded = EXCLUDED.refunded`,
		c.ID.Hex(), c.Hash.Hex(), c.Depositor.Hex(), c.Deposit.String(),
		int64(c.BatchID), string(c.Status), c.SubmittedAt, c.RevealedAt, c.Refunded,
	)
	return err
}

const commitmentColumns = `id, commit_hash, depositor, deposit::TEXT, batch_id, status, submitted_at, revealed_at, refunded`

func (s *PostgresStore) GetCommitment(ctx context.Context, id common.Hash) (*model.Commitment, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+commitmentColumns+` FROM commitments WHERE id = $1`, id.Hex())
	c, err := scanCommitment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("commitment %s: %w", id.Hex(), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get commitment %s: %w", id.Hex(), err)
	}
	return c, nil
}

func (s *PostgresStore) ListCommitments(ctx context.Context, batchID uint64) ([]model.Commitment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+commitmentColumns+` FROM commitments WHERE batch_id = $1 ORDER BY submitted_at`, int64(batchID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commitments []model.Commitment
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, err
		}
		commitments = append(commitments, *c)
	}
	return commitments, rows.Err()
}

func (s *PostgresStore) SaveBalance(ctx context.Context, bal model.Balance) error {
	if bal.Amount.IsZero() {
		_, err := s.pool.Exec(ctx, `DELETE FROM balances WHERE address = $1`, bal.Address.Hex())
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO balances (address, amount) VALUES ($1, $2::NUMERIC)
		 ON CONFLICT (address) DO UPDATE SET amount = EXCLUDED.amount`,
		bal.Address.Hex(), bal.Amount.String(),
	)
	return err
}

func (s *PostgresStore) ListBalances(ctx context.Context) ([]model.Balance, error) {
	rows, err := s.pool.Query(ctx, `SELECT address, amount::TEXT FROM balances`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []model.Balance
	for rows.Next() {
		var addr, amtS string
		if err := rows.Scan(&addr, &amtS); err != nil {
			return nil, err
		}
		amt, err := decimal.NewFromString(amtS)
		if err != nil {
			return nil, fmt.Errorf("balance %s: %w", addr, err)
		}
		balances = append(balances, model.Balance{Address: common.HexToAddress(addr), Amount: amt})
	}
	return balances, rows.Err()
}

// scanBatch reads one row selected with batchColumns.
func scanBatch(row pgx.Row) (*model.Batch, error) {
	var (
		b                       model.Batch
		id                      int64
		commitNs, revealNs      int64
		phase                   string
		acc, blockEntropy, seed string
		orderJSON, revealsJSON  []byte
		escrowed                string
	)
	if err := row.Scan(&id, &b.OpenedAt, &b.CommitPhaseEnd, &b.RevealPhaseEnd,
		&commitNs, &revealNs, &phase, &b.Settled, &b.SettledAt,
		&acc, &blockEntropy, &seed,
		&orderJSON, &revealsJSON, &b.CommitCount, &escrowed); err != nil {
		return nil, err
	}
	b.ID = uint64(id)
	b.CommitDuration = time.Duration(commitNs)
	b.RevealDuration = time.Duration(revealNs)
	b.Phase = model.Phase(phase)
	b.EntropyAccumulator = common.HexToHash(acc)
	b.BlockEntropy = common.HexToHash(blockEntropy)
	b.ShuffleSeed = common.HexToHash(seed)
	if err := json.Unmarshal(orderJSON, &b.ExecutionOrder); err != nil {
		return nil, fmt.Errorf("batch %d execution order: %w", id, err)
	}
	if err := json.Unmarshal(revealsJSON, &b.RevealedOrders); err != nil {
		return nil, fmt.Errorf("batch %d revealed orders: %w", id, err)
	}
	var err error
	if b.EscrowedBids, err = decimal.NewFromString(escrowed); err != nil {
		return nil, fmt.Errorf("batch %d escrowed bids: %w", id, err)
	}
	return &b, nil
}

// scanCommitment reads one row selected with commitmentColumns.
func scanCommitment(row pgx.Row) (*model.Commitment, error) {
	var (
		c                   model.Commitment
		id, hash, depositor string
		deposit, status     string
		batchID             int64
	)
	if err := row.Scan(&id, &hash, &depositor, &deposit, &batchID, &status,
		&c.SubmittedAt, &c.RevealedAt, &c.Refunded); err != nil {
		return nil, err
	}
	c.ID = common.HexToHash(id)
	c.Hash = common.HexToHash(hash)
	c.Depositor = common.HexToAddress(depositor)
	c.BatchID = uint64(batchID)
	c.Status = model.CommitStatus(status)
	var err error
	if c.Deposit, err = decimal.NewFromString(deposit); err != nil {
		return nil, fmt.Errorf("commitment %s deposit: %w", id, err)
	}
	return &c, nil
}
