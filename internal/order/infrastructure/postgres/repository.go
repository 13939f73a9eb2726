package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marshallcc/purchase-bot/internal/order/domain"
	"github.com/marshallcc/purchase-bot/pkg/outbox"
)

// Store is the durable order/buyer mapping. Record changes and their audit
// events are committed in the same transaction.
type Store struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewStore(log *slog.Logger, pool *pgxpool.Pool) *Store {
	return &Store{log: log, pool: pool}
}

func (s *Store) Create(ctx context.Context, buyerID int64, region domain.Region, traceparent string) (domain.Order, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Order{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	o := domain.NewOrder(buyerID, region)
	err = tx.QueryRow(ctx, `INSERT INTO orders (buyer_id, region, status, proof_ref, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		o.BuyerID, o.Region, o.Status, o.ProofRef, o.CreatedAt, o.UpdatedAt).Scan(&o.ID)
	if err != nil {
		return domain.Order{}, err
	}

	payload, err := json.Marshal(domain.OrderCreated{OrderID: o.ID, BuyerID: o.BuyerID, Region: o.Region})
	if err != nil {
		return domain.Order{}, err
	}
	if err := insertOutbox(ctx, tx, o.ID, "OrderCreated", payload, traceparent); err != nil {
		return domain.Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (s *Store) UpdateWithOutbox(ctx context.Context, o domain.Order, eventType string, payload []byte, traceparent string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	ct, err := tx.Exec(ctx, `UPDATE orders SET status=$2, proof_ref=$3, updated_at=$4 WHERE id=$1`,
		o.ID, o.Status, o.ProofRef, o.UpdatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}

	if err := insertOutbox(ctx, tx, o.ID, eventType, payload, traceparent); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) Get(ctx context.Context, id int64) (domain.Order, error) {
	var o domain.Order
	err := s.pool.QueryRow(ctx, `SELECT id, buyer_id, region, status, proof_ref, created_at, updated_at
			FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.BuyerID, &o.Region, &o.Status, &o.ProofRef, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("%w: %d", domain.ErrOrderNotFound, id)
	}
	if err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (s *Store) GetBuyer(ctx context.Context, id int64) (domain.Buyer, error) {
	var b domain.Buyer
	err := s.pool.QueryRow(ctx, `SELECT id, username, first_name, last_name FROM buyers WHERE id=$1`, id).
		Scan(&b.ID, &b.Username, &b.FirstName, &b.LastName)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Buyer{}, fmt.Errorf("buyer %d: %w", id, pgx.ErrNoRows)
	}
	if err != nil {
		return domain.Buyer{}, err
	}
	return b, nil
}

func (s *Store) UpsertBuyer(ctx context.Context, b domain.Buyer) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO buyers (id, username, first_name, last_name, updated_at)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (id) DO UPDATE SET username=$2, first_name=$3, last_name=$4, updated_at=$5`,
		b.ID, b.Username, b.FirstName, b.LastName, time.Now().UTC())
	return err
}

func insertOutbox(ctx context.Context, tx pgx.Tx, orderID int64, eventType string, payload []byte, traceparent string) error {
	_, err := tx.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, traceparent, status)
			VALUES ('order', $1, $2, $3, $4, 'pending')`,
		fmt.Sprint(orderID), eventType, payload, traceparent)
	return err
}

// OutboxStore feeds the relay. LockBatch leases pending events to one relay
// with FOR UPDATE SKIP LOCKED so concurrent relays never double-publish.
type OutboxStore struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewOutboxStore(log *slog.Logger, pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{log: log, pool: pool}
}

func (s *OutboxStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	rows, err := tx.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, type, payload, traceparent, created_at
		FROM outbox
		WHERE status = 'pending'
		ORDER BY id
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`, batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []outbox.Event
	for rows.Next() {
		var event outbox.Event
		if err := rows.Scan(&event.ID, &event.AggregateType, &event.AggregateID, &event.Type,
			&event.Payload, &event.Traceparent, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if len(events) == 0 {
		return nil, tx.Commit(ctx)
	}

	ids := make([]int64, 0, len(events))
	for _, ev := range events {
		ids = append(ids, ev.ID)
	}

	_, err = tx.Exec(ctx, `UPDATE outbox SET status='in_progress', relay_id=$1, lease_until=now() + $2::interval WHERE id = ANY($3)`,
		relayID, lease.String(), ids)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, ids []int64) error {
	ct, err := s.pool.Exec(ctx, `UPDATE outbox SET status='sent' WHERE id = ANY($1)`, ids)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errors.New("no rows updated")
	}
	return nil
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox SET status='failed', last_error=$2, retry_count=retry_count+1 WHERE id=$1`, id, errMsg)
	return err
}
