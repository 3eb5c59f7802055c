package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// AggregateLedger is the outbox aggregate name for attribution_log rows,
// the only aggregate this subsystem publishes.
const AggregateLedger = "attribution_log"

// OutboxRepository stages events for the Debezium outbox connector. The
// ledger writes an outbox row in the same transaction as each
// attribution_log insert; the outbox SMT routes rows to Kafka by the topic
// column, which gives the projector exactly-once visibility of every event.
type OutboxRepository interface {
	// Insert stages one event. A nil tx opens and commits an internal
	// transaction, otherwise the caller's tx is used.
	Insert(ctx context.Context, tx *sqlx.Tx, aggregate, aggregateID, topic string, payload []byte) error
}

type outboxRepo struct {
	db *sqlx.DB
}

func NewOutboxRepository(db *sqlx.DB) OutboxRepository {
	return &outboxRepo{db: db}
}

// withTx runs fn inside tx, or opens and commits one when tx is nil.
func (r *outboxRepo) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}

	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}

	return t.Commit()
}

func (r *outboxRepo) Insert(ctx context.Context, tx *sqlx.Tx, aggregate, aggregateID, topic string, payload []byte) error {
	const q = `
		INSERT INTO outbox (aggregate, aggregate_id, topic, payload, created_at)
		VALUES (?, ?, ?, ?, NOW())
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, aggregate, aggregateID, topic, payload)

		return err
	})
}
