package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/loaninneed/attribution/internal/model"
)

// LedgerRepository appends immutable attribution_log rows. Rows are never
// updated or deleted; each append also writes an outbox row in the same
// transaction so the projector worker sees every event exactly once.
type LedgerRepository interface {
	Append(ctx context.Context, e model.LogEntry) error
}

type ledgerRepo struct {
	db     *sqlx.DB
	outbox OutboxRepository
	topic  string
}

func NewLedgerRepository(db *sqlx.DB, outbox OutboxRepository, topic string) LedgerRepository {
	return &ledgerRepo{db: db, outbox: outbox, topic: topic}
}

func (r *ledgerRepo) Append(ctx context.Context, e model.LogEntry) error {
	env := model.Envelope{
		ID:        e.ID,
		Action:    e.Action.String(),
		Metadata:  e.Metadata,
		CreatedAt: e.CreatedAt.UnixMilli(),
	}
	if e.PartnerID != nil {
		env.PartnerID = *e.PartnerID
	}
	if e.UserID != nil {
		env.UserID = *e.UserID
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO attribution_log (id, partner_id, user_id, action, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE id = id
	`, e.ID, e.PartnerID, e.UserID, e.Action.String(), e.Metadata, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert attribution_log: %w", err)
	}

	if err := r.outbox.Insert(ctx, tx, AggregateLedger, e.ID, r.topic, payload); err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}

	return tx.Commit()
}
