package repository

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/loaninneed/attribution/internal/model"
)

// CHEventsRepository is the read side of the attribution ledger: the
// projector worker batch-inserts events here and partner dashboards read
// click/conversion counts back.
type CHEventsRepository interface {
	InsertBatch(ctx context.Context, events []model.Envelope) error
	PartnerFunnel(ctx context.Context, partnerID int64) (clicks, conversions int64, err error)
}

type chEventsRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHEventsRepository(ch *sqlx.DB) CHEventsRepository {
	return &chEventsRepository{ch: ch}
}

func (r *chEventsRepository) InsertBatch(ctx context.Context, events []model.Envelope) error {
	if len(events) == 0 {
		return nil
	}

	var sb strings.Builder
	args := make([]any, 0, len(events)*6)

	sb.WriteString(`INSERT INTO loanattr.attribution_events (id, partner_id, user_id, action, metadata, created_at) VALUES `)
	for i, e := range events {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?)")
		args = append(args, e.ID, e.PartnerID, e.UserID, e.Action, e.Metadata, time.UnixMilli(e.CreatedAt))
	}

	_, err := r.ch.ExecContext(ctx, sb.String(), args...)
	return err
}

func (r *chEventsRepository) PartnerFunnel(ctx context.Context, partnerID int64) (int64, int64, error) {
	var row struct {
		Clicks      int64 `db:"clicks"`
		Conversions int64 `db:"conversions"`
	}
	err := r.ch.GetContext(ctx, &row, `
		SELECT countIf(action = 'CLICK')      AS clicks,
		       countIf(action = 'CONVERSION') AS conversions
		FROM loanattr.attribution_events FINAL
		WHERE partner_id = ?
	`, partnerID)
	if err != nil {
		return 0, 0, err
	}
	return row.Clicks, row.Conversions, nil
}
