package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/loaninneed/attribution/internal/model"
)

type LoansRepository interface {
	Insert(ctx context.Context, l model.LoanApplication) error
	// CountByAttributedPartner reports total and approved applications among
	// customers locked to the partner.
	CountByAttributedPartner(ctx context.Context, partnerID int64) (total, approved int64, err error)
	CountAttributedUsers(ctx context.Context, partnerID int64) (int64, error)
}

type LoansRepositoryImpl struct {
	db *sqlx.DB
}

func NewLoansRepository(db *sqlx.DB) *LoansRepositoryImpl {
	return &LoansRepositoryImpl{db: db}
}

var _ LoansRepository = (*LoansRepositoryImpl)(nil)

func (r *LoansRepositoryImpl) Insert(ctx context.Context, l model.LoanApplication) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO loan_applications
		    (id, user_id, amount, status, attributed_partner_id, attribution_source, created_at, updated_at)
		VALUES
		    (?,  ?,       ?,      'PENDING', ?,                  ?,                  NOW(),     NOW())
	`, l.ID, l.UserID, l.Amount, l.AttributedPartnerID, l.AttributionSource)
	return err
}

func (r *LoansRepositoryImpl) CountByAttributedPartner(ctx context.Context, partnerID int64) (int64, int64, error) {
	var row struct {
		Total    int64 `db:"total"`
		Approved int64 `db:"approved"`
	}
	err := r.db.GetContext(ctx, &row, `
		SELECT COUNT(*) AS total,
		       COALESCE(SUM(l.status = 'APPROVED'), 0) AS approved
		  FROM loan_applications l
		  JOIN users u ON u.id = l.user_id
		 WHERE u.attributed_partner_id = ?
	`, partnerID)
	if err != nil {
		return 0, 0, err
	}
	return row.Total, row.Approved, nil
}

func (r *LoansRepositoryImpl) CountAttributedUsers(ctx context.Context, partnerID int64) (int64, error) {
	var n int64
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM users WHERE attributed_partner_id = ?
	`, partnerID)
	return n, err
}
