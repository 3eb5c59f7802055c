package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/loaninneed/attribution/internal/model"
)

type UsersRepository interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByPhone(ctx context.Context, phone string) (*model.User, error)
	// Insert creates the customer row; attribution columns may be set at
	// creation (first OTP verification following a signed link).
	Insert(ctx context.Context, u *model.User) (int64, error)
	// ClaimAttribution is the single atomic conditional write behind
	// first-touch-wins: it sets the attribution columns only when
	// attributed_partner_id is still NULL. Returns true when this call won
	// the claim, false when the field was already set (benign lost race).
	ClaimAttribution(ctx context.Context, userID, partnerID int64, typ model.AttributionType, at time.Time) (bool, error)
}

type UsersRepositoryImpl struct {
	db *sqlx.DB
}

func NewUsersRepository(db *sqlx.DB) *UsersRepositoryImpl {
	return &UsersRepositoryImpl{db: db}
}

var _ UsersRepository = (*UsersRepositoryImpl)(nil)

func (r *UsersRepositoryImpl) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := r.db.GetContext(ctx, &u, `
		SELECT id, phone, attributed_partner_id, attribution_type, attribution_date, created_at, updated_at
		  FROM users
		 WHERE id = ? LIMIT 1
	`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UsersRepositoryImpl) GetByPhone(ctx context.Context, phone string) (*model.User, error) {
	var u model.User
	err := r.db.GetContext(ctx, &u, `
		SELECT id, phone, attributed_partner_id, attribution_type, attribution_date, created_at, updated_at
		  FROM users
		 WHERE phone = ? LIMIT 1
	`, phone)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UsersRepositoryImpl) Insert(ctx context.Context, u *model.User) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO users (phone, attributed_partner_id, attribution_type, attribution_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, NOW(), NOW())
	`, u.Phone, u.AttributedPartnerID, u.AttributionType, u.AttributionDate)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *UsersRepositoryImpl) ClaimAttribution(ctx context.Context, userID, partnerID int64, typ model.AttributionType, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		   SET attributed_partner_id = ?,
		       attribution_type = ?,
		       attribution_date = ?,
		       updated_at = NOW()
		 WHERE id = ? AND attributed_partner_id IS NULL
	`, partnerID, typ.String(), at, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
