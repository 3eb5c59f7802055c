package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/loaninneed/attribution/internal/model"
)

type PartnersRepository interface {
	GetByID(ctx context.Context, id int64) (*model.Partner, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*model.Partner, error)
	Insert(ctx context.Context, p *model.Partner) (int64, error)
}

type PartnersRepositoryImpl struct {
	db *sqlx.DB
}

func NewPartnersRepository(db *sqlx.DB) *PartnersRepositoryImpl {
	return &PartnersRepositoryImpl{db: db}
}

var _ PartnersRepository = (*PartnersRepositoryImpl)(nil)

func (r *PartnersRepositoryImpl) GetByID(ctx context.Context, id int64) (*model.Partner, error) {
	var p model.Partner
	err := r.db.GetContext(ctx, &p, `
		SELECT id, name, email, phone, api_key, status, secret_key, webhook_url, created_at, updated_at
		  FROM partners
		 WHERE id = ? LIMIT 1
	`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PartnersRepositoryImpl) GetByAPIKey(ctx context.Context, apiKey string) (*model.Partner, error) {
	var p model.Partner
	err := r.db.GetContext(ctx, &p, `
		SELECT id, name, email, phone, api_key, status, secret_key, webhook_url, created_at, updated_at
		  FROM partners
		 WHERE api_key = ? LIMIT 1
	`, apiKey)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PartnersRepositoryImpl) Insert(ctx context.Context, p *model.Partner) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO partners (name, email, phone, api_key, status, secret_key, webhook_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NOW(), NOW())
	`, p.Name, p.Email, p.Phone, p.APIKey, p.Status.String(), p.SecretKey, p.WebhookURL)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
