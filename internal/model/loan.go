package model

import "time"

type LoanStatus string

const (
	LoanPending  LoanStatus = "PENDING"
	LoanApproved LoanStatus = "APPROVED"
	LoanRejected LoanStatus = "REJECTED"
)

func (s LoanStatus) String() string { return string(s) }

// LoanApplication is stamped with the applicant's locked attribution at
// submission time so partner reporting survives later user-row changes.
type LoanApplication struct {
	ID                  string     `db:"id"` // ULID
	UserID              int64      `db:"user_id"`
	Amount              int64      `db:"amount"`
	Status              LoanStatus `db:"status"`
	AttributedPartnerID *int64     `db:"attributed_partner_id"`
	AttributionSource   *string    `db:"attribution_source"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}
