package model

import (
	"strings"
	"time"
)

type PartnerStatus string

const (
	PartnerPending   PartnerStatus = "PENDING"
	PartnerActive    PartnerStatus = "ACTIVE"
	PartnerSuspended PartnerStatus = "SUSPENDED"
	PartnerRejected  PartnerStatus = "REJECTED"
)

func (s PartnerStatus) String() string { return string(s) }

func (s PartnerStatus) Valid() bool {
	switch s {
	case PartnerPending, PartnerActive, PartnerSuspended, PartnerRejected:
		return true
	}
	return false
}

// ParsePartnerStatus normalizes input; empty => PENDING.
// Returns (value, true) if valid; otherwise (PENDING, false).
func ParsePartnerStatus(s string) (PartnerStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "PENDING":
		return PartnerPending, true
	case "ACTIVE":
		return PartnerActive, true
	case "SUSPENDED":
		return PartnerSuspended, true
	case "REJECTED":
		return PartnerRejected, true
	default:
		return PartnerPending, false
	}
}

// Partner is an agent/affiliate that can refer customers. SecretKey holds the
// HMAC signing secret encrypted at rest ("iv:payload", both hex); a partner
// with no secret cannot issue valid links.
type Partner struct {
	ID         int64         `db:"id"`
	Name       string        `db:"name"`
	Email      string        `db:"email"`
	Phone      string        `db:"phone"`
	APIKey     string        `db:"api_key"`
	Status     PartnerStatus `db:"status"`
	SecretKey  *string       `db:"secret_key"` // nullable until provisioned
	WebhookURL *string       `db:"webhook_url"`
	CreatedAt  time.Time     `db:"created_at"`
	UpdatedAt  time.Time     `db:"updated_at"`
}

func (p *Partner) HasSecret() bool {
	return p.SecretKey != nil && *p.SecretKey != ""
}
