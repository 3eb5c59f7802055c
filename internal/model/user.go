package model

import "time"

// AttributionType records how a user got bound to a partner.
type AttributionType string

const (
	AttributionOnlineLink   AttributionType = "ONLINE_LINK"
	AttributionExistingLock AttributionType = "EXISTING_LOCK"
)

func (t AttributionType) String() string { return string(t) }

// User is the customer subset this subsystem touches. AttributedPartnerID is
// set at most once (first-touch-wins) and never changes afterwards.
type User struct {
	ID                  int64            `db:"id"`
	Phone               string           `db:"phone"`
	AttributedPartnerID *int64           `db:"attributed_partner_id"`
	AttributionType     *AttributionType `db:"attribution_type"`
	AttributionDate     *time.Time       `db:"attribution_date"`
	CreatedAt           time.Time        `db:"created_at"`
	UpdatedAt           time.Time        `db:"updated_at"`
}

func (u *User) Attributed() bool { return u.AttributedPartnerID != nil }
