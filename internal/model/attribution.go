package model

import "time"

// LedgerAction is the attribution_log action column.
type LedgerAction string

const (
	ActionClick      LedgerAction = "CLICK"
	ActionConversion LedgerAction = "CONVERSION"
	ActionRejected   LedgerAction = "REJECTED"
)

func (a LedgerAction) String() string { return string(a) }

func (a LedgerAction) Valid() bool {
	return a == ActionClick || a == ActionConversion || a == ActionRejected
}

// Machine-readable reasons embedded in ledger metadata.
const (
	ReasonTimestampExpired  = "TIMESTAMP_EXPIRED"
	ReasonPartnerInvalid    = "PARTNER_INVALID"
	ReasonSigMismatch       = "SIG_MISMATCH"
	ReasonExistingUserClick = "EXISTING_USER_CLICK"
	ReasonRegistration      = "REGISTRATION"
	ReasonLoanApplication   = "LOAN_APPLICATION"
)

// Assertion is the ephemeral, request-scoped claim produced by the gate.
// It is never persisted; a conversion handler either locks it or drops it.
type Assertion struct {
	PartnerID  int64
	Source     AttributionType
	AssertedAt time.Time
}

// LogEntry is one immutable attribution_log row. PartnerID is nullable for
// malformed/unknown partners, UserID for anonymous clicks.
type LogEntry struct {
	ID        string       `db:"id"` // ULID
	PartnerID *int64       `db:"partner_id"`
	UserID    *int64       `db:"user_id"`
	Action    LedgerAction `db:"action"`
	Metadata  string       `db:"metadata"` // free-form JSON
	CreatedAt time.Time    `db:"created_at"`
}

// Envelope is the ledger event payload published to Kafka (via Debezium
// outbox SMT) and consumed by the projector worker.
type Envelope struct {
	ID        string `json:"id"` // log entry ULID
	PartnerID int64  `json:"partner_id,omitempty"`
	UserID    int64  `json:"user_id,omitempty"`
	Action    string `json:"action"`
	Metadata  string `json:"metadata,omitempty"`
	CreatedAt int64  `json:"created_at_ms"`
}
