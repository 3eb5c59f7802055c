package attribution

import (
	"context"
	"strconv"
	"time"

	"github.com/loaninneed/attribution/internal/crypto"
	"github.com/loaninneed/attribution/internal/model"
	"github.com/loaninneed/attribution/internal/repository"
)

// Params are the three optional signed query parameters carried by a
// referral link. All three must be present for the gate to engage.
type Params struct {
	PID string
	TS  string
	Sig string
}

func (p Params) Present() bool { return p.PID != "" && p.TS != "" && p.Sig != "" }

// Outcome is the tagged result of one gate evaluation. Exactly one of the
// following holds: the request is unattributed (both fields zero), the link
// was rejected (Reject non-empty), or a valid assertion was produced.
type Outcome struct {
	Assertion *model.Assertion
	// Reject carries the machine-readable reason (TIMESTAMP_EXPIRED,
	// PARTNER_INVALID, SIG_MISMATCH) when validation failed.
	Reject string
	// PartnerID is the parsed pid when one was supplied, for audit rows.
	// Nil when pid was absent or non-numeric.
	PartnerID *int64
}

// Gate validates signed referral parameters. It is a pure evaluator: no
// ledger writes, no user mutation; callers act on the Outcome.
type Gate struct {
	partners  repository.PartnersRepository
	vault     *crypto.Vault
	tolerance time.Duration
	now       func() time.Time
}

func NewGate(partners repository.PartnersRepository, vault *crypto.Vault, toleranceMs int64, now func() time.Time) *Gate {
	if toleranceMs <= 0 {
		toleranceMs = 300_000
	}
	if now == nil {
		now = time.Now
	}
	return &Gate{
		partners:  partners,
		vault:     vault,
		tolerance: time.Duration(toleranceMs) * time.Millisecond,
		now:       now,
	}
}

// Evaluate checks freshness, partner validity, and the HMAC signature.
// Every failure maps to a reject reason; it never returns an error because
// the gate is fail-open by contract. Unexpected store errors collapse into
// PARTNER_INVALID.
func (g *Gate) Evaluate(ctx context.Context, p Params) Outcome {
	if !p.Present() {
		return Outcome{}
	}

	now := g.now()

	var pid *int64
	if n, err := strconv.ParseInt(p.PID, 10, 64); err == nil {
		pid = &n
	}

	ts, err := strconv.ParseInt(p.TS, 10, 64)
	if err != nil {
		return Outcome{Reject: model.ReasonTimestampExpired, PartnerID: pid}
	}
	skew := now.UnixMilli() - ts
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Millisecond > g.tolerance {
		return Outcome{Reject: model.ReasonTimestampExpired, PartnerID: pid}
	}

	if pid == nil {
		return Outcome{Reject: model.ReasonPartnerInvalid}
	}

	partner, err := g.partners.GetByID(ctx, *pid)
	if err != nil || partner == nil || partner.Status != model.PartnerActive || !partner.HasSecret() {
		return Outcome{Reject: model.ReasonPartnerInvalid, PartnerID: pid}
	}

	// Secrets are always stored encrypted; a decrypt failure means the row
	// is unusable, not that the secret might be plaintext.
	secret, err := g.vault.Decrypt(*partner.SecretKey)
	if err != nil {
		return Outcome{Reject: model.ReasonPartnerInvalid, PartnerID: pid}
	}

	if !crypto.Verify(p.Sig, *pid, ts, secret) {
		return Outcome{Reject: model.ReasonSigMismatch, PartnerID: pid}
	}

	return Outcome{
		Assertion: &model.Assertion{
			PartnerID:  *pid,
			Source:     model.AttributionOnlineLink,
			AssertedAt: now,
		},
		PartnerID: pid,
	}
}
