package attribution

import (
	"context"
	"encoding/json"
	"time"

	"github.com/loaninneed/attribution/internal/metrics"
	"github.com/loaninneed/attribution/internal/model"
	"github.com/loaninneed/attribution/internal/repository"
	"github.com/loaninneed/attribution/internal/util"
	"go.uber.org/zap"
)

// Locker applies first-touch-wins: a customer's attribution is bound exactly
// once, by whichever conversion request claims it first. The claim is a
// single conditional UPDATE at the store, so two concurrent conversions for
// the same customer can never both win.
type Locker struct {
	users  repository.UsersRepository
	ledger repository.LedgerRepository
	now    func() time.Time
	log    *zap.Logger
}

func NewLocker(users repository.UsersRepository, ledger repository.LedgerRepository, now func() time.Time, log *zap.Logger) *Locker {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Locker{users: users, ledger: ledger, now: now, log: log}
}

// Lock binds the user to the asserted partner unless an attribution already
// exists. reason names the conversion point (REGISTRATION, LOAN_APPLICATION,
// EXISTING_USER_CLICK) for the ledger row. A lost race or a pre-existing
// lock is a benign no-op: Lock returns the partner id that ended up
// authoritative, which may differ from the assertion's.
func (l *Locker) Lock(ctx context.Context, user *model.User, assertion *model.Assertion, reason string) (*int64, error) {
	if user == nil {
		return nil, nil
	}
	if user.Attributed() {
		// First touch already recorded; the stored value is authoritative.
		return user.AttributedPartnerID, nil
	}
	if assertion == nil {
		return nil, nil // organic
	}

	at := l.now()
	won, err := l.users.ClaimAttribution(ctx, user.ID, assertion.PartnerID, assertion.Source, at)
	if err != nil {
		return nil, err
	}
	if !won {
		metrics.LocksTotal.WithLabelValues("lost_race").Inc()
		l.log.Info("attribution claim lost race",
			zap.Int64("user_id", user.ID),
			zap.Int64("partner_id", assertion.PartnerID))
		fresh, err := l.users.GetByID(ctx, user.ID)
		if err != nil || fresh == nil {
			return nil, err
		}
		return fresh.AttributedPartnerID, nil
	}

	metrics.LocksTotal.WithLabelValues("won").Inc()

	pid := assertion.PartnerID
	user.AttributedPartnerID = &pid
	typ := assertion.Source
	user.AttributionType = &typ
	user.AttributionDate = &at

	l.appendConversion(ctx, pid, user.ID, reason)
	return &pid, nil
}

// appendConversion writes the CONVERSION ledger row best-effort; ledger
// failures never fail the enclosing conversion.
func (l *Locker) appendConversion(ctx context.Context, partnerID, userID int64, reason string) {
	meta, _ := json.Marshal(map[string]any{"reason": reason, "userId": userID})
	entry := model.LogEntry{
		ID:        util.NewULID(),
		PartnerID: &partnerID,
		UserID:    &userID,
		Action:    model.ActionConversion,
		Metadata:  string(meta),
		CreatedAt: l.now(),
	}
	if err := l.ledger.Append(ctx, entry); err != nil {
		l.log.Error("ledger conversion append failed", zap.Error(err), zap.Int64("partner_id", partnerID))
		return
	}
	metrics.LedgerEventsTotal.WithLabelValues(model.ActionConversion.String()).Inc()
}
