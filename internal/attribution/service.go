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

// Service is the request-facing facade over gate + locker + ledger. Every
// path through ValidateRequest is fail-open: the caller always gets either
// an assertion or nil, never an error.
type Service struct {
	gate   *Gate
	locker *Locker
	ledger repository.LedgerRepository
	now    func() time.Time
	log    *zap.Logger
}

func NewService(gate *Gate, locker *Locker, ledger repository.LedgerRepository, now func() time.Time, log *zap.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{gate: gate, locker: locker, ledger: ledger, now: now, log: log}
}

// ValidateRequest evaluates the signed parameters and records the audit
// trail. authed is the already-authenticated customer, nil for anonymous
// visits. On a valid link:
//   - an authenticated customer with no existing lock is bound immediately
//     (CONVERSION, EXISTING_USER_CLICK);
//   - otherwise a CLICK row is appended and the assertion is returned for a
//     later conversion point to consume.
func (s *Service) ValidateRequest(ctx context.Context, p Params, authed *model.User) *model.Assertion {
	if !p.Present() {
		return nil // normal unattributed path
	}

	outcome := s.gate.Evaluate(ctx, p)

	if outcome.Reject != "" {
		metrics.GateResultsTotal.WithLabelValues("rejected", outcome.Reject).Inc()
		s.log.Warn("attribution rejected",
			zap.String("reason", outcome.Reject),
			zap.String("pid", p.PID))
		s.append(ctx, model.LogEntry{
			PartnerID: outcome.PartnerID,
			Action:    model.ActionRejected,
			Metadata:  s.meta(map[string]any{"reason": outcome.Reject, "ts": p.TS}),
		})
		return nil
	}

	assertion := outcome.Assertion
	if assertion == nil {
		return nil
	}

	metrics.GateResultsTotal.WithLabelValues("accepted", "").Inc()

	if authed != nil && !authed.Attributed() {
		// Existing customer followed a link before ever being attributed;
		// bind right away instead of waiting for a conversion handler.
		if _, err := s.locker.Lock(ctx, authed, assertion, model.ReasonExistingUserClick); err != nil {
			s.log.Error("existing-user lock failed", zap.Error(err), zap.Int64("user_id", authed.ID))
		}
		return assertion
	}

	var userID *int64
	if authed != nil {
		userID = &authed.ID
	}
	s.append(ctx, model.LogEntry{
		PartnerID: &assertion.PartnerID,
		UserID:    userID,
		Action:    model.ActionClick,
		Metadata:  s.meta(map[string]any{"ts": p.TS}),
	})

	return assertion
}

// Lock exposes the conversion-point binding (registration, loan
// application) to handlers holding an assertion from this request.
func (s *Service) Lock(ctx context.Context, user *model.User, assertion *model.Assertion, reason string) (*int64, error) {
	return s.locker.Lock(ctx, user, assertion, reason)
}

// append writes a ledger row fire-and-forget; observability is best-effort,
// correctness is not.
func (s *Service) append(ctx context.Context, e model.LogEntry) {
	e.ID = util.NewULID()
	e.CreatedAt = s.now()
	if err := s.ledger.Append(ctx, e); err != nil {
		s.log.Error("ledger append failed", zap.Error(err), zap.String("action", e.Action.String()))
		return
	}
	metrics.LedgerEventsTotal.WithLabelValues(e.Action.String()).Inc()
}

func (s *Service) meta(m map[string]any) string {
	b, _ := json.Marshal(m)
	return string(b)
}
