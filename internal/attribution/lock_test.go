package attribution

import (
	"context"
	"sync"
	"testing"

	"github.com/loaninneed/attribution/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockBindsUnattributedUser(t *testing.T) {
	users := newFakeUsers(&model.User{ID: 1, Phone: "+911234567890"})
	ledger := &fakeLedger{}
	locker := NewLocker(users, ledger, clock, nil)

	u, err := users.GetByID(context.Background(), 1)
	require.NoError(t, err)

	assertion := &model.Assertion{PartnerID: 7, Source: model.AttributionOnlineLink, AssertedAt: testNow}
	pid, err := locker.Lock(context.Background(), u, assertion, model.ReasonRegistration)
	require.NoError(t, err)
	require.NotNil(t, pid)
	assert.Equal(t, int64(7), *pid)

	stored, err := users.GetByID(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, stored.AttributedPartnerID)
	assert.Equal(t, int64(7), *stored.AttributedPartnerID)
	assert.Equal(t, model.AttributionOnlineLink, *stored.AttributionType)
	assert.Equal(t, testNow, *stored.AttributionDate)

	conversions := ledger.byAction(model.ActionConversion)
	require.Len(t, conversions, 1)
	assert.Contains(t, conversions[0].Metadata, model.ReasonRegistration)
}

func TestLockFirstTouchWins(t *testing.T) {
	users := newFakeUsers(&model.User{ID: 1, Phone: "+911234567890"})
	ledger := &fakeLedger{}
	locker := NewLocker(users, ledger, clock, nil)

	first := &model.Assertion{PartnerID: 7, Source: model.AttributionOnlineLink, AssertedAt: testNow}
	u, _ := users.GetByID(context.Background(), 1)
	_, err := locker.Lock(context.Background(), u, first, model.ReasonRegistration)
	require.NoError(t, err)

	// any number of later assertions for other partners must not move it
	for _, otherPartner := range []int64{8, 9, 10} {
		u, _ := users.GetByID(context.Background(), 1)
		later := &model.Assertion{PartnerID: otherPartner, Source: model.AttributionOnlineLink, AssertedAt: testNow}
		pid, err := locker.Lock(context.Background(), u, later, model.ReasonLoanApplication)
		require.NoError(t, err)
		require.NotNil(t, pid)
		assert.Equal(t, int64(7), *pid, "stored attribution is authoritative")
	}

	stored, _ := users.GetByID(context.Background(), 1)
	assert.Equal(t, int64(7), *stored.AttributedPartnerID)
	assert.Len(t, ledger.byAction(model.ActionConversion), 1)
}

func TestLockOrganicIsNoop(t *testing.T) {
	users := newFakeUsers(&model.User{ID: 1, Phone: "+911234567890"})
	ledger := &fakeLedger{}
	locker := NewLocker(users, ledger, clock, nil)

	u, _ := users.GetByID(context.Background(), 1)
	pid, err := locker.Lock(context.Background(), u, nil, model.ReasonRegistration)
	require.NoError(t, err)
	assert.Nil(t, pid)

	stored, _ := users.GetByID(context.Background(), 1)
	assert.Nil(t, stored.AttributedPartnerID)
	assert.Empty(t, ledger.entries)
}

func TestLockNilUserIsNoop(t *testing.T) {
	locker := NewLocker(newFakeUsers(), &fakeLedger{}, clock, nil)
	pid, err := locker.Lock(context.Background(), nil, &model.Assertion{PartnerID: 7}, model.ReasonRegistration)
	require.NoError(t, err)
	assert.Nil(t, pid)
}

// Two concurrent conversions carrying assertions for different partners:
// exactly one wins and neither caller sees an error.
func TestLockRaceSafety(t *testing.T) {
	users := newFakeUsers(&model.User{ID: 1, Phone: "+911234567890"})
	ledger := &fakeLedger{}
	locker := NewLocker(users, ledger, clock, nil)

	results := make([]*int64, 2)
	errs := make([]error, 2)

	var wg sync.WaitGroup
	for i, partner := range []int64{100, 200} {
		wg.Add(1)
		go func(i int, partner int64) {
			defer wg.Done()
			u, _ := users.GetByID(context.Background(), 1)
			a := &model.Assertion{PartnerID: partner, Source: model.AttributionOnlineLink, AssertedAt: testNow}
			results[i], errs[i] = locker.Lock(context.Background(), u, a, model.ReasonRegistration)
		}(i, partner)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	stored, _ := users.GetByID(context.Background(), 1)
	require.NotNil(t, stored.AttributedPartnerID)
	winner := *stored.AttributedPartnerID
	assert.Contains(t, []int64{100, 200}, winner)

	// both callers converge on the winner
	require.NotNil(t, results[0])
	require.NotNil(t, results[1])
	assert.Equal(t, winner, *results[0])
	assert.Equal(t, winner, *results[1])

	// only the winning claim logged a conversion
	assert.Len(t, ledger.byAction(model.ActionConversion), 1)
}

func TestLockLedgerFailureDoesNotFailConversion(t *testing.T) {
	users := newFakeUsers(&model.User{ID: 1, Phone: "+911234567890"})
	ledger := &fakeLedger{err: assert.AnError}
	locker := NewLocker(users, ledger, clock, nil)

	u, _ := users.GetByID(context.Background(), 1)
	assertion := &model.Assertion{PartnerID: 7, Source: model.AttributionOnlineLink, AssertedAt: testNow}
	pid, err := locker.Lock(context.Background(), u, assertion, model.ReasonRegistration)
	require.NoError(t, err)
	require.NotNil(t, pid)
	assert.Equal(t, int64(7), *pid)
}
