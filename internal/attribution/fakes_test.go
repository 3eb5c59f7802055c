package attribution

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/loaninneed/attribution/internal/model"
	"github.com/stretchr/testify/require"
)

// fixed reference clock for deterministic freshness checks
var testNow = time.UnixMilli(1_700_000_000_000)

func clock() time.Time { return testNow }

func paramsFromLink(t *testing.T, link string) Params {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	q := u.Query()
	return Params{PID: q.Get("pid"), TS: q.Get("ts"), Sig: q.Get("sig")}
}

type fakePartners struct {
	mu       sync.Mutex
	partners map[int64]*model.Partner
	err      error
}

func newFakePartners(ps ...*model.Partner) *fakePartners {
	m := make(map[int64]*model.Partner, len(ps))
	for _, p := range ps {
		m[p.ID] = p
	}
	return &fakePartners{partners: m}
}

func (f *fakePartners) GetByID(ctx context.Context, id int64) (*model.Partner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.partners[id], nil
}

func (f *fakePartners) GetByAPIKey(ctx context.Context, key string) (*model.Partner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, p := range f.partners {
		if p.APIKey == key {
			return p, nil
		}
	}
	return nil, nil
}

func (f *fakePartners) Insert(ctx context.Context, p *model.Partner) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := int64(len(f.partners) + 1)
	p.ID = id
	f.partners[id] = p
	return id, nil
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[int64]*model.User
}

func newFakeUsers(us ...*model.User) *fakeUsers {
	m := make(map[int64]*model.User, len(us))
	for _, u := range us {
		m[u.ID] = u
	}
	return &fakeUsers{users: m}
}

func (f *fakeUsers) GetByID(ctx context.Context, id int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetByPhone(ctx context.Context, phone string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Phone == phone {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) Insert(ctx context.Context, u *model.User) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := int64(len(f.users) + 1)
	cp := *u
	cp.ID = id
	f.users[id] = &cp
	return id, nil
}

// ClaimAttribution mirrors the conditional UPDATE: the claim succeeds only
// while attributed_partner_id is still unset.
func (f *fakeUsers) ClaimAttribution(ctx context.Context, userID, partnerID int64, typ model.AttributionType, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok || u.AttributedPartnerID != nil {
		return false, nil
	}
	pid := partnerID
	u.AttributedPartnerID = &pid
	u.AttributionType = &typ
	u.AttributionDate = &at
	return true, nil
}

type fakeLedger struct {
	mu      sync.Mutex
	entries []model.LogEntry
	err     error
}

func (f *fakeLedger) Append(ctx context.Context, e model.LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeLedger) byAction(a model.LedgerAction) []model.LogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.LogEntry
	for _, e := range f.entries {
		if e.Action == a {
			out = append(out, e)
		}
	}
	return out
}
