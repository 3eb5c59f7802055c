package http

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	echo "github.com/labstack/echo/v4"
	"github.com/loaninneed/attribution/internal/attribution"
	"github.com/loaninneed/attribution/internal/crypto"
	"github.com/loaninneed/attribution/internal/http/middleware"
	"github.com/loaninneed/attribution/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.UnixMilli(1_700_000_000_000)

type fakePartners struct {
	byID map[int64]*model.Partner
}

func (f *fakePartners) GetByID(_ context.Context, id int64) (*model.Partner, error) {
	return f.byID[id], nil
}

func (f *fakePartners) GetByAPIKey(_ context.Context, key string) (*model.Partner, error) {
	for _, p := range f.byID {
		if p.APIKey == key {
			return p, nil
		}
	}
	return nil, nil
}

func (f *fakePartners) Insert(_ context.Context, p *model.Partner) (int64, error) {
	id := int64(len(f.byID) + 1)
	p.ID = id
	f.byID[id] = p
	return id, nil
}

type fakeUsers struct {
	mu      sync.Mutex
	nextID  int64
	byID    map[int64]*model.User
	byPhone map[string]*model.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[int64]*model.User{}, byPhone: map[string]*model.User{}}
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id], nil
}

func (f *fakeUsers) GetByPhone(_ context.Context, phone string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byPhone[phone], nil
}

func (f *fakeUsers) Insert(_ context.Context, u *model.User) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	u.ID = f.nextID
	f.byID[u.ID] = u
	f.byPhone[u.Phone] = u
	return u.ID, nil
}

func (f *fakeUsers) ClaimAttribution(_ context.Context, userID, partnerID int64, typ model.AttributionType, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok || u.AttributedPartnerID != nil {
		return false, nil
	}
	u.AttributedPartnerID = &partnerID
	u.AttributionType = &typ
	u.AttributionDate = &at
	return true, nil
}

type fakeLedger struct {
	mu      sync.Mutex
	entries []model.LogEntry
}

func (f *fakeLedger) Append(_ context.Context, e model.LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
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

type fakeOTP struct {
	codes map[string]string
}

func (f *fakeOTP) Verify(_ context.Context, phone, code string) (bool, error) {
	return f.codes[phone] == code, nil
}

type fakeSessions struct {
	mu     sync.Mutex
	n      int
	tokens map[string]int64
}

func newFakeSessions() *fakeSessions { return &fakeSessions{tokens: map[string]int64{}} }

func (f *fakeSessions) Issue(_ context.Context, userID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	tok := fmt.Sprintf("tok-%d", f.n)
	f.tokens[tok] = userID
	return tok, nil
}

func (f *fakeSessions) Verify(_ context.Context, token string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.tokens[token]
	if !ok {
		return 0, fmt.Errorf("unknown token")
	}
	return id, nil
}

type signupEnv struct {
	echo     *echo.Echo
	partners *fakePartners
	users    *fakeUsers
	ledger   *fakeLedger
	sessions *fakeSessions
	secret   string
}

func newSignupEnv(t *testing.T) *signupEnv {
	t.Helper()

	vault := crypto.NewVault("test-master-key")
	secret, err := crypto.NewSecret()
	require.NoError(t, err)
	enc, err := vault.Encrypt(secret)
	require.NoError(t, err)

	partners := &fakePartners{byID: map[int64]*model.Partner{
		7: {ID: 7, Name: "Acme Loans", APIKey: "key-7", Status: model.PartnerActive, SecretKey: &enc},
	}}
	users := newFakeUsers()
	ledger := &fakeLedger{}
	sessions := newFakeSessions()
	otp := &fakeOTP{codes: map[string]string{"+15550001111": "123456"}}

	clock := func() time.Time { return testNow }
	log := zap.NewNop()
	gate := attribution.NewGate(partners, vault, 300_000, clock)
	locker := attribution.NewLocker(users, ledger, clock, log)
	svc := attribution.NewService(gate, locker, ledger, clock, log)

	e := echo.New()
	v1 := e.Group("/v1", middleware.SessionMiddleware(sessions, users), middleware.AttributionMiddleware(svc))
	v1.POST("/auth/verify-otp", verifyOTPHandler(otp, sessions, users, svc))

	return &signupEnv{echo: e, partners: partners, users: users, ledger: ledger, sessions: sessions, secret: secret}
}

func (env *signupEnv) signedQuery(pid int64) string {
	ts := testNow.UnixMilli()
	sig := crypto.Sign(pid, ts, env.secret)
	return fmt.Sprintf("pid=%d&ts=%d&sig=%s", pid, ts, sig)
}

func TestVerifyOTPSignedLinkLocksAttribution(t *testing.T) {
	env := newSignupEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/verify-otp?"+env.signedQuery(7),
		strings.NewReader(`{"phone":"+15550001111","code":"123456"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"attributed_partner_id":7`)

	u, err := env.users.GetByPhone(context.Background(), "+15550001111")
	require.NoError(t, err)
	require.NotNil(t, u)
	require.NotNil(t, u.AttributedPartnerID)
	assert.Equal(t, int64(7), *u.AttributedPartnerID)
	assert.Equal(t, model.AttributionOnlineLink, *u.AttributionType)

	// one CLICK from the gate, one CONVERSION from the lock
	assert.Len(t, env.ledger.byAction(model.ActionClick), 1)
	assert.Len(t, env.ledger.byAction(model.ActionConversion), 1)
}

func TestVerifyOTPWithoutLinkCreatesUnattributedUser(t *testing.T) {
	env := newSignupEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/verify-otp",
		strings.NewReader(`{"phone":"+15550001111","code":"123456"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "attributed_partner_id")

	u, _ := env.users.GetByPhone(context.Background(), "+15550001111")
	require.NotNil(t, u)
	assert.Nil(t, u.AttributedPartnerID)
	assert.Empty(t, env.ledger.entries)
}

func TestVerifyOTPTamperedSignatureFailsOpen(t *testing.T) {
	env := newSignupEnv(t)

	ts := testNow.UnixMilli()
	q := fmt.Sprintf("pid=7&ts=%d&sig=%064d", ts, 0)
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/verify-otp?"+q,
		strings.NewReader(`{"phone":"+15550001111","code":"123456"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)

	// registration still succeeds, the claim is just dropped
	require.Equal(t, 200, rec.Code, rec.Body.String())

	u, _ := env.users.GetByPhone(context.Background(), "+15550001111")
	require.NotNil(t, u)
	assert.Nil(t, u.AttributedPartnerID)

	rejected := env.ledger.byAction(model.ActionRejected)
	require.Len(t, rejected, 1)
	assert.Contains(t, rejected[0].Metadata, "SIG_MISMATCH")
}

func TestVerifyOTPBadCode(t *testing.T) {
	env := newSignupEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/verify-otp",
		strings.NewReader(`{"phone":"+15550001111","code":"999999"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)

	assert.Equal(t, 401, rec.Code)
	u, _ := env.users.GetByPhone(context.Background(), "+15550001111")
	assert.Nil(t, u)
}

func TestVerifyOTPExistingLockIsPermanent(t *testing.T) {
	env := newSignupEnv(t)

	// first registration through partner 7's link
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/verify-otp?"+env.signedQuery(7),
		strings.NewReader(`{"phone":"+15550001111","code":"123456"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	// a second partner's link on a later login must not re-attribute
	secret2, err := crypto.NewSecret()
	require.NoError(t, err)
	enc2, err := crypto.NewVault("test-master-key").Encrypt(secret2)
	require.NoError(t, err)
	env.partners.byID[9] = &model.Partner{ID: 9, Name: "Rival", APIKey: "key-9", Status: model.PartnerActive, SecretKey: &enc2}

	ts := testNow.UnixMilli()
	q := fmt.Sprintf("pid=9&ts=%d&sig=%s", ts, crypto.Sign(9, ts, secret2))
	req = httptest.NewRequest(http.MethodPost, "/v1/auth/verify-otp?"+q,
		strings.NewReader(`{"phone":"+15550001111","code":"123456"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"attributed_partner_id":7`)

	u, _ := env.users.GetByPhone(context.Background(), "+15550001111")
	require.NotNil(t, u)
	assert.Equal(t, int64(7), *u.AttributedPartnerID)

	// partner 9's touch is still a CLICK, never a CONVERSION
	assert.Len(t, env.ledger.byAction(model.ActionConversion), 1)
}
