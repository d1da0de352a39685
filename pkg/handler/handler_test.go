package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bankfair_client/models"
	"bankfair_client/pkg/ledger"
	"bankfair_client/pkg/ledger/ledgertest"
	"bankfair_client/pkg/middleware"
	"bankfair_client/pkg/service"
	"bankfair_client/pkg/session"
)

var (
	poolAddr  = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	tokenAddr = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	alice     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	manager   = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

type fakeSession struct {
	mu sync.Mutex
	id session.Identity
}

func (f *fakeSession) Current() session.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id
}

func (f *fakeSession) RequireLogin() (session.Identity, error) {
	id := f.Current()
	if !id.LoggedIn {
		return id, session.ErrNotLoggedIn
	}
	return id, nil
}

func (f *fakeSession) Login(context.Context) (session.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.id = session.Identity{LoggedIn: true, Address: alice, NetworkID: 1337}
	return f.id, nil
}

func (f *fakeSession) Logout(context.Context) error {
	f.mu.Lock()
	f.id = session.Identity{NetworkID: 1337}
	f.mu.Unlock()
	return nil
}

func (f *fakeSession) AppNetwork() uint64 { return 1337 }

type fixture struct {
	router *gin.Engine
	pool   *ledgertest.Contract
	token  *ledgertest.Contract
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &fixture{pool: ledgertest.New(poolAddr), token: ledgertest.New(tokenAddr)}
	f.pool.OnRead("manager", ledgertest.Returns(manager))
	svc := service.NewService(service.Deps{
		Pool:  ledger.NewPool(f.pool),
		Token: ledger.NewToken(f.token),
		Meta: service.Meta{
			PoolAddress: poolAddr, TokenAddress: tokenAddr,
			Symbol: "DAI", Decimals: 18, PercentDecimals: 2, Manager: manager,
		},
		Session:     &fakeSession{id: session.Identity{NetworkID: 1337}},
		ExplorerURL: "https://explorer.test",
	})
	f.router = NewHandler(svc, []string{"http://localhost:3000"}).InitRoute()
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}, headers ...string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	out := map[string]json.RawMessage{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func decodeWizard(t *testing.T, raw map[string]json.RawMessage) models.Wizard {
	t.Helper()
	var w models.Wizard
	require.NoError(t, json.Unmarshal(raw["wizard"], &w))
	return w
}

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func TestAuthRoutes(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodGet, "/auth/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var u models.User
	require.NoError(t, json.Unmarshal(body["user"], &u))
	assert.False(t, u.LoggedIn)

	rec, body = f.do(t, http.MethodPost, "/auth/login", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(body["user"], &u))
	assert.True(t, u.LoggedIn)
	assert.Equal(t, alice.Hex(), u.WalletAddress)
	assert.Equal(t, uint64(1337), u.AppNetworkID)

	rec, body = f.do(t, http.MethodPost, "/auth/logout", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(body["user"], &u))
	assert.False(t, u.LoggedIn)
}

func TestWizardRoutes_RequireSession(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodPost, "/api/wizards", gin.H{"kind": "deposit"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	f.do(t, http.MethodPost, "/auth/login", nil)
	rec, _ = f.do(t, http.MethodGet, "/api/wizards/abc", nil, middleware.WalletHeader, manager.Hex())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/wizards/abc", nil, middleware.WalletHeader, alice.Hex())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWizardRoutes_Deposit(t *testing.T) {
	f := newFixture(t)
	f.token.OnRead("balanceOf", ledgertest.Returns(tokens(100)))
	f.token.Hold = make(chan struct{})
	f.do(t, http.MethodPost, "/auth/login", nil)

	rec, _ := f.do(t, http.MethodPost, "/api/wizards", gin.H{"kind": "lend"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := f.do(t, http.MethodPost, "/api/wizards", gin.H{"kind": "deposit"})
	require.Equal(t, http.StatusCreated, rec.Code)
	w := decodeWizard(t, body)
	assert.Equal(t, "100.00", w.Limits["balance"])
	path := "/api/wizards/" + w.ID

	rec, body = f.do(t, http.MethodPut, path+"/inputs", gin.H{"amount": "150"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeWizard(t, body).CanNext)

	rec, body = f.do(t, http.MethodPost, path+"/next", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `"InvalidAmount"`, string(body["kind"]))

	f.do(t, http.MethodPut, path+"/inputs", gin.H{"amount": "50"})
	rec, body = f.do(t, http.MethodPost, path+"/next", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	w = decodeWizard(t, body)
	assert.True(t, w.Busy)
	assert.Equal(t, 1, w.ActiveStep)

	rec, _ = f.do(t, http.MethodPost, path+"/next", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(f.token.Hold)
	require.Eventually(t, func() bool {
		_, body := f.do(t, http.MethodGet, path, nil)
		var cur models.Wizard
		return json.Unmarshal(body["wizard"], &cur) == nil && !cur.Busy
	}, time.Second, 5*time.Millisecond)

	rec, _ = f.do(t, http.MethodPut, path+"/inputs", gin.H{"amount": "10"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = f.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = f.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPoolRoutes(t *testing.T) {
	f := newFixture(t)
	f.pool.OnRead("poolLiqudity", ledgertest.Returns(tokens(1234)))
	f.pool.OnRead("loans", ledgertest.Returns(
		big.NewInt(0), common.Address{}, big.NewInt(0), big.NewInt(0),
		big.NewInt(0), big.NewInt(0), big.NewInt(0), uint8(0),
	))

	rec, body := f.do(t, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st models.Stats
	require.NoError(t, json.Unmarshal(body["stats"], &st))
	assert.Equal(t, "1,234.00", st.PoolLiquidity)
	assert.Empty(t, st.PoolFunds)

	rec, _ = f.do(t, http.MethodGet, "/api/loans/lookup", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = f.do(t, http.MethodGet, "/api/loans/lookup?q=banana", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = f.do(t, http.MethodGet, "/api/loans/lookup?q=5", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/balances", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	f.do(t, http.MethodPost, "/auth/login", nil)
	rec, body = f.do(t, http.MethodPost, "/api/balances/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var b models.Balances
	require.NoError(t, json.Unmarshal(body["balances"], &b))
	assert.Equal(t, "DAI", b.TokenSymbol)
	assert.Equal(t, uint64(1), b.Version)
}
