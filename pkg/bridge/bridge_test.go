package bridge

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bankfair_client/internal/wallet"
	"bankfair_client/pkg/ledger"
)

type fakeClient struct {
	ledger.Backend
	id int64

	mu     sync.Mutex
	closed bool
}

func (f *fakeClient) ChainID(context.Context) (*big.Int, error) { return big.NewInt(f.id), nil }

func (f *fakeClient) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeClient) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type dialer struct {
	ids     map[string]int64
	clients map[string]*fakeClient
}

func (d *dialer) dial(_ context.Context, url string) (Client, error) {
	id, ok := d.ids[url]
	if !ok {
		return nil, errors.New("connection refused")
	}
	c := &fakeClient{id: id}
	d.clients[url] = c
	return c, nil
}

func newDialer() *dialer {
	return &dialer{
		ids:     map[string]int64{"http://local": 1337, "http://sepolia": 11155111, "http://liar": 1},
		clients: map[string]*fakeClient{},
	}
}

func keys(t *testing.T, n int) []*wallet.Wallet {
	t.Helper()
	out := make([]*wallet.Wallet, n)
	for i := range out {
		w, err := wallet.Generate()
		require.NoError(t, err)
		out[i] = w
	}
	return out
}

func newBridge(t *testing.T, d *dialer, ks []*wallet.Wallet) *Bridge {
	t.Helper()
	b, err := New(context.Background(), Config{
		Chains:  map[uint64]string{1337: "http://local", 11155111: "http://sepolia", 5: "http://liar"},
		Initial: 1337,
	}, ks, d.dial)
	require.NoError(t, err)
	return b
}

func TestNew_UnknownInitialChain(t *testing.T) {
	_, err := New(context.Background(), Config{Initial: 9}, nil, newDialer().dial)
	assert.ErrorIs(t, err, ErrUnknownChain)
}

func TestAccounts_RequireRequest(t *testing.T) {
	ks := keys(t, 2)
	b := newBridge(t, newDialer(), ks)
	ctx := context.Background()

	accs, err := b.Accounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, accs)

	_, err = b.TransactOpts(ctx)
	assert.ErrorIs(t, err, ErrNotAuthorised)

	accs, err = b.RequestAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{ks[0].Address, ks[1].Address}, accs)

	opts, err := b.TransactOpts(ctx)
	require.NoError(t, err)
	assert.Equal(t, ks[0].Address, opts.From)
}

func TestRequestAccounts_NoKeys(t *testing.T) {
	b := newBridge(t, newDialer(), nil)
	_, err := b.RequestAccounts(context.Background())
	assert.ErrorIs(t, err, ErrNoAccounts)
}

func TestSwitchChain(t *testing.T) {
	d := newDialer()
	b := newBridge(t, d, keys(t, 1))
	ctx := context.Background()

	ch := make(chan uint64, 1)
	sub := b.SubscribeNetwork(ch)
	defer sub.Unsubscribe()

	require.NoError(t, b.SwitchChain(ctx, 11155111))
	id, err := b.NetworkID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(11155111), id)
	assert.True(t, d.clients["http://local"].isClosed())

	select {
	case got := <-ch:
		assert.Equal(t, uint64(11155111), got)
	case <-time.After(time.Second):
		t.Fatal("no network change event")
	}

	assert.ErrorIs(t, b.SwitchChain(ctx, 42), ErrUnknownChain)

	// endpoint reporting the wrong chain keeps the current connection
	assert.Error(t, b.SwitchChain(ctx, 5))
	id, _ = b.NetworkID(ctx)
	assert.Equal(t, uint64(11155111), id)
	assert.True(t, d.clients["http://liar"].isClosed())
}

func TestSelectAccount_Notifies(t *testing.T) {
	ks := keys(t, 2)
	b := newBridge(t, newDialer(), ks)
	ctx := context.Background()
	_, err := b.RequestAccounts(ctx)
	require.NoError(t, err)

	ch := make(chan []common.Address, 2)
	sub := b.SubscribeAccounts(ch)
	defer sub.Unsubscribe()

	require.NoError(t, b.SelectAccount(ks[1].Address))
	got := <-ch
	assert.Equal(t, ks[1].Address, got[0])

	opts, err := b.TransactOpts(ctx)
	require.NoError(t, err)
	assert.Equal(t, ks[1].Address, opts.From)

	assert.ErrorIs(t, b.SelectAccount(common.HexToAddress("0x01")), ErrUnknownAccount)

	b.Disconnect()
	assert.Empty(t, <-ch)
}
