// Package bridge is the wallet side of the client: the accounts the user
// has authorised, the network the node connection is on, and a signer for
// the active account. It replaces the browser wallet extension.
package bridge

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"bankfair_client/internal/wallet"
	"bankfair_client/pkg/ledger"
)

var (
	ErrNoAccounts     = errors.New("bridge: no wallet accounts available")
	ErrUnknownChain   = errors.New("bridge: chain not configured")
	ErrNotAuthorised  = errors.New("bridge: accounts not requested")
	ErrUnknownAccount = errors.New("bridge: account not held by this wallet")
)

// Client is the node connection. *ethclient.Client satisfies it.
type Client interface {
	ledger.Backend
	ChainID(ctx context.Context) (*big.Int, error)
	Close()
}

// Dialer opens a node connection.
type Dialer func(ctx context.Context, rawurl string) (Client, error)

// DialEth is the Dialer for real JSON-RPC endpoints.
func DialEth(ctx context.Context, rawurl string) (Client, error) {
	c, err := ethclient.DialContext(ctx, rawurl)
	if err != nil {
		return nil, err
	}
	return c, nil
}

type Config struct {
	// Chains maps a chain id to its RPC endpoint.
	Chains map[uint64]string
	// Initial is the chain dialled on startup.
	Initial uint64
}

// Bridge holds the keys and the current node connection.
type Bridge struct {
	cfg  Config
	dial Dialer

	mu         sync.RWMutex
	client     Client
	chainID    *big.Int
	keys       []*wallet.Wallet
	active     int
	authorised bool

	accountFeed event.Feed
	networkFeed event.Feed
}

func New(ctx context.Context, cfg Config, keys []*wallet.Wallet, dial Dialer) (*Bridge, error) {
	if dial == nil {
		dial = DialEth
	}
	b := &Bridge{cfg: cfg, dial: dial, keys: keys}
	client, id, err := b.connect(ctx, cfg.Initial)
	if err != nil {
		return nil, err
	}
	b.client, b.chainID = client, id
	return b, nil
}

func (b *Bridge) connect(ctx context.Context, chainID uint64) (Client, *big.Int, error) {
	url, ok := b.cfg.Chains[chainID]
	if !ok {
		return nil, nil, errors.Wrapf(ErrUnknownChain, "chain %d", chainID)
	}
	client, err := b.dial(ctx, url)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "dial chain %d", chainID)
	}
	id, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, nil, errors.Wrapf(err, "chain id of %d", chainID)
	}
	if id.Uint64() != chainID {
		client.Close()
		return nil, nil, errors.Errorf("endpoint for chain %d reports chain %s", chainID, id)
	}
	return client, id, nil
}

// NetworkID returns the chain id of the current connection.
func (b *Bridge) NetworkID(context.Context) (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.chainID.Uint64(), nil
}

// SwitchChain reconnects to another configured chain and notifies network
// subscribers. Switching to the current chain is a no-op.
func (b *Bridge) SwitchChain(ctx context.Context, chainID uint64) error {
	b.mu.RLock()
	same := b.chainID.Uint64() == chainID
	b.mu.RUnlock()
	if same {
		return nil
	}

	client, id, err := b.connect(ctx, chainID)
	if err != nil {
		return err
	}
	b.mu.Lock()
	old := b.client
	b.client, b.chainID = client, id
	b.mu.Unlock()
	old.Close()

	logrus.WithField("chain_id", chainID).Info("bridge: switched chain")
	b.networkFeed.Send(chainID)
	return nil
}

// RequestAccounts authorises the client to see the wallet's accounts.
func (b *Bridge) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	b.mu.Lock()
	if len(b.keys) == 0 {
		b.mu.Unlock()
		return nil, ErrNoAccounts
	}
	b.authorised = true
	b.mu.Unlock()
	return b.Accounts(ctx)
}

// Accounts lists authorised accounts, active one first. Empty until
// RequestAccounts succeeds.
func (b *Bridge) Accounts(context.Context) ([]common.Address, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.accountsLocked(), nil
}

func (b *Bridge) accountsLocked() []common.Address {
	if !b.authorised || len(b.keys) == 0 {
		return nil
	}
	out := []common.Address{b.keys[b.active].Address}
	for i, k := range b.keys {
		if i != b.active {
			out = append(out, k.Address)
		}
	}
	return out
}

// SelectAccount makes addr the active account and notifies account subscribers.
func (b *Bridge) SelectAccount(addr common.Address) error {
	b.mu.Lock()
	idx := -1
	for i, k := range b.keys {
		if k.Address == addr {
			idx = i
			break
		}
	}
	if idx < 0 {
		b.mu.Unlock()
		return errors.Wrap(ErrUnknownAccount, addr.Hex())
	}
	changed := idx != b.active
	b.active = idx
	accounts := b.accountsLocked()
	b.mu.Unlock()

	if changed {
		b.accountFeed.Send(accounts)
	}
	return nil
}

// Disconnect withdraws authorisation; subscribers see an empty account list.
func (b *Bridge) Disconnect() {
	b.mu.Lock()
	was := b.authorised
	b.authorised = false
	b.mu.Unlock()
	if was {
		b.accountFeed.Send([]common.Address(nil))
	}
}

func (b *Bridge) SubscribeAccounts(ch chan<- []common.Address) event.Subscription {
	return b.accountFeed.Subscribe(ch)
}

func (b *Bridge) SubscribeNetwork(ch chan<- uint64) event.Subscription {
	return b.networkFeed.Subscribe(ch)
}

// Backend returns the current node connection.
func (b *Bridge) Backend() ledger.Backend {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.client
}

// TransactOpts signs with the active account on the current chain.
func (b *Bridge) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.authorised || len(b.keys) == 0 {
		return nil, ErrNotAuthorised
	}
	opts, err := bind.NewKeyedTransactorWithChainID(b.keys[b.active].PrivateKey, b.chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	return opts, nil
}

// Close drops the node connection.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		b.client.Close()
	}
}
