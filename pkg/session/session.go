// Package session is the login gate: it holds the logged-in flag, the wallet
// address and the selected network, persists the first two, and reacts to
// wallet account and network changes.
package session

import (
	"context"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"bankfair_client/pkg/repository"
)

const (
	KeyLoggedIn      = "isLoggedIn"
	KeyWalletAddress = "walletAddress"
)

var (
	ErrNoAccounts  = errors.New("no wallet addresses found, set up a wallet and try again")
	ErrNotLoggedIn = errors.New("not logged in")
)

// Wallet is the part of the bridge the gate needs.
type Wallet interface {
	NetworkID(ctx context.Context) (uint64, error)
	SwitchChain(ctx context.Context, chainID uint64) error
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	SubscribeAccounts(ch chan<- []common.Address) event.Subscription
	SubscribeNetwork(ch chan<- uint64) event.Subscription
}

// Identity is a read-only copy of the session.
type Identity struct {
	LoggedIn  bool           `json:"logged_in"`
	Address   common.Address `json:"wallet_address"`
	NetworkID uint64         `json:"network_id"`
}

// OnNetwork reports whether the session is on the network the app expects.
func (i Identity) OnNetwork(appNetwork uint64) bool {
	return i.NetworkID == appNetwork
}

type Gate struct {
	store      repository.SessionStore
	wallet     Wallet
	appNetwork uint64

	mu  sync.RWMutex
	cur Identity
}

func New(store repository.SessionStore, wallet Wallet, appNetwork uint64) *Gate {
	return &Gate{store: store, wallet: wallet, appNetwork: appNetwork}
}

// Load restores a persisted login. The wallet is asked for its accounts
// again and the login is kept only when the stored address is still the
// active account; otherwise the session starts logged out.
func (g *Gate) Load(ctx context.Context) error {
	id := Identity{}
	if nid, err := g.wallet.NetworkID(ctx); err == nil {
		id.NetworkID = nid
	} else {
		logrus.WithError(err).Warn("session: network id unavailable")
	}

	stored, err := g.storedAddress(ctx)
	if err != nil {
		return err
	}
	if stored != (common.Address{}) {
		accounts, err := g.wallet.RequestAccounts(ctx)
		switch {
		case err != nil:
			logrus.WithError(err).Warn("session: wallet accounts unavailable, starting logged out")
		case len(accounts) == 0 || accounts[0] != stored:
			logrus.WithField("stored", stored.Hex()).Warn("session: stored wallet is not the active account, starting logged out")
		default:
			id.LoggedIn = true
			id.Address = stored
		}
		if !id.LoggedIn {
			if err := g.clear(ctx); err != nil {
				return err
			}
		}
	}

	g.mu.Lock()
	g.cur = id
	g.mu.Unlock()
	logrus.WithFields(logrus.Fields{"logged_in": id.LoggedIn, "network_id": id.NetworkID}).Info("session: restored")
	return nil
}

// storedAddress returns the persisted wallet address when isLoggedIn is
// true, or the zero address.
func (g *Gate) storedAddress(ctx context.Context) (common.Address, error) {
	flag, ok, err := g.store.GetFlag(ctx, KeyLoggedIn)
	if err != nil || !ok {
		return common.Address{}, err
	}
	if loggedIn, _ := strconv.ParseBool(flag); !loggedIn {
		return common.Address{}, nil
	}
	addr, ok, err := g.store.GetFlag(ctx, KeyWalletAddress)
	if err != nil || !ok || !common.IsHexAddress(addr) {
		return common.Address{}, err
	}
	return common.HexToAddress(addr), nil
}

func (g *Gate) clear(ctx context.Context) error {
	if err := g.store.SetFlag(ctx, KeyLoggedIn, "false"); err != nil {
		return err
	}
	return g.store.DeleteFlag(ctx, KeyWalletAddress)
}

// Login switches to the app network when needed, requests accounts and
// persists the first one. Calling it while logged in returns the current
// identity.
func (g *Gate) Login(ctx context.Context) (Identity, error) {
	if cur := g.Current(); cur.LoggedIn {
		return cur, nil
	}

	nid, err := g.wallet.NetworkID(ctx)
	if err != nil {
		return Identity{}, errors.Wrap(err, "network id")
	}
	if nid != g.appNetwork {
		if err := g.wallet.SwitchChain(ctx, g.appNetwork); err != nil {
			return Identity{}, errors.Wrap(err, "switch chain")
		}
		if nid, err = g.wallet.NetworkID(ctx); err != nil {
			return Identity{}, errors.Wrap(err, "network id")
		}
	}

	accounts, err := g.wallet.RequestAccounts(ctx)
	if err != nil {
		return Identity{}, errors.Wrap(err, "request accounts")
	}
	if len(accounts) == 0 {
		return Identity{}, ErrNoAccounts
	}

	id := Identity{LoggedIn: true, Address: accounts[0], NetworkID: nid}
	if err := g.store.SetFlag(ctx, KeyLoggedIn, "true"); err != nil {
		return Identity{}, err
	}
	if err := g.store.SetFlag(ctx, KeyWalletAddress, id.Address.Hex()); err != nil {
		return Identity{}, err
	}

	g.mu.Lock()
	g.cur = id
	g.mu.Unlock()
	logrus.WithField("wallet", id.Address.Hex()).Info("session: logged in")
	return id, nil
}

// Logout clears the session. It is a no-op when not logged in.
func (g *Gate) Logout(ctx context.Context) error {
	g.mu.Lock()
	if !g.cur.LoggedIn {
		g.mu.Unlock()
		return nil
	}
	g.cur.LoggedIn = false
	g.cur.Address = common.Address{}
	g.mu.Unlock()

	logrus.Info("session: logged out")
	return g.clear(ctx)
}

func (g *Gate) Current() Identity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cur
}

// RequireLogin returns the identity or ErrNotLoggedIn.
func (g *Gate) RequireLogin() (Identity, error) {
	cur := g.Current()
	if !cur.LoggedIn {
		return cur, ErrNotLoggedIn
	}
	return cur, nil
}

// AppNetwork is the chain id the client is configured for.
func (g *Gate) AppNetwork() uint64 { return g.appNetwork }

// Watch applies wallet events until ctx is done: any account change logs
// out, a network change updates the network id. Events are ignored while
// logged out.
func (g *Gate) Watch(ctx context.Context) error {
	accounts := make(chan []common.Address, 4)
	networks := make(chan uint64, 4)
	accSub := g.wallet.SubscribeAccounts(accounts)
	defer accSub.Unsubscribe()
	netSub := g.wallet.SubscribeNetwork(networks)
	defer netSub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-accSub.Err():
			return err
		case err := <-netSub.Err():
			return err
		case <-accounts:
			if !g.Current().LoggedIn {
				continue
			}
			logrus.Info("session: wallet account changed")
			if err := g.Logout(ctx); err != nil {
				logrus.WithError(err).Error("session: logout after account change")
			}
		case nid := <-networks:
			g.mu.Lock()
			if g.cur.LoggedIn {
				g.cur.NetworkID = nid
			}
			g.mu.Unlock()
			logrus.WithField("network_id", nid).Info("session: network changed")
		}
	}
}
