// Package ledgertest provides an in-memory ledger.Contract for tests.
package ledgertest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"bankfair_client/pkg/ledger"
	"bankfair_client/pkg/txerr"
)

// Call records one invocation.
type Call struct {
	Method string
	Args   []interface{}
}

// ReadFunc answers a read-only call.
type ReadFunc func(args ...interface{}) ([]interface{}, error)

// WriteFunc settles a state-changing call. Returning an error of kind
// SubmissionRejected fails Transact itself; any other error is returned by
// Wait together with the receipt.
type WriteFunc func(args ...interface{}) (*ledger.Receipt, error)

// Contract is a scriptable fake. Unknown reads fail, unknown writes succeed.
type Contract struct {
	Addr common.Address

	// Hold, when set, blocks every Wait until it is closed.
	Hold chan struct{}

	mu     sync.Mutex
	reads  map[string]ReadFunc
	writes map[string]WriteFunc
	calls  []Call
	sent   []Call
	nonce  int64
}

func New(addr common.Address) *Contract {
	return &Contract{
		Addr:   addr,
		reads:  map[string]ReadFunc{},
		writes: map[string]WriteFunc{},
	}
}

// Returns is a ReadFunc that always answers out.
func Returns(out ...interface{}) ReadFunc {
	return func(...interface{}) ([]interface{}, error) { return out, nil }
}

// Fails is a ReadFunc that always errors.
func Fails(msg string) ReadFunc {
	return func(...interface{}) ([]interface{}, error) { return nil, fmt.Errorf("%s", msg) }
}

func (c *Contract) OnRead(method string, fn ReadFunc) *Contract {
	c.mu.Lock()
	c.reads[method] = fn
	c.mu.Unlock()
	return c
}

func (c *Contract) OnWrite(method string, fn WriteFunc) *Contract {
	c.mu.Lock()
	c.writes[method] = fn
	c.mu.Unlock()
	return c
}

func (c *Contract) Address() common.Address {
	return c.Addr
}

func (c *Contract) Call(_ context.Context, method string, args ...interface{}) ([]interface{}, error) {
	c.mu.Lock()
	fn := c.reads[method]
	c.calls = append(c.calls, Call{Method: method, Args: args})
	c.mu.Unlock()
	if fn == nil {
		return nil, txerr.ReadFailed(fmt.Errorf("no answer scripted"), method)
	}
	out, err := fn(args...)
	if err != nil {
		return nil, txerr.ReadFailed(err, method)
	}
	return out, nil
}

func (c *Contract) Transact(_ context.Context, method string, args ...interface{}) (ledger.Pending, error) {
	c.mu.Lock()
	fn := c.writes[method]
	c.nonce++
	hash := common.BigToHash(new(big.Int).Add(big.NewInt(c.nonce), new(big.Int).SetBytes(c.Addr.Bytes())))
	c.mu.Unlock()

	receipt := &ledger.Receipt{TxHash: hash, Status: true, BlockNumber: uint64(c.nonce)}
	var err error
	if fn != nil {
		var r *ledger.Receipt
		r, err = fn(args...)
		if r != nil {
			receipt = r
			if receipt.TxHash == (common.Hash{}) {
				receipt.TxHash = hash
			}
		}
	}
	if txerr.KindOf(err) == txerr.KindRejected {
		return nil, err
	}

	c.mu.Lock()
	c.sent = append(c.sent, Call{Method: method, Args: args})
	c.mu.Unlock()
	return &pending{hash: receipt.TxHash, receipt: receipt, err: err, hold: c.Hold}, nil
}

// Calls returns every read so far.
func (c *Contract) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Sent returns every accepted state-changing call so far.
func (c *Contract) Sent() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.sent...)
}

// SentTo returns accepted calls of one method.
func (c *Contract) SentTo(method string) []Call {
	var out []Call
	for _, s := range c.Sent() {
		if s.Method == method {
			out = append(out, s)
		}
	}
	return out
}

type pending struct {
	hash    common.Hash
	receipt *ledger.Receipt
	err     error
	hold    chan struct{}
}

func (p *pending) Hash() common.Hash { return p.hash }

func (p *pending) Wait(ctx context.Context) (*ledger.Receipt, error) {
	if p.hold != nil {
		select {
		case <-p.hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return p.receipt, p.err
}

// AmountEvent builds an event whose payload is a single 32-byte word.
func AmountEvent(addr common.Address, v *big.Int) ledger.Event {
	return ledger.Event{Address: addr, Data: common.BigToHash(v).Bytes()}
}
