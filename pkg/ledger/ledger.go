// Package ledger is the client side of the pool contract and its ERC-20
// token. Reads return scaled integers; every state-changing call returns a
// Pending handle whose Wait is the single suspension point for callers.
package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"bankfair_client/pkg/amount"
)

// Backend is what a bound contract needs from a node connection.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Chain supplies the current node connection and a signer for the active
// account. The wallet bridge implements it.
type Chain interface {
	Backend() Backend
	TransactOpts(ctx context.Context) (*bind.TransactOpts, error)
}

// Contract is the untyped method surface of one deployed contract.
type Contract interface {
	Address() common.Address
	Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error)
	Transact(ctx context.Context, method string, args ...interface{}) (Pending, error)
}

// Pending is a submitted call that has not been observed mined yet.
type Pending interface {
	Hash() common.Hash
	Wait(ctx context.Context) (*Receipt, error)
}

// Event is one log of the receipt, in emission order.
type Event struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
	// Decoded is set when the called contract's ABI declares the event.
	Decoded bool
}

// Receipt is the settled outcome of a state-changing call.
type Receipt struct {
	TxHash      common.Hash
	Status      bool
	BlockNumber uint64
	Events      []Event
}

// EventAmount decodes the payload of the i-th raw event as a scaled amount.
// Raw events are the ones the called contract's ABI does not decode,
// numbered in receipt order.
func (r *Receipt) EventAmount(i int) (*big.Int, bool) {
	if r == nil || !r.Status || i < 0 {
		return nil, false
	}
	n := 0
	for _, ev := range r.Events {
		if ev.Decoded {
			continue
		}
		if n == i {
			return amount.FromEventData(ev.Data), true
		}
		n++
	}
	return nil, false
}

// Call methods return this when an output has an unexpected shape.
type unexpectedOutput struct {
	method string
}

func (e unexpectedOutput) Error() string {
	return "ledger: unexpected output from " + e.method
}
