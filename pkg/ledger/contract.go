package ledger

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"bankfair_client/pkg/txerr"
)

// BoundContract talks to one deployed contract through the chain's current
// node connection.
type BoundContract struct {
	address common.Address
	abi     abi.ABI
	chain   Chain
}

// NewBoundContract parses abiJSON and binds it to address on chain.
func NewBoundContract(address common.Address, abiJSON string, chain Chain) (*BoundContract, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, errors.Wrap(err, "ledger: parse abi")
	}
	return &BoundContract{address: address, abi: parsed, chain: chain}, nil
}

func (c *BoundContract) Address() common.Address {
	return c.address
}

func (c *BoundContract) bound() *bind.BoundContract {
	b := c.chain.Backend()
	return bind.NewBoundContract(c.address, c.abi, b, b, b)
}

// Call runs a read-only method and returns its unpacked outputs.
func (c *BoundContract) Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := c.bound().Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, txerr.ReadFailed(err, method)
	}
	return out, nil
}

// Transact signs and broadcasts a state-changing method. Anything that fails
// before the node accepts the transaction is a rejection.
func (c *BoundContract) Transact(ctx context.Context, method string, args ...interface{}) (Pending, error) {
	opts, err := c.chain.TransactOpts(ctx)
	if err != nil {
		return nil, txerr.Rejected(err, method)
	}
	tx, err := c.bound().Transact(opts, method, args...)
	if err != nil {
		return nil, txerr.Rejected(err, method)
	}
	logrus.WithFields(logrus.Fields{
		"contract": c.address.Hex(),
		"method":   method,
		"tx":       tx.Hash().Hex(),
	}).Info("ledger: transaction submitted")

	return &pendingTx{abi: c.abi, method: method, tx: tx, backend: c.chain.Backend()}, nil
}

type pendingTx struct {
	abi      abi.ABI
	method   string
	tx       *types.Transaction
	backend  Backend
}

func (p *pendingTx) Hash() common.Hash {
	return p.tx.Hash()
}

// Wait blocks until the transaction is mined. A mined transaction with
// failed status is returned together with ErrSubmissionReverted so callers
// can still link to it.
func (p *pendingTx) Wait(ctx context.Context) (*Receipt, error) {
	r, err := bind.WaitMined(ctx, p.backend, p.tx)
	if err != nil {
		return nil, errors.Wrapf(err, "ledger: wait for %s", p.tx.Hash().Hex())
	}
	receipt := convertReceipt(p.abi, r)
	if !receipt.Status {
		return receipt, txerr.Reverted(p.method, receipt.TxHash.Hex())
	}
	logrus.WithFields(logrus.Fields{
		"method": p.method,
		"tx":     receipt.TxHash.Hex(),
		"block":  receipt.BlockNumber,
	}).Info("ledger: transaction mined")
	return receipt, nil
}

// convertReceipt keeps every log in receipt order, whichever contract
// emitted it. Logs whose first topic is an event of the called contract's
// ABI are marked decoded.
func convertReceipt(contract abi.ABI, r *types.Receipt) *Receipt {
	out := &Receipt{
		TxHash: r.TxHash,
		Status: r.Status == types.ReceiptStatusSuccessful,
	}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	for _, l := range r.Logs {
		if l == nil {
			continue
		}
		ev := Event{Address: l.Address, Topics: l.Topics, Data: l.Data}
		if len(l.Topics) > 0 {
			if _, err := contract.EventByID(l.Topics[0]); err == nil {
				ev.Decoded = true
			}
		}
		out.Events = append(out.Events, ev)
	}
	return out
}
