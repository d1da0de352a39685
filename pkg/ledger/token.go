package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Token is the ERC-20 the pool accepts.
type Token struct {
	c Contract
}

func NewToken(c Contract) *Token {
	return &Token{c: c}
}

func (t *Token) Address() common.Address {
	return t.c.Address()
}

func (t *Token) Symbol(ctx context.Context) (string, error) {
	out, err := t.c.Call(ctx, "symbol")
	if err != nil {
		return "", err
	}
	if len(out) != 1 {
		return "", unexpectedOutput{method: "symbol"}
	}
	s, ok := out[0].(string)
	if !ok {
		return "", unexpectedOutput{method: "symbol"}
	}
	return s, nil
}

func (t *Token) Decimals(ctx context.Context) (uint8, error) {
	return callUint8(ctx, t.c, "decimals")
}

func (t *Token) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return callBig(ctx, t.c, "balanceOf", owner)
}

func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return callBig(ctx, t.c, "allowance", owner, spender)
}

// Approve grants spender a spending limit of amount.
func (t *Token) Approve(ctx context.Context, spender common.Address, amount *big.Int) (Pending, error) {
	return t.c.Transact(ctx, "approve", spender, amount)
}

func callBig(ctx context.Context, c Contract, method string, args ...interface{}) (*big.Int, error) {
	out, err := c.Call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, unexpectedOutput{method: method}
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, unexpectedOutput{method: method}
	}
	return v, nil
}

func callAddress(ctx context.Context, c Contract, method string, args ...interface{}) (common.Address, error) {
	out, err := c.Call(ctx, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	if len(out) != 1 {
		return common.Address{}, unexpectedOutput{method: method}
	}
	v, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, unexpectedOutput{method: method}
	}
	return v, nil
}

func callUint8(ctx context.Context, c Contract, method string, args ...interface{}) (uint8, error) {
	out, err := c.Call(ctx, method, args...)
	if err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, unexpectedOutput{method: method}
	}
	v, ok := out[0].(uint8)
	if !ok {
		return 0, unexpectedOutput{method: method}
	}
	return v, nil
}
