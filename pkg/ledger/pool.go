package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// LoanStatus mirrors the contract's loan status enum.
type LoanStatus uint8

const (
	LoanApplied LoanStatus = iota
	LoanDenied
	LoanApproved
	LoanCancelled
	LoanFundsWithdrawn
	LoanRepaid
	LoanDefaulted
)

var loanStatusNames = [...]string{
	"APPLIED", "DENIED", "APPROVED", "CANCELLED", "FUNDS_WITHDRAWN", "REPAID", "DEFAULTED",
}

func (s LoanStatus) String() string {
	if int(s) < len(loanStatusNames) {
		return loanStatusNames[s]
	}
	return "UNKNOWN"
}

// Loan is the raw loan application record.
type Loan struct {
	ID             *big.Int
	Borrower       common.Address
	Amount         *big.Int
	Duration       *big.Int
	APR            *big.Int
	LateFeePercent *big.Int
	AppliedTime    *big.Int
	Status         LoanStatus
}

// Exists reports whether the record refers to a real loan; unknown ids read
// back as the zero record.
func (l Loan) Exists() bool {
	return l.ID != nil && l.ID.Sign() > 0
}

// LoanDetail holds repayment progress of a granted loan.
type LoanDetail struct {
	LoanID           *big.Int
	TotalAmountPaid  *big.Int
	BaseAmountRepaid *big.Int
	InterestPaid     *big.Int
	GrantedTime      *big.Int
	LastPaymentTime  *big.Int
}

func (d LoanDetail) Exists() bool {
	return d.LoanID != nil && d.LoanID.Sign() > 0
}

// Pool is the typed surface of the pool contract.
type Pool struct {
	c Contract
}

func NewPool(c Contract) *Pool {
	return &Pool{c: c}
}

func (p *Pool) Address() common.Address {
	return p.c.Address()
}

func (p *Pool) Token(ctx context.Context) (common.Address, error) {
	return callAddress(ctx, p.c, "token")
}

func (p *Pool) Manager(ctx context.Context) (common.Address, error) {
	return callAddress(ctx, p.c, "manager")
}

func (p *Pool) PercentDecimals(ctx context.Context) (uint8, error) {
	return callUint8(ctx, p.c, "PERCENT_DECIMALS")
}

func (p *Pool) PoolLiquidity(ctx context.Context) (*big.Int, error) {
	return callBig(ctx, p.c, "poolLiqudity")
}

func (p *Pool) PoolFunds(ctx context.Context) (*big.Int, error) {
	return callBig(ctx, p.c, "poolFunds")
}

func (p *Pool) BorrowedFunds(ctx context.Context) (*big.Int, error) {
	return callBig(ctx, p.c, "borrowedFunds")
}

func (p *Pool) LoanFundsPendingWithdrawal(ctx context.Context) (*big.Int, error) {
	return callBig(ctx, p.c, "loanFundsPendingWithdrawal")
}

func (p *Pool) TotalPoolShares(ctx context.Context) (*big.Int, error) {
	return callBig(ctx, p.c, "totalPoolShares")
}

func (p *Pool) SharesOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return callBig(ctx, p.c, "sharesOf", account)
}

func (p *Pool) StakedSharesOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return callBig(ctx, p.c, "stakedSharesOf", account)
}

func (p *Pool) UnlockedSharesOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return callBig(ctx, p.c, "unlockedSharesOf", account)
}

func (p *Pool) SharesToTokens(ctx context.Context, shares *big.Int) (*big.Int, error) {
	return callBig(ctx, p.c, "sharesToTokens", shares)
}

func (p *Pool) TokensToShares(ctx context.Context, tokens *big.Int) (*big.Int, error) {
	return callBig(ctx, p.c, "tokensToShares", tokens)
}

func (p *Pool) MinAmount(ctx context.Context) (*big.Int, error) {
	return callBig(ctx, p.c, "minAmount")
}

func (p *Pool) MinDuration(ctx context.Context) (*big.Int, error) {
	return callBig(ctx, p.c, "minDuration")
}

func (p *Pool) MaxDuration(ctx context.Context) (*big.Int, error) {
	return callBig(ctx, p.c, "maxDuration")
}

func (p *Pool) DefaultAPR(ctx context.Context) (*big.Int, error) {
	return callBig(ctx, p.c, "defaultAPR")
}

func (p *Pool) DefaultLateFeePercent(ctx context.Context) (*big.Int, error) {
	return callBig(ctx, p.c, "defaultLateFeePercent")
}

func (p *Pool) RecentLoanIDOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return callBig(ctx, p.c, "recentLoanIdOf", account)
}

func (p *Pool) LoanBalanceDueToday(ctx context.Context, loanID *big.Int) (*big.Int, error) {
	return callBig(ctx, p.c, "loanBalanceDueToday", loanID)
}

func (p *Pool) Loan(ctx context.Context, loanID *big.Int) (Loan, error) {
	out, err := p.c.Call(ctx, "loans", loanID)
	if err != nil {
		return Loan{}, err
	}
	if len(out) != 8 {
		return Loan{}, unexpectedOutput{method: "loans"}
	}
	var l Loan
	var ok [8]bool
	l.ID, ok[0] = out[0].(*big.Int)
	l.Borrower, ok[1] = out[1].(common.Address)
	l.Amount, ok[2] = out[2].(*big.Int)
	l.Duration, ok[3] = out[3].(*big.Int)
	l.APR, ok[4] = out[4].(*big.Int)
	l.LateFeePercent, ok[5] = out[5].(*big.Int)
	l.AppliedTime, ok[6] = out[6].(*big.Int)
	var status uint8
	status, ok[7] = out[7].(uint8)
	l.Status = LoanStatus(status)
	for _, b := range ok {
		if !b {
			return Loan{}, unexpectedOutput{method: "loans"}
		}
	}
	return l, nil
}

func (p *Pool) LoanDetail(ctx context.Context, loanID *big.Int) (LoanDetail, error) {
	out, err := p.c.Call(ctx, "loanDetails", loanID)
	if err != nil {
		return LoanDetail{}, err
	}
	if len(out) != 6 {
		return LoanDetail{}, unexpectedOutput{method: "loanDetails"}
	}
	vals := make([]*big.Int, len(out))
	for i, o := range out {
		b, ok := o.(*big.Int)
		if !ok {
			return LoanDetail{}, unexpectedOutput{method: "loanDetails"}
		}
		vals[i] = b
	}
	return LoanDetail{
		LoanID:           vals[0],
		TotalAmountPaid:  vals[1],
		BaseAmountRepaid: vals[2],
		InterestPaid:     vals[3],
		GrantedTime:      vals[4],
		LastPaymentTime:  vals[5],
	}, nil
}

func (p *Pool) EnterPool(ctx context.Context, tokens *big.Int) (Pending, error) {
	return p.c.Transact(ctx, "enterPool", tokens)
}

func (p *Pool) ExitPool(ctx context.Context, shares *big.Int) (Pending, error) {
	return p.c.Transact(ctx, "exitPool", shares)
}

func (p *Pool) Stake(ctx context.Context, shares *big.Int) (Pending, error) {
	return p.c.Transact(ctx, "stake", shares)
}

func (p *Pool) Unstake(ctx context.Context, shares *big.Int) (Pending, error) {
	return p.c.Transact(ctx, "unstake", shares)
}

func (p *Pool) ApplyForLoan(ctx context.Context, tokens, durationSeconds *big.Int) (Pending, error) {
	return p.c.Transact(ctx, "applyForLoan", tokens, durationSeconds)
}

func (p *Pool) ApproveLoan(ctx context.Context, loanID *big.Int) (Pending, error) {
	return p.c.Transact(ctx, "approveLoan", loanID)
}

func (p *Pool) DenyLoan(ctx context.Context, loanID *big.Int) (Pending, error) {
	return p.c.Transact(ctx, "denyLoan", loanID)
}

func (p *Pool) CancelLoan(ctx context.Context, loanID *big.Int) (Pending, error) {
	return p.c.Transact(ctx, "cancelLoan", loanID)
}

func (p *Pool) WithdrawLoanFunds(ctx context.Context, loanID *big.Int) (Pending, error) {
	return p.c.Transact(ctx, "withdrawLoanFunds", loanID)
}

func (p *Pool) RepayLoan(ctx context.Context, loanID, tokens *big.Int) (Pending, error) {
	return p.c.Transact(ctx, "repayLoan", loanID, tokens)
}

func (p *Pool) DefaultLoan(ctx context.Context, loanID *big.Int) (Pending, error) {
	return p.c.Transact(ctx, "defaultLoan", loanID)
}
