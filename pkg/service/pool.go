package service

import (
	"context"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"bankfair_client/models"
	"bankfair_client/pkg/aggregator"
	"bankfair_client/pkg/amount"
	"bankfair_client/pkg/ledger"
)

var (
	loanIDPattern   = regexp.MustCompile(`^\d+$`)
	addressPattern  = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	utcStringLayout = "Mon, 02 Jan 2006 15:04:05 GMT"
)

// PoolService serves the read-only panels: balances, pool stats and loans.
type PoolService struct {
	pool    *ledger.Pool
	token   *ledger.Token
	meta    Meta
	session Session
	prices  PriceFeed

	balances aggregator.Store
}

func NewPoolService(deps Deps) *PoolService {
	return &PoolService{
		pool:    deps.Pool,
		token:   deps.Token,
		meta:    deps.Meta,
		session: deps.Session,
		prices:  deps.Prices,
	}
}

func (s *PoolService) display(v *big.Int) string {
	if v == nil {
		return ""
	}
	return amount.ToDisplay(v, s.meta.Decimals, amount.DisplayPrecision)
}

func (s *PoolService) percent(v *big.Int) string {
	if v == nil {
		return ""
	}
	return amount.PercentToDisplay(v, s.meta.PercentDecimals, amount.DisplayPrecision)
}

func (s *PoolService) days(v *big.Int) string {
	if v == nil {
		return ""
	}
	return amount.DurationToDays(v, 0)
}

func (s *PoolService) balancesPlan(account common.Address) *aggregator.Plan {
	byAccount := func(name string, read func(context.Context, common.Address) (*big.Int, error)) aggregator.Read {
		return aggregator.Read{Name: name, Fetch: func(ctx context.Context, _ aggregator.Values) (interface{}, error) {
			return read(ctx, account)
		}}
	}
	return aggregator.MustPlan(
		aggregator.Read{Name: "account", Fetch: func(context.Context, aggregator.Values) (interface{}, error) {
			return account, nil
		}},
		byAccount("wallet_balance", s.token.BalanceOf),
		byAccount("shares", s.pool.SharesOf),
		byAccount("staked", s.pool.StakedSharesOf),
		byAccount("unlocked", s.pool.UnlockedSharesOf),
		aggregator.Read{Name: "worth", After: []string{"shares"}, Fetch: func(ctx context.Context, d aggregator.Values) (interface{}, error) {
			return s.pool.SharesToTokens(ctx, d.Big("shares"))
		}},
		aggregator.Read{Name: "total_shares", Fetch: func(ctx context.Context, _ aggregator.Values) (interface{}, error) {
			return s.pool.TotalPoolShares(ctx)
		}},
	)
}

// RefreshBalances re-reads the account panel and stores it. Concurrent
// refreshes may interleave; the one that finishes last is kept.
func (s *PoolService) RefreshBalances(ctx context.Context) (models.Balances, error) {
	id, err := s.session.RequireLogin()
	if err != nil {
		return models.Balances{}, err
	}
	s.balances.Refresh(ctx, s.balancesPlan(id.Address))
	return s.Balances(ctx)
}

// Balances returns the stored panel, reading it first when nothing is stored
// for the current account.
func (s *PoolService) Balances(ctx context.Context) (models.Balances, error) {
	id, err := s.session.RequireLogin()
	if err != nil {
		return models.Balances{}, err
	}
	v, version := s.balances.Get()
	if v == nil || v.Address("account") != id.Address {
		v = s.balances.Refresh(ctx, s.balancesPlan(id.Address))
		_, version = s.balances.Get()
	}

	out := models.Balances{
		TokenSymbol:     s.meta.Symbol,
		WalletBalance:   s.display(v.Big("wallet_balance")),
		PoolShares:      s.display(v.Big("shares")),
		PoolSharesWorth: s.display(v.Big("worth")),
		StakedShares:    s.display(v.Big("staked")),
		UnlockedShares:  s.display(v.Big("unlocked")),
		TotalPoolShares: s.display(v.Big("total_shares")),
		Version:         version,
	}
	if s.prices != nil && v.Has("wallet_balance") && v.Has("worth") {
		total := amount.NewScaled(v.Big("wallet_balance"), s.meta.Decimals).Decimal().
			Add(amount.NewScaled(v.Big("worth"), s.meta.Decimals).Decimal())
		if fiat, err := s.prices.Value(ctx, s.meta.Symbol, total); err == nil {
			out.FiatValue = amount.Format(fiat, amount.DisplayPrecision)
			out.FiatCurrency = strings.ToUpper(s.prices.Currency())
		} else {
			logrus.WithError(err).Warn("price feed unavailable")
		}
	}
	return out, nil
}

// Stats reads the pool statistics panel. Failed reads are left blank.
func (s *PoolService) Stats(ctx context.Context) models.Stats {
	read := func(name string, fn func(context.Context) (*big.Int, error)) aggregator.Read {
		return aggregator.Read{Name: name, Fetch: func(ctx context.Context, _ aggregator.Values) (interface{}, error) {
			return fn(ctx)
		}}
	}
	v := aggregator.Run(ctx, aggregator.MustPlan(
		aggregator.Read{Name: "contract_balance", Fetch: func(ctx context.Context, _ aggregator.Values) (interface{}, error) {
			return s.token.BalanceOf(ctx, s.pool.Address())
		}},
		read("liquidity", s.pool.PoolLiquidity),
		read("pending", s.pool.LoanFundsPendingWithdrawal),
		read("borrowed", s.pool.BorrowedFunds),
		read("pool_funds", s.pool.PoolFunds),
		read("apr", s.pool.DefaultAPR),
		read("late_fee", s.pool.DefaultLateFeePercent),
		read("min_amount", s.pool.MinAmount),
		read("min_duration", s.pool.MinDuration),
		read("max_duration", s.pool.MaxDuration),
		aggregator.Read{Name: "manager", Fetch: func(ctx context.Context, _ aggregator.Values) (interface{}, error) {
			return s.pool.Manager(ctx)
		}},
	))

	out := models.Stats{
		TokenSymbol:                s.meta.Symbol,
		ContractTokenBalance:       s.display(v.Big("contract_balance")),
		PoolLiquidity:              s.display(v.Big("liquidity")),
		LoanFundsPendingWithdrawal: s.display(v.Big("pending")),
		BorrowedFunds:              s.display(v.Big("borrowed")),
		PoolFunds:                  s.display(v.Big("pool_funds")),
		DefaultAPR:                 s.percent(v.Big("apr")),
		DefaultLateFeePercent:      s.percent(v.Big("late_fee")),
		MinAmount:                  s.display(v.Big("min_amount")),
		MinDurationDays:            s.days(v.Big("min_duration")),
		MaxDurationDays:            s.days(v.Big("max_duration")),
	}
	if v.Has("manager") {
		out.Manager = v.Address("manager").Hex()
	}
	return out
}

// LookupLoan finds a loan by id, or the most recent loan of a wallet address.
func (s *PoolService) LookupLoan(ctx context.Context, query string) (models.Loan, error) {
	query = strings.TrimSpace(query)
	var loanID *big.Int
	switch {
	case loanIDPattern.MatchString(query):
		loanID, _ = new(big.Int).SetString(query, 10)
	case addressPattern.MatchString(query):
		id, err := s.pool.RecentLoanIDOf(ctx, common.HexToAddress(query))
		if err != nil {
			return models.Loan{}, err
		}
		loanID = id
	default:
		return models.Loan{}, ErrBadLoanQuery
	}
	if loanID.Sign() == 0 {
		return models.Loan{}, errors.Wrapf(ErrLoanNotFound, "no loan for %s", query)
	}

	loan, err := s.pool.Loan(ctx, loanID)
	if err != nil {
		return models.Loan{}, err
	}
	if !loan.Exists() {
		return models.Loan{}, errors.Wrapf(ErrLoanNotFound, "loan %s", loanID)
	}

	out := models.Loan{Application: models.LoanApplication{
		ID:           loan.ID.String(),
		Status:       loan.Status.String(),
		Borrower:     loan.Borrower.Hex(),
		Amount:       s.display(loan.Amount),
		DurationDays: s.days(loan.Duration),
		APR:          s.percent(loan.APR),
		LateAPR:      s.percent(loan.LateFeePercent),
		AppliedTime:  utcString(loan.AppliedTime),
	}, Actions: []string{}}

	if detail, err := s.pool.LoanDetail(ctx, loanID); err != nil {
		logrus.WithError(err).WithField("loan_id", loanID.String()).Warn("loan detail unavailable")
	} else if detail.Exists() {
		out.Detail = &models.LoanDetail{
			LoanID:           detail.LoanID.String(),
			TotalAmountPaid:  s.display(detail.TotalAmountPaid),
			BaseAmountRepaid: s.display(detail.BaseAmountRepaid),
			InterestPaid:     s.display(detail.InterestPaid),
			ApprovedTime:     utcString(detail.GrantedTime),
			LastPaymentTime:  utcString(detail.LastPaymentTime),
		}
	}

	if id := s.session.Current(); id.LoggedIn {
		manager, err := s.pool.Manager(ctx)
		if err != nil {
			manager = s.meta.Manager
		}
		for _, kind := range Kinds {
			rule, ok := loanRules[kind]
			if ok && rule.check(id.Address, manager, loan) == nil {
				out.Actions = append(out.Actions, kind)
			}
		}
	}
	return out, nil
}

func utcString(unix *big.Int) string {
	if unix == nil || unix.Sign() == 0 {
		return ""
	}
	return time.Unix(unix.Int64(), 0).UTC().Format(utcStringLayout)
}
