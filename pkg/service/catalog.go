package service

import (
	"context"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bankfair_client/pkg/aggregator"
	"bankfair_client/pkg/amount"
	"bankfair_client/pkg/ledger"
	"bankfair_client/pkg/notify"
	"bankfair_client/pkg/txerr"
	"bankfair_client/pkg/wizard"
)

const (
	KindDeposit     = "deposit"
	KindWithdraw    = "withdraw"
	KindStake       = "stake"
	KindUnstake     = "unstake"
	KindApplyLoan   = "apply_loan"
	KindApproveLoan = "approve_loan"
	KindDenyLoan    = "deny_loan"
	KindCancelLoan  = "cancel_loan"
	KindTakeLoan    = "take_loan"
	KindRepayLoan   = "repay_loan"
	KindDefaultLoan = "default_loan"
)

// Kinds lists every wizard the catalog can build.
var Kinds = []string{
	KindDeposit, KindWithdraw, KindStake, KindUnstake, KindApplyLoan,
	KindApproveLoan, KindDenyLoan, KindCancelLoan, KindTakeLoan, KindRepayLoan, KindDefaultLoan,
}

// Input names.
const (
	InAmount   = "amount"
	InDuration = "duration_days"
)

// Outcome keys.
const (
	OutAmount          = "amount"
	OutUnit            = "unit"
	OutLoanID          = "loan_id"
	OutEstimatedShares = "estimated_shares"
	OutEstimatedTokens = "estimated_tokens"
)

// Context keys.
const (
	ctxAccount = "account"
	ctxManager = "manager"
	ctxLoan    = "loan"
)

const sharesUnit = "Pool Shares"

type role int

const (
	roleManager role = iota
	roleBorrower
)

// loanRule says who may run a loan wizard and in which loan status.
type loanRule struct {
	role   role
	status ledger.LoanStatus
}

var loanRules = map[string]loanRule{
	KindApproveLoan: {roleManager, ledger.LoanApplied},
	KindDenyLoan:    {roleManager, ledger.LoanApplied},
	KindCancelLoan:  {roleManager, ledger.LoanApproved},
	KindDefaultLoan: {roleManager, ledger.LoanFundsWithdrawn},
	KindTakeLoan:    {roleBorrower, ledger.LoanApproved},
	KindRepayLoan:   {roleBorrower, ledger.LoanFundsWithdrawn},
}

func (r loanRule) check(account, manager common.Address, loan ledger.Loan) error {
	switch r.role {
	case roleManager:
		if account != manager {
			return errors.Wrap(ErrNotAllowed, "only the pool manager can do this")
		}
	case roleBorrower:
		if account != loan.Borrower {
			return errors.Wrap(ErrNotAllowed, "only the borrower can do this")
		}
	}
	if loan.Status != r.status {
		return errors.Wrapf(ErrNotAllowed, "loan %s is %s, expected %s", loan.ID, loan.Status, r.status)
	}
	return nil
}

// catalog builds wizard definitions against one pool and token.
type catalog struct {
	pool     *ledger.Pool
	token    *ledger.Token
	meta     Meta
	notifier Notifier
}

// target is who the wizard acts for and, for loan wizards, on which loan.
type target struct {
	account common.Address
	manager common.Address
	loan    ledger.Loan
}

func (c *catalog) define(kind string, t target) (*wizard.Definition, error) {
	switch kind {
	case KindDeposit:
		return c.deposit(t), nil
	case KindWithdraw:
		return c.withdraw(t), nil
	case KindStake:
		return c.stake(t), nil
	case KindUnstake:
		return c.unstake(t), nil
	case KindApplyLoan:
		return c.applyLoan(t), nil
	case KindApproveLoan:
		return c.loanAction(kind, "Approve Loan", t, c.pool.ApproveLoan), nil
	case KindDenyLoan:
		return c.loanAction(kind, "Deny Loan", t, c.pool.DenyLoan), nil
	case KindCancelLoan:
		return c.loanAction(kind, "Cancel Loan", t, c.pool.CancelLoan), nil
	case KindDefaultLoan:
		return c.loanAction(kind, "Default Loan", t, c.pool.DefaultLoan), nil
	case KindTakeLoan:
		return c.takeLoan(t), nil
	case KindRepayLoan:
		return c.repayLoan(t), nil
	}
	return nil, ErrUnknownKind
}

func needsLoan(kind string) bool {
	_, ok := loanRules[kind]
	return ok
}

func (c *catalog) deposit(t target) *wizard.Definition {
	return &wizard.Definition{
		Kind: KindDeposit,
		Steps: []wizard.Step{
			{Label: "Enter Deposit Amount"},
			{Label: "Approve Spend Limit", Handler: c.grant(), Rollback: wizard.RollbackAlways},
			{Label: "Submit Deposit", Handler: c.estimate(OutEstimatedShares, c.pool.TokensToShares), Rollback: wizard.RollbackNever},
		},
		Result: wizard.Step{Label: "Deposit Submitted", Handler: c.act(
			func(ctx context.Context, v *big.Int, _ *wizard.Scope) (ledger.Pending, error) {
				return c.pool.EnterPool(ctx, v)
			},
			c.echoAmount(c.meta.Symbol),
		)},
		Limits:   aggregator.MustPlan(c.walletBalance(t.account)),
		Validate: c.amountWithin("balance"),
	}
}

func (c *catalog) withdraw(t target) *wizard.Definition {
	return &wizard.Definition{
		Kind: KindWithdraw,
		Steps: []wizard.Step{
			{Label: "Enter Withdrawal Amount"},
			{Label: "Request Withdrawal", Handler: c.estimate(OutEstimatedTokens, c.pool.SharesToTokens), Rollback: wizard.RollbackNever},
		},
		Result: wizard.Step{Label: "Withdrawal Submitted", Handler: c.act(
			func(ctx context.Context, v *big.Int, _ *wizard.Scope) (ledger.Pending, error) {
				return c.pool.ExitPool(ctx, v)
			},
			c.eventAmount(c.meta.Symbol),
		)},
		Limits: aggregator.MustPlan(
			aggregator.Read{Name: "unlocked", Fetch: func(ctx context.Context, _ aggregator.Values) (interface{}, error) {
				return c.pool.UnlockedSharesOf(ctx, t.account)
			}},
			aggregator.Read{Name: "worth", After: []string{"unlocked"}, Fetch: func(ctx context.Context, d aggregator.Values) (interface{}, error) {
				return c.pool.SharesToTokens(ctx, d.Big("unlocked"))
			}},
			aggregator.Read{Name: "liquidity", Fetch: func(ctx context.Context, _ aggregator.Values) (interface{}, error) {
				return c.pool.PoolLiquidity(ctx)
			}},
			aggregator.Read{Name: "withdrawable", After: []string{"worth", "liquidity"}, Fetch: func(ctx context.Context, d aggregator.Values) (interface{}, error) {
				tokens := d.Big("worth")
				if liq := d.Big("liquidity"); liq.Cmp(tokens) < 0 {
					tokens = liq
				}
				return c.pool.TokensToShares(ctx, tokens)
			}},
			aggregator.Read{Name: "withdrawable_worth", After: []string{"withdrawable"}, Fetch: func(ctx context.Context, d aggregator.Values) (interface{}, error) {
				return c.pool.SharesToTokens(ctx, d.Big("withdrawable"))
			}},
		),
		Validate: c.amountWithin("withdrawable"),
	}
}

func (c *catalog) stake(t target) *wizard.Definition {
	return &wizard.Definition{
		Kind: KindStake,
		Steps: []wizard.Step{
			{Label: "Enter Amount to Stake"},
			{Label: "Submit", Handler: c.estimate(OutEstimatedTokens, c.pool.SharesToTokens), Rollback: wizard.RollbackNever},
		},
		Result: wizard.Step{Label: "Staked", Handler: c.act(
			func(ctx context.Context, v *big.Int, _ *wizard.Scope) (ledger.Pending, error) {
				return c.pool.Stake(ctx, v)
			},
			c.echoAmount(sharesUnit),
		)},
		Limits:   c.sharesPlan("unlocked", t.account, c.pool.UnlockedSharesOf),
		Validate: c.amountWithin("unlocked"),
	}
}

func (c *catalog) unstake(t target) *wizard.Definition {
	return &wizard.Definition{
		Kind: KindUnstake,
		Steps: []wizard.Step{
			{Label: "Enter Amount to Unstake"},
			{Label: "Submit", Handler: c.estimate(OutEstimatedTokens, c.pool.SharesToTokens), Rollback: wizard.RollbackNever},
		},
		Result: wizard.Step{Label: "Unstaked", Handler: c.act(
			func(ctx context.Context, v *big.Int, _ *wizard.Scope) (ledger.Pending, error) {
				return c.pool.Unstake(ctx, v)
			},
			c.echoAmount(sharesUnit),
		)},
		Limits:   c.sharesPlan("staked", t.account, c.pool.StakedSharesOf),
		Validate: c.amountWithin("staked"),
	}
}

func (c *catalog) applyLoan(t target) *wizard.Definition {
	read := func(name string, fn func(context.Context) (*big.Int, error)) aggregator.Read {
		return aggregator.Read{Name: name, Fetch: func(ctx context.Context, _ aggregator.Values) (interface{}, error) {
			return fn(ctx)
		}}
	}
	return &wizard.Definition{
		Kind: KindApplyLoan,
		Steps: []wizard.Step{
			{Label: "Enter Details"},
			{Label: "Review and Submit"},
		},
		Result: wizard.Step{Label: "Application Submitted", Handler: func(ctx context.Context, s *wizard.Scope) error {
			v, d, err := c.submitted(s.Facts)
			if err != nil {
				return err
			}
			days, err := durationDays(s.Input(InDuration))
			if err != nil {
				return err
			}
			p, err := c.pool.ApplyForLoan(ctx, v, amount.DaysToSeconds(days))
			if err != nil {
				return err
			}
			r, err := s.Submit(ctx, p)
			if err != nil {
				return err
			}
			id, ok := r.EventAmount(0)
			if !ok {
				return nil
			}
			s.Set(OutLoanID, id.String())
			s.Set(OutAmount, amount.Format(d, amount.DisplayPrecision))
			s.Set(OutUnit, c.meta.Symbol)
			c.notifyApplied(t.account, id, d, days, r.TxHash)
			return nil
		}},
		Limits: aggregator.MustPlan(
			read("min_amount", c.pool.MinAmount),
			read("min_duration", c.pool.MinDuration),
			read("max_duration", c.pool.MaxDuration),
			read("apr", c.pool.DefaultAPR),
			read("late_fee", c.pool.DefaultLateFeePercent),
		),
		Validate: c.validateApplication,
	}
}

func (c *catalog) validateApplication(f wizard.Facts) error {
	in, err := amount.Parse(f.Input(InAmount))
	if err != nil {
		return err
	}
	if !in.Truncate(amount.DisplayPrecision).IsPositive() {
		return txerr.InvalidAmount("enter an amount greater than zero")
	}
	minAmount := f.Limits.Big("min_amount")
	if minAmount == nil {
		return txerr.InvalidAmount("minimum amount is not available")
	}
	if in.LessThan(amount.NewScaled(minAmount, c.meta.Decimals).Decimal()) {
		return txerr.InvalidAmount("amount is below the minimum of %s",
			amount.ToDisplay(minAmount, c.meta.Decimals, amount.DisplayPrecision))
	}

	days, err := durationDays(f.Input(InDuration))
	if err != nil {
		return err
	}
	minDur, maxDur := f.Limits.Big("min_duration"), f.Limits.Big("max_duration")
	if minDur == nil || maxDur == nil {
		return txerr.InvalidAmount("duration limits are not available")
	}
	d := decimal.NewFromInt(days)
	if d.LessThan(amount.SecondsToDays(minDur)) || d.GreaterThan(amount.SecondsToDays(maxDur)) {
		return txerr.InvalidAmount("duration must be between %s and %s day(s)",
			amount.SecondsToDays(minDur).String(), amount.SecondsToDays(maxDur).String())
	}
	return nil
}

func durationDays(s string) (int64, error) {
	days, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || days <= 0 {
		return 0, txerr.InvalidAmount("duration must be a whole number of days")
	}
	return days, nil
}

func (c *catalog) takeLoan(t target) *wizard.Definition {
	loanID := t.loan.ID
	return &wizard.Definition{
		Kind:  KindTakeLoan,
		Steps: []wizard.Step{{Label: "Withdraw Loan Funds"}},
		Result: wizard.Step{Label: "Funds Withdrawn", Handler: func(ctx context.Context, s *wizard.Scope) error {
			p, err := c.pool.WithdrawLoanFunds(ctx, loanID)
			if err != nil {
				return err
			}
			if _, err := s.Submit(ctx, p); err != nil {
				return err
			}
			s.Set(OutLoanID, loanID.String())
			s.Set(OutAmount, amount.ToDisplay(t.loan.Amount, c.meta.Decimals, amount.DisplayPrecision))
			s.Set(OutUnit, c.meta.Symbol)
			return nil
		}},
		Precondition: c.loanPrecondition(KindTakeLoan),
	}
}

func (c *catalog) repayLoan(t target) *wizard.Definition {
	loanID := t.loan.ID
	return &wizard.Definition{
		Kind: KindRepayLoan,
		Steps: []wizard.Step{
			{Label: "Enter Payment Amount"},
			{Label: "Approve Spend Limit", Handler: c.grant(), Rollback: wizard.RollbackAlways},
			{Label: "Submit Payment"},
		},
		Result: wizard.Step{Label: "Payment Submitted", Handler: c.act(
			func(ctx context.Context, v *big.Int, _ *wizard.Scope) (ledger.Pending, error) {
				return c.pool.RepayLoan(ctx, loanID, v)
			},
			c.eventAmount(c.meta.Symbol),
		)},
		Limits: aggregator.MustPlan(
			c.walletBalance(t.account),
			aggregator.Read{Name: "due", Fetch: func(ctx context.Context, _ aggregator.Values) (interface{}, error) {
				return c.pool.LoanBalanceDueToday(ctx, loanID)
			}},
		),
		Validate:     c.amountWithin("balance", "due"),
		Precondition: c.loanPrecondition(KindRepayLoan),
	}
}

// loanAction is the single confirm step used by the manager decisions.
func (c *catalog) loanAction(kind, label string, t target, send func(context.Context, *big.Int) (ledger.Pending, error)) *wizard.Definition {
	loanID := t.loan.ID
	return &wizard.Definition{
		Kind:  kind,
		Steps: []wizard.Step{{Label: label}},
		Result: wizard.Step{Label: "Done", Handler: func(ctx context.Context, s *wizard.Scope) error {
			p, err := send(ctx, loanID)
			if err != nil {
				return err
			}
			if _, err := s.Submit(ctx, p); err != nil {
				return err
			}
			s.Set(OutLoanID, loanID.String())
			return nil
		}},
		Precondition: c.loanPrecondition(kind),
	}
}

func (c *catalog) loanPrecondition(kind string) func(wizard.Facts) error {
	rule := loanRules[kind]
	return func(f wizard.Facts) error {
		account, _ := f.Context[ctxAccount].(common.Address)
		manager, _ := f.Context[ctxManager].(common.Address)
		loan, ok := f.Context[ctxLoan].(ledger.Loan)
		if !ok {
			return ErrLoanRequired
		}
		return rule.check(account, manager, loan)
	}
}

func (c *catalog) walletBalance(account common.Address) aggregator.Read {
	return aggregator.Read{Name: "balance", Fetch: func(ctx context.Context, _ aggregator.Values) (interface{}, error) {
		return c.token.BalanceOf(ctx, account)
	}}
}

func (c *catalog) sharesPlan(name string, account common.Address, read func(context.Context, common.Address) (*big.Int, error)) *aggregator.Plan {
	return aggregator.MustPlan(
		aggregator.Read{Name: name, Fetch: func(ctx context.Context, _ aggregator.Values) (interface{}, error) {
			return read(ctx, account)
		}},
		aggregator.Read{Name: name + "_worth", After: []string{name}, Fetch: func(ctx context.Context, d aggregator.Values) (interface{}, error) {
			return c.pool.SharesToTokens(ctx, d.Big(name))
		}},
	)
}

// amountWithin accepts a positive amount that does not exceed any of the
// named limits. An unknown limit blocks the wizard.
func (c *catalog) amountWithin(limits ...string) func(wizard.Facts) error {
	return func(f wizard.Facts) error {
		in, err := amount.Parse(f.Input(InAmount))
		if err != nil {
			return err
		}
		if !in.Truncate(amount.DisplayPrecision).IsPositive() {
			return txerr.InvalidAmount("enter an amount greater than zero")
		}
		for _, name := range limits {
			lim := f.Limits.Big(name)
			if lim == nil {
				return txerr.InvalidAmount("%s is not available", name)
			}
			if in.GreaterThan(amount.NewScaled(lim, c.meta.Decimals).Decimal()) {
				return txerr.InvalidAmount("amount exceeds %s of %s", name,
					amount.ToDisplay(lim, c.meta.Decimals, amount.DisplayPrecision))
			}
		}
		return nil
	}
}

// submitted is the amount sent to the ledger: the input truncated to
// display precision, scaled to token units.
func (c *catalog) submitted(f wizard.Facts) (*big.Int, decimal.Decimal, error) {
	d, err := amount.Truncate(f.Input(InAmount), amount.DisplayPrecision)
	if err != nil {
		return nil, d, err
	}
	if !d.IsPositive() {
		return nil, d, txerr.InvalidAmount("enter an amount greater than zero")
	}
	return amount.DecimalToScaled(d, c.meta.Decimals), d, nil
}

// grant approves the pool to spend the submitted amount of tokens.
func (c *catalog) grant() wizard.Handler {
	return func(ctx context.Context, s *wizard.Scope) error {
		v, _, err := c.submitted(s.Facts)
		if err != nil {
			return err
		}
		p, err := c.token.Approve(ctx, c.pool.Address(), v)
		if err != nil {
			return err
		}
		_, err = s.Submit(ctx, p)
		return err
	}
}

// estimate converts the submitted amount with a read and records it under key.
func (c *catalog) estimate(key string, read func(context.Context, *big.Int) (*big.Int, error)) wizard.Handler {
	return func(ctx context.Context, s *wizard.Scope) error {
		v, _, err := c.submitted(s.Facts)
		if err != nil {
			return err
		}
		out, err := read(ctx, v)
		if err != nil {
			return err
		}
		s.Set(key, amount.ToDisplay(out, c.meta.Decimals, amount.DisplayPrecision))
		return nil
	}
}

type settleFunc func(s *wizard.Scope, submitted decimal.Decimal, r *ledger.Receipt)

// act sends the submitted amount with send, waits for the receipt and lets
// settle decode the outcome.
func (c *catalog) act(send func(context.Context, *big.Int, *wizard.Scope) (ledger.Pending, error), settle settleFunc) wizard.Handler {
	return func(ctx context.Context, s *wizard.Scope) error {
		v, d, err := c.submitted(s.Facts)
		if err != nil {
			return err
		}
		p, err := send(ctx, v, s)
		if err != nil {
			return err
		}
		r, err := s.Submit(ctx, p)
		if err != nil {
			return err
		}
		settle(s, d, r)
		return nil
	}
}

func (c *catalog) echoAmount(unit string) settleFunc {
	return func(s *wizard.Scope, d decimal.Decimal, _ *ledger.Receipt) {
		s.Set(OutAmount, amount.Format(d, amount.DisplayPrecision))
		s.Set(OutUnit, unit)
	}
}

// eventAmount reads the outcome from the first event the pool emitted.
func (c *catalog) eventAmount(unit string) settleFunc {
	return func(s *wizard.Scope, _ decimal.Decimal, r *ledger.Receipt) {
		v, ok := r.EventAmount(0)
		if !ok {
			return
		}
		s.Set(OutAmount, amount.ToDisplay(v, c.meta.Decimals, amount.DisplayPrecision))
		s.Set(OutUnit, unit)
	}
}

func (c *catalog) notifyApplied(borrower common.Address, id *big.Int, d decimal.Decimal, days int64, tx common.Hash) {
	if c.notifier == nil {
		return
	}
	err := c.notifier.LoanApplied(notify.LoanApplied{
		LoanID:   id.String(),
		Borrower: borrower.Hex(),
		Amount:   amount.Format(d, amount.DisplayPrecision),
		Symbol:   c.meta.Symbol,
		Days:     strconv.FormatInt(days, 10),
		TxHash:   tx.Hex(),
	})
	if err != nil {
		logrus.WithError(err).WithField("loan_id", id.String()).Warn("loan application notice failed")
	}
}

// formatLimit renders a limit value for display.
func (c *catalog) formatLimit(name string, v interface{}) string {
	b, ok := v.(*big.Int)
	if !ok {
		return ""
	}
	switch name {
	case "min_duration", "max_duration":
		return amount.DurationToDays(b, 0)
	case "apr", "late_fee":
		return amount.PercentToDisplay(b, c.meta.PercentDecimals, amount.DisplayPrecision)
	default:
		return amount.ToDisplay(b, c.meta.Decimals, amount.DisplayPrecision)
	}
}
