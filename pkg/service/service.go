package service

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"bankfair_client/models"
	"bankfair_client/pkg/ledger"
	"bankfair_client/pkg/notify"
	"bankfair_client/pkg/session"
)

var (
	ErrUnknownKind     = errors.New("unknown wizard kind")
	ErrWizardNotFound  = errors.New("wizard not found")
	ErrLoanRequired    = errors.New("loan id is required")
	ErrLoanNotFound    = errors.New("loan not found")
	ErrBadLoanQuery    = errors.New("enter a loan id or a wallet address")
	ErrMetaUnavailable = errors.New("token metadata unavailable")
	ErrNotAllowed      = errors.New("action not allowed")
)

type Authorization interface {
	Login(ctx context.Context) (models.User, error)
	Logout(ctx context.Context) error
	Me() models.User
}

type Wizards interface {
	Open(ctx context.Context, kind, loanID string) (models.Wizard, error)
	Get(id string) (models.Wizard, error)
	SetInputs(id string, in models.WizardInputs) (models.Wizard, error)
	Next(id string) (models.Wizard, error)
	Close(id string) error
}

type Pool interface {
	Balances(ctx context.Context) (models.Balances, error)
	RefreshBalances(ctx context.Context) (models.Balances, error)
	Stats(ctx context.Context) models.Stats
	LookupLoan(ctx context.Context, query string) (models.Loan, error)
}

// Session is the login gate as seen by the services.
type Session interface {
	Current() session.Identity
	RequireLogin() (session.Identity, error)
	Login(ctx context.Context) (session.Identity, error)
	Logout(ctx context.Context) error
	AppNetwork() uint64
}

// PriceFeed values token amounts in fiat. Optional.
type PriceFeed interface {
	Currency() string
	Value(ctx context.Context, symbol string, tokens decimal.Decimal) (decimal.Decimal, error)
}

// Notifier tells the pool manager about new loan applications. Optional.
type Notifier interface {
	LoanApplied(n notify.LoanApplied) error
}

type Deps struct {
	Pool    *ledger.Pool
	Token   *ledger.Token
	Meta    Meta
	Session Session
	// ExplorerURL prefixes transaction links, e.g. https://sepolia.etherscan.io.
	ExplorerURL string
	Prices      PriceFeed
	Notifier    Notifier
	// Base outlives single requests; background steps and refreshes run on it.
	Base context.Context
	// WizardTTL closes wizards left untouched this long. Zero means DefaultWizardTTL.
	WizardTTL time.Duration
}

type Service struct {
	Authorization
	Wizards
	Pool
}

func NewService(deps Deps) *Service {
	if deps.Base == nil {
		deps.Base = context.Background()
	}
	pool := NewPoolService(deps)
	return &Service{
		Authorization: NewAuthService(deps.Session, deps.Meta),
		Wizards:       NewWizardService(deps, pool),
		Pool:          pool,
	}
}

// Meta is read once at startup.
type Meta struct {
	PoolAddress     common.Address
	TokenAddress    common.Address
	Symbol          string
	Decimals        int32
	PercentDecimals int32
	Manager         common.Address
}

// LoadMeta reads the token and pool constants every view depends on.
func LoadMeta(ctx context.Context, pool *ledger.Pool, token *ledger.Token) (Meta, error) {
	m := Meta{PoolAddress: pool.Address(), TokenAddress: token.Address()}
	symbol, err := token.Symbol(ctx)
	if err != nil {
		return m, errors.Wrap(ErrMetaUnavailable, err.Error())
	}
	decimals, err := token.Decimals(ctx)
	if err != nil {
		return m, errors.Wrap(ErrMetaUnavailable, err.Error())
	}
	percent, err := pool.PercentDecimals(ctx)
	if err != nil {
		return m, errors.Wrap(ErrMetaUnavailable, err.Error())
	}
	manager, err := pool.Manager(ctx)
	if err != nil {
		return m, errors.Wrap(ErrMetaUnavailable, err.Error())
	}
	m.Symbol, m.Decimals, m.PercentDecimals, m.Manager = symbol, int32(decimals), int32(percent), manager
	return m, nil
}
