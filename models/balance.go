package models

// Balances is the account panel. Empty strings are values that could not be
// read.
type Balances struct {
	TokenSymbol     string `json:"token_symbol"`
	WalletBalance   string `json:"wallet_balance"`
	PoolShares      string `json:"pool_shares"`
	PoolSharesWorth string `json:"pool_shares_worth"`
	StakedShares    string `json:"staked_shares"`
	UnlockedShares  string `json:"unlocked_shares"`
	TotalPoolShares string `json:"total_pool_shares"`
	// FiatValue is the wallet balance plus share worth, priced by the feed.
	FiatValue    string `json:"fiat_value,omitempty"`
	FiatCurrency string `json:"fiat_currency,omitempty"`
	Version      uint64 `json:"version"`
}

type Stats struct {
	TokenSymbol                string `json:"token_symbol"`
	ContractTokenBalance       string `json:"contract_token_balance"`
	PoolLiquidity              string `json:"pool_liquidity"`
	LoanFundsPendingWithdrawal string `json:"loan_funds_pending_withdrawal"`
	BorrowedFunds              string `json:"borrowed_funds"`
	PoolFunds                  string `json:"pool_funds"`
	DefaultAPR                 string `json:"default_apr"`
	DefaultLateFeePercent      string `json:"default_late_fee_percent"`
	MinAmount                  string `json:"min_amount"`
	MinDurationDays            string `json:"min_duration_days"`
	MaxDurationDays            string `json:"max_duration_days"`
	Manager                    string `json:"manager"`
}
