package ledger

// TokenABI is the subset of ERC-20 the client uses.
const TokenABI = `[
  {"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

// PoolABI is the pool contract surface.
const PoolABI = `[
  {"type":"function","name":"token","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"manager","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"PERCENT_DECIMALS","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"poolLiqudity","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"poolFunds","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"borrowedFunds","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"loanFundsPendingWithdrawal","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"totalPoolShares","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"sharesOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"stakedSharesOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"unlockedSharesOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"sharesToTokens","stateMutability":"view","inputs":[{"name":"shares","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"tokensToShares","stateMutability":"view","inputs":[{"name":"tokens","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"minAmount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"minDuration","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"maxDuration","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"defaultAPR","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"defaultLateFeePercent","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"recentLoanIdOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"loanBalanceDueToday","stateMutability":"view","inputs":[{"name":"loanId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"loans","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[
    {"name":"id","type":"uint256"},
    {"name":"borrower","type":"address"},
    {"name":"amount","type":"uint256"},
    {"name":"duration","type":"uint256"},
    {"name":"apr","type":"uint256"},
    {"name":"lateFeePercent","type":"uint256"},
    {"name":"appliedTime","type":"uint256"},
    {"name":"status","type":"uint8"}]},
  {"type":"function","name":"loanDetails","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[
    {"name":"loanId","type":"uint256"},
    {"name":"totalAmountPaid","type":"uint256"},
    {"name":"baseAmountRepaid","type":"uint256"},
    {"name":"interestPaid","type":"uint256"},
    {"name":"grantedTime","type":"uint256"},
    {"name":"lastPaymentTime","type":"uint256"}]},
  {"type":"function","name":"enterPool","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"exitPool","stateMutability":"nonpayable","inputs":[{"name":"shares","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"stake","stateMutability":"nonpayable","inputs":[{"name":"shares","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"unstake","stateMutability":"nonpayable","inputs":[{"name":"shares","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"applyForLoan","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"},{"name":"duration","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"approveLoan","stateMutability":"nonpayable","inputs":[{"name":"loanId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"denyLoan","stateMutability":"nonpayable","inputs":[{"name":"loanId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"cancelLoan","stateMutability":"nonpayable","inputs":[{"name":"loanId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"withdrawLoanFunds","stateMutability":"nonpayable","inputs":[{"name":"loanId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"repayLoan","stateMutability":"nonpayable","inputs":[{"name":"loanId","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"defaultLoan","stateMutability":"nonpayable","inputs":[{"name":"loanId","type":"uint256"}],"outputs":[]}
]`
