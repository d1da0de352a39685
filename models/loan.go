package models

type LoanApplication struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Borrower     string `json:"borrower"`
	Amount       string `json:"amount"`
	DurationDays string `json:"duration_days"`
	APR          string `json:"apr"`
	LateAPR      string `json:"late_apr"`
	AppliedTime  string `json:"applied_time"`
}

type LoanDetail struct {
	LoanID           string `json:"loan_id"`
	TotalAmountPaid  string `json:"total_amount_paid"`
	BaseAmountRepaid string `json:"base_amount_repaid"`
	InterestPaid     string `json:"interest_paid"`
	ApprovedTime     string `json:"approved_time"`
	LastPaymentTime  string `json:"last_payment_time"`
}

type Loan struct {
	Application LoanApplication `json:"application"`
	Detail      *LoanDetail     `json:"detail,omitempty"`
	// Actions lists the wizard kinds the current session may open for this loan.
	Actions []string `json:"actions"`
}
