package models

type OpenWizardInput struct {
	Kind   string `json:"kind" binding:"required"`
	LoanID string `json:"loan_id"`
}

type WizardInputs struct {
	Amount       *string `json:"amount"`
	DurationDays *string `json:"duration_days"`
}

type Wizard struct {
	ID         string            `json:"id"`
	Kind       string            `json:"kind"`
	Steps      []string          `json:"steps"`
	ActiveStep int               `json:"active_step"`
	Terminal   bool              `json:"terminal"`
	Busy       bool              `json:"busy"`
	CanNext    bool              `json:"can_next"`
	Inputs     map[string]string `json:"inputs"`
	Limits     map[string]string `json:"limits"`
	Outcome    map[string]string `json:"outcome"`
	Error      string            `json:"error,omitempty"`
	ErrorKind  string            `json:"error_kind,omitempty"`
	TxHash     string            `json:"tx_hash,omitempty"`
	TxLink     string            `json:"tx_link,omitempty"`
	TxStatus   string            `json:"tx_status,omitempty"`
}
