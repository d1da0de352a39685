// Package notify emails the pool manager when a loan application is
// submitted.
package notify

import (
	"bytes"
	"html/template"

	"github.com/mailjet/mailjet-apiv3-go/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Config struct {
	APIKey    string
	SecretKey string
	FromEmail string
	FromName  string
	ToEmail   string
	// ExplorerURL is used to link the application transaction.
	ExplorerURL string
}

// LoanApplied describes a freshly submitted loan application.
type LoanApplied struct {
	LoanID   string
	Borrower string
	Amount   string
	Symbol   string
	Days     string
	TxHash   string
}

type Mailer struct {
	cfg  Config
	send func(*mailjet.MessagesV31) (*mailjet.ResultsV31, error)
}

// New returns nil when the mailjet credentials are not configured; a nil
// Mailer drops every notice.
func New(cfg Config) *Mailer {
	if cfg.APIKey == "" || cfg.SecretKey == "" || cfg.ToEmail == "" {
		logrus.Warn("notify: MAILJET_API_KEY, MAILJET_SECRET_KEY or notify.to_email not set, notices disabled")
		return nil
	}
	mj := mailjet.NewMailjetClient(cfg.APIKey, cfg.SecretKey)
	return &Mailer{
		cfg:  cfg,
		send: func(m *mailjet.MessagesV31) (*mailjet.ResultsV31, error) { return mj.SendMailV31(m) },
	}
}

var loanAppliedBody = template.Must(template.New("loan").Parse(`<body style="margin:0;padding:0;background:#f6f6f6;">
  <table width="100%" cellpadding="0" cellspacing="0" border="0" style="max-width:600px;background:#f3f2f0;border-radius:28px;">
    <tr><td style="padding:32px;font-family:Arial,sans-serif;">
      <h1 style="margin:0 0 12px 0;font-size:28px;color:#111;">New loan application #{{.LoanID}}</h1>
      <table cellpadding="0" cellspacing="0" border="0" style="width:100%;margin-bottom:24px;font-size:16px;">
        <tr><td style="color:#555;padding:6px 0;">Borrower:</td><td style="color:#111;font-weight:bold;">{{.Borrower}}</td></tr>
        <tr><td style="color:#555;padding:6px 0;">Amount:</td><td style="color:#111;font-weight:bold;">{{.Amount}} {{.Symbol}}</td></tr>
        <tr><td style="color:#555;padding:6px 0;">Duration:</td><td style="color:#111;font-weight:bold;">{{.Days}} day(s)</td></tr>
      </table>
      {{if .Link}}<a href="{{.Link}}" style="color:#111;">View transaction</a>{{end}}
    </td></tr>
  </table>
</body>`))

// LoanApplied sends the manager notice. Failures are returned but callers
// are expected to only log them.
func (m *Mailer) LoanApplied(n LoanApplied) error {
	if m == nil {
		return nil
	}
	var body bytes.Buffer
	link := ""
	if m.cfg.ExplorerURL != "" && n.TxHash != "" {
		link = m.cfg.ExplorerURL + "/tx/" + n.TxHash
	}
	if err := loanAppliedBody.Execute(&body, struct {
		LoanApplied
		Link string
	}{n, link}); err != nil {
		return errors.Wrap(err, "notify: render")
	}

	messages := &mailjet.MessagesV31{Info: []mailjet.InfoMessagesV31{{
		From: &mailjet.RecipientV31{Email: m.cfg.FromEmail, Name: m.cfg.FromName},
		To: &mailjet.RecipientsV31{
			{Email: m.cfg.ToEmail, Name: "Pool manager"},
		},
		Subject:  "New loan application #" + n.LoanID,
		HTMLPart: body.String(),
	}}}
	res, err := m.send(messages)
	if err != nil {
		return errors.Wrap(err, "notify: mailjet")
	}
	logrus.WithFields(logrus.Fields{"loan_id": n.LoanID, "results": len(res.ResultsV31)}).Info("notify: loan application notice sent")
	return nil
}
