// Package txerr holds the error taxonomy shared by the converter, the ledger
// client and the wizard engine.
package txerr

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidAmount is raised by client-side validation. It never reaches the ledger.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrRemoteRead marks a failed read-only call. Callers treat the value as unknown.
	ErrRemoteRead = errors.New("remote read failed")
	// ErrSubmissionRejected means the state-changing call was refused before the
	// ledger accepted it (signing refused, estimation failed, node rejected).
	ErrSubmissionRejected = errors.New("submission rejected")
	// ErrSubmissionReverted means the call was mined but the receipt reports failure.
	ErrSubmissionReverted = errors.New("submission reverted")
)

type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidAmount
	KindRemoteRead
	KindRejected
	KindReverted
)

func (k Kind) String() string {
	switch k {
	case KindInvalidAmount:
		return "InvalidAmount"
	case KindRemoteRead:
		return "RemoteReadFailure"
	case KindRejected:
		return "SubmissionRejected"
	case KindReverted:
		return "SubmissionReverted"
	default:
		return "Unknown"
	}
}

// KindOf classifies err against the taxonomy. Wrapped errors are unwrapped.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case stderrors.Is(err, ErrInvalidAmount):
		return KindInvalidAmount
	case stderrors.Is(err, ErrSubmissionReverted):
		return KindReverted
	case stderrors.Is(err, ErrSubmissionRejected):
		return KindRejected
	case stderrors.Is(err, ErrRemoteRead):
		return KindRemoteRead
	default:
		return KindUnknown
	}
}

// Submitted reports whether err happened after the ledger accepted the call.
func Submitted(err error) bool {
	return KindOf(err) == KindReverted
}

// Recoverable reports whether err happened before anything reached the
// ledger, so the same step can simply be tried again.
func Recoverable(err error) bool {
	switch KindOf(err) {
	case KindInvalidAmount, KindRejected:
		return true
	default:
		return false
	}
}

// InvalidAmount wraps ErrInvalidAmount with a reason.
func InvalidAmount(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidAmount, format, args...)
}

// Rejected wraps cause as a submission rejection, keeping its message.
func Rejected(cause error, method string) error {
	return &wrapped{kind: ErrSubmissionRejected, msg: method + ": " + cause.Error(), cause: cause}
}

// Reverted builds a submission-reverted error for the transaction hash.
func Reverted(method, txHash string) error {
	return &wrapped{kind: ErrSubmissionReverted, msg: method + ": transaction " + txHash + " reverted"}
}

// ReadFailed wraps cause as a remote read failure.
func ReadFailed(cause error, method string) error {
	return &wrapped{kind: ErrRemoteRead, msg: method + ": " + cause.Error(), cause: cause}
}

type wrapped struct {
	kind  error
	msg   string
	cause error
}

func (w *wrapped) Error() string { return w.msg }

func (w *wrapped) Is(target error) bool { return target == w.kind }

func (w *wrapped) Unwrap() error { return w.cause }
