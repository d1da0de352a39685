package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"bankfair_client/pkg/bridge"
	"bankfair_client/pkg/service"
	"bankfair_client/pkg/session"
	"bankfair_client/pkg/txerr"
	"bankfair_client/pkg/wizard"
)

type Error struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

func newErrorResponse(c *gin.Context, statusCode int, message string) {
	logrus.Error(message)
	c.AbortWithStatusJSON(statusCode, Error{Message: message})
}

// errorResponse answers with the status the error maps to.
func errorResponse(c *gin.Context, err error) {
	code := statusFor(err)
	body := Error{Message: err.Error()}
	if k := txerr.KindOf(err); k != txerr.KindUnknown {
		body.Kind = k.String()
	}
	entry := logrus.WithError(err).WithFields(logrus.Fields{"path": c.FullPath(), "status": code})
	if code >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Info("request refused")
	}
	c.AbortWithStatusJSON(code, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotLoggedIn), errors.Is(err, session.ErrNoAccounts):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrWizardNotFound), errors.Is(err, service.ErrLoanNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrUnknownKind), errors.Is(err, service.ErrBadLoanQuery),
		errors.Is(err, service.ErrLoanRequired):
		return http.StatusBadRequest
	case errors.Is(err, wizard.ErrBusy), errors.Is(err, wizard.ErrTerminal),
		errors.Is(err, wizard.ErrClosed), errors.Is(err, wizard.ErrLocked):
		return http.StatusConflict
	case errors.Is(err, txerr.ErrInvalidAmount), errors.Is(err, wizard.ErrPrecondition),
		errors.Is(err, service.ErrNotAllowed), errors.Is(err, bridge.ErrUnknownChain):
		return http.StatusUnprocessableEntity
	case errors.Is(err, txerr.ErrRemoteRead):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func wrapOkJSON(c *gin.Context, response map[string]interface{}) {
	c.JSON(http.StatusOK, response)
}
