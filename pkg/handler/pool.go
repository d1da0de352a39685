package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) GetStats(c *gin.Context) {
	wrapOkJSON(c, map[string]interface{}{
		"stats": h.service.Pool.Stats(c.Request.Context()),
	})
}

// LookupLoan takes ?q= as a loan id or a borrower address.
func (h *Handler) LookupLoan(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		newErrorResponse(c, http.StatusBadRequest, "q is required")
		return
	}
	loan, err := h.service.Pool.LookupLoan(c.Request.Context(), q)
	if err != nil {
		errorResponse(c, err)
		return
	}
	wrapOkJSON(c, map[string]interface{}{
		"loan": loan,
	})
}

func (h *Handler) GetBalances(c *gin.Context) {
	b, err := h.service.Pool.Balances(c.Request.Context())
	if err != nil {
		errorResponse(c, err)
		return
	}
	wrapOkJSON(c, map[string]interface{}{
		"balances": b,
	})
}

func (h *Handler) RefreshBalances(c *gin.Context) {
	b, err := h.service.Pool.RefreshBalances(c.Request.Context())
	if err != nil {
		errorResponse(c, err)
		return
	}
	wrapOkJSON(c, map[string]interface{}{
		"balances": b,
	})
}
