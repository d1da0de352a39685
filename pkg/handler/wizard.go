package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bankfair_client/models"
)

// OpenWizard expects {kind, loan_id?}.
func (h *Handler) OpenWizard(c *gin.Context) {
	var input models.OpenWizardInput
	if err := c.BindJSON(&input); err != nil {
		newErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	w, err := h.service.Wizards.Open(c.Request.Context(), input.Kind, input.LoanID)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusCreated, map[string]interface{}{
		"wizard": w,
	})
}

func (h *Handler) GetWizard(c *gin.Context) {
	w, err := h.service.Wizards.Get(c.Param("id"))
	if err != nil {
		errorResponse(c, err)
		return
	}
	wrapOkJSON(c, map[string]interface{}{
		"wizard": w,
	})
}

// SetWizardInputs expects {amount?, duration_days?}; absent fields are kept.
func (h *Handler) SetWizardInputs(c *gin.Context) {
	var input models.WizardInputs
	if err := c.BindJSON(&input); err != nil {
		newErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	w, err := h.service.Wizards.SetInputs(c.Param("id"), input)
	if err != nil {
		errorResponse(c, err)
		return
	}
	wrapOkJSON(c, map[string]interface{}{
		"wizard": w,
	})
}

// NextStep starts the next step. The step settles in the background; poll
// GetWizard until busy clears.
func (h *Handler) NextStep(c *gin.Context) {
	w, err := h.service.Wizards.Next(c.Param("id"))
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusAccepted, map[string]interface{}{
		"wizard": w,
	})
}

func (h *Handler) CloseWizard(c *gin.Context) {
	if err := h.service.Wizards.Close(c.Param("id")); err != nil {
		errorResponse(c, err)
		return
	}
	wrapOkJSON(c, map[string]interface{}{
		"closed": c.Param("id"),
	})
}
