package handler

import (
	"github.com/gin-gonic/gin"
)

// Login asks the wallet for its accounts, switching it to the app network
// first when needed.
func (h *Handler) Login(c *gin.Context) {
	user, err := h.service.Authorization.Login(c.Request.Context())
	if err != nil {
		errorResponse(c, err)
		return
	}
	wrapOkJSON(c, map[string]interface{}{
		"user": user,
	})
}

func (h *Handler) Logout(c *gin.Context) {
	if err := h.service.Authorization.Logout(c.Request.Context()); err != nil {
		errorResponse(c, err)
		return
	}
	wrapOkJSON(c, map[string]interface{}{
		"user": h.service.Authorization.Me(),
	})
}

func (h *Handler) GetMe(c *gin.Context) {
	wrapOkJSON(c, map[string]interface{}{
		"user": h.service.Authorization.Me(),
	})
}
