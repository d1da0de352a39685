package handler

import (
	"bankfair_client/pkg/middleware"
	"bankfair_client/pkg/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	service      *service.Service
	allowOrigins []string
}

func NewHandler(service *service.Service, allowOrigins []string) *Handler {
	return &Handler{
		service:      service,
		allowOrigins: allowOrigins,
	}
}

func (h *Handler) InitRoute() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	if len(h.allowOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     h.allowOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", middleware.WalletHeader},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
		}))
	}

	auth := router.Group("/auth")
	{
		auth.POST("/login", h.Login)
		auth.POST("/logout", h.Logout)
		auth.GET("/me", h.GetMe)
	}

	api := router.Group("/api")
	{
		api.GET("/stats", h.GetStats)
		api.GET("/loans/lookup", h.LookupLoan)

		account := api.Group("/", middleware.AuthMiddleware(h.service.Me))
		{
			account.GET("/balances", h.GetBalances)
			account.POST("/balances/refresh", h.RefreshBalances)
		}

		wizards := api.Group("/wizards", middleware.AuthMiddleware(h.service.Me))
		{
			wizards.POST("", h.OpenWizard)
			wizards.GET("/:id", h.GetWizard)
			wizards.PUT("/:id/inputs", h.SetWizardInputs)
			wizards.POST("/:id/next", h.NextStep)
			wizards.DELETE("/:id", h.CloseWizard)
		}
	}
	return router
}
