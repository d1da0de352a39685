package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"bankfair_client/models"
)

// WalletHeader optionally names the address the client believes is logged in.
const WalletHeader = "X-Wallet-Address"

// WalletKey is the context key holding the session wallet address.
const WalletKey = "wallet_address"

// AuthMiddleware requires a logged-in session. When the client sends
// X-Wallet-Address it must match the session account.
func AuthMiddleware(me func() models.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := me()
		if !user.LoggedIn {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "login with your wallet first"})
			c.Abort()
			return
		}
		if claimed := c.GetHeader(WalletHeader); claimed != "" && !strings.EqualFold(claimed, user.WalletAddress) {
			logrus.WithFields(logrus.Fields{"claimed": claimed, "session": user.WalletAddress}).
				Warn("AuthMiddleware: wallet address mismatch")
			c.JSON(http.StatusUnauthorized, gin.H{"message": "wallet account changed, login again"})
			c.Abort()
			return
		}
		logrus.Debugf("AuthMiddleware: wallet: %s", user.WalletAddress)
		c.Set(WalletKey, user.WalletAddress)
		c.Next()
	}
}
