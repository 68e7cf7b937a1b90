package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func registerWalletRoutes(r *gin.Engine, d *deps) {
	r.GET("/wallets/:userID", func(c *gin.Context) {
		acct, err := d.ledger.Balance(c.Request.Context(), c.Param("userID"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "wallet_read_failed", "detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"user_id":         acct.UserID,
			"coin_balance":    acct.CoinBalance,
			"pending_balance": acct.PendingBalance,
		})
	})

	r.POST("/wallets/:userID/convert", func(c *gin.Context) {
		moved, err := d.ledger.Convert(c.Request.Context(), c.Param("userID"))
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "convert_failed", "detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"converted": moved})
	})
}
