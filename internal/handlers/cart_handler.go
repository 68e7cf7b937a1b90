package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopkart/orderflow/internal/cart"
	"github.com/shopkart/orderflow/internal/validation"
)

func registerCartRoutes(r *gin.Engine, d *deps) {
	r.GET("/carts/:cartID", func(c *gin.Context) {
		snap, err := d.carts.Get(c.Request.Context(), c.Param("cartID"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "cart_read_failed", "detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"cart": snap, "total": snap.Total()})
	})

	r.POST("/carts/:cartID/items", func(c *gin.Context) {
		var req validation.AddToCartRequest
		if err := validation.BindAndValidate(c, &req, d.validate); err != nil {
			return
		}

		line := cart.CartLine{
			ProductID:    req.ProductID,
			VariantKey:   req.VariantKey,
			Name:         req.Name,
			SKU:          req.SKU,
			SellerID:     req.SellerID,
			UnitPrice:    req.UnitPrice,
			StockCeiling: req.StockCeiling,
		}
		snap, clamped, err := d.carts.AddOrIncrement(c.Request.Context(), c.Param("cartID"), line, req.Quantity)
		if err != nil {
			if errors.Is(err, cart.ErrCartConflict) {
				c.JSON(http.StatusConflict, gin.H{"error": "cart_conflict"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "cart_write_failed", "detail": err.Error()})
			return
		}

		resp := gin.H{"cart": snap, "total": snap.Total()}
		if clamped {
			// non-fatal: the quantity was capped at the stock ceiling
			resp["stock_limit"] = true
		}
		c.JSON(http.StatusOK, resp)
	})

	r.POST("/carts/:cartID/decrement", func(c *gin.Context) {
		var req validation.DecrementRequest
		if err := validation.BindAndValidate(c, &req, d.validate); err != nil {
			return
		}
		snap, err := d.carts.Decrement(c.Request.Context(), c.Param("cartID"), req.LineKey, req.By)
		if err != nil {
			writeCartError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"cart": snap, "total": snap.Total()})
	})

	r.DELETE("/carts/:cartID/items/:lineKey", func(c *gin.Context) {
		snap, err := d.carts.Remove(c.Request.Context(), c.Param("cartID"), c.Param("lineKey"))
		if err != nil {
			writeCartError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"cart": snap, "total": snap.Total()})
	})

	r.DELETE("/carts/:cartID", func(c *gin.Context) {
		if err := d.carts.Clear(c.Request.Context(), c.Param("cartID")); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "cart_clear_failed", "detail": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})
}

func writeCartError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, cart.ErrLineNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "line_not_found"})
	case errors.Is(err, cart.ErrCartConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "cart_conflict"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cart_write_failed", "detail": err.Error()})
	}
}
