package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopkart/orderflow/internal/cart"
	"github.com/shopkart/orderflow/internal/checkout"
	"github.com/shopkart/orderflow/internal/idempotency"
	"github.com/shopkart/orderflow/internal/payment"
	"github.com/shopkart/orderflow/internal/validation"
	"github.com/shopkart/orderflow/internal/wallet"
)

func registerCheckoutRoutes(r *gin.Engine, d *deps) {
	r.POST("/checkout/sessions", func(c *gin.Context) {
		var req validation.StartCheckoutRequest
		if err := validation.BindAndValidate(c, &req, d.validate); err != nil {
			return
		}
		s := checkout.NewSession(req.UserID, req.CartID, d.carts, d.ledger, d.writer, d.orderStore, d.courier, d.gateway, d.geocoder, d.metrics)
		d.sessions.Put(s)
		c.JSON(http.StatusCreated, gin.H{"session_id": s.ID, "state": s.State()})
	})

	r.PUT("/checkout/sessions/:sessionID/billing", func(c *gin.Context) {
		s, err := d.sessions.Get(c.Param("sessionID"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "session_not_found"})
			return
		}
		var req validation.BillingRequest
		if err := validation.BindAndValidate(c, &req, d.validate); err != nil {
			return
		}
		billing := cart.BillingDetails{
			Name:    req.Name,
			Phone:   req.Phone,
			Email:   req.Email,
			Line1:   req.Line1,
			City:    req.City,
			State:   req.State,
			Pincode: req.Pincode,
		}
		s.SetBilling(billing)
		if err := d.carts.SetBilling(c.Request.Context(), s.CartID, billing); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "billing_persist_failed", "detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"state": s.State()})
	})

	r.PUT("/checkout/sessions/:sessionID/coins", func(c *gin.Context) {
		s, err := d.sessions.Get(c.Param("sessionID"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "session_not_found"})
			return
		}
		var req validation.CoinsRequest
		if err := validation.BindAndValidate(c, &req, d.validate); err != nil {
			return
		}
		s.SetCoins(req.Coins)
		quote, err := s.PriceQuote(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "quote_failed", "detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, quote)
	})

	r.GET("/checkout/sessions/:sessionID", func(c *gin.Context) {
		s, err := d.sessions.Get(c.Param("sessionID"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "session_not_found"})
			return
		}
		resp := gin.H{"session_id": s.ID, "state": s.State()}
		if quote, qerr := s.PriceQuote(c.Request.Context()); qerr == nil {
			resp["quote"] = quote
		}
		if coords := s.Coordinates(); coords != nil {
			resp["coordinates"] = coords
		}
		c.JSON(http.StatusOK, resp)
	})

	r.DELETE("/checkout/sessions/:sessionID", func(c *gin.Context) {
		d.sessions.Drop(c.Param("sessionID"))
		c.Status(http.StatusNoContent)
	})

	r.POST("/checkout/sessions/:sessionID/submit/cod", func(c *gin.Context) {
		s, err := d.sessions.Get(c.Param("sessionID"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "session_not_found"})
			return
		}
		idempKey := c.GetHeader("Idempotency-Key")
		if idempKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_idempotency_key"})
			return
		}

		result, err := s.SubmitCOD(c.Request.Context(), idempKey)
		if err != nil {
			writeSubmitError(c, d, idempKey, err)
			return
		}
		finishSubmit(c, d, idempKey, result)
	})

	r.POST("/checkout/sessions/:sessionID/payment", func(c *gin.Context) {
		s, err := d.sessions.Get(c.Param("sessionID"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "session_not_found"})
			return
		}
		gw, err := s.BeginGatewayPayment(c.Request.Context())
		if err != nil {
			if errors.Is(err, payment.ErrAmountBelowMinimum) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "amount_below_minimum"})
				return
			}
			if errors.Is(err, checkout.ErrNotReady) {
				c.JSON(http.StatusConflict, gin.H{"error": "address_unresolved"})
				return
			}
			// pre-payment failure blocks placement entirely
			c.JSON(http.StatusBadGateway, gin.H{"error": "gateway_unavailable", "detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gw)
	})

	r.POST("/checkout/sessions/:sessionID/payment/callback", func(c *gin.Context) {
		s, err := d.sessions.Get(c.Param("sessionID"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "session_not_found"})
			return
		}
		idempKey := c.GetHeader("Idempotency-Key")
		if idempKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_idempotency_key"})
			return
		}
		var req validation.GatewayCallbackRequest
		if err := validation.BindAndValidate(c, &req, d.validate); err != nil {
			return
		}

		cb := payment.Callback{
			GatewayOrderID: req.GatewayOrderID,
			PaymentID:      req.PaymentID,
			Signature:      req.Signature,
		}
		result, err := s.CompleteGatewayPayment(c.Request.Context(), idempKey, cb)
		if err != nil {
			if errors.Is(err, payment.ErrBadSignature) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "bad_signature"})
				return
			}
			writeSubmitError(c, d, idempKey, err)
			return
		}
		finishSubmit(c, d, idempKey, result)
	})
}

// finishSubmit stores the response on the idempotency record and answers
// 201 with any fan-out warnings attached.
func finishSubmit(c *gin.Context, d *deps, idempKey string, result *checkout.Result) {
	body, _ := json.Marshal(result)
	_ = d.idemp.MarkDone(c.Request.Context(), idempKey, string(body), http.StatusCreated)

	c.Header("Location", "/orders/"+result.OrderID)
	c.JSON(http.StatusCreated, result)
}

// writeSubmitError maps placement failures, replaying the stored response
// when the idempotency key has already been consumed.
func writeSubmitError(c *gin.Context, d *deps, idempKey string, err error) {
	switch {
	case errors.Is(err, checkout.ErrSubmitInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": "submission_in_flight"})
		return
	case errors.Is(err, checkout.ErrNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": "address_unresolved"})
		return
	case errors.Is(err, checkout.ErrEmptyCart):
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_cart"})
		return
	case errors.Is(err, wallet.ErrInsufficientFunds):
		// callers re-quote at zero coins and resubmit if they want the
		// order without the discount
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "insufficient_coins"})
		return
	}

	// a canceled transaction usually means the idempotency key exists;
	// replay the stored outcome
	rec, getErr := d.idemp.Get(c.Request.Context(), idempKey)
	if getErr != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed", "detail": getErr.Error()})
		return
	}
	if rec == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "placement_failed", "detail": err.Error()})
		return
	}
	switch rec.Status {
	case idempotency.StatusDone:
		if rec.ResponseBody != "" {
			c.Data(rec.ResponseStatus, "application/json", []byte(rec.ResponseBody))
			return
		}
		c.JSON(http.StatusOK, gin.H{"order_id": rec.OrderID})
	case idempotency.StatusInProgress:
		c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress", "order_id": rec.OrderID})
	case idempotency.StatusFailed:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "previous_attempt_failed", "order_id": rec.OrderID})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unknown_idempotency_status"})
	}
}
