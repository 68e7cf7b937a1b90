package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopkart/orderflow/internal/cancel"
	"github.com/shopkart/orderflow/internal/orders"
	"github.com/shopkart/orderflow/internal/returns"
	"github.com/shopkart/orderflow/internal/validation"
)

func registerOrderRoutes(r *gin.Engine, d *deps) {
	r.GET("/orders/:orderID", func(c *gin.Context) {
		order, err := d.orderStore.Get(c.Request.Context(), c.Param("orderID"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "fetch_failed", "detail": err.Error()})
			return
		}
		if order == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
			return
		}
		c.JSON(http.StatusOK, order)
	})

	r.GET("/users/:userID/orders", func(c *gin.Context) {
		list, err := d.orderStore.ListByUser(c.Request.Context(), c.Param("userID"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed", "detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": list})
	})

	r.GET("/sellers/:sellerID/orders", func(c *gin.Context) {
		list, err := d.mirrors.ListBySeller(c.Request.Context(), c.Param("sellerID"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed", "detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": list})
	})

	r.GET("/sellers/:sellerID/aggregate", func(c *gin.Context) {
		agg, err := d.mirrors.GetAggregate(c.Request.Context(), c.Param("sellerID"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "fetch_failed", "detail": err.Error()})
			return
		}
		if agg == nil {
			c.JSON(http.StatusOK, gin.H{"seller_id": c.Param("sellerID"), "total_sales": 0, "order_summaries": []orders.OrderSummary{}})
			return
		}
		c.JSON(http.StatusOK, agg)
	})

	r.POST("/orders/:orderID/cancel", func(c *gin.Context) {
		var req validation.CancelOrderRequest
		if err := validation.BindAndValidate(c, &req, d.validate); err != nil {
			return
		}
		result, err := d.canceller.Request(c.Request.Context(), c.Param("orderID"), req.UserID, req.Reason)
		if err != nil {
			writeCancelError(c, err)
			return
		}
		d.metrics.Count(c.Request.Context(), "OrderCancelled", map[string]string{"Outcome": string(result.Outcome)})
		c.JSON(http.StatusOK, result)
	})

	r.GET("/orders/:orderID/cancel", func(c *gin.Context) {
		req, err := d.requests.GetCancel(c.Request.Context(), c.Param("orderID"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "fetch_failed", "detail": err.Error()})
			return
		}
		if req == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "cancel_request_not_found"})
			return
		}
		c.JSON(http.StatusOK, req)
	})

	r.POST("/orders/:orderID/return", func(c *gin.Context) {
		var req validation.ReturnOrderRequest
		if err := validation.BindAndValidate(c, &req, d.validate); err != nil {
			return
		}
		var bank *orders.BankDetails
		if req.Method == string(orders.RefundBankTransfer) {
			bank = &orders.BankDetails{
				AccountName:   req.AccountName,
				AccountNumber: req.AccountNumber,
				IFSC:          req.IFSC,
			}
		}
		result, err := d.returner.Request(c.Request.Context(), c.Param("orderID"), req.UserID, req.LineKey, req.Reason, orders.RefundMethod(req.Method), bank)
		if err != nil {
			writeReturnError(c, err)
			return
		}
		d.metrics.Count(c.Request.Context(), "ReturnRequested", map[string]string{"Method": req.Method})
		c.JSON(http.StatusOK, result)
	})

	r.GET("/orders/:orderID/return", func(c *gin.Context) {
		req, err := d.requests.GetReturn(c.Request.Context(), c.Param("orderID"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "fetch_failed", "detail": err.Error()})
			return
		}
		if req == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "return_request_not_found"})
			return
		}
		c.JSON(http.StatusOK, req)
	})

	r.POST("/orders/:orderID/return/approve", func(c *gin.Context) {
		if err := d.returner.Approve(c.Request.Context(), c.Param("orderID")); err != nil {
			writeReturnTransitionError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": orders.StatusReturnApproved})
	})

	r.POST("/orders/:orderID/return/refund", func(c *gin.Context) {
		if err := d.returner.CompleteRefund(c.Request.Context(), c.Param("orderID")); err != nil {
			writeReturnTransitionError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": orders.StatusRefundCompleted})
	})
}

func writeCancelError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, cancel.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
	case errors.Is(err, cancel.ErrNotCancellable):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "not_cancellable"})
	case errors.Is(err, cancel.ErrAlreadyCancelled), errors.Is(err, orders.ErrDuplicateRequest):
		c.JSON(http.StatusConflict, gin.H{"error": "already_cancelled"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cancel_failed", "detail": err.Error()})
	}
}

func writeReturnError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, returns.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
	case errors.Is(err, returns.ErrNotDelivered):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "order_not_delivered"})
	case errors.Is(err, returns.ErrLineNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "line_not_found"})
	case errors.Is(err, returns.ErrAlreadyRequested), errors.Is(err, orders.ErrDuplicateRequest):
		c.JSON(http.StatusConflict, gin.H{"error": "return_already_requested"})
	case errors.Is(err, returns.ErrBankDetailsRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "bank_details_required"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "return_failed", "detail": err.Error()})
	}
}

func writeReturnTransitionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, returns.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
	case errors.Is(err, orders.ErrStatusMismatch):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_status_transition"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transition_failed", "detail": err.Error()})
	}
}
