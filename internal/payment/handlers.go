package payment

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumenpass/lumenpass/internal/event"
	"github.com/lumenpass/lumenpass/internal/validation"
)

// Handlers exposes the payment ledger over HTTP.
type Handlers struct {
	service *Service
}

// NewHandlers creates HTTP handlers for the payment ledger.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers payment endpoints.
func (h *Handlers) RegisterRoutes(r gin.IRouter) {
	r.POST("/payments/intent", h.createIntent)
	r.POST("/payments/confirm", h.confirm)
	r.GET("/payments/:id", h.get)
}

type createIntentRequest struct {
	EventID string `json:"eventId" binding:"required"`
}

func (h *Handlers) createIntent(c *gin.Context) {
	var req createIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "eventId is required"})
		return
	}

	intent, err := h.service.CreateIntent(c.Request.Context(), req.EventID, c.GetString("userID"))
	if err != nil {
		switch {
		case errors.Is(err, event.ErrEventNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		case errors.Is(err, ErrDuplicatePayment):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, ErrEventSuspended),
			errors.Is(err, ErrEventNotOpen),
			errors.Is(err, ErrUnsupportedAsset),
			errors.Is(err, ErrCapacityExceeded),
			errors.Is(err, ErrNoEscrowAccount):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create payment intent"})
		}
		return
	}

	c.JSON(http.StatusCreated, intent)
}

type confirmRequest struct {
	TransactionHash string `json:"transactionHash" binding:"required"`
}

func (h *Handlers) confirm(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "transactionHash is required"})
		return
	}
	if !validation.IsValidTransactionHash(req.TransactionHash) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction hash"})
		return
	}

	p, err := h.service.Confirm(c.Request.Context(), req.TransactionHash, c.GetString("userID"))
	if err != nil {
		switch {
		case errors.Is(err, ErrTransactionNotOnNetwork),
			errors.Is(err, ErrPaymentNotFound),
			errors.Is(err, event.ErrEventNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, ErrNotOwner):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case errors.Is(err, ErrNoMemo),
			errors.Is(err, ErrNoPaymentOperations),
			errors.Is(err, ErrDestinationMismatch),
			errors.Is(err, ErrAssetMismatch),
			errors.Is(err, ErrAmountMismatch),
			errors.Is(err, ErrUnsupportedAsset):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to confirm payment"})
		}
		return
	}

	c.JSON(http.StatusOK, p)
}

func (h *Handlers) get(c *gin.Context) {
	p, err := h.service.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load payment"})
		return
	}

	if p.UserID != c.GetString("userID") && c.GetString("userRole") != "admin" {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your payment"})
		return
	}

	c.JSON(http.StatusOK, p)
}
