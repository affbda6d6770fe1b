package ticket

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumenpass/lumenpass/internal/payment"
	"github.com/lumenpass/lumenpass/internal/validation"
)

// Handlers exposes the ticket API over HTTP.
type Handlers struct {
	service *Service
}

// NewHandlers creates HTTP handlers for the ticket service.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers ticket endpoints.
func (h *Handlers) RegisterRoutes(r gin.IRouter) {
	r.POST("/tickets/issue", h.issue)
	r.POST("/tickets/verify", h.verify)
	r.POST("/tickets/:id/transfer", h.transfer)
	r.GET("/tickets", h.listMine)
	r.GET("/tickets/verification-key", h.verificationKey)
}

type issueRequest struct {
	PaymentID string `json:"paymentId" binding:"required"`
}

func (h *Handlers) issue(c *gin.Context) {
	var req issueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "paymentId is required"})
		return
	}

	t, err := h.service.Issue(c.Request.Context(), req.PaymentID)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrPaymentNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
		case errors.Is(err, ErrPaymentNotConfirmed), errors.Is(err, ErrMemoMismatch):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue ticket"})
		}
		return
	}

	c.JSON(http.StatusCreated, t)
}

type transferRequest struct {
	NewOwnerID string `json:"newOwnerId" binding:"required"`
}

func (h *Handlers) transfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "newOwnerId is required"})
		return
	}

	t, err := h.service.Transfer(c.Request.Context(), c.Param("id"), c.GetString("userID"), req.NewOwnerID)
	if err != nil {
		switch {
		case errors.Is(err, ErrTicketNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
		case errors.Is(err, ErrNotOwner):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case errors.Is(err, ErrNotTransferable):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to transfer ticket"})
		}
		return
	}

	c.JSON(http.StatusOK, t)
}

type verifyRequest struct {
	TicketID  string `json:"ticketId" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

func (h *Handlers) verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ticketId and signature are required"})
		return
	}

	// Same response as a wrong signature; the rejection must not reveal
	// whether the ticket exists.
	if !validation.IsValidHex(req.Signature) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": ErrInvalidSignature.Error()})
		return
	}

	t, err := h.service.Verify(c.Request.Context(), req.TicketID, req.Signature)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidSignature):
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		case errors.Is(err, ErrTicketNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
		case errors.Is(err, ErrAlreadyUsed), errors.Is(err, ErrNoLongerValid):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify ticket"})
		}
		return
	}

	c.JSON(http.StatusOK, t)
}

func (h *Handlers) listMine(c *gin.Context) {
	tickets, err := h.service.ListByOwner(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tickets"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tickets": tickets, "count": len(tickets)})
}

func (h *Handlers) verificationKey(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"verificationKey": h.service.VerificationKey()})
}
