package escrow

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumenpass/lumenpass/internal/event"
	"github.com/lumenpass/lumenpass/internal/validation"
)

// Handlers exposes the escrow API over HTTP. All routes are privileged.
type Handlers struct {
	custodian *Custodian
}

// NewHandlers creates HTTP handlers for the escrow custodian.
func NewHandlers(custodian *Custodian) *Handlers {
	return &Handlers{custodian: custodian}
}

// RegisterAdminRoutes registers escrow endpoints on the admin group.
func (h *Handlers) RegisterAdminRoutes(r gin.IRouter) {
	r.POST("/events/:id/escrow", h.create)
	r.POST("/events/:id/escrow/release", h.release)
}

func (h *Handlers) create(c *gin.Context) {
	publicKey, err := h.custodian.CreateEscrow(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, event.ErrEventNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		case errors.Is(err, ErrEventNotPublished):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create escrow"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"escrowPublicKey": publicKey})
}

type releaseRequest struct {
	OrganizerWallet string `json:"organizerWallet" binding:"required"`
}

func (h *Handlers) release(c *gin.Context) {
	var req releaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "organizerWallet is required"})
		return
	}
	if !validation.IsValidAccountID(req.OrganizerWallet) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid organizer wallet"})
		return
	}

	result, err := h.custodian.ReleaseEscrow(c.Request.Context(), c.Param("id"), req.OrganizerWallet)
	if err != nil {
		switch {
		case errors.Is(err, event.ErrEventNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		case errors.Is(err, ErrEventNotCompleted), errors.Is(err, ErrNoEscrow):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to release escrow"})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}
