package refund

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumenpass/lumenpass/internal/event"
)

// Handlers exposes the refund API over HTTP. Privileged callers only.
type Handlers struct {
	coordinator *Coordinator
}

// NewHandlers creates HTTP handlers for the refund coordinator.
func NewHandlers(coordinator *Coordinator) *Handlers {
	return &Handlers{coordinator: coordinator}
}

// RegisterAdminRoutes registers refund endpoints on the admin group.
func (h *Handlers) RegisterAdminRoutes(r gin.IRouter) {
	r.POST("/events/:id/refunds", h.refundEvent)
}

func (h *Handlers) refundEvent(c *gin.Context) {
	results, err := h.coordinator.RefundEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, event.ErrEventNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		case errors.Is(err, ErrEventNotCancelled), errors.Is(err, ErrNoEscrow):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to refund event"})
		}
		return
	}

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"results":   results,
		"total":     len(results),
		"succeeded": succeeded,
		"failed":    len(results) - succeeded,
	})
}
