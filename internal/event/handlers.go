package event

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handlers exposes the event API over HTTP.
type Handlers struct {
	service *Service
}

// NewHandlers creates HTTP handlers for the event service.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers public event endpoints.
func (h *Handlers) RegisterRoutes(r gin.IRouter) {
	r.GET("/events", h.list)
	r.GET("/events/:id", h.get)
}

// RegisterAdminRoutes registers privileged event endpoints.
func (h *Handlers) RegisterAdminRoutes(r gin.IRouter) {
	r.POST("/events", h.create)
	r.PATCH("/events/:id/status", h.updateStatus)
	r.DELETE("/events/:id", h.delete)
}

type createEventRequest struct {
	Name         string `json:"name" binding:"required"`
	TicketPrice  string `json:"ticketPrice" binding:"required"`
	Currency     string `json:"currency" binding:"required"`
	MaxAttendees *int   `json:"maxAttendees"`
}

func (h *Handlers) create(c *gin.Context) {
	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name, ticketPrice and currency are required"})
		return
	}

	e, err := h.service.Create(c.Request.Context(), CreateParams{
		Name:         req.Name,
		OrganizerID:  c.GetString("userID"),
		TicketPrice:  req.TicketPrice,
		Currency:     req.Currency,
		MaxAttendees: req.MaxAttendees,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidPrice), errors.Is(err, ErrUnsupportedAsset):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create event"})
		}
		return
	}

	c.JSON(http.StatusCreated, e)
}

func (h *Handlers) list(c *gin.Context) {
	events, err := h.service.List(c.Request.Context(), Status(c.Query("status")))
	if err != nil {
		if errors.Is(err, ErrInvalidStatus) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

func (h *Handlers) get(c *gin.Context) {
	e, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrEventNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load event"})
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *Handlers) delete(c *gin.Context) {
	err := h.service.DeleteDraft(c.Request.Context(), c.Param("id"), c.GetString("userID"))
	if err != nil {
		switch {
		case errors.Is(err, ErrEventNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		case errors.Is(err, ErrNotDraft):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete event"})
		}
		return
	}
	c.Status(http.StatusNoContent)
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handlers) updateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}

	e, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), Status(req.Status), c.GetString("userID"))
	if err != nil {
		var transitionErr *TransitionError
		switch {
		case errors.Is(err, ErrEventNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		case errors.As(err, &transitionErr), errors.Is(err, ErrInvalidStatus):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update event status"})
		}
		return
	}

	c.JSON(http.StatusOK, e)
}
