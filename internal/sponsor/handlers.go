package sponsor

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumenpass/lumenpass/internal/event"
)

// Handlers exposes the sponsorship API over HTTP.
type Handlers struct {
	service *Service
}

// NewHandlers creates HTTP handlers for the sponsor service.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers sponsorship endpoints.
func (h *Handlers) RegisterRoutes(r gin.IRouter) {
	r.GET("/events/:id/sponsor-tiers", h.listTiers)
	r.GET("/events/:id/pledges", h.listPledges)
	r.POST("/sponsor-tiers/:id/pledges", h.createPledge)
}

// RegisterAdminRoutes registers privileged sponsorship endpoints.
func (h *Handlers) RegisterAdminRoutes(r gin.IRouter) {
	r.POST("/events/:id/sponsor-tiers", h.createTier)
}

type createTierRequest struct {
	Name     string `json:"name" binding:"required"`
	Amount   string `json:"amount" binding:"required"`
	Currency string `json:"currency" binding:"required"`
}

func (h *Handlers) createTier(c *gin.Context) {
	var req createTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name, amount and currency are required"})
		return
	}

	t, err := h.service.CreateTier(c.Request.Context(), c.Param("id"), req.Name, req.Amount, req.Currency)
	if err != nil {
		switch {
		case errors.Is(err, event.ErrEventNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		case errors.Is(err, ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create sponsor tier"})
		}
		return
	}

	c.JSON(http.StatusCreated, t)
}

func (h *Handlers) listTiers(c *gin.Context) {
	tiers, err := h.service.ListTiers(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sponsor tiers"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tiers": tiers, "count": len(tiers)})
}

func (h *Handlers) listPledges(c *gin.Context) {
	pledges, err := h.service.ListPledges(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list pledges"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pledges": pledges, "count": len(pledges)})
}

func (h *Handlers) createPledge(c *gin.Context) {
	intent, err := h.service.CreatePledge(c.Request.Context(), c.Param("id"), c.GetString("userID"))
	if err != nil {
		switch {
		case errors.Is(err, ErrTierNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "sponsor tier not found"})
		case errors.Is(err, ErrNoSponsorWallet):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create pledge"})
		}
		return
	}

	c.JSON(http.StatusCreated, intent)
}
