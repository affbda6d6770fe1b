package user

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handlers exposes the user wallet API over HTTP.
type Handlers struct {
	service *Service
}

// NewHandlers creates HTTP handlers for the user service.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers user endpoints on the given router group.
func (h *Handlers) RegisterRoutes(r gin.IRouter) {
	r.GET("/users/me", h.getMe)
	r.PUT("/users/me/wallet", h.registerWallet)
}

func (h *Handlers) getMe(c *gin.Context) {
	userID := c.GetString("userID")

	u, err := h.service.Get(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}

	c.JSON(http.StatusOK, u)
}

type registerWalletRequest struct {
	StellarPublicKey string `json:"stellarPublicKey" binding:"required"`
}

func (h *Handlers) registerWallet(c *gin.Context) {
	userID := c.GetString("userID")

	var req registerWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stellarPublicKey is required"})
		return
	}

	u, err := h.service.RegisterWallet(c.Request.Context(), userID, req.StellarPublicKey)
	if err != nil {
		if errors.Is(err, ErrInvalidAccountID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stellar account id"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register wallet"})
		return
	}

	c.JSON(http.StatusOK, u)
}
