package handler

import (
	"net/http"

	"github.com/Rigel07/invoice-extractor/middleware"
	"github.com/Rigel07/invoice-extractor/service"
	"github.com/gin-gonic/gin"
)

type ProviderHandler struct {
	registry *service.ProviderRegistry
}

func NewProviderHandler(registry *service.ProviderRegistry) *ProviderHandler {
	return &ProviderHandler{registry: registry}
}

// Health returns the quota/cooldown state of every configured provider.
func (h *ProviderHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": h.registry.Snapshot()})
}

// Reset clears all provider cooldowns and usage counters. Administrative.
func (h *ProviderHandler) Reset(c *gin.Context) {
	h.registry.Reset()

	c.JSON(http.StatusOK, gin.H{
		"message":  "Provider state reset",
		"reset_by": middleware.GetUsername(c),
	})
}
