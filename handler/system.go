package handler

import (
	"net/http"
	"time"

	"github.com/Rigel07/invoice-extractor/service"
	"github.com/gin-gonic/gin"
)

const apiVersion = "1.0.0"

type SystemHandler struct {
	jobs     *service.JobService
	registry *service.ProviderRegistry
}

func NewSystemHandler(jobs *service.JobService, registry *service.ProviderRegistry) *SystemHandler {
	return &SystemHandler{jobs: jobs, registry: registry}
}

// Health is the liveness endpoint.
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"version":   apiVersion,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// Stats reports job engine counters and per-provider usage.
func (h *SystemHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"jobs":      h.jobs.Stats(),
		"providers": h.registry.Snapshot(),
	})
}
