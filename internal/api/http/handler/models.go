package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ngajar-feri/myrvm-edge/internal/api/http/dto"
	"github.com/ngajar-feri/myrvm-edge/internal/mlmodels"
)

type ModelsHandler struct {
	store *mlmodels.Store
}

func NewModelsHandler(store *mlmodels.Store) *ModelsHandler {
	return &ModelsHandler{store: store}
}

// Publish registers a model release; devices pick it up on their next
// handshake by comparing content hashes.
func (h *ModelsHandler) Publish(c *gin.Context) {
	var req dto.PublishModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	m, err := h.store.Publish(c.Request.Context(),
		req.Slug, req.Version, req.ContentHash, req.SizeBytes, req.Activate)
	if err != nil {
		slog.Error("Failed to publish model version", "error", err, "slug", req.Slug)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to publish model version"})
		return
	}

	c.JSON(http.StatusCreated, m)
}

func (h *ModelsHandler) List(c *gin.Context) {
	all, err := h.store.List(c.Request.Context())
	if err != nil {
		slog.Error("Failed to list model versions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list model versions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": all, "count": len(all)})
}
