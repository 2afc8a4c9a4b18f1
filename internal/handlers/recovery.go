package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/uinav/appgraph-backend/internal/services"
)

type RecoveryHandler struct {
	recovery services.RecoveryService
}

func NewRecoveryHandler(recovery services.RecoveryService) *RecoveryHandler {
	return &RecoveryHandler{recovery: recovery}
}

// GET /api/screens/:id/recovery
func (h *RecoveryHandler) Options(c *gin.Context) {
	screenID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_screen_id", err)
		return
	}
	options, err := h.recovery.Resolve(c.Request.Context(), screenID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "recovery_failed", err)
		return
	}
	RespondOK(c, gin.H{"options": options})
}
