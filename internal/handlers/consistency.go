package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/uinav/appgraph-backend/internal/services"
)

type ConsistencyHandler struct {
	validator services.ValidatorService
}

func NewConsistencyHandler(validator services.ValidatorService) *ConsistencyHandler {
	return &ConsistencyHandler{validator: validator}
}

// POST /api/sites/:site_id/consistency/validate
func (h *ConsistencyHandler) Validate(c *gin.Context) {
	report, err := h.validator.Validate(c.Request.Context(), c.Param("site_id"))
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "validate_failed", err)
		return
	}
	RespondOK(c, gin.H{"report": report})
}

// POST /api/sites/:site_id/consistency/repair
func (h *ConsistencyHandler) Repair(c *gin.Context) {
	report, err := h.validator.Repair(c.Request.Context(), c.Param("site_id"))
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "repair_failed", err)
		return
	}
	RespondOK(c, gin.H{"report": report})
}
