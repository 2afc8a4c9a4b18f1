package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	types "github.com/uinav/appgraph-backend/internal/domain"
	pkgerr "github.com/uinav/appgraph-backend/internal/pkg/errors"
	"github.com/uinav/appgraph-backend/internal/services"
)

type NavigationHandler struct {
	nav     services.NavigationService
	matcher services.MatcherService
}

func NewNavigationHandler(nav services.NavigationService, matcher services.MatcherService) *NavigationHandler {
	return &NavigationHandler{nav: nav, matcher: matcher}
}

// GET /api/sites/:site_id/path?from=&to=&record=
func (h *NavigationHandler) Path(c *gin.Context) {
	siteID := c.Param("site_id")
	from := c.Query("from")
	to := c.Query("to")
	if from == "" || to == "" {
		RespondError(c, http.StatusBadRequest, "missing_endpoints",
			fmt.Errorf("both from and to query params are required"))
		return
	}
	path, err := h.nav.FindPath(c.Request.Context(), siteID, from, to)
	if err != nil {
		if pkgerr.Is(err, pkgerr.ErrNotFound) {
			RespondError(c, http.StatusNotFound, "no_path", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "path_failed", err)
		return
	}
	if c.Query("record") == "true" {
		if err := h.nav.RecordTraversal(c.Request.Context(), path); err != nil {
			RespondError(c, http.StatusInternalServerError, "record_failed", err)
			return
		}
	}
	RespondOK(c, gin.H{"path": path})
}

// GET /api/sites/:site_id/screens/:id/neighbors
func (h *NavigationHandler) Neighbors(c *gin.Context) {
	neighbors, err := h.nav.Neighbors(c.Request.Context(), c.Param("site_id"), c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "neighbors_failed", err)
		return
	}
	RespondOK(c, gin.H{"neighbors": neighbors})
}

// GET /api/sites/:site_id/screens/search?q=
func (h *NavigationHandler) Search(c *gin.Context) {
	screens, err := h.nav.Search(c.Request.Context(), c.Param("site_id"), c.Query("q"))
	if err != nil {
		if pkgerr.Is(err, pkgerr.ErrInvalidArgument) {
			RespondError(c, http.StatusBadRequest, "invalid_query", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "search_failed", err)
		return
	}
	RespondOK(c, gin.H{"screens": screens})
}

// POST /api/sites/:site_id/identify
func (h *NavigationHandler) Identify(c *gin.Context) {
	var obs types.Observation
	if err := c.ShouldBindJSON(&obs); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	screen, err := h.matcher.Identify(c.Request.Context(), c.Param("site_id"), obs)
	if err != nil {
		if pkgerr.Is(err, pkgerr.ErrAmbiguousMatch) {
			// Ambiguity is surfaced to the caller, never resolved by guessing.
			RespondError(c, http.StatusConflict, "ambiguous_match", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "identify_failed", err)
		return
	}
	if screen == nil {
		RespondError(c, http.StatusNotFound, "no_match", fmt.Errorf("no screen matches the observation"))
		return
	}
	RespondOK(c, gin.H{"screen": screen})
}
