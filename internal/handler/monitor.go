package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"betwatch/internal/detection"
	"betwatch/internal/repository"
)

// MonitorHandler exposes detection state: per-market statistics snapshots,
// account risk profiles and the latest sweep summary.
type MonitorHandler struct {
	Repo         repository.Repository
	Orchestrator *detection.Orchestrator
	NewAccount   *detection.NewAccountDetector
}

func (h *MonitorHandler) Register(r *gin.Engine) {
	r.GET("/api/markets/:id/statistics", h.marketStatistics)
	r.GET("/api/accounts/:address/risk", h.accountRisk)
	r.GET("/api/summary", h.summary)
}

func (h *MonitorHandler) marketStatistics(c *gin.Context) {
	marketID := strings.TrimSpace(c.Param("id"))
	windowHours := parseInt(c.Query("window_hours"), 24)
	snapshot, err := h.Repo.GetMarketStatistics(c.Request.Context(), marketID, windowHours)
	if err != nil {
		Error(c, http.StatusInternalServerError, "get statistics failed", nil)
		return
	}
	if snapshot == nil {
		Error(c, http.StatusNotFound, "no statistics for market", map[string]any{
			"market_id":    marketID,
			"window_hours": windowHours,
		})
		return
	}
	Ok(c, snapshot, nil)
}

func (h *MonitorHandler) accountRisk(c *gin.Context) {
	address := strings.TrimSpace(c.Param("address"))
	if h.NewAccount == nil {
		Error(c, http.StatusServiceUnavailable, "risk profiling disabled", nil)
		return
	}
	profile, err := h.NewAccount.RiskProfile(c.Request.Context(), address)
	if err != nil {
		Error(c, http.StatusInternalServerError, "risk profile failed", nil)
		return
	}
	if profile == nil {
		Error(c, http.StatusNotFound, "unknown address", map[string]any{"address": address})
		return
	}
	Ok(c, profile, nil)
}

func (h *MonitorHandler) summary(c *gin.Context) {
	if h.Orchestrator == nil {
		Error(c, http.StatusServiceUnavailable, "detection disabled", nil)
		return
	}
	summary := h.Orchestrator.LastSummary()
	if summary == nil {
		Ok(c, nil, map[string]any{"note": "no sweep completed yet"})
		return
	}
	Ok(c, summary, nil)
}
