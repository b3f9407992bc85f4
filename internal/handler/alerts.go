package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"betwatch/internal/repository"
)

// AlertHandler exposes read-only alert queries.
type AlertHandler struct {
	Repo repository.Repository
}

func (h *AlertHandler) Register(r *gin.Engine) {
	r.GET("/api/alerts", h.list)
}

func (h *AlertHandler) list(c *gin.Context) {
	params := repository.ListAlertsParams{
		Limit:     parseInt(c.Query("limit"), 50),
		Offset:    parseInt(c.Query("offset"), 0),
		AlertType: optString(c.Query("type")),
		Severity:  optString(c.Query("severity")),
		MarketID:  optString(c.Query("market_id")),
	}
	if hours := parseInt(c.Query("hours"), 0); hours > 0 {
		since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
		params.Since = &since
	}
	if sentRaw := strings.TrimSpace(c.Query("sent")); sentRaw != "" {
		sent := strings.EqualFold(sentRaw, "true") || sentRaw == "1"
		params.Sent = &sent
	}

	items, err := h.Repo.ListAlerts(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusInternalServerError, "list alerts failed", nil)
		return
	}
	total, err := h.Repo.CountAlerts(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusInternalServerError, "count alerts failed", nil)
		return
	}
	Ok(c, items, map[string]any{
		"total":  total,
		"limit":  params.Limit,
		"offset": params.Offset,
	})
}

func parseInt(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func optString(raw string) *string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	return &raw
}
