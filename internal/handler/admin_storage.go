package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

var warnNames = []string{"none", "yellow", "red", "block"}

func (h *Handler) storageJSON() map[string]interface{} {
	stats := h.DiskCache.Get()
	warnLevel := stats.WarningLevel(h.Cfg.DiskWarnYellowPct, h.Cfg.DiskWarnRedPct, h.Cfg.DiskBlockPct)
	pctFree := stats.PctFree()
	return map[string]interface{}{
		"total_bytes":       stats.TotalBytes,
		"free_bytes":        stats.FreeBytes,
		"app_bytes":         stats.AppBytes,
		"template_bytes":    stats.TemplateBytes,
		"certificate_bytes": stats.CertificateBytes,
		"certificate_count": stats.CertificateCount,
		"pct_free":          pctFree,
		"warning":           warnNames[warnLevel],
		"message":           diskWarnMsg(warnLevel, pctFree),
		"captured_at":       stats.CapturedAt.UTC().Format(time.RFC3339),
	}
}

// Healthz handles GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.DB.PingContext(ctx); err != nil {
		renderJSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "database unreachable")
		return
	}
	body := map[string]interface{}{"status": "ok"}
	if h.DiskCache != nil {
		body["disk"] = h.storageJSON()
	}
	renderJSON(w, http.StatusOK, body)
}

// AdminStorage handles GET /api/v1/admin/storage
func (h *Handler) AdminStorage(w http.ResponseWriter, r *http.Request) {
	if h.DiskCache == nil {
		renderJSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "disk monitoring not available")
		return
	}
	renderJSON(w, http.StatusOK, h.storageJSON())
}

func diskWarnMsg(level int, pctFree float64) string {
	switch level {
	case 1:
		return fmt.Sprintf("%.1f%% free, running low", pctFree)
	case 2:
		return fmt.Sprintf("%.1f%% free, critically low", pctFree)
	case 3:
		return fmt.Sprintf("%.1f%% free, new certificates blocked", pctFree)
	default:
		return ""
	}
}
