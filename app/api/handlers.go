package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/feed-digest/app/feed"
	"github.com/lysyi3m/feed-digest/app/render"
	"github.com/lysyi3m/feed-digest/app/tasks"
)

func NewHandler(aggregator tasks.Aggregator, catalog *feed.Catalog,
	page render.Renderer, digest render.Renderer, info map[string]any) *Handler {
	return &Handler{
		aggregator: aggregator,
		catalog:    catalog,
		page:       page,
		digest:     digest,
		info:       info,
	}
}

// Refresh runs a full aggregation and publishes the result unless ctx was
// cancelled meanwhile. It returns nil without running when another refresh
// is in progress.
func (h *Handler) Refresh(ctx context.Context) *tasks.Result {
	if !h.runMu.TryLock() {
		slog.Debug("Refresh already in progress, skipping")
		return nil
	}
	defer h.runMu.Unlock()

	result := h.aggregator.Run(ctx, h.catalog)

	// a cancelled run has failed every pending source; keep the last good digest
	if err := ctx.Err(); err != nil {
		slog.Warn("Refresh cancelled, keeping previous digest", "error", err)
		return result
	}

	h.mu.Lock()
	h.result = result
	h.mu.Unlock()

	return result
}

func (h *Handler) Snapshot() *tasks.Result {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.result
}

func (h *Handler) GetPage(c *gin.Context) {
	h.renderSnapshot(c, h.page, "text/html; charset=utf-8")
}

func (h *Handler) GetDigest(c *gin.Context) {
	h.renderSnapshot(c, h.digest, "application/rss+xml; charset=utf-8")
}

func (h *Handler) renderSnapshot(c *gin.Context, renderer render.Renderer, contentType string) {
	result := h.Snapshot()
	if result == nil {
		c.Header("Retry-After", "5")
		c.String(http.StatusServiceUnavailable, "Digest is being built, try again shortly")
		return
	}

	out, err := renderer.Run(render.NewPayload(result, h.info))
	if err != nil {
		slog.Error("Render error", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", contentType)
	c.Header("X-Feed-Items", strconv.Itoa(result.ItemCount()))
	c.Header("X-Last-Updated", result.FinishedAt.Format(time.RFC3339))

	c.String(http.StatusOK, out)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp":  time.Now().In(time.Local).Format(time.RFC3339),
		"categories": len(h.catalog.Categories),
		"sources":    len(h.catalog.Sources()),
	}

	if result := h.Snapshot(); result != nil {
		health["items"] = result.ItemCount()
		health["errors"] = len(result.Errors)
		health["last_run_at"] = result.FinishedAt.Format(time.RFC3339)
		health["last_run_duration"] = result.FinishedAt.Sub(result.StartedAt).String()
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) APIGetItems(c *gin.Context) {
	result := h.Snapshot()
	if result == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Digest is being built"})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) APIRefresh(c *gin.Context) {
	// the run outlives a client that disconnects mid-refresh
	result := h.Refresh(context.WithoutCancel(c.Request.Context()))
	if result == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Refresh already in progress"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"sources":  result.Sources,
		"items":    result.ItemCount(),
		"errors":   result.ErrorMessages(),
		"duration": result.FinishedAt.Sub(result.StartedAt).String(),
	})
}
