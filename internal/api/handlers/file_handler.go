package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/File-Sharing-BondBridg/Document-Service/internal/storage"
	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 2 * time.Second

// Checker is any dependency that can report whether it is reachable.
type Checker interface {
	CheckConnection(ctx context.Context) error
}

type Handler struct {
	router *storage.Router
	checks map[string]Checker
	logger *slog.Logger
}

func New(router *storage.Router, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		router: router,
		checks: make(map[string]Checker),
		logger: logger.With("component", "http"),
	}
}

// AddCheck registers a dependency reported by the health endpoint.
func (h *Handler) AddCheck(name string, c Checker) {
	h.checks[name] = c
}

func (h *Handler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	status := "ok"
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check.CheckConnection(ctx); err != nil {
			deps[name] = "unavailable"
			status = "degraded"
			continue
		}
		deps[name] = "ok"
	}

	ledger := "ok"
	if h.router.LedgerCorrupted() {
		ledger = "corrupted"
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       status,
		"strategy":     h.router.Strategy().String(),
		"ledger":       ledger,
		"dependencies": deps,
	})
}

func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.router.Stats())
}
