package handler

import (
	"context"
	"net/http"

	"github.com/orionwholesale/storefront/internal/api/models"
	"github.com/orionwholesale/storefront/internal/api/response"
)

// Lifecycle receives app state transitions.
type Lifecycle interface {
	Foreground(ctx context.Context) bool
	Background()
}

// LifecycleHandler simulates the host's foreground and background events.
type LifecycleHandler struct {
	app Lifecycle
}

// NewLifecycleHandler creates a new LifecycleHandler.
func NewLifecycleHandler(app Lifecycle) *LifecycleHandler {
	return &LifecycleHandler{app: app}
}

// Foreground handles POST /v1/lifecycle/foreground and reports whether a
// pending navigation was replayed.
func (h *LifecycleHandler) Foreground(w http.ResponseWriter, r *http.Request) {
	replayed := h.app.Foreground(r.Context())
	response.JSON(w, r, http.StatusOK, models.Foreground{Replayed: replayed})
}

// Background handles POST /v1/lifecycle/background.
func (h *LifecycleHandler) Background(w http.ResponseWriter, r *http.Request) {
	h.app.Background()
	response.NoContent(w, r)
}
