package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/orionwholesale/storefront/internal/api/models"
	"github.com/orionwholesale/storefront/internal/api/response"
	"github.com/orionwholesale/storefront/internal/landing"
)

// LandingScreen is the landing screen as seen by the API.
type LandingScreen interface {
	State() landing.State
	Mounted() bool
	Refresh(ctx context.Context) error
	Retry(ctx context.Context) error
	DismissError()
}

// LandingHandler exposes the landing screen state and its user actions.
type LandingHandler struct {
	screen LandingScreen
}

// NewLandingHandler creates a new LandingHandler.
func NewLandingHandler(screen LandingScreen) *LandingHandler {
	return &LandingHandler{screen: screen}
}

// GetLanding handles GET /v1/landing.
func (h *LandingHandler) GetLanding(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.snapshot())
}

// Refresh handles POST /v1/landing/refresh, the pull-to-refresh gesture. It
// blocks until both layers have settled and returns the resulting state.
func (h *LandingHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.reload(w, r, h.screen.Refresh)
}

// Retry handles POST /v1/landing/retry, the banner's retry action.
func (h *LandingHandler) Retry(w http.ResponseWriter, r *http.Request) {
	h.reload(w, r, h.screen.Retry)
}

// DismissError handles POST /v1/landing/dismiss-error.
func (h *LandingHandler) DismissError(w http.ResponseWriter, r *http.Request) {
	h.screen.DismissError()
	response.NoContent(w, r)
}

func (h *LandingHandler) reload(w http.ResponseWriter, r *http.Request, load func(context.Context) error) {
	err := load(r.Context())
	switch {
	case err == nil:
		response.JSON(w, r, http.StatusOK, h.snapshot())
	case errors.Is(err, landing.ErrNotMounted):
		response.Conflict(w, r, "landing screen is not mounted")
	default:
		response.BadGateway(w, r, err.Error())
	}
}

func (h *LandingHandler) snapshot() models.Landing {
	return models.Landing{
		Mounted: h.screen.Mounted(),
		State:   h.screen.State(),
	}
}
