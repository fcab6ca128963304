package handler

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/orionwholesale/storefront/internal/api/models"
	"github.com/orionwholesale/storefront/internal/api/response"
	"github.com/orionwholesale/storefront/internal/featureflags"
)

// FeatureFlagsHandler handles the admin flag endpoints.
type FeatureFlagsHandler struct {
	service *featureflags.Service
}

// NewFeatureFlagsHandler creates a new FeatureFlagsHandler.
func NewFeatureFlagsHandler(service *featureflags.Service) *FeatureFlagsHandler {
	return &FeatureFlagsHandler{service: service}
}

// ListFeatureFlags handles GET /v1/admin/feature-flags.
func (h *FeatureFlagsHandler) ListFeatureFlags(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.list(r))
}

// UpsertFeatureFlags handles PUT /v1/admin/feature-flags and returns the
// resulting flag set.
func (h *FeatureFlagsHandler) UpsertFeatureFlags(w http.ResponseWriter, r *http.Request) {
	var body models.FeatureFlags
	if err := response.DecodeJSON(w, r, &body); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	var fieldErrors []models.FieldError
	for i, flag := range body.Flags {
		field := "flags[" + strconv.Itoa(i) + "]"
		switch {
		case flag == nil:
			fieldErrors = append(fieldErrors, models.FieldError{Field: field, Message: "must not be null", Code: "REQUIRED"})
		case flag.Key == "":
			fieldErrors = append(fieldErrors, models.FieldError{Field: field + ".key", Message: "is required", Code: "REQUIRED"})
		case flag.Value == nil:
			fieldErrors = append(fieldErrors, models.FieldError{Field: field + ".value", Message: "is required", Code: "REQUIRED"})
		}
	}
	if len(body.Flags) == 0 {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "flags", Message: "must not be empty", Code: "REQUIRED"})
	}
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid feature flags", fieldErrors)
		return
	}

	if err := h.service.SetFlags(r.Context(), body.Flags); err != nil {
		response.InternalError(w, r, "failed to store feature flags")
		return
	}
	response.JSON(w, r, http.StatusOK, h.list(r))
}

// InvalidateCache handles POST /v1/admin/feature-flags/invalidate.
func (h *FeatureFlagsHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	h.service.InvalidateCache()
	response.NoContent(w, r)
}

func (h *FeatureFlagsHandler) list(r *http.Request) models.FeatureFlags {
	all := h.service.GetAllFlags(r.Context())
	flags := make([]*featureflags.Flag, 0, len(all))
	for _, flag := range all {
		flags = append(flags, flag)
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i].Key < flags[j].Key })
	return models.FeatureFlags{Flags: flags}
}
