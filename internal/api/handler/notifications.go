package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/orionwholesale/storefront/internal/api/models"
	"github.com/orionwholesale/storefront/internal/api/response"
	"github.com/orionwholesale/storefront/internal/push"
)

// NotificationSource lists the stored promotional notifications.
type NotificationSource interface {
	List(ctx context.Context) ([]push.Record, error)
}

// NotificationsHandler serves the notification inbox.
type NotificationsHandler struct {
	log    NotificationSource
	logger zerolog.Logger
}

// NewNotificationsHandler creates a new NotificationsHandler.
func NewNotificationsHandler(log NotificationSource, logger zerolog.Logger) *NotificationsHandler {
	return &NotificationsHandler{log: log, logger: logger}
}

// ListNotifications handles GET /v1/notifications?limit=N, newest first.
func (h *NotificationsHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	limit := push.DefaultLogCapacity
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > push.DefaultLogCapacity {
			response.BadRequest(w, r, "invalid query parameter", []models.FieldError{{
				Field:   "limit",
				Message: "must be an integer between 1 and " + strconv.Itoa(push.DefaultLogCapacity),
				Code:    "OUT_OF_RANGE",
			}})
			return
		}
		limit = n
	}

	records, err := h.log.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("listing notifications")
		response.InternalError(w, r, "failed to read notifications")
		return
	}
	if records == nil {
		records = []push.Record{}
	}
	if len(records) > limit {
		records = records[:limit]
	}

	response.JSON(w, r, http.StatusOK, models.NotificationList{Items: records, Count: len(records)})
}
