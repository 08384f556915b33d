// internal/api/handler/api/deliveries.go
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/newthinker/pushrelay/internal/api/response"
	"github.com/newthinker/pushrelay/internal/core"
	"github.com/newthinker/pushrelay/internal/storage/delivery"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// DeliveriesHandler serves the delivery history.
type DeliveriesHandler struct {
	store delivery.Store
}

// NewDeliveriesHandler creates a new deliveries handler.
func NewDeliveriesHandler(store delivery.Store) *DeliveriesHandler {
	return &DeliveriesHandler{store: store}
}

// List returns results matching query parameters, newest first.
func (h *DeliveriesHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := delivery.ListFilter{
		Project: q.Get("project"),
		Kind:    core.OccurrenceKind(q.Get("kind")),
		Outcome: core.Outcome(q.Get("outcome")),
		From:    parseTime(q.Get("from")),
		To:      parseTime(q.Get("to")),
		Limit:   defaultLimit,
	}

	if limit := q.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			filter.Limit = min(n, maxLimit)
		}
	}

	if offset := q.Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil && n > 0 {
			filter.Offset = n
		}
	}

	results, err := h.store.List(r.Context(), filter)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, err)
		return
	}

	count, _ := h.store.Count(r.Context(), filter)

	response.JSON(w, http.StatusOK, map[string]any{
		"deliveries": results,
		"total":      count,
		"limit":      filter.Limit,
		"offset":     filter.Offset,
	})
}

// GetByID returns a single result by ID.
func (h *DeliveriesHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	result, err := h.store.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}

	response.JSON(w, http.StatusOK, result)
}

// parseTime accepts RFC 3339 timestamps or plain dates and ignores anything else.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t
	}
	return time.Time{}
}
