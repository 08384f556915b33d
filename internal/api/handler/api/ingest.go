// internal/api/handler/api/ingest.go
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/newthinker/pushrelay/internal/api/response"
	"github.com/newthinker/pushrelay/internal/core"
)

// maxBodyBytes bounds an ingestion request body.
const maxBodyBytes = 1 << 20

// Relay dispatches occurrences for a project.
type Relay interface {
	HandleEvent(ctx context.Context, slug string, event core.ErrorEvent, isNew bool) (core.Result, error)
	HandleAlert(ctx context.Context, slug string, alert core.Alert) (core.Result, error)
}

// EventRequest is the body of an event ingestion request.
type EventRequest struct {
	IsNew bool           `json:"is_new"`
	Event core.ErrorEvent `json:"event"`
}

// IngestHandler accepts events and alerts from the monitoring host.
type IngestHandler struct {
	relay Relay
}

// NewIngestHandler creates a new ingestion handler.
func NewIngestHandler(relay Relay) *IngestHandler {
	return &IngestHandler{relay: relay}
}

// Event handles POST /api/v1/projects/{project}/events.
func (h *IngestHandler) Event(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := decode(w, r, &req); err != nil {
		response.Fail(w, err)
		return
	}

	result, err := h.relay.HandleEvent(r.Context(), r.PathValue("project"), req.Event, req.IsNew)
	if err != nil {
		response.Fail(w, err)
		return
	}
	writeResult(w, result)
}

// Alert handles POST /api/v1/projects/{project}/alerts.
func (h *IngestHandler) Alert(w http.ResponseWriter, r *http.Request) {
	var alert core.Alert
	if err := decode(w, r, &alert); err != nil {
		response.Fail(w, err)
		return
	}

	result, err := h.relay.HandleAlert(r.Context(), r.PathValue("project"), alert)
	if err != nil {
		response.Fail(w, err)
		return
	}
	writeResult(w, result)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return core.WrapError(core.ErrBadRequest, fmt.Errorf("decoding body: %w", err))
	}
	return nil
}

// writeResult answers with the dispatch result. Delivered is 200, skipped
// is 202 and failures use the status of their error code.
func writeResult(w http.ResponseWriter, result core.Result) {
	status := http.StatusOK
	switch {
	case result.Skipped():
		status = http.StatusAccepted
	case result.Failed():
		status = http.StatusBadGateway
		if result.Err != nil {
			status = response.StatusFor(result.Err)
		}
	}
	response.JSON(w, status, result)
}
