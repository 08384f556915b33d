// internal/api/handler/api/archive.go
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/newthinker/pushrelay/internal/api/response"
	"github.com/newthinker/pushrelay/internal/core"
	"github.com/newthinker/pushrelay/internal/storage/archive"
)

// ArchiveHandler browses archived delivery records by day.
type ArchiveHandler struct {
	storage archive.Storage
}

// NewArchiveHandler creates a new archive handler.
func NewArchiveHandler(storage archive.Storage) *ArchiveHandler {
	return &ArchiveHandler{storage: storage}
}

// ListDay handles GET /api/v1/archive/{date}.
func (h *ArchiveHandler) ListDay(w http.ResponseWriter, r *http.Request) {
	day, err := parseDay(r.PathValue("date"))
	if err != nil {
		response.Fail(w, err)
		return
	}

	ids, err := archive.ListDay(r.Context(), h.storage, day)
	if err != nil {
		response.Fail(w, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"date": day.Format(time.DateOnly),
		"ids":  ids,
	})
}

// Get handles GET /api/v1/archive/{date}/{id}.
func (h *ArchiveHandler) Get(w http.ResponseWriter, r *http.Request) {
	day, err := parseDay(r.PathValue("date"))
	if err != nil {
		response.Fail(w, err)
		return
	}

	result, err := archive.LoadResult(r.Context(), h.storage, day, r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}

	response.JSON(w, http.StatusOK, result)
}

func parseDay(s string) (time.Time, error) {
	day, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, core.WrapError(core.ErrBadRequest, fmt.Errorf("date must be YYYY-MM-DD, got %q", s))
	}
	return day, nil
}
