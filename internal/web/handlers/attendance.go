package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/facemark/facemark/internal/database"
)

// defaultAttendanceLimit bounds an unqualified attendance listing.
const defaultAttendanceLimit = 100

// AttendanceHandler serves the attendance log.
type AttendanceHandler struct {
	attendance database.AttendanceReader
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(attendance database.AttendanceReader) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

// List handles GET /api/v1/attendance?since=&limit=. The since parameter is
// RFC 3339; it defaults to the start of the current day on the server clock.
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	since := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		since = parsed
	}

	limit := defaultAttendanceLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records, err := h.attendance.List(r.Context(), since, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list attendance")
		return
	}
	if records == nil {
		records = []database.AttendanceRecord{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
		"since":   since,
	})
}
