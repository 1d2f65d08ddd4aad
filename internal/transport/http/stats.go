package http

import (
	"encoding/json"
	"net/http"
)

func serveEventStatistics(w http.ResponseWriter, r *http.Request, svc BookingService, eventID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		return
	}

	stats, err := svc.Statistics(r.Context(), eventID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}
