package http

import (
	"net/http"
	"strings"
)

// HandleEvents routes the per-event subresources: ticket type collections,
// booking collections and the statistics summary.
func HandleEvents(catalog CatalogService, bookings BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID, sub, ok := parseEventPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		switch sub {
		case "ticket-types":
			serveEventTicketTypes(w, r, catalog, eventID)
		case "bookings":
			serveEventBookings(w, r, bookings, eventID)
		case "statistics":
			serveEventStatistics(w, r, bookings, eventID)
		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
		}
	}
}

func parseEventPath(path string) (eventID, sub string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[0] != "events" || parts[1] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}
