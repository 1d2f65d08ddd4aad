package http

import "net/http"

// NotFoundHandler is the fallback for requests outside the booking,
// catalog and event routes.
func NotFoundHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "route not found")
	})
}
