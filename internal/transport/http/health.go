package http

import (
	stdhttp "net/http"
)

// HealthHandler reports basic liveness for the booking service.
func HealthHandler(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(stdhttp.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok","service":"ticketing"}`))
}
