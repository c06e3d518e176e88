package handlers

import "net/http"

// HealthCheck is the liveness endpoint used by the load balancer. It
// reports nothing about downstream dependencies; a failing database or
// Temporal connection must not take the process out of rotation.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "highlights-api",
	})
}
