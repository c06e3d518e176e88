package handlers

import (
	"encoding/json"
	"net/http"
)

type errorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Issues  []string `json:"issues,omitempty"`
}

type errorEnvelope struct {
	Success bool      `json:"success"`
	Status  string    `json:"status,omitempty"`
	Error   errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeValidationError is the 400 shape for malformed or incomplete
// request payloads.
func writeValidationError(w http.ResponseWriter, message string, issues ...string) {
	writeJSON(w, http.StatusBadRequest, errorEnvelope{
		Success: false,
		Error:   errorBody{Code: "validation_failed", Message: message, Issues: issues},
	})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{
		Success: false,
		Error:   errorBody{Code: code, Message: message},
	})
}

// writeUpstreamError is the 502 shape used when an external provisioning
// dependency fails. Status ERROR distinguishes it from caller mistakes.
func writeUpstreamError(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadGateway, errorEnvelope{
		Success: false,
		Status:  "ERROR",
		Error:   errorBody{Code: "upstream_failure", Message: message},
	})
}
