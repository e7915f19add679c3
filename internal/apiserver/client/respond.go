package client

import (
	"encoding/json"
	"net/http"

	"clients-admin/internal/apiserver/validate"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}

func writeValidationErrors(w http.ResponseWriter, details validate.Errors) {
	writeJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error":   "Validation failed",
		"code":    "VALIDATION_ERROR",
		"details": details,
	})
}
