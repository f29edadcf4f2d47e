package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/qcom/phoneverify/internal/service"
)

type ErrorResponse struct {
	ErrorMessage string `json:"error_message"`
}

func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, ErrorResponse{ErrorMessage: message})
}

// respondWithBody relays an upstream body untouched.
func respondWithBody(w http.ResponseWriter, status int, contentType string, body []byte) {
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	w.Write(body)
}

func missingParameter(w http.ResponseWriter, name string) {
	respondWithError(w, http.StatusBadRequest, name+" parameter is required")
}

// MapError translates a service error into the status and body returned to
// the client. Upstream rejections are passed through verbatim; nothing that
// reaches the client carries credentials or tokens.
func MapError(err error) (int, []byte) {
	var (
		authErr      *service.AuthError
		apiErr       *service.APIError
		keyErr       *service.KeyLookupError
		signatureErr *service.SignatureError
	)

	switch {
	case errors.As(err, &authErr):
		if authErr.Status != 0 {
			return authErr.Status, authErr.Body
		}
		return http.StatusInternalServerError, errorBody("unable to authenticate with the verification platform")
	case errors.As(err, &apiErr):
		if apiErr.Status != 0 {
			return apiErr.Status, apiErr.Body
		}
		return http.StatusInternalServerError, errorBody("verification platform unavailable")
	case errors.As(err, &keyErr), errors.As(err, &signatureErr):
		return http.StatusBadRequest, errorBody("callback signature could not be verified")
	}
	return http.StatusInternalServerError, errorBody("internal error")
}

func errorBody(message string) []byte {
	b, _ := json.Marshal(ErrorResponse{ErrorMessage: message})
	return b
}

func respondWithServiceError(w http.ResponseWriter, err error) {
	status, body := MapError(err)
	respondWithBody(w, status, "application/json", body)
}
