package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"contract-relay/internal/models"
	"contract-relay/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error:     message,
		RequestID: chimw.GetReqID(r.Context()),
	}
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation  *services.ValidationError
		upstream    *services.UpstreamError
		notFound    *services.NotFoundError
		unavailable *services.UnavailableError
	)
	switch {
	case errors.As(err, &validation):
		resp := errorResp(validation.Message, r)
		resp.Field = validation.Field
		writeJSON(w, http.StatusBadRequest, resp)
	case errors.As(err, &upstream):
		resp := errorResp(services.MsgValidationFailed, r)
		resp.Message = upstream.Message
		if resp.Message == "" {
			resp.Message = "An unexpected error occurred"
		}
		writeJSON(w, http.StatusInternalServerError, resp)
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorResp(notFound.Message, r))
	case errors.As(err, &unavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResp(unavailable.Message, r))
	default:
		writeJSON(w, http.StatusInternalServerError, errorResp("An unexpected error occurred", r))
	}
}
