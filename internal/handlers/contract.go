package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"contract-relay/internal/middleware"
	"contract-relay/internal/models"
)

type contractValidator interface {
	CheckRequest(req *models.ValidateContractRequest) (*models.ValidationInput, error)
	Validate(ctx context.Context, in *models.ValidationInput) (*models.Validation, error)
	Enqueue(ctx context.Context, in *models.ValidationInput) (*models.Validation, error)
	Check(req *models.CheckContractRequest) (*models.CheckContractResponse, error)
	GetValidation(ctx context.Context, id uuid.UUID) (*models.Validation, error)
	ListValidations(ctx context.Context, sessionID string, limit, offset int) (*models.ValidationList, error)
}

type ContractHandler struct {
	validator contractValidator
	logger    *zap.Logger
}

func NewContractHandler(validator contractValidator, logger *zap.Logger) *ContractHandler {
	return &ContractHandler{validator: validator, logger: logger.Named("contract")}
}

// Validate relays the observed response and the expected contract to the
// session's model conversation and returns the verdict text.
func (h *ContractHandler) Validate(w http.ResponseWriter, r *http.Request) {
	req, err := decodeValidateRequest(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("Invalid request body", r))
		return
	}

	in, err := h.validator.CheckRequest(req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if r.URL.Query().Get("async") == "true" {
		rec, err := h.validator.Enqueue(r.Context(), in)
		if err != nil {
			h.logger.Warn("enqueue failed", zap.String("session_id", in.SessionID), zap.Error(err))
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, models.QueuedValidationResponse{
			ValidationID: rec.ID,
			Status:       rec.Status,
		})
		return
	}

	rec, err := h.validator.Validate(r.Context(), in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	var resp models.ValidateContractResponse
	if rec.Stored {
		resp.ValidationID = &rec.ID
	}
	if rec.Result != nil {
		resp.ValidationResult = *rec.Result
	}
	writeJSON(w, http.StatusOK, resp)
}

// Check compares the response against the contract locally.
func (h *ContractHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req models.CheckContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("Invalid request body", r))
		return
	}

	resp, err := h.validator.Check(&req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListValidations pages through the history of the token's session.
func (h *ContractHandler) ListValidations(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())
	if q := r.URL.Query().Get("sessionId"); q != "" && q != sessionID {
		writeJSON(w, http.StatusForbidden, errorResp("Session token does not match sessionId", r))
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	list, err := h.validator.ListValidations(r.Context(), sessionID, limit, offset)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ContractHandler) GetValidation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("Invalid validation ID", r))
		return
	}

	v, err := h.validator.GetValidation(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	// Other sessions' records are reported as absent.
	if v.SessionID != middleware.GetSessionID(r.Context()) {
		writeJSON(w, http.StatusNotFound, errorResp("Validation not found", r))
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// decodeValidateRequest reads the relay payload. An empty body or a JSON array
// decodes to an empty request so the field checks name what is missing.
func decodeValidateRequest(body io.Reader) (*models.ValidateContractRequest, error) {
	var req models.ValidateContractRequest
	var raw json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return &req, nil
		}
		return nil, err
	}
	switch bytes.TrimSpace(raw)[0] {
	case '[':
		return &req, nil
	case '{':
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, err
		}
		return &req, nil
	default:
		return nil, errors.New("request body must be a JSON object")
	}
}
