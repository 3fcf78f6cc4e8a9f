package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"contract-relay/internal/models"
)

var ErrNotFound = errors.New("not found")

type ValidationRepo struct {
	pool *pgxpool.Pool
}

func NewValidationRepo(pool *pgxpool.Pool) *ValidationRepo {
	return &ValidationRepo{pool: pool}
}

const validationColumns = `id, session_id, api_endpoint, http_method, request_body, api_response,
	expected_contract, contract_fingerprint, provider, status, result, error_message,
	created_at, completed_at`

func (r *ValidationRepo) Create(ctx context.Context, v *models.Validation) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.Status == "" {
		v.Status = models.ValidationRunning
	}

	query := `INSERT INTO contract_validations
		(id, session_id, api_endpoint, http_method, request_body, api_response,
		 expected_contract, contract_fingerprint, provider, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		v.ID, v.SessionID, v.APIEndpoint, v.HTTPMethod, nullableJSON(v.RequestBody), []byte(v.APIResponse),
		[]byte(v.ExpectedContract), v.ContractFingerprint, v.Provider, v.Status,
	).Scan(&v.CreatedAt)
}

func (r *ValidationRepo) MarkRunning(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE contract_validations SET status = $1 WHERE id = $2",
		models.ValidationRunning, id,
	)
	return err
}

func (r *ValidationRepo) Complete(ctx context.Context, id uuid.UUID, result string) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE contract_validations SET status = $1, result = $2, completed_at = $3 WHERE id = $4",
		models.ValidationCompleted, result, time.Now(), id,
	)
	return err
}

func (r *ValidationRepo) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE contract_validations SET status = $1, error_message = $2, completed_at = $3 WHERE id = $4",
		models.ValidationFailed, errMsg, time.Now(), id,
	)
	return err
}

func (r *ValidationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Validation, error) {
	query := "SELECT " + validationColumns + " FROM contract_validations WHERE id = $1"

	v, err := scanValidation(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (r *ValidationRepo) ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]*models.Validation, int, error) {
	var total int
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM contract_validations WHERE session_id = $1", sessionID,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM contract_validations
		WHERE session_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, validationColumns)

	rows, err := r.pool.Query(ctx, query, sessionID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	validations := []*models.Validation{}
	for rows.Next() {
		v, err := scanValidation(rows)
		if err != nil {
			return nil, 0, err
		}
		validations = append(validations, v)
	}
	return validations, total, rows.Err()
}

func scanValidation(row pgx.Row) (*models.Validation, error) {
	v := &models.Validation{}
	var requestBody, apiResponse, contract []byte
	err := row.Scan(
		&v.ID, &v.SessionID, &v.APIEndpoint, &v.HTTPMethod, &requestBody, &apiResponse,
		&contract, &v.ContractFingerprint, &v.Provider, &v.Status, &v.Result, &v.ErrorMessage,
		&v.CreatedAt, &v.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	v.RequestBody = requestBody
	v.APIResponse = apiResponse
	v.ExpectedContract = contract
	return v, nil
}

func nullableJSON(raw []byte) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
