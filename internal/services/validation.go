package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"contract-relay/internal/contract"
	"contract-relay/internal/models"
	"contract-relay/internal/repository"
	"contract-relay/internal/session"
)

const (
	msgSessionID        = "Valid sessionId is required"
	msgAPIResponse      = "Valid API response is required"
	msgExpectedContract = "Valid expected contract schema is required"
	msgAPIEndpoint      = "Valid API endpoint is required"
	msgHTTPMethod       = "Valid HTTP method is required"

	// MsgValidationFailed is the error reported for any model failure.
	MsgValidationFailed = "Failed to validate contract"
)

type ValidationStore interface {
	Create(ctx context.Context, v *models.Validation) error
	MarkRunning(ctx context.Context, id uuid.UUID) error
	Complete(ctx context.Context, id uuid.UUID, result string) error
	Fail(ctx context.Context, id uuid.UUID, errMsg string) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Validation, error)
	ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]*models.Validation, int, error)
}

type HistoryStore interface {
	Append(ctx context.Context, sessionID string, msgs ...models.ChatMessage) error
	Load(ctx context.Context, sessionID string) ([]models.ChatMessage, error)
	Clear(ctx context.Context, sessionID string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, sessionID string, msg models.WSMessage) error
}

type JobQueue interface {
	Push(ctx context.Context, job *models.ValidationJob) error
}

// ValidationDeps wires the service. Only Provider is required; a nil store
// disables the feature built on it.
type ValidationDeps struct {
	Provider LLMProvider
	Store    ValidationStore
	History  HistoryStore
	Events   EventPublisher
	Queue    JobQueue
	Logger   *zap.Logger
}

type ValidationOptions struct {
	Timeout           time.Duration
	SessionTTL        time.Duration
	SessionMaxEntries int
}

type ValidationService struct {
	provider LLMProvider
	sessions *session.Store[ChatHandle]
	store    ValidationStore
	history  HistoryStore
	events   EventPublisher
	queue    JobQueue
	timeout  time.Duration
	logger   *zap.Logger
}

func NewValidationService(deps ValidationDeps, opts ValidationOptions) *ValidationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &ValidationService{
		provider: deps.Provider,
		store:    deps.Store,
		history:  deps.History,
		events:   deps.Events,
		queue:    deps.Queue,
		timeout:  opts.Timeout,
		logger:   logger.Named("validation"),
	}
	s.sessions = session.New(s.openChat, session.Options{
		TTL:        opts.SessionTTL,
		MaxEntries: opts.SessionMaxEntries,
		OnEvict: func(key string) {
			s.logger.Debug("chat session evicted", zap.String("session_id", key))
		},
	})
	return s
}

// StartJanitor sweeps idle chat sessions every interval until Close.
func (s *ValidationService) StartJanitor(interval time.Duration) {
	s.sessions.StartJanitor(interval)
}

func (s *ValidationService) Close() {
	s.sessions.Close()
}

// ActiveSessions reports how many chat handles are cached.
func (s *ValidationService) ActiveSessions() int {
	return s.sessions.Len()
}

func (s *ValidationService) AsyncEnabled() bool {
	return s.queue != nil
}

// openChat builds the handle for a session, replaying any stored turns so an
// evicted conversation picks up where it stopped.
func (s *ValidationService) openChat(ctx context.Context, sessionID string) (ChatHandle, error) {
	var turns []models.ChatMessage
	if s.history != nil {
		loaded, err := s.history.Load(ctx, sessionID)
		if err != nil {
			s.logger.Warn("failed to load session history", zap.String("session_id", sessionID), zap.Error(err))
		} else {
			turns = loaded
		}
	}
	return s.provider.NewChat(ctx, turns)
}

// CheckRequest applies the presence and type checks in field order and
// returns the first failure.
func (s *ValidationService) CheckRequest(req *models.ValidateContractRequest) (*models.ValidationInput, error) {
	sessionID, ok := nonEmptyString(req.SessionID)
	if !ok {
		return nil, &ValidationError{Field: "sessionId", Message: msgSessionID}
	}
	if k := jsonKind(req.APIResponse); k != '{' && k != '[' {
		return nil, &ValidationError{Field: "apiResponse", Message: msgAPIResponse}
	}
	if k := jsonKind(req.ExpectedContract); k != '{' && k != '[' {
		return nil, &ValidationError{Field: "expectedContract", Message: msgExpectedContract}
	}
	endpoint, ok := nonEmptyString(req.APIEndpoint)
	if !ok {
		return nil, &ValidationError{Field: "apiEndpoint", Message: msgAPIEndpoint}
	}
	method, ok := nonEmptyString(req.HTTPMethod)
	if !ok {
		return nil, &ValidationError{Field: "httpMethod", Message: msgHTTPMethod}
	}

	in := &models.ValidationInput{
		SessionID:        sessionID,
		APIResponse:      req.APIResponse,
		ExpectedContract: req.ExpectedContract,
		APIEndpoint:      endpoint,
		HTTPMethod:       method,
	}
	if jsonKind(req.RequestBody) != 0 {
		in.RequestBody = req.RequestBody
	}
	return in, nil
}

// Validate relays one request to the session's conversation and waits for the
// model's verdict.
func (s *ValidationService) Validate(ctx context.Context, in *models.ValidationInput) (*models.Validation, error) {
	rec := s.newRecord(in, models.ValidationRunning)
	if s.store != nil {
		if err := s.store.Create(ctx, rec); err != nil {
			s.logger.Warn("failed to record validation", zap.Stringer("validation_id", rec.ID), zap.Error(err))
		} else {
			rec.Stored = true
		}
	}
	return rec, s.execute(ctx, rec, in)
}

// Enqueue records a queued validation for the worker pool.
func (s *ValidationService) Enqueue(ctx context.Context, in *models.ValidationInput) (*models.Validation, error) {
	if s.queue == nil {
		return nil, &UnavailableError{Message: "Asynchronous validation is not enabled"}
	}

	rec := s.newRecord(in, models.ValidationQueued)
	if s.store != nil {
		if err := s.store.Create(ctx, rec); err != nil {
			return nil, err
		}
		rec.Stored = true
	}

	job := &models.ValidationJob{ValidationID: rec.ID, Input: *in, EnqueuedAt: time.Now()}
	if err := s.queue.Push(ctx, job); err != nil {
		if s.store != nil {
			if ferr := s.store.Fail(ctx, rec.ID, "failed to enqueue validation"); ferr != nil {
				s.logger.Warn("failed to record enqueue failure", zap.Stringer("validation_id", rec.ID), zap.Error(ferr))
			}
		}
		return nil, err
	}

	s.publish(ctx, rec, models.EventValidationQueued, "", "")
	return rec, nil
}

// RunJob executes a queued validation. The model failure, if any, is recorded
// on the validation rather than returned.
func (s *ValidationService) RunJob(ctx context.Context, job *models.ValidationJob) error {
	in := job.Input
	rec := s.newRecord(&in, models.ValidationRunning)
	rec.ID = job.ValidationID

	if s.store != nil {
		if err := s.store.MarkRunning(ctx, rec.ID); err != nil {
			s.logger.Warn("failed to mark validation running", zap.Stringer("validation_id", rec.ID), zap.Error(err))
		}
	}

	var upstream *UpstreamError
	if err := s.execute(ctx, rec, &in); err != nil && !errors.As(err, &upstream) {
		return err
	}
	return nil
}

func (s *ValidationService) execute(ctx context.Context, rec *models.Validation, in *models.ValidationInput) error {
	// Bookkeeping outlives a caller that hangs up mid-call.
	bg := context.WithoutCancel(ctx)
	s.publish(bg, rec, models.EventValidationStarted, "", "")

	result, err := s.send(ctx, in)
	if err != nil {
		s.logger.Error("contract validation failed",
			zap.String("session_id", in.SessionID),
			zap.Stringer("validation_id", rec.ID),
			zap.Error(err),
		)
		msg := err.Error()
		rec.Status = models.ValidationFailed
		rec.ErrorMessage = &msg
		if s.store != nil {
			if ferr := s.store.Fail(bg, rec.ID, msg); ferr != nil {
				s.logger.Warn("failed to record validation failure", zap.Error(ferr))
			}
		}
		s.publish(bg, rec, models.EventValidationFailed, "", msg)
		return &UpstreamError{Message: msg, Err: err}
	}

	now := time.Now()
	rec.Status = models.ValidationCompleted
	rec.Result = &result
	rec.CompletedAt = &now

	if s.history != nil {
		err := s.history.Append(bg, in.SessionID,
			models.ChatMessage{Role: models.RoleUser, Content: BuildValidationPrompt(*in)},
			models.ChatMessage{Role: models.RoleModel, Content: result},
		)
		if err != nil {
			s.logger.Warn("failed to append session history", zap.String("session_id", in.SessionID), zap.Error(err))
		}
	}
	if s.store != nil {
		if err := s.store.Complete(bg, rec.ID, result); err != nil {
			s.logger.Warn("failed to record validation result", zap.Error(err))
		}
	}
	s.publish(bg, rec, models.EventValidationCompleted, result, "")
	return nil
}

func (s *ValidationService) send(ctx context.Context, in *models.ValidationInput) (string, error) {
	handle, created, err := s.sessions.GetOrCreate(ctx, in.SessionID)
	if err != nil {
		return "", err
	}
	if created {
		s.logger.Info("chat session started", zap.String("session_id", in.SessionID))
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return handle.Send(ctx, BuildValidationPrompt(*in))
}

// Check runs the deterministic structural comparison without the model.
func (s *ValidationService) Check(req *models.CheckContractRequest) (*models.CheckContractResponse, error) {
	if jsonKind(req.APIResponse) == 0 {
		return nil, &ValidationError{Field: "apiResponse", Message: msgAPIResponse}
	}
	if k := jsonKind(req.ExpectedContract); k != '{' && k != '[' {
		return nil, &ValidationError{Field: "expectedContract", Message: msgExpectedContract}
	}

	c, err := contract.Parse(req.ExpectedContract)
	if err != nil {
		return nil, &ValidationError{Field: "expectedContract", Message: msgExpectedContract + ": " + err.Error()}
	}

	var value any
	if err := json.Unmarshal(req.APIResponse, &value); err != nil {
		return nil, &ValidationError{Field: "apiResponse", Message: msgAPIResponse}
	}

	d := contract.Check(c, value, contract.Options{Strict: req.Strict})
	return &models.CheckContractResponse{
		Pass:        d.Pass,
		Diff:        d,
		Report:      contract.Format(d),
		Fingerprint: contract.Fingerprint(c),
	}, nil
}

func (s *ValidationService) GetValidation(ctx context.Context, id uuid.UUID) (*models.Validation, error) {
	if s.store == nil {
		return nil, &UnavailableError{Message: "Validation history is not enabled"}
	}
	v, err := s.store.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Message: "Validation not found"}
	}
	return v, err
}

func (s *ValidationService) ListValidations(ctx context.Context, sessionID string, limit, offset int) (*models.ValidationList, error) {
	if s.store == nil {
		return nil, &UnavailableError{Message: "Validation history is not enabled"}
	}
	if sessionID == "" {
		return nil, &ValidationError{Field: "sessionId", Message: msgSessionID}
	}
	validations, total, err := s.store.ListBySession(ctx, sessionID, limit, offset)
	if err != nil {
		return nil, err
	}
	return &models.ValidationList{Validations: validations, Total: total}, nil
}

// EndSession drops the session's conversation everywhere it is kept.
func (s *ValidationService) EndSession(ctx context.Context, sessionID string) error {
	s.sessions.Evict(sessionID)
	if s.history != nil {
		return s.history.Clear(ctx, sessionID)
	}
	return nil
}

func (s *ValidationService) newRecord(in *models.ValidationInput, status string) *models.Validation {
	rec := &models.Validation{
		ID:               uuid.New(),
		SessionID:        in.SessionID,
		APIEndpoint:      in.APIEndpoint,
		HTTPMethod:       in.HTTPMethod,
		RequestBody:      in.RequestBody,
		APIResponse:      in.APIResponse,
		ExpectedContract: in.ExpectedContract,
		Provider:         s.provider.Name(),
		Status:           status,
		CreatedAt:        time.Now(),
	}
	// Contracts the checker cannot read are still relayed, just not fingerprinted.
	if c, err := contract.Parse(in.ExpectedContract); err == nil {
		fp := contract.Fingerprint(c)
		rec.ContractFingerprint = &fp
	}
	return rec
}

func (s *ValidationService) publish(ctx context.Context, rec *models.Validation, eventType, result, errMsg string) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(ctx, rec.SessionID, models.WSMessage{
		Type: eventType,
		Payload: models.ValidationEvent{
			ValidationID: rec.ID,
			SessionID:    rec.SessionID,
			Status:       rec.Status,
			Result:       result,
			Error:        errMsg,
		},
	})
	if err != nil {
		s.logger.Warn("failed to publish event", zap.String("type", eventType), zap.Error(err))
	}
}

// jsonKind returns the first byte of a JSON value, or 0 when the value is
// absent or null.
func jsonKind(raw json.RawMessage) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return 0
	}
	return trimmed[0]
}

func nonEmptyString(raw json.RawMessage) (string, bool) {
	if jsonKind(raw) != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return "", false
	}
	return s, true
}
