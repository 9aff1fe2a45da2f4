// Package generation turns an admitted prompt into text and keeps a history of it.
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aimerfeng/scribe/internal/llm"
	"github.com/aimerfeng/scribe/internal/logging"
	"github.com/aimerfeng/scribe/internal/models"
	"github.com/aimerfeng/scribe/internal/monitoring"
	"github.com/google/uuid"
)

// ErrGenerationFailed wraps every provider-side failure
var ErrGenerationFailed = errors.New("generation failed")

// Completer produces text for a prompt
type Completer interface {
	Complete(ctx context.Context, prompt string) (*llm.Completion, error)
	Provider() string
	Model() string
}

// HistoryRecorder stores prompt/response pairs
type HistoryRecorder interface {
	Create(ctx context.Context, userID uuid.UUID, prompt, response string) (*models.History, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.History, error)
}

// Request is one admitted generation call
type Request struct {
	RequestID string
	UserID    uuid.UUID
	Prompt    string
}

// Result is the generated text
type Result struct {
	GeneratedText string `json:"generatedText"`
}

// Service calls the provider and records history
type Service struct {
	completer    Completer
	history      HistoryRecorder
	historyLimit int
}

// NewService creates a generation service
func NewService(completer Completer, history HistoryRecorder, historyLimit int) *Service {
	return &Service{
		completer:    completer,
		history:      history,
		historyLimit: historyLimit,
	}
}

// Generate must only be called after the usage gate admitted the request.
// A consumed unit is not returned when the provider fails.
func (s *Service) Generate(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()
	completion, err := s.completer.Complete(ctx, req.Prompt)

	entry := &logging.GenerationLogEntry{
		RequestID:   req.RequestID,
		UserID:      req.UserID.String(),
		Provider:    s.completer.Provider(),
		Model:       s.completer.Model(),
		PromptChars: len(req.Prompt),
		Latency:     time.Since(start),
	}

	if err != nil {
		entry.Status = "error"
		entry.ErrorCode = llm.ErrorType(err)
		logging.LogGeneration(entry)
		monitoring.RecordGeneration("error")
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	entry.Status = "success"
	entry.OutputTokens = completion.CompletionTokens
	logging.LogGeneration(entry)
	monitoring.RecordGeneration("success")

	// the caller already has the text, so a lost history row is not fatal
	if _, err := s.history.Create(ctx, req.UserID, req.Prompt, completion.Text); err != nil {
		logging.LogError(err, req.RequestID, "generation", "save_history")
	}

	return &Result{GeneratedText: completion.Text}, nil
}

// History returns the user's past generations, newest first
func (s *Service) History(ctx context.Context, userID uuid.UUID) ([]models.History, error) {
	items, err := s.history.ListByUser(ctx, userID, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return items, nil
}
