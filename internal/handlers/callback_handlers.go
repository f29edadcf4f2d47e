package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/qcom/phoneverify/internal/models"
	"github.com/qcom/phoneverify/internal/service"
	"github.com/sirupsen/logrus"
)

type Verifier interface {
	Verify(ctx context.Context, env *models.CallbackEnvelope) error
}

var _ Verifier = (*service.CallbackVerifier)(nil)

// CheckCompletionHandler receives the body of every verified callback.
type CheckCompletionHandler interface {
	CheckCompleted(ctx context.Context, payload []byte) error
}

// LogCompletionHandler records completed checks in the log and nothing else.
type LogCompletionHandler struct {
	logger *logrus.Logger
}

func NewLogCompletionHandler(logger *logrus.Logger) *LogCompletionHandler {
	return &LogCompletionHandler{logger: logger}
}

func (h *LogCompletionHandler) CheckCompleted(_ context.Context, payload []byte) error {
	var event struct {
		CheckID string `json:"check_id"`
		Status  string `json:"status"`
		Match   *bool  `json:"match"`
		Type    string `json:"type"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.WithError(err).Warn("Verified callback is not a check event")
		return nil
	}

	fields := logrus.Fields{
		"check_id": event.CheckID,
		"status":   event.Status,
		"type":     event.Type,
	}
	if event.Match != nil {
		fields["match"] = *event.Match
	}
	h.logger.WithFields(fields).Info("Check completed")
	return nil
}

type CallbackHandlers struct {
	verifier   Verifier
	completion CheckCompletionHandler
	logger     *logrus.Logger
}

func NewCallbackHandlers(verifier Verifier, completion CheckCompletionHandler, logger *logrus.Logger) *CallbackHandlers {
	return &CallbackHandlers{
		verifier:   verifier,
		completion: completion,
		logger:     logger,
	}
}

// Callback accepts a platform callback only once its signature verifies.
func (h *CallbackHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	env := models.NewCallbackEnvelope(r, body)
	if err := h.verifier.Verify(r.Context(), env); err != nil {
		// Rejections are expected traffic, not faults.
		h.logger.WithError(err).WithField("kid", env.Signature.KeyID).Warn("Callback rejected")
		respondWithServiceError(w, err)
		return
	}

	if err := h.completion.CheckCompleted(r.Context(), body); err != nil {
		h.logger.WithError(err).Error("Failed to process verified callback")
		respondWithError(w, http.StatusInternalServerError, "Failed to process callback")
		return
	}

	w.WriteHeader(http.StatusOK)
}
