package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/qcom/phoneverify/internal/models"
	"github.com/qcom/phoneverify/internal/service"
	"github.com/sirupsen/logrus"
)

// Checks is the subset of platform operations the check routes call.
type Checks interface {
	CreatePhoneCheck(ctx context.Context, phoneNumber string) (*models.PhoneCheck, error)
	GetPhoneCheck(ctx context.Context, checkID string) (*models.PhoneCheck, error)
	CreateSubscriberCheck(ctx context.Context, phoneNumber string) (*models.SubscriberCheck, error)
	GetSubscriberCheck(ctx context.Context, checkID string) (*models.SubscriberCheck, error)
	CreateSimCheck(ctx context.Context, phoneNumber string) (*models.SimCheck, error)
}

var _ Checks = (*service.PlatformService)(nil)

type CheckHandlers struct {
	checks Checks
	logger *logrus.Logger
}

func NewCheckHandlers(checks Checks, logger *logrus.Logger) *CheckHandlers {
	return &CheckHandlers{
		checks: checks,
		logger: logger,
	}
}

type CreateCheckResponse struct {
	CheckID  string `json:"check_id"`
	CheckURL string `json:"check_url"`
}

type PhoneCheckStatusResponse struct {
	Match   *bool  `json:"match"`
	CheckID string `json:"check_id"`
}

type SubscriberCheckStatusResponse struct {
	Match           *bool   `json:"match"`
	CheckID         string  `json:"check_id"`
	NoSimChange     *bool   `json:"no_sim_change"`
	LastSimChangeAt *string `json:"last_sim_change_at"`
}

type SimCheckResponse struct {
	NoSimChange     *bool   `json:"no_sim_change"`
	LastSimChangeAt *string `json:"last_sim_change_at"`
}

func (h *CheckHandlers) CreatePhoneCheck(w http.ResponseWriter, r *http.Request) {
	phoneNumber, ok := h.phoneNumber(w, r)
	if !ok {
		return
	}

	check, err := h.checks.CreatePhoneCheck(r.Context(), phoneNumber)
	if err != nil {
		h.logger.WithError(err).Error("Failed to create phone check")
		respondWithServiceError(w, err)
		return
	}

	h.logger.WithField("check_id", check.CheckID).Info("Phone check created")
	respondWithJSON(w, http.StatusOK, CreateCheckResponse{
		CheckID:  check.CheckID,
		CheckURL: check.CheckURL(),
	})
}

func (h *CheckHandlers) GetPhoneCheckStatus(w http.ResponseWriter, r *http.Request) {
	checkID := strings.TrimSpace(r.URL.Query().Get("check_id"))
	if checkID == "" {
		missingParameter(w, "check_id")
		return
	}

	check, err := h.checks.GetPhoneCheck(r.Context(), checkID)
	if err != nil {
		h.logger.WithError(err).WithField("check_id", checkID).Error("Failed to get phone check")
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, PhoneCheckStatusResponse{
		Match:   check.Match,
		CheckID: check.CheckID,
	})
}

func (h *CheckHandlers) CreateSubscriberCheck(w http.ResponseWriter, r *http.Request) {
	phoneNumber, ok := h.phoneNumber(w, r)
	if !ok {
		return
	}

	check, err := h.checks.CreateSubscriberCheck(r.Context(), phoneNumber)
	if err != nil {
		h.logger.WithError(err).Error("Failed to create subscriber check")
		respondWithServiceError(w, err)
		return
	}

	h.logger.WithField("check_id", check.CheckID).Info("Subscriber check created")
	respondWithJSON(w, http.StatusOK, CreateCheckResponse{
		CheckID:  check.CheckID,
		CheckURL: check.CheckURL(),
	})
}

func (h *CheckHandlers) GetSubscriberCheckStatus(w http.ResponseWriter, r *http.Request) {
	checkID := strings.TrimSpace(mux.Vars(r)["check_id"])
	if checkID == "" {
		missingParameter(w, "check_id")
		return
	}

	check, err := h.checks.GetSubscriberCheck(r.Context(), checkID)
	if err != nil {
		h.logger.WithError(err).WithField("check_id", checkID).Error("Failed to get subscriber check")
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, SubscriberCheckStatusResponse{
		Match:           check.Match,
		CheckID:         check.CheckID,
		NoSimChange:     check.NoSimChange,
		LastSimChangeAt: check.LastSimChangeAt,
	})
}

func (h *CheckHandlers) CreateSimCheck(w http.ResponseWriter, r *http.Request) {
	phoneNumber, ok := h.phoneNumber(w, r)
	if !ok {
		return
	}

	check, err := h.checks.CreateSimCheck(r.Context(), phoneNumber)
	if err != nil {
		h.logger.WithError(err).Error("Failed to create SIM check")
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, SimCheckResponse{
		NoSimChange:     check.NoSimChange,
		LastSimChangeAt: check.LastSimChangeAt,
	})
}

// phoneNumber reads the phone_number body field, writing the 400 itself
// when it is missing or the body is malformed. The value is relayed as
// given; the platform owns number validation.
func (h *CheckHandlers) phoneNumber(w http.ResponseWriter, r *http.Request) (string, bool) {
	phoneNumber, err := bodyParam(r, "phone_number")
	if err != nil {
		h.logger.WithError(err).Debug("Unreadable request body")
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return "", false
	}
	if phoneNumber == "" {
		missingParameter(w, "phone_number")
		return "", false
	}
	return phoneNumber, true
}
