package handlers

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/qcom/phoneverify/internal/service"
	"github.com/sirupsen/logrus"
)

type Coverage interface {
	GetCountryCoverage(ctx context.Context, countryCode string) (*service.APIResponse, error)
	GetDeviceCoverage(ctx context.Context, ipAddress string) (*service.APIResponse, error)
}

var _ Coverage = (*service.PlatformService)(nil)

// CoverageHandlers relay coverage lookups and report the caller's address.
type CoverageHandlers struct {
	coverage   Coverage
	trustProxy bool
	logger     *logrus.Logger
}

func NewCoverageHandlers(coverage Coverage, trustProxy bool, logger *logrus.Logger) *CoverageHandlers {
	return &CoverageHandlers{
		coverage:   coverage,
		trustProxy: trustProxy,
		logger:     logger,
	}
}

type MyIPResponse struct {
	IPAddress string `json:"ip_address"`
}

func (h *CoverageHandlers) GetCountryCoverage(w http.ResponseWriter, r *http.Request) {
	countryCode := strings.TrimSpace(r.URL.Query().Get("country_code"))
	if countryCode == "" {
		missingParameter(w, "country_code")
		return
	}

	resp, err := h.coverage.GetCountryCoverage(r.Context(), countryCode)
	if err != nil {
		h.logger.WithError(err).WithField("country_code", countryCode).Error("Failed to get country coverage")
		respondWithServiceError(w, err)
		return
	}

	respondWithBody(w, resp.Status, resp.ContentType, resp.Body)
}

// GetDeviceCoverage looks up the address in id_address, or the caller's own
// address when absent. A 404 from the platform is relayed as a result.
func (h *CoverageHandlers) GetDeviceCoverage(w http.ResponseWriter, r *http.Request) {
	ip := strings.TrimSpace(r.URL.Query().Get("id_address"))
	if ip == "" {
		ip = clientIP(r, h.trustProxy)
	}
	if ip == "" {
		missingParameter(w, "id_address")
		return
	}

	resp, err := h.coverage.GetDeviceCoverage(r.Context(), ip)
	if err != nil {
		h.logger.WithError(err).WithField("ip", ip).Error("Failed to get device coverage")
		respondWithServiceError(w, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"ip":     ip,
		"status": resp.Status,
	}).Debug("Device coverage relayed")
	respondWithBody(w, resp.Status, resp.ContentType, resp.Body)
}

func (h *CoverageHandlers) MyIP(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, MyIPResponse{IPAddress: clientIP(r, h.trustProxy)})
}

// Traces accepts client-side diagnostic traces and writes them to the log.
func Traces(logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		logger.WithField("traces", string(body)).Info("Client traces received")
		w.WriteHeader(http.StatusOK)
	}
}

func Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
