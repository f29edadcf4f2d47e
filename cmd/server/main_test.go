package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/qcom/phoneverify/internal/config"
	"github.com/qcom/phoneverify/internal/handlers"
	"github.com/qcom/phoneverify/internal/middleware"
	"github.com/qcom/phoneverify/internal/models"
	"github.com/qcom/phoneverify/internal/repository"
	"github.com/qcom/phoneverify/internal/service"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPlatform struct{}

func (stubPlatform) CreatePhoneCheck(context.Context, string) (*models.PhoneCheck, error) {
	return &models.PhoneCheck{CheckID: "c-1", Links: models.CheckLinks{CheckURL: &models.Link{Href: "https://x/c-1"}}}, nil
}

func (stubPlatform) GetPhoneCheck(_ context.Context, id string) (*models.PhoneCheck, error) {
	return &models.PhoneCheck{CheckID: id}, nil
}

func (stubPlatform) CreateSubscriberCheck(context.Context, string) (*models.SubscriberCheck, error) {
	return &models.SubscriberCheck{CheckID: "s-1"}, nil
}

func (stubPlatform) GetSubscriberCheck(_ context.Context, id string) (*models.SubscriberCheck, error) {
	return &models.SubscriberCheck{CheckID: id}, nil
}

func (stubPlatform) CreateSimCheck(context.Context, string) (*models.SimCheck, error) {
	return &models.SimCheck{}, nil
}

func (stubPlatform) GetCountryCoverage(context.Context, string) (*service.APIResponse, error) {
	return &service.APIResponse{Status: 200, Body: []byte(`{}`)}, nil
}

func (stubPlatform) GetDeviceCoverage(context.Context, string) (*service.APIResponse, error) {
	return &service.APIResponse{Status: 404, Body: []byte(`{}`)}, nil
}

type rejectAll struct{}

func (rejectAll) Verify(context.Context, *models.CallbackEnvelope) error {
	return &service.SignatureError{Err: service.ErrMissingSignature}
}

func newTestRouter(t *testing.T, withAuth bool) http.Handler {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	var basicAuth *middleware.BasicAuthMiddleware
	if withAuth {
		var err error
		basicAuth, err = middleware.NewBasicAuthMiddleware("admin", "pw", append([]string{"/health"}, callbackPaths...), logger)
		require.NoError(t, err)
	}

	return setupRouter(
		handlers.NewCheckHandlers(stubPlatform{}, logger),
		handlers.NewCoverageHandlers(stubPlatform{}, true, logger),
		handlers.NewCallbackHandlers(rejectAll{}, handlers.NewLogCompletionHandler(logger), logger),
		basicAuth,
		[]string{"*"},
		logger,
	)
}

func TestRoutes(t *testing.T) {
	router := newTestRouter(t, false)

	tests := []struct {
		method, target, body string
		wantStatus           int
		wantBody             string
	}{
		{"GET", "/health", "", 200, "OK"},
		{"POST", "/check", `{"phone_number":"+447700900000"}`, 200, `{"check_id":"c-1","check_url":"https://x/c-1"}`},
		{"POST", "/phone-check", `{"phone_number":"+447700900000"}`, 200, `{"check_id":"c-1","check_url":"https://x/c-1"}`},
		{"GET", "/check_status", "", 400, `{"error_message":"check_id parameter is required"}`},
		{"GET", "/phone-check?check_id=c-9", "", 200, `{"match":null,"check_id":"c-9"}`},
		{"GET", "/subscriber-check/s-7", "", 200, `{"match":null,"check_id":"s-7","no_sim_change":null,"last_sim_change_at":null}`},
		{"POST", "/sim-check", `{"phone_number":"+447700900000"}`, 200, `{"no_sim_change":null,"last_sim_change_at":null}`},
		{"GET", "/country", "", 400, `{"error_message":"country_code parameter is required"}`},
		{"GET", "/device?id_address=192.0.2.1", "", 404, `{}`},
		{"POST", "/callback", `{}`, 400, ""},
		{"POST", "/phone-check/callback", `{}`, 400, ""},
		{"POST", "/traces", `{}`, 200, ""},
		{"DELETE", "/check", "", 405, ""},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if strings.HasPrefix(tt.wantBody, "{") {
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
			} else if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestRoutes_Preflight(t *testing.T) {
	router := newTestRouter(t, true)

	for _, target := range []string{"/check_status", "/phone-check", "/check", "/subscriber-check/s-1", "/country"} {
		t.Run(target, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, target, nil)
			req.Header.Set("Origin", "https://app.example.com")
			req.Header.Set("Access-Control-Request-Method", "GET")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestRoutes_BasicAuthExemptions(t *testing.T) {
	router := newTestRouter(t, true)

	serve := func(method, target string, auth bool) int {
		req := httptest.NewRequest(method, target, strings.NewReader(`{}`))
		if auth {
			req.SetBasicAuth("admin", "pw")
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, serve("GET", "/check_status?check_id=c-1", false))
	assert.Equal(t, http.StatusOK, serve("GET", "/check_status?check_id=c-1", true))
	assert.Equal(t, http.StatusOK, serve("GET", "/health", false))
	// the callback reaches signature verification without credentials
	assert.Equal(t, http.StatusBadRequest, serve("POST", "/callback", false))
	assert.Equal(t, http.StatusBadRequest, serve("POST", "/phone-check/callback", false))
}

func TestInitTokenCache(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cache, err := initTokenCache(&config.Config{TokenCache: config.TokenCacheConfig{Backend: "none"}}, logger)
	require.NoError(t, err)
	assert.Nil(t, cache)

	cache, err = initTokenCache(&config.Config{TokenCache: config.TokenCacheConfig{Backend: "memory"}}, logger)
	require.NoError(t, err)
	assert.IsType(t, &repository.MemoryTokenCache{}, cache)
}
