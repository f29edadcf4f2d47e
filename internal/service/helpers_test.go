package service

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/qcom/phoneverify/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.DebugLevel)
	return logger
}

var testCredential = models.Credential{ClientID: "client123", ClientSecret: "secret456"}

// fakePlatform is a minimal stand-in for the verification platform's token
// endpoint plus whatever resource handlers a test registers.
type fakePlatform struct {
	t   *testing.T
	srv *httptest.Server
	mux *http.ServeMux

	tokenCalls atomic.Int64

	mu         sync.Mutex
	scopes     []string
	tokenReply func(w http.ResponseWriter, r *http.Request)
}

func newFakePlatform(t *testing.T) *fakePlatform {
	t.Helper()
	p := &fakePlatform{t: t, mux: http.NewServeMux()}
	p.mux.HandleFunc("/oauth2/v1/token", p.handleToken)
	p.srv = httptest.NewServer(p.mux)
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakePlatform) URL() string { return p.srv.URL }

func (p *fakePlatform) handleToken(w http.ResponseWriter, r *http.Request) {
	n := p.tokenCalls.Add(1)

	assert.Equal(p.t, http.MethodPost, r.Method)
	assert.Equal(p.t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
	id, secret, ok := r.BasicAuth()
	if !assert.True(p.t, ok, "basic auth required") || !assert.NoError(p.t, r.ParseForm()) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	p.scopes = append(p.scopes, r.PostForm.Get("scope"))
	reply := p.tokenReply
	p.mu.Unlock()

	if reply != nil {
		reply(w, r)
		return
	}

	if id != testCredential.ClientID || secret != testCredential.ClientSecret {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
		return
	}
	if r.PostForm.Get("grant_type") != "client_credentials" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": "token-" + strings.ReplaceAll(r.PostForm.Get("scope"), " ", "+") + "-" + itoa(n),
		"token_type":   "bearer",
		"expires_in":   3600,
		"scope":        r.PostForm.Get("scope"),
	})
}

func (p *fakePlatform) requestedScopes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.scopes...)
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
