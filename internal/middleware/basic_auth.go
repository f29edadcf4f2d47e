package middleware

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// BasicAuthMiddleware gates routes behind a single username and password.
// The password is only held as a bcrypt hash.
type BasicAuthMiddleware struct {
	username     string
	passwordHash []byte
	exempt       map[string]bool
	logger       *logrus.Logger
}

// NewBasicAuthMiddleware builds the gate. Requests whose path is listed in
// exemptPaths pass through unchecked.
func NewBasicAuthMiddleware(username, password string, exemptPaths []string, logger *logrus.Logger) (*BasicAuthMiddleware, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("basic auth requires both username and password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash basic auth password: %w", err)
	}

	exempt := make(map[string]bool, len(exemptPaths))
	for _, p := range exemptPaths {
		exempt[p] = true
	}

	return &BasicAuthMiddleware{
		username:     username,
		passwordHash: hash,
		exempt:       exempt,
		logger:       logger,
	}, nil
}

func (m *BasicAuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// preflight requests never carry credentials
		if m.exempt[r.URL.Path] || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		username, password, ok := r.BasicAuth()
		if !ok {
			m.respondUnauthorized(w, "Missing authorization header")
			return
		}

		userMatch := subtle.ConstantTimeCompare([]byte(username), []byte(m.username)) == 1
		passErr := bcrypt.CompareHashAndPassword(m.passwordHash, []byte(password))
		if !userMatch || passErr != nil {
			m.logger.WithField("path", r.URL.Path).Debug("Basic auth rejected")
			m.respondUnauthorized(w, "Invalid credentials")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *BasicAuthMiddleware) respondUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="phoneverify", charset="UTF-8"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error_message":"` + message + `"}`))
}
