package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// maxResponseBytes caps how much of an upstream body is buffered.
const maxResponseBytes = 1 << 20

var errResponseTooLarge = fmt.Errorf("response exceeds %d bytes", maxResponseBytes)

// readBody buffers r and fails instead of truncating past maxResponseBytes.
func readBody(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxResponseBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxResponseBytes {
		return nil, errResponseTooLarge
	}
	return body, nil
}

// AcceptFunc decides whether an upstream status counts as success.
type AcceptFunc func(status int) bool

// Accept2xx is the default success rule.
func Accept2xx(status int) bool {
	return status >= 200 && status <= 299
}

// AcceptThrough404 is the device-coverage rule: 404 means "no coverage
// data", which is a result rather than an error.
func AcceptThrough404(status int) bool {
	return status >= 200 && status <= 404
}

// Request describes one authenticated call to a platform resource.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Body is JSON-encoded when non-nil.
	Body   any
	Scopes []string
	Accept AcceptFunc
}

// APIResponse is a successful upstream response, relayed as-is.
type APIResponse struct {
	Status      int
	ContentType string
	Body        []byte
}

// Decode unmarshals the response body into v.
func (r *APIResponse) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode platform response: %w", err)
	}
	return nil
}

// APIClient issues bearer-authenticated calls against the platform.
type APIClient struct {
	baseURL    string
	tokens     TokenProvider
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewAPIClient(baseURL string, tokens TokenProvider, httpClient *http.Client, logger *logrus.Logger) *APIClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Execute obtains a token for req.Scopes and performs the call. Any
// response rejected by req.Accept becomes an *APIError carrying the upstream
// status and body; token failures come back as *AuthError.
func (c *APIClient) Execute(ctx context.Context, req Request) (*APIResponse, error) {
	accept := req.Accept
	if accept == nil {
		accept = Accept2xx
	}

	token, err := c.tokens.Token(ctx, req.Scopes)
	if err != nil {
		return nil, err
	}

	u := c.baseURL + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build platform request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token.Value)
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	log := c.logger.WithFields(logrus.Fields{
		"method": req.Method,
		"url":    u,
	})
	log.WithField("body", req.Body).Debug("Calling platform")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.WithError(err).Error("Platform request failed")
		return nil, &APIError{Err: fmt.Errorf("%w: %v", ErrConnectivity, err)}
	}
	defer resp.Body.Close()

	respBody, err := readBody(resp.Body)
	if errors.Is(err, errResponseTooLarge) {
		log.WithField("status", resp.StatusCode).Error("Platform response too large")
		return nil, &APIError{Err: err}
	}
	if err != nil {
		log.WithError(err).Error("Failed to read platform response")
		return nil, &APIError{Err: fmt.Errorf("%w: reading response: %v", ErrConnectivity, err)}
	}

	log = log.WithField("status", resp.StatusCode)
	if !accept(resp.StatusCode) {
		log.Warn("Platform returned an error status")
		return nil, &APIError{Status: resp.StatusCode, Body: respBody}
	}
	log.WithField("response", string(respBody)).Debug("Platform responded")

	return &APIResponse{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        respBody,
	}, nil
}
