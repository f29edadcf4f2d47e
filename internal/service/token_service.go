package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/qcom/phoneverify/internal/models"
	"github.com/qcom/phoneverify/internal/repository"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

const tokenPath = "/oauth2/v1/token"

// Scopes for the platform's resource families. A token must carry the scope
// of the family it is used against.
const (
	ScopePhoneCheck      = "phone_check"
	ScopeSubscriberCheck = "subscriber_check"
	ScopeSimCheck        = "sim_check"
	ScopeCoverage        = "coverage"
)

// TokenProvider hands out bearer tokens for a scope set.
type TokenProvider interface {
	Token(ctx context.Context, scopes []string) (*models.AccessToken, error)
}

type TokenService struct {
	credential models.Credential
	tokenURL   string
	httpClient *http.Client
	cache      repository.TokenCache
	leeway     time.Duration
	group      singleflight.Group
	now        func() time.Time
	logger     *logrus.Logger
}

// NewTokenService builds a token provider for the active credential. cache
// may be nil, in which case every call performs a fresh exchange.
func NewTokenService(
	credential models.Credential,
	apiBaseURL string,
	httpClient *http.Client,
	cache repository.TokenCache,
	leeway time.Duration,
	logger *logrus.Logger,
) (*TokenService, error) {
	if credential.ClientID == "" || credential.ClientSecret == "" {
		return nil, fmt.Errorf("client id and secret are required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	tokenClient := *httpClient
	tokenClient.Transport = &basicAuthTransport{
		clientID:     credential.ClientID,
		clientSecret: credential.ClientSecret,
		base:         httpClient.Transport,
	}

	return &TokenService{
		credential: credential,
		tokenURL:   strings.TrimRight(apiBaseURL, "/") + tokenPath,
		httpClient: &tokenClient,
		cache:      cache,
		leeway:     leeway,
		now:        time.Now,
		logger:     logger,
	}, nil
}

// ObtainToken exchanges the credential for a new token carrying scopes.
// It never consults the cache.
func (s *TokenService) ObtainToken(ctx context.Context, scopes []string) (*models.AccessToken, error) {
	requested := strings.Fields(strings.Join(scopes, " "))

	cc := &clientcredentials.Config{
		ClientID:     s.credential.ClientID,
		ClientSecret: s.credential.ClientSecret,
		TokenURL:     s.tokenURL,
		Scopes:       requested,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	s.logger.WithFields(logrus.Fields{
		"url":    s.tokenURL,
		"scopes": requested,
	}).Debug("Requesting access token")

	obtainedAt := s.now()
	tok, err := cc.Token(context.WithValue(ctx, oauth2.HTTPClient, s.httpClient))
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			s.logger.WithField("status", re.Response.StatusCode).Warn("Token exchange rejected")
			return nil, &AuthError{Status: re.Response.StatusCode, Body: re.Body, Err: err}
		}
		s.logger.WithError(err).Error("Token exchange failed")
		return nil, &AuthError{Err: fmt.Errorf("%w: %v", ErrConnectivity, err)}
	}

	token := &models.AccessToken{
		Value:      tok.AccessToken,
		TokenType:  tok.TokenType,
		Scope:      requested,
		ObtainedAt: obtainedAt,
	}
	if granted, ok := tok.Extra("scope").(string); ok && granted != "" {
		token.Scope = strings.Fields(granted)
	}
	token.TTL = tokenTTL(tok, obtainedAt)

	s.logger.WithFields(logrus.Fields{
		"scopes": token.Scope,
		"ttl":    token.TTL.String(),
	}).Debug("Access token obtained")

	return token, nil
}

// Token returns a usable token for scopes, reusing a cached one while it is
// valid. Concurrent misses for the same scope set share one exchange.
func (s *TokenService) Token(ctx context.Context, scopes []string) (*models.AccessToken, error) {
	if s.cache == nil {
		return s.ObtainToken(ctx, scopes)
	}

	key := repository.ScopeKey(scopes)
	if tok := s.cached(ctx, key); tok != nil {
		return tok, nil
	}

	// The shared exchange is detached from the caller that started it, so
	// its cancellation does not fail the callers that joined.
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		if tok := s.cached(shared, key); tok != nil {
			return tok, nil
		}
		tok, err := s.ObtainToken(shared, scopes)
		if err != nil {
			return nil, err
		}
		if tok.Valid(s.now(), s.leeway) {
			if err := s.cache.Set(shared, key, tok); err != nil {
				s.logger.WithError(err).Warn("Failed to cache access token")
			}
		}
		return tok, nil
	})

	select {
	case <-ctx.Done():
		return nil, &AuthError{Err: fmt.Errorf("%w: %v", ErrConnectivity, ctx.Err())}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.AccessToken), nil
	}
}

// basicAuthTransport presents the client credentials as-is. oauth2 form
// escapes them for AuthStyleInHeader, which changes any id or secret that
// contains reserved characters.
type basicAuthTransport struct {
	clientID     string
	clientSecret string
	base         http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.clientID, t.clientSecret)
	return base.RoundTrip(req)
}

// tokenTTL prefers the raw expires_in value over oauth2's computed Expiry so
// the ttl is exactly what the platform granted.
func tokenTTL(tok *oauth2.Token, obtainedAt time.Time) time.Duration {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	if tok.Expiry.IsZero() {
		return 0
	}
	return tok.Expiry.Sub(obtainedAt).Round(time.Second)
}

func (s *TokenService) cached(ctx context.Context, key string) *models.AccessToken {
	tok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.WithError(err).Warn("Token cache lookup failed")
		return nil
	}
	if tok == nil {
		return nil
	}
	if !tok.Valid(s.now(), s.leeway) {
		if err := s.cache.Delete(ctx, key); err != nil {
			s.logger.WithError(err).Warn("Failed to evict expired token")
		}
		return nil
	}
	return tok
}
