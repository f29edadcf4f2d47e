package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/qcom/phoneverify/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// KeyResolver resolves platform signing keys by key id from the published
// JWKS document. Keys are cached for the life of the process; an unknown
// key id triggers one re-fetch, rate limited, to pick up rotated keys.
type KeyResolver struct {
	jwksURL    string
	httpClient *http.Client
	logger     *logrus.Logger

	mu     sync.RWMutex
	keys   map[string]*models.SigningKey
	loaded bool

	limiter *rate.Limiter
	group   singleflight.Group
}

func NewKeyResolver(jwksURL string, httpClient *http.Client, minRefreshInterval time.Duration, logger *logrus.Logger) *KeyResolver {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	limit := rate.Inf
	if minRefreshInterval > 0 {
		limit = rate.Every(minRefreshInterval)
	}
	return &KeyResolver{
		jwksURL:    jwksURL,
		httpClient: httpClient,
		logger:     logger,
		keys:       make(map[string]*models.SigningKey),
		limiter:    rate.NewLimiter(limit, 1),
	}
}

// GetPublicKey returns the key published under keyID.
func (r *KeyResolver) GetPublicKey(ctx context.Context, keyID string) (*models.SigningKey, error) {
	if keyID == "" {
		return nil, &KeyLookupError{KeyID: keyID, Err: ErrUnknownKeyID}
	}
	if key, ok := r.lookup(keyID); ok {
		return key, nil
	}

	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()

	if loaded && !r.limiter.Allow() {
		r.logger.WithField("kid", keyID).Debug("Key id unknown and refresh is rate limited")
		return nil, &KeyLookupError{KeyID: keyID, Err: ErrUnknownKeyID}
	}

	if err := r.refresh(ctx); err != nil {
		return nil, &KeyLookupError{KeyID: keyID, Err: err}
	}

	if key, ok := r.lookup(keyID); ok {
		return key, nil
	}
	return nil, &KeyLookupError{KeyID: keyID, Err: ErrUnknownKeyID}
}

func (r *KeyResolver) lookup(keyID string) (*models.SigningKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.keys[keyID]
	return key, ok
}

func (r *KeyResolver) refresh(ctx context.Context) error {
	// Joined callers must not fail because the caller that started the
	// fetch went away.
	shared := context.WithoutCancel(ctx)
	ch := r.group.DoChan("jwks", func() (any, error) {
		keys, err := r.fetch(shared)
		if err != nil {
			r.logger.WithError(err).WithField("url", r.jwksURL).Warn("Failed to fetch key set")
			return nil, err
		}

		r.mu.Lock()
		r.keys = keys
		r.loaded = true
		r.mu.Unlock()

		r.logger.WithField("keys", len(keys)).Debug("Key set refreshed")
		return nil, nil
	})

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrKeySetUnreachable, ctx.Err())
	case res := <-ch:
		return res.Err
	}
}

func (r *KeyResolver) fetch(ctx context.Context) (map[string]*models.SigningKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeySetUnreachable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeySetUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrKeySetUnreachable, resp.StatusCode)
	}

	body, err := readBody(resp.Body)
	if errors.Is(err, errResponseTooLarge) {
		return nil, fmt.Errorf("%w: %v", ErrKeySetMalformed, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeySetUnreachable, err)
	}

	return parseKeySet(body, r.logger)
}

// parseKeySet admits only asymmetric public signing keys. Entries that fail
// to parse are skipped so one unsupported key does not hide the rest.
func parseKeySet(body []byte, logger *logrus.Logger) (map[string]*models.SigningKey, error) {
	var doc struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeySetMalformed, err)
	}
	if doc.Keys == nil {
		return nil, fmt.Errorf("%w: no keys member", ErrKeySetMalformed)
	}

	keys := make(map[string]*models.SigningKey, len(doc.Keys))
	for _, raw := range doc.Keys {
		var jwk jose.JSONWebKey
		if err := jwk.UnmarshalJSON(raw); err != nil {
			logger.WithError(err).Debug("Skipping unparseable JWK")
			continue
		}
		if jwk.KeyID == "" || (jwk.Use != "" && jwk.Use != "sig") || !jwk.Valid() {
			continue
		}

		switch jwk.Key.(type) {
		case *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey:
		default:
			// private or symmetric material never belongs in a public key set
			continue
		}

		keys[jwk.KeyID] = &models.SigningKey{
			KeyID:     jwk.KeyID,
			Algorithm: jwk.Algorithm,
			PublicKey: jwk.Key,
		}
	}

	return keys, nil
}
