package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/qcom/phoneverify/internal/models"
	"github.com/sirupsen/logrus"
)

// KeyLookup resolves a signer's public key by key id.
type KeyLookup interface {
	GetPublicKey(ctx context.Context, keyID string) (*models.SigningKey, error)
}

// CallbackVerifier authenticates platform callbacks signed with HTTP
// Signatures. Every failure rejects the callback.
type CallbackVerifier struct {
	keys          KeyLookup
	clockSkew     time.Duration
	requireDigest bool
	now           func() time.Time
	logger        *logrus.Logger
}

func NewCallbackVerifier(keys KeyLookup, clockSkew time.Duration, requireDigest bool, logger *logrus.Logger) *CallbackVerifier {
	return &CallbackVerifier{
		keys:          keys,
		clockSkew:     clockSkew,
		requireDigest: requireDigest,
		now:           time.Now,
		logger:        logger,
	}
}

// Verify returns nil only when env carries a valid signature from a key in
// the platform's key set. Errors are *SignatureError or *KeyLookupError.
func (v *CallbackVerifier) Verify(ctx context.Context, env *models.CallbackEnvelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.WithField("panic", r).Error("Callback verification panicked")
			err = &SignatureError{Err: fmt.Errorf("%w: internal failure", ErrSignatureMismatch)}
		}
	}()

	params, err := ParseSignature(env.Header)
	if err != nil {
		return err
	}
	env.Signature = params

	signingString, err := SigningString(env)
	if err != nil {
		return err
	}

	if err := v.checkPolicy(env); err != nil {
		return err
	}

	key, err := v.keys.GetPublicKey(ctx, params.KeyID)
	if err != nil {
		return err
	}

	verify, err := resolveVerifier(params.Algorithm, key)
	if err != nil {
		return &SignatureError{Err: err}
	}
	if err := verify(signingString, params.Signature, key.PublicKey); err != nil {
		return &SignatureError{Err: fmt.Errorf("%w: %v", ErrSignatureMismatch, err)}
	}

	return nil
}

// Verified is Verify reduced to a boolean.
func (v *CallbackVerifier) Verified(ctx context.Context, env *models.CallbackEnvelope) bool {
	return v.Verify(ctx, env) == nil
}

// checkPolicy binds the body to the signature and bounds replay windows.
func (v *CallbackVerifier) checkPolicy(env *models.CallbackEnvelope) error {
	params := env.Signature
	now := v.now()

	if v.requireDigest && len(env.Body) > 0 {
		if !containsHeader(params.Headers, "digest") {
			return signatureErrorf(ErrDigestMismatch, "body present but digest not signed")
		}
	}
	if containsHeader(params.Headers, "digest") {
		if err := verifyDigest(env.Header.Get("Digest"), env.Body); err != nil {
			return err
		}
	}

	if v.clockSkew > 0 && containsHeader(params.Headers, "date") {
		date, err := http.ParseTime(env.Header.Get("Date"))
		if err != nil {
			return signatureErrorf(ErrMalformedSignature, "date header is not an HTTP date")
		}
		if skew := now.Sub(date); skew > v.clockSkew || skew < -v.clockSkew {
			return &SignatureError{Err: ErrClockSkew}
		}
	}

	if params.Created != nil && v.clockSkew > 0 {
		if time.Unix(*params.Created, 0).After(now.Add(v.clockSkew)) {
			return signatureErrorf(ErrClockSkew, "created is in the future")
		}
	}
	if params.Expires != nil && !time.Unix(*params.Expires, 0).After(now) {
		return signatureErrorf(ErrClockSkew, "signature expired")
	}

	return nil
}
