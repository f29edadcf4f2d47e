package models

import (
	"crypto"
	"net/http"
)

// SignatureParams are the parameters of an HTTP Signature header.
type SignatureParams struct {
	KeyID     string
	Algorithm string
	Headers   []string
	Signature []byte
	Created   *int64
	Expires   *int64
}

// CallbackEnvelope is an inbound platform callback captured for verification.
// It lives only for the duration of one request.
type CallbackEnvelope struct {
	Method     string
	RequestURI string
	Host       string
	Header     http.Header
	Body       []byte
	Signature  SignatureParams
}

// NewCallbackEnvelope captures what verification needs from r. The body has
// already been read by the caller.
func NewCallbackEnvelope(r *http.Request, body []byte) *CallbackEnvelope {
	uri := r.RequestURI
	if uri == "" {
		uri = r.URL.RequestURI()
	}
	return &CallbackEnvelope{
		Method:     r.Method,
		RequestURI: uri,
		Host:       r.Host,
		Header:     r.Header.Clone(),
		Body:       body,
	}
}

// SigningKey is a platform public key published in its key set.
type SigningKey struct {
	KeyID     string
	Algorithm string
	PublicKey crypto.PublicKey
}
