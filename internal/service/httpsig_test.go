package service

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"net/http"
	"strings"
	"testing"

	"github.com/qcom/phoneverify/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSignature(t *testing.T) {
	h := http.Header{}
	h.Set("Signature", `keyId="Test",algorithm="RSA-SHA256",headers="(request-target) Host Date",created=1402170695,signature="c2lnbmF0dXJl"`)

	params, err := ParseSignature(h)
	require.NoError(t, err)
	assert.Equal(t, "Test", params.KeyID)
	assert.Equal(t, "rsa-sha256", params.Algorithm)
	assert.Equal(t, []string{"(request-target)", "host", "date"}, params.Headers)
	assert.Equal(t, []byte("signature"), params.Signature)
	require.NotNil(t, params.Created)
	assert.EqualValues(t, 1402170695, *params.Created)
	assert.Nil(t, params.Expires)
}

func TestParseSignature_AuthorizationScheme(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", `Signature keyId="k1", signature="c2ln"`)

	params, err := ParseSignature(h)
	require.NoError(t, err)
	assert.Equal(t, "k1", params.KeyID)
	assert.Empty(t, params.Algorithm)
	assert.Equal(t, []string{"date"}, params.Headers)
}

func TestParseSignature_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   error
	}{
		{"missing", "", ErrMissingSignature},
		{"no key id", `signature="c2ln"`, ErrMalformedSignature},
		{"no signature", `keyId="k1"`, ErrMalformedSignature},
		{"bad base64", `keyId="k1",signature="***"`, ErrMalformedSignature},
		{"non-canonical padding", `keyId="k1",signature="c2lnbh=="`, ErrMalformedSignature},
		{"empty headers", `keyId="k1",headers="",signature="c2ln"`, ErrMalformedSignature},
		{"duplicate", `keyId="k1",keyId="k2",signature="c2ln"`, ErrMalformedSignature},
		{"unterminated", `keyId="k1,signature="c2ln`, ErrMalformedSignature},
		{"no equals", `keyId`, ErrMalformedSignature},
		{"bad created", `keyId="k1",created=soon,signature="c2ln"`, ErrMalformedSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set("Signature", tt.header)
			}
			_, err := ParseSignature(h)
			var sigErr *SignatureError
			require.ErrorAs(t, err, &sigErr)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseSignature_BearerIsNotASignature(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer abc")
	_, err := ParseSignature(h)
	assert.ErrorIs(t, err, ErrMissingSignature)
}

func TestSigningString(t *testing.T) {
	h := http.Header{}
	h.Set("Date", "Sun, 05 Jan 2014 21:31:40 GMT")
	h.Set("Content-Type", "application/json")
	h.Set("Digest", "SHA-256=X48E9qOokqqrvdts8nOJRJN3OWDUoyWxBf7kbu9DBPE=")

	created := int64(1402170695)
	env := &models.CallbackEnvelope{
		Method:     http.MethodPost,
		RequestURI: "/foo?param=value&pet=dog",
		Host:       "example.com",
		Header:     h,
		Signature: models.SignatureParams{
			Headers: []string{"(request-target)", "(created)", "host", "date", "content-type", "digest"},
			Created: &created,
		},
	}

	got, err := SigningString(env)
	require.NoError(t, err)
	assert.Equal(t, "(request-target): post /foo?param=value&pet=dog\n"+
		"(created): 1402170695\n"+
		"host: example.com\n"+
		"date: Sun, 05 Jan 2014 21:31:40 GMT\n"+
		"content-type: application/json\n"+
		"digest: SHA-256=X48E9qOokqqrvdts8nOJRJN3OWDUoyWxBf7kbu9DBPE=", got)
}

func TestSigningString_MultipleValuesAreJoined(t *testing.T) {
	h := http.Header{}
	h.Add("X-Example", " one")
	h.Add("X-Example", "two ")
	env := &models.CallbackEnvelope{
		Header:    h,
		Signature: models.SignatureParams{Headers: []string{"x-example"}},
	}

	got, err := SigningString(env)
	require.NoError(t, err)
	assert.Equal(t, "x-example: one, two", got)
	assert.Equal(t, []string{" one", "two "}, h.Values("X-Example"))
}

func TestSigningString_MissingHeader(t *testing.T) {
	env := &models.CallbackEnvelope{
		Header:    http.Header{},
		Signature: models.SignatureParams{Headers: []string{"date"}},
	}
	_, err := SigningString(env)
	assert.ErrorIs(t, err, ErrMalformedSignature)

	env.Signature.Headers = []string{"(expires)"}
	_, err = SigningString(env)
	assert.ErrorIs(t, err, ErrMalformedSignature)
}

func TestVerifyDigest(t *testing.T) {
	body := []byte(`{"check_id":"c-1"}`)
	s256 := sha256.Sum256(body)
	s512 := sha512.Sum512(body)
	d256 := "SHA-256=" + base64.StdEncoding.EncodeToString(s256[:])
	d512 := "SHA-512=" + base64.StdEncoding.EncodeToString(s512[:])

	assert.NoError(t, verifyDigest(d256, body))
	assert.NoError(t, verifyDigest(d512, body))
	assert.NoError(t, verifyDigest("MD5=abc, "+d256, body))
	assert.NoError(t, verifyDigest(d256+", "+d512, body))

	assert.ErrorIs(t, verifyDigest(d256, []byte(`{"check_id":"c-2"}`)), ErrDigestMismatch)
	assert.ErrorIs(t, verifyDigest("", body), ErrDigestMismatch)
	assert.ErrorIs(t, verifyDigest("MD5=abc", body), ErrDigestMismatch)
	assert.ErrorIs(t, verifyDigest("SHA-256", body), ErrMalformedSignature)
	assert.ErrorIs(t, verifyDigest("SHA-256=***", body), ErrMalformedSignature)

	// sha-256 digests end in "=", so the last data character has two unused bits
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"
	last := len(d256) - 2
	loose := d256[:last] + string(alphabet[strings.IndexByte(alphabet, d256[last])^0x01]) + d256[last+1:]
	_, err := base64.StdEncoding.DecodeString(loose[len("SHA-256="):])
	require.NoError(t, err)
	assert.ErrorIs(t, verifyDigest(loose, body), ErrMalformedSignature)
}
