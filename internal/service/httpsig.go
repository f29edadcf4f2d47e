package service

import (
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"

	"github.com/qcom/phoneverify/internal/models"
)

// HTTP Signatures (draft-cavage-http-signatures) support.

const (
	headerRequestTarget = "(request-target)"
	headerCreated       = "(created)"
	headerExpires       = "(expires)"
)

// defaultSignedHeaders applies when the headers parameter is omitted.
var defaultSignedHeaders = []string{"date"}

// ParseSignature extracts signature parameters from the Signature header,
// falling back to an Authorization header using the Signature scheme.
func ParseSignature(h http.Header) (models.SignatureParams, error) {
	raw := h.Get("Signature")
	if raw == "" {
		auth := h.Get("Authorization")
		scheme, rest, found := strings.Cut(auth, " ")
		if found && strings.EqualFold(scheme, "Signature") {
			raw = rest
		}
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.SignatureParams{}, &SignatureError{Err: ErrMissingSignature}
	}

	fields, err := parseSignatureFields(raw)
	if err != nil {
		return models.SignatureParams{}, err
	}

	var params models.SignatureParams
	params.KeyID = fields["keyid"]
	if params.KeyID == "" {
		return params, signatureErrorf(ErrMalformedSignature, "keyId is required")
	}
	params.Algorithm = strings.ToLower(fields["algorithm"])

	sig, ok := fields["signature"]
	if !ok || sig == "" {
		return params, signatureErrorf(ErrMalformedSignature, "signature is required")
	}
	params.Signature, err = base64.StdEncoding.Strict().DecodeString(sig)
	if err != nil || len(params.Signature) == 0 {
		return params, signatureErrorf(ErrMalformedSignature, "signature is not valid base64")
	}

	if hs, ok := fields["headers"]; ok {
		params.Headers = strings.Fields(strings.ToLower(hs))
		if len(params.Headers) == 0 {
			return params, signatureErrorf(ErrMalformedSignature, "headers parameter is empty")
		}
	} else {
		params.Headers = append([]string(nil), defaultSignedHeaders...)
	}

	for _, name := range []string{"created", "expires"} {
		v, ok := fields[name]
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return params, signatureErrorf(ErrMalformedSignature, "%s is not an integer", name)
		}
		if name == "created" {
			params.Created = &n
		} else {
			params.Expires = &n
		}
	}

	return params, nil
}

// parseSignatureFields splits `name="value", name=value` pairs. Names are
// case-insensitive; duplicates are rejected.
func parseSignatureFields(s string) (map[string]string, error) {
	fields := make(map[string]string)
	i := 0
	for i < len(s) {
		for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == ',') {
			i++
		}
		if i >= len(s) {
			break
		}

		eq := strings.IndexByte(s[i:], '=')
		if eq <= 0 {
			return nil, signatureErrorf(ErrMalformedSignature, "expected name=value at offset %d", i)
		}
		name := strings.ToLower(strings.TrimSpace(s[i : i+eq]))
		if name == "" || strings.ContainsAny(name, " \t\",") {
			return nil, signatureErrorf(ErrMalformedSignature, "invalid parameter name %q", name)
		}
		i += eq + 1

		var value string
		if i < len(s) && s[i] == '"' {
			end := strings.IndexByte(s[i+1:], '"')
			if end < 0 {
				return nil, signatureErrorf(ErrMalformedSignature, "unterminated value for %s", name)
			}
			value = s[i+1 : i+1+end]
			i += end + 2
			if i < len(s) && s[i] != ',' && s[i] != ' ' && s[i] != '\t' {
				return nil, signatureErrorf(ErrMalformedSignature, "unexpected character after %s", name)
			}
		} else {
			end := strings.IndexByte(s[i:], ',')
			if end < 0 {
				end = len(s) - i
			}
			value = strings.TrimSpace(s[i : i+end])
			i += end
		}

		if _, dup := fields[name]; dup {
			return nil, signatureErrorf(ErrMalformedSignature, "duplicate parameter %s", name)
		}
		fields[name] = value
	}
	return fields, nil
}

// SigningString rebuilds the string the platform signed, one
// `name: value` line per signed header.
func SigningString(env *models.CallbackEnvelope) (string, error) {
	params := env.Signature
	lines := make([]string, 0, len(params.Headers))
	for _, name := range params.Headers {
		var value string
		switch name {
		case headerRequestTarget:
			value = strings.ToLower(env.Method) + " " + env.RequestURI
		case headerCreated:
			if params.Created == nil {
				return "", signatureErrorf(ErrMalformedSignature, "(created) signed but created parameter missing")
			}
			value = strconv.FormatInt(*params.Created, 10)
		case headerExpires:
			if params.Expires == nil {
				return "", signatureErrorf(ErrMalformedSignature, "(expires) signed but expires parameter missing")
			}
			value = strconv.FormatInt(*params.Expires, 10)
		case "host":
			value = env.Header.Get("Host")
			if value == "" {
				value = env.Host
			}
			if value == "" {
				return "", signatureErrorf(ErrMalformedSignature, "signed header host not present")
			}
		default:
			values := env.Header.Values(name)
			if len(values) == 0 {
				return "", signatureErrorf(ErrMalformedSignature, "signed header %s not present", name)
			}
			trimmed := make([]string, len(values))
			for i, v := range values {
				trimmed[i] = strings.TrimSpace(v)
			}
			value = strings.Join(trimmed, ", ")
		}
		lines = append(lines, name+": "+value)
	}
	return strings.Join(lines, "\n"), nil
}

// verifyDigest checks a Digest header (RFC 3230) against body. At least one
// supported algorithm must be present and every supported entry must match.
func verifyDigest(header string, body []byte) error {
	if strings.TrimSpace(header) == "" {
		return signatureErrorf(ErrDigestMismatch, "digest header missing")
	}

	checked := 0
	for _, entry := range strings.Split(header, ",") {
		alg, value, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			return signatureErrorf(ErrMalformedSignature, "malformed digest entry")
		}

		var sum []byte
		switch strings.ToUpper(alg) {
		case "SHA-256":
			h := sha256.Sum256(body)
			sum = h[:]
		case "SHA-512":
			h := sha512.Sum512(body)
			sum = h[:]
		default:
			continue
		}

		want, err := base64.StdEncoding.Strict().DecodeString(value)
		if err != nil {
			return signatureErrorf(ErrMalformedSignature, "digest is not valid base64")
		}
		if subtle.ConstantTimeCompare(want, sum) != 1 {
			return &SignatureError{Err: ErrDigestMismatch}
		}
		checked++
	}

	if checked == 0 {
		return signatureErrorf(ErrDigestMismatch, "no supported digest algorithm")
	}
	return nil
}

func containsHeader(headers []string, name string) bool {
	for _, h := range headers {
		if h == name {
			return true
		}
	}
	return false
}
