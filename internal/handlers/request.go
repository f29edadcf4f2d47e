package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/elnormous/contenttype"
)

const maxRequestBytes = 1 << 20

var formMediaType = contenttype.NewMediaType("application/x-www-form-urlencoded")

// bodyParam reads a string field from a JSON or form-encoded body. Missing
// and non-string values both read as "".
func bodyParam(r *http.Request, name string) (string, error) {
	ctype, err := contenttype.GetMediaType(r)
	if err == nil && ctype.Matches(formMediaType) {
		r.Body = io.NopCloser(io.LimitReader(r.Body, maxRequestBytes))
		if err := r.ParseForm(); err != nil {
			return "", fmt.Errorf("failed to parse form body: %w", err)
		}
		return strings.TrimSpace(r.PostForm.Get(name)), nil
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return "", nil
	}

	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", fmt.Errorf("failed to decode body: %w", err)
	}
	value, _ := body[name].(string)
	return strings.TrimSpace(value), nil
}

// clientIP returns the caller's address, honouring the first
// X-Forwarded-For hop when the service runs behind a trusted proxy.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
