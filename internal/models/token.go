package models

import "time"

// AccessToken is a bearer token obtained through the client-credentials grant.
type AccessToken struct {
	Value      string        `json:"access_token"`
	TokenType  string        `json:"token_type"`
	Scope      []string      `json:"scope"`
	ObtainedAt time.Time     `json:"obtained_at"`
	TTL        time.Duration `json:"ttl"`
}

// ExpiresAt returns the instant after which the token must not be used.
// A zero TTL means the platform did not say, so the token is treated as
// already expired for caching purposes.
func (t *AccessToken) ExpiresAt() time.Time {
	return t.ObtainedAt.Add(t.TTL)
}

// Valid reports whether the token can still be used at now, keeping leeway
// in reserve for the outbound call itself.
func (t *AccessToken) Valid(now time.Time, leeway time.Duration) bool {
	if t == nil || t.Value == "" || t.TTL <= 0 {
		return false
	}
	return now.Add(leeway).Before(t.ExpiresAt())
}
