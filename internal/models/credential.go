package models

// Credential is an OAuth client id/secret pair issued by the platform.
type Credential struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}
