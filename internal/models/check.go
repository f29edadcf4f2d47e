package models

// Link is a HAL-style hyperlink as returned by the platform.
type Link struct {
	Href string `json:"href"`
}

type CheckLinks struct {
	Self     *Link `json:"self,omitempty"`
	CheckURL *Link `json:"check_url,omitempty"`
}

// PhoneCheck is a phone-possession check owned by the platform.
type PhoneCheck struct {
	CheckID string     `json:"check_id"`
	Status  string     `json:"status"`
	Match   *bool      `json:"match"`
	Links   CheckLinks `json:"_links"`
}

// CheckURL returns the href the device must open, or "" when absent.
func (c *PhoneCheck) CheckURL() string {
	return c.Links.checkURL()
}

// SubscriberCheck combines phone possession with SIM-swap status.
type SubscriberCheck struct {
	CheckID         string     `json:"check_id"`
	Status          string     `json:"status"`
	Match           *bool      `json:"match"`
	NoSimChange     *bool      `json:"no_sim_change"`
	LastSimChangeAt *string    `json:"last_sim_change_at"`
	Links           CheckLinks `json:"_links"`
}

func (c *SubscriberCheck) CheckURL() string {
	return c.Links.checkURL()
}

// SimCheck reports whether the SIM behind a number changed recently.
type SimCheck struct {
	CheckID         string     `json:"check_id"`
	Status          string     `json:"status"`
	NoSimChange     *bool      `json:"no_sim_change"`
	LastSimChangeAt *string    `json:"last_sim_change_at"`
	Links           CheckLinks `json:"_links"`
}

func (l CheckLinks) checkURL() string {
	if l.CheckURL == nil {
		return ""
	}
	return l.CheckURL.Href
}
