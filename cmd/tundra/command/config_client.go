package command

import (
	"fmt"
	"net/url"
)

type ClientConfig struct {
	LoginURL string `json:"login_url"`
}

func (c *ClientConfig) validate() error {
	if c.LoginURL == "" {
		return nil
	}
	u, err := url.Parse(c.LoginURL)
	if err != nil {
		return fmt.Errorf("client: parsing login_url: %w", err)
	}
	if u.Scheme != "tundra" {
		return fmt.Errorf("client: login_url must use the tundra:// scheme")
	}
	return nil
}
