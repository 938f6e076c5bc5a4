package origin

import (
	"fmt"
	"net/url"
	"strings"
)

// HostFromURL returns the network location (host[:port]) of rawURL, the name an
// origin is addressed by in CDN origin configuration and Host headers.
func HostFromURL(rawURL string) (string, error) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return "", fmt.Errorf("empty origin URL")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse origin URL: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("origin URL %q has no host", rawURL)
	}
	return u.Host, nil
}
