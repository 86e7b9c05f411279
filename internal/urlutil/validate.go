package urlutil

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// Validate parses a raw URL string and checks that it is an absolute HTTP
// or HTTPS URL with a host. Monitors are created with validated URLs, so
// the probe layer treats a malformed URL as a programming error rather
// than an unreachable endpoint.
func Validate(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrap(err, "failed to parse url")
	}
	scheme := strings.ToLower(u.Scheme)
	if !u.IsAbs() || (scheme != "http" && scheme != "https") {
		return errors.Errorf("url %q must be an absolute http or https url", rawURL)
	}
	if u.Host == "" {
		return errors.Errorf("url %q has no host", rawURL)
	}
	return nil
}
