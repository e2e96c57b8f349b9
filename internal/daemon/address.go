package daemon

import (
	"fmt"
	"net/url"
	"strings"
)

// ParseAddress splits a daemon endpoint into a dial network and address.
//
// Supported forms:
//   - "unix:///tmp/gpio_sim.sock"
//   - "tcp://127.0.0.1:7000"
//   - "/tmp/gpio_sim.sock" (bare path, unix socket)
func ParseAddress(raw string) (network, address string, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", fmt.Errorf("daemon address is empty")
	}
	if !strings.Contains(raw, "://") {
		return "unix", raw, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid daemon address %q: %w", raw, err)
	}

	switch u.Scheme {
	case "unix":
		path := u.Path
		if u.Host != "" {
			// unix://relative/path
			path = u.Host + u.Path
		}
		if path == "" {
			return "", "", fmt.Errorf("daemon address %q has no socket path", raw)
		}
		return "unix", path, nil
	case "tcp":
		if u.Host == "" {
			return "", "", fmt.Errorf("daemon address %q has no host", raw)
		}
		return "tcp", u.Host, nil
	default:
		return "", "", fmt.Errorf("unsupported daemon address scheme %q (use unix or tcp)", u.Scheme)
	}
}
