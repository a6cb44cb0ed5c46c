package llm

import (
	"fmt"
	"net/url"
	"time"
)

// Parameter ranges accepted by the hosted providers. Values outside these
// ranges are clamped before the request is sent.
const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
	MinTopP        = 0.0
	MaxTopP        = 1.0
	MinTimeout     = 1 * time.Second
	MaxTimeout     = 10 * time.Minute
)

// ValidateBaseURL checks that baseURL is an absolute http(s) URL. An empty
// string is returned unchanged.
func ValidateBaseURL(baseURL string) (string, error) {
	if baseURL == "" {
		return "", nil
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("URL scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("URL must include a host")
	}
	return parsed.String(), nil
}

// ValidateTimeout clamps timeout to [MinTimeout, MaxTimeout]. Non-positive
// values mean "no timeout" and return zero.
func ValidateTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 0
	}
	return min(max(timeout, MinTimeout), MaxTimeout)
}

// ClampFloat64 bounds val to [lo, hi].
func ClampFloat64(val, lo, hi float64) float64 {
	return min(max(val, lo), hi)
}
