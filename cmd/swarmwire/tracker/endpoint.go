package tracker

import (
	"fmt"
	"net/url"
)

// Scheme is the tracker transport.
type Scheme string

const (
	SchemeUDP  Scheme = "udp"
	SchemeHTTP Scheme = "http"
)

// Endpoint is one tracker location, constructed once from a tracker URI and
// immutable afterwards.
type Endpoint struct {
	Scheme Scheme
	Host   string
	Port   uint16
	Path   string
}

// ParseEndpoint resolves a tracker URI. An unsupported scheme is a
// configuration error: it is the one failure surfaced as fatal at startup.
func ParseEndpoint(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid tracker URI %q: %w", raw, err)
	}
	var scheme Scheme
	switch u.Scheme {
	case "udp":
		scheme = SchemeUDP
	case "http":
		scheme = SchemeHTTP
	default:
		return Endpoint{}, fmt.Errorf("unsupported tracker scheme %q in %q", u.Scheme, raw)
	}
	if u.Hostname() == "" {
		return Endpoint{}, fmt.Errorf("tracker URI %q has no host", raw)
	}
	port := uint16(80)
	if p := u.Port(); p != "" {
		var parsed int
		if _, err := fmt.Sscanf(p, "%d", &parsed); err != nil || parsed < 1 || parsed > 65535 {
			return Endpoint{}, fmt.Errorf("tracker URI %q has invalid port %q", raw, p)
		}
		port = uint16(parsed)
	}
	return Endpoint{
		Scheme: scheme,
		Host:   u.Hostname(),
		Port:   port,
		Path:   u.Path,
	}, nil
}

// Addr returns the host:port dial target.
func (e Endpoint) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// URL reconstructs the announce URL for the HTTP transport.
func (e Endpoint) URL() string {
	return fmt.Sprintf("%s://%s:%d%s", e.Scheme, e.Host, e.Port, e.Path)
}

func (e Endpoint) String() string {
	return e.URL()
}
