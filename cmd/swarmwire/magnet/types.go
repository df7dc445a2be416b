package magnet

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"swarmwire/cmd/swarmwire/tracker"
	"swarmwire/cmd/swarmwire/wire"
)

// Link represents a parsed magnet link with its components
type Link struct {
	InfoHash wire.InfoHash
	Name     string
	Trackers []string
}

// Parse parses a magnet URI and returns a Link object containing the extracted information.
// It validates and extracts the info hash, display name and tracker URLs.
// Returns an error if the URI format is invalid or required fields are missing/malformed.
func Parse(uri string) (*Link, error) {
	if !strings.HasPrefix(uri, "magnet:?") {
		return nil, fmt.Errorf("invalid magnet URI format")
	}

	queryStr := uri[8:]
	values, err := url.ParseQuery(queryStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse magnet URI query: %w", err)
	}

	xt := values.Get("xt")
	if !strings.HasPrefix(xt, "urn:btih:") {
		return nil, fmt.Errorf("invalid or missing urn:btih prefix in xt parameter")
	}

	hexHash := strings.TrimPrefix(xt, "urn:btih:")
	if len(hexHash) != 40 {
		return nil, fmt.Errorf("invalid info hash length")
	}
	raw, err := hex.DecodeString(hexHash)
	if err != nil {
		return nil, fmt.Errorf("invalid hex-encoded info hash: %w", err)
	}

	link := &Link{
		Name:     values.Get("dn"),
		Trackers: values["tr"],
	}
	copy(link.InfoHash[:], raw)
	return link, nil
}

// Endpoints resolves the link's tracker URIs in order. Entries with
// unsupported schemes are skipped with a log line rather than failing the
// whole link: magnet links routinely mix transports this client does not
// speak.
func (l *Link) Endpoints() []tracker.Endpoint {
	endpoints := make([]tracker.Endpoint, 0, len(l.Trackers))
	for _, raw := range l.Trackers {
		endpoint, err := tracker.ParseEndpoint(raw)
		if err != nil {
			zap.L().Debug("Skipping tracker", zap.String("uri", raw), zap.Error(err))
			continue
		}
		endpoints = append(endpoints, endpoint)
	}
	return endpoints
}
