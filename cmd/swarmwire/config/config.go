// Package config holds the client's tunables. Defaults are overridable from
// a plain key/value map (the CLI feeds it from SWARMWIRE_* environment
// variables), decoded with mapstructure so string values like "250ms" land
// in typed fields.
package config

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

type Config struct {
	// ListenPort is advertised to trackers in announce requests.
	ListenPort uint16 `mapstructure:"listen_port"`

	// PeerIDPrefix is the client signature at the front of the local peer id.
	PeerIDPrefix string `mapstructure:"peer_id_prefix"`

	// DialTimeout bounds the TCP connect to a peer.
	DialTimeout time.Duration `mapstructure:"dial_timeout"`

	// HandshakeTimeout bounds the 68-byte handshake exchange.
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`

	// TrackerTimeout is the first per-attempt wait for a tracker response;
	// it doubles on every retry up to TrackerRetries attempts.
	TrackerTimeout time.Duration `mapstructure:"tracker_timeout"`
	TrackerRetries int           `mapstructure:"tracker_retries"`

	// ConnectionTTL is how long a tracker connection id stays usable.
	ConnectionTTL time.Duration `mapstructure:"connection_ttl"`

	// MaxFrameSize caps the payload length a peer may declare.
	MaxFrameSize int `mapstructure:"max_frame_size"`

	// ChannelDepth is the buffer size of session command and event channels.
	ChannelDepth int `mapstructure:"channel_depth"`

	// NumWant asks the tracker for this many peers; -1 means tracker default.
	NumWant int32 `mapstructure:"num_want"`

	// PieceCount sizes availability bitfields. Normally supplied by the
	// metadata layer; configurable for clients driven by bare magnet links.
	PieceCount int `mapstructure:"piece_count"`
}

func Default() Config {
	return Config{
		ListenPort:       6881,
		PeerIDPrefix:     "-SW0001-",
		DialTimeout:      time.Second,
		HandshakeTimeout: 3 * time.Second,
		TrackerTimeout:   time.Second,
		TrackerRetries:   8,
		ConnectionTTL:    60 * time.Second,
		MaxFrameSize:     1 << 20,
		ChannelDepth:     16,
		NumWant:          -1,
		PieceCount:       1024,
	}
}

// Load applies overrides on top of the defaults. Values may be strings
// ("6882", "500ms") or already-typed values; mapstructure converts either.
func Load(overrides map[string]any) (Config, error) {
	cfg := Default()
	if len(overrides) == 0 {
		return cfg, nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return Config{}, fmt.Errorf("building config decoder: %w", err)
	}
	if err := dec.Decode(overrides); err != nil {
		return Config{}, fmt.Errorf("decoding config overrides: %w", err)
	}

	if cfg.TrackerRetries < 1 {
		return Config{}, fmt.Errorf("tracker_retries must be at least 1, got %d", cfg.TrackerRetries)
	}
	if cfg.MaxFrameSize < 1 {
		return Config{}, fmt.Errorf("max_frame_size must be positive, got %d", cfg.MaxFrameSize)
	}
	return cfg, nil
}
