package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"swarmwire/cmd/swarmwire/config"
	"swarmwire/cmd/swarmwire/magnet"
	"swarmwire/cmd/swarmwire/peering"
	"swarmwire/cmd/swarmwire/swarm"
	"swarmwire/cmd/swarmwire/tracker"
	"swarmwire/cmd/swarmwire/wire"
)

// envPrefix marks the environment variables that override configuration
// defaults, e.g. SWARMWIRE_LISTEN_PORT=6889.
const envPrefix = "SWARMWIRE_"

func init() {
	var err error
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logger, err := config.Build()
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(logger)
}

func main() {
	logger := zap.L()
	if len(os.Args) < 2 {
		logger.Error("Usage: swarmwire <magnet_parse|peers|handshake|run> ...")
		os.Exit(1)
	}
	command := os.Args[1]

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("Invalid configuration", zap.Error(err))
		os.Exit(1)
	}

	switch command {
	case "magnet_parse":
		if err := handleMagnetParse(os.Args); err != nil {
			logger.Error("Failed to parse magnet link", zap.Error(err))
			os.Exit(1)
		}
	case "peers":
		if err := handlePeers(os.Args, cfg); err != nil {
			logger.Error("Failed to get peers", zap.Error(err))
			os.Exit(1)
		}
	case "handshake":
		if err := handleHandshake(os.Args, cfg); err != nil {
			logger.Error("Failed to handshake", zap.Error(err))
			os.Exit(1)
		}
	case "run":
		if err := handleRun(os.Args, cfg); err != nil {
			logger.Error("Swarm run failed", zap.Error(err))
			os.Exit(1)
		}
	default:
		logger.Error("Unknown command", zap.String("command", command))
		os.Exit(1)
	}
}

// loadConfig collects SWARMWIRE_* environment variables and layers them over
// the defaults. SWARMWIRE_DIAL_TIMEOUT=5s maps onto the dial_timeout key.
func loadConfig() (config.Config, error) {
	overrides := map[string]any{}
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		name, found := strings.CutPrefix(key, envPrefix)
		if !found || name == "" {
			continue
		}
		overrides[strings.ToLower(name)] = value
	}
	return config.Load(overrides)
}

// Command handlers

func handleMagnetParse(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: magnet_parse <magnet-link>")
	}

	link, err := magnet.Parse(args[2])
	if err != nil {
		return fmt.Errorf("failed to parse magnet link: %w", err)
	}

	if len(link.Trackers) == 0 {
		return fmt.Errorf("no trackers found in magnet link")
	}

	fmt.Printf("Tracker URL: %s\n", link.Trackers[0])
	fmt.Printf("Info Hash: %x\n", link.InfoHash)
	if link.Name != "" {
		fmt.Printf("Name: %s\n", link.Name)
	}

	return nil
}

func handlePeers(args []string, cfg config.Config) error {
	logger := zap.L()
	if len(args) < 3 {
		return fmt.Errorf("usage: peers <magnet-link>")
	}

	link, err := magnet.Parse(args[2])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	peerID := peering.NewPeerID(cfg.PeerIDPrefix)
	ann, session, err := firstAnnounce(ctx, link, peerID, cfg)
	if err != nil {
		return err
	}
	defer session.Stop(context.Background())

	logger.Info("Announce complete",
		zap.Uint32("seeders", ann.Seeders),
		zap.Uint32("leechers", ann.Leechers),
		zap.Duration("interval", ann.Interval))

	for _, peer := range ann.Peers {
		fmt.Println(peer.String())
	}

	return nil
}

func handleHandshake(args []string, cfg config.Config) error {
	if len(args) < 4 {
		return fmt.Errorf("usage: handshake <magnet-link> <peer-address>")
	}

	link, err := magnet.Parse(args[2])
	if err != nil {
		return err
	}
	addr := args[3]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	peerID := peering.NewPeerID(cfg.PeerIDPrefix)
	events := make(chan peering.Event, cfg.ChannelDepth)
	session := peering.Start(ctx, addr, link.InfoHash, peerID, cfg, events)
	defer session.Close()

	for {
		select {
		case ev := <-events:
			switch ev.Kind {
			case peering.Connected:
				fmt.Printf("Peer ID: %x\n", ev.PeerID)
				return nil
			case peering.Closed:
				return fmt.Errorf("session closed before handshake: %w", ev.Err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func handleRun(args []string, cfg config.Config) error {
	logger := zap.L()
	if len(args) < 3 {
		return fmt.Errorf("usage: run <magnet-link>")
	}

	link, err := magnet.Parse(args[2])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	peerID := peering.NewPeerID(cfg.PeerIDPrefix)
	want := wire.NewBitfield(cfg.PieceCount)
	for i := 0; i < cfg.PieceCount; i++ {
		want.Set(i)
	}
	coord := swarm.New(link.InfoHash, peerID, want, cfg)

	done := make(chan error, 1)
	go func() {
		done <- coord.Run(ctx, nil)
	}()

	go func() {
		for transfer := range coord.Transfers {
			logger.Info("Transfer request surfaced",
				zap.String("peer", transfer.Addr),
				zap.String("message", transfer.Msg.Name()))
		}
	}()

	peerLists := make(chan []wire.PeerAddress, 1)
	go func() {
		for {
			select {
			case peers := <-peerLists:
				coord.AddPeers(ctx, peers)
			case <-ctx.Done():
				return
			}
		}
	}()

	// Walk the magnet link's trackers in order; stay with the first one
	// that answers until it fails or the run is interrupted.
	var lastErr error
	for _, endpoint := range link.Endpoints() {
		session := tracker.NewSession(endpoint, link.InfoHash, peerID, cfg)
		lastErr = session.Run(ctx, func() tracker.Stats { return tracker.Stats{} }, peerLists)
		session.Stop(context.Background())
		if ctx.Err() != nil {
			break
		}
		logger.Warn("Tracker session ended, trying next",
			zap.String("tracker", endpoint.String()),
			zap.Error(lastErr))
	}

	interrupted := ctx.Err() != nil
	stop()
	if err := <-done; err != nil {
		return err
	}
	if !interrupted && lastErr != nil {
		return fmt.Errorf("all trackers failed: %w", lastErr)
	}
	logger.Info("Shut down cleanly")
	return nil
}

// firstAnnounce walks the link's tracker endpoints in order and returns the
// first successful announce along with the session that produced it.
func firstAnnounce(ctx context.Context, link *magnet.Link, peerID wire.PeerID, cfg config.Config) (*tracker.Announce, *tracker.Session, error) {
	logger := zap.L()
	endpoints := link.Endpoints()
	if len(endpoints) == 0 {
		return nil, nil, fmt.Errorf("no usable trackers in magnet link")
	}

	var lastErr error
	for _, endpoint := range endpoints {
		session := tracker.NewSession(endpoint, link.InfoHash, peerID, cfg)
		ann, err := session.Announce(ctx, tracker.Stats{Event: wire.EventStarted})
		if err != nil {
			logger.Warn("Tracker announce failed",
				zap.String("tracker", endpoint.String()),
				zap.Error(err))
			lastErr = err
			continue
		}
		return ann, session, nil
	}
	return nil, nil, fmt.Errorf("all trackers failed: %w", lastErr)
}
