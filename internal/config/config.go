package config

import (
	"fmt"
	"os"
	"strings"
)

// Default configuration values
const (
	DefaultListenAddr = ":8080"
	DefaultServerURL  = "ws://localhost:8080/ws"

	// The original deployment rode on a fixed pair of public STUN servers
	// and no TURN, so calls behind symmetric NAT may fail to establish.
	// That is an accepted limitation, not something to paper over here.
	DefaultSTUNServers = "stun:stun.l.google.com:19302,stun:stun1.l.google.com:19302"
)

// Config holds application configuration.
type Config struct {
	// ListenAddr is where the signaling relay binds.
	ListenAddr string

	// ServerURL is the relay websocket endpoint the call client dials.
	ServerURL string

	// STUNServers for WebRTC NAT traversal.
	STUNServers []string
}

// Options for loading config with CLI flag overrides.
type Options struct {
	ListenAddr  string
	ServerURL   string
	STUNServers string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	listenAddr := layered(opts.ListenAddr, "TELEVISIT_LISTEN_ADDR", DefaultListenAddr)
	serverURL := layered(opts.ServerURL, "TELEVISIT_SERVER_URL", DefaultServerURL)
	stun := layered(opts.STUNServers, "STUN_SERVERS", DefaultSTUNServers)

	if !strings.HasPrefix(serverURL, "ws://") && !strings.HasPrefix(serverURL, "wss://") {
		return nil, fmt.Errorf("server URL must be a ws:// or wss:// endpoint, got %q", serverURL)
	}

	var servers []string
	for _, s := range strings.Split(stun, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			servers = append(servers, s)
		}
	}
	if len(servers) == 0 {
		return nil, fmt.Errorf("at least one STUN server is required")
	}

	return &Config{
		ListenAddr:  listenAddr,
		ServerURL:   serverURL,
		STUNServers: servers,
	}, nil
}

func layered(flag, envKey, fallback string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return fallback
}
