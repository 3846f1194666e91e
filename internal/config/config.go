// Package config loads the server and client configuration described in
// §6 EXTERNAL INTERFACES from an optional TOML file laid over the defaults,
// letting CLI flags override whatever the file set.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Transport names the framing an Endpoint uses.
type Transport string

const (
	TransportTCP       Transport = "tcp"
	TransportWebSocket Transport = "websocket"
)

// Client captures the client-side configuration of §6: "call_timeout_ms
// (default 5000)".
type Client struct {
	CallTimeoutMS int `toml:"call_timeout_ms"`
}

// Server captures the server-side configuration of §6: "listen_port,
// bind_host".
type Server struct {
	ListenPort int       `toml:"listen_port"`
	BindHost   string    `toml:"bind_host"`
	Transport  Transport `toml:"transport"`
	LogFile    string    `toml:"log_file"`
}

// Config is the top-level shape of the optional TOML config file.
type Config struct {
	Client Client `toml:"client"`
	Server Server `toml:"server"`
}

// Default returns a Config with every default value applied, matching the
// PendingCall timeout default in §3 and a loopback TCP server.
func Default() *Config {
	return &Config{
		Client: Client{CallTimeoutMS: 5000},
		Server: Server{
			ListenPort: 9000,
			BindHost:   "127.0.0.1",
			Transport:  TransportTCP,
		},
	}
}

// Load reads path (if non-empty) into a Config seeded with Default,
// applying whatever the file overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Client.CallTimeoutMS <= 0 {
		return fmt.Errorf("client.call_timeout_ms must be positive")
	}
	switch c.Server.Transport {
	case TransportTCP, TransportWebSocket:
	case "":
		c.Server.Transport = TransportTCP
	default:
		return fmt.Errorf("server.transport must be %q or %q, got %q", TransportTCP, TransportWebSocket, c.Server.Transport)
	}
	if c.Server.BindHost == "" {
		c.Server.BindHost = "127.0.0.1"
	}
	return nil
}
