package mockserver

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/unirun/internal/config"
)

const (
	DefaultHost         = "127.0.0.1"
	DefaultPort         = 5000
	DefaultMaxBodyBytes = 1 << 20
	DefaultReadTimeout  = 15 * time.Second
	DefaultWriteTimeout = 15 * time.Second
	DefaultIdleTimeout  = 60 * time.Second
)

// Settings configures the mock API listener.
type Settings struct {
	Host         string
	Port         int
	SeedOrders   int
	Seed         int64
	MaxBodyBytes int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// SettingsFromConfig builds Settings from the mock section of the config.
func SettingsFromConfig(cfg *config.Config) Settings {
	settings := Settings{
		Host:         DefaultHost,
		Port:         DefaultPort,
		Seed:         time.Now().UnixNano(),
		MaxBodyBytes: DefaultMaxBodyBytes,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		IdleTimeout:  DefaultIdleTimeout,
	}
	if cfg == nil {
		return settings
	}
	mock := cfg.File.Mock
	if host := strings.TrimSpace(mock.Host); host != "" {
		settings.Host = host
	}
	if mock.Port > 0 && mock.Port <= 65535 {
		settings.Port = mock.Port
	}
	if mock.SeedOrders > 0 {
		settings.SeedOrders = mock.SeedOrders
	}
	return settings
}

// Address returns host:port.
func (s Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}
