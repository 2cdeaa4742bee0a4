package ctrader

import (
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// ConnectionConfig describes one websocket gate.
type ConnectionConfig struct {
	Addr              string        `envconfig:"CTRADER_ADDR"`
	Token             string        `envconfig:"CTRADER_TOKEN"`
	HeartbeatInterval time.Duration `envconfig:"CTRADER_HEARTBEAT_INTERVAL" default:"10s"`
}

// ConfigFromEnv reads the connection config from CTRADER_* environment
// variables.
func ConfigFromEnv() (ConnectionConfig, error) {
	var config ConnectionConfig
	if err := envconfig.Process("", &config); err != nil {
		return ConnectionConfig{}, errors.WithMessage(err, "ctrader: fail read env config")
	}
	if config.Addr == "" {
		return ConnectionConfig{}, errors.New("ctrader: CTRADER_ADDR is empty")
	}
	return config, nil
}

// ParseDsn accepts "wss://host:port token=xxx" style connection strings.
func ParseDsn(dsn string) (ConnectionConfig, error) {
	parts := strings.Split(strings.Trim(dsn, " "), " ")

	config := ConnectionConfig{HeartbeatInterval: 10 * time.Second}
	for _, part := range parts {
		if strings.HasPrefix(part, "token=") {
			config.Token = strings.TrimPrefix(part, "token=")
		}
		if strings.HasPrefix(part, "ws://") || strings.HasPrefix(part, "wss://") {
			u, err := url.Parse(part)
			if err != nil {
				return ConnectionConfig{}, err
			}
			if u.Hostname() == "" {
				return ConnectionConfig{}, errors.New("host is empty")
			}
			if u.Port() == "" {
				return ConnectionConfig{}, errors.New("port is empty")
			}
			config.Addr = part
		}
	}
	if config.Addr == "" {
		return ConnectionConfig{}, errors.New("dsn contains no ws address: " + dsn)
	}
	return config, nil
}
