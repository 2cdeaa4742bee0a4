package ctrader

import (
	"testing"
	"time"

	"gotest.tools/assert"
)

func TestParseDsn(t *testing.T) {

	t.Run("simple ok", func(t *testing.T) {
		cfg, err := ParseDsn("wss://live.ctraderapi.com:5036")
		assert.NilError(t, err)
		assert.Equal(t, cfg.Addr, "wss://live.ctraderapi.com:5036")
		assert.Equal(t, cfg.Token, "")
		assert.Equal(t, cfg.HeartbeatInterval, 10*time.Second)
	})

	t.Run("complete ok", func(t *testing.T) {
		cfg, err := ParseDsn("wss://demo.ctraderapi.com:5036 token=a!BHF!Tb?rtY.gHjwzx")
		assert.NilError(t, err)
		assert.Equal(t, cfg.Addr, "wss://demo.ctraderapi.com:5036")
		assert.Equal(t, cfg.Token, "a!BHF!Tb?rtY.gHjwzx")
	})

	t.Run("plain scheme ok", func(t *testing.T) {
		cfg, err := ParseDsn("ws://10.195.46.21:5036 token=astra")
		assert.NilError(t, err)
		assert.Equal(t, cfg.Addr, "ws://10.195.46.21:5036")
		assert.Equal(t, cfg.Token, "astra")
	})

	t.Run("no port", func(t *testing.T) {
		_, err := ParseDsn("wss://live.ctraderapi.com token=astra")
		assert.ErrorContains(t, err, "port is empty")
	})

	t.Run("no address", func(t *testing.T) {
		_, err := ParseDsn("token=astra")
		assert.ErrorContains(t, err, "dsn contains no ws address")
	})
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("CTRADER_ADDR", "wss://demo.ctraderapi.com:5036")
	t.Setenv("CTRADER_TOKEN", "astra")

	cfg, err := ConfigFromEnv()
	assert.NilError(t, err)
	assert.Equal(t, cfg.Addr, "wss://demo.ctraderapi.com:5036")
	assert.Equal(t, cfg.Token, "astra")
	assert.Equal(t, cfg.HeartbeatInterval, 10*time.Second)

	t.Setenv("CTRADER_HEARTBEAT_INTERVAL", "3s")
	cfg, err = ConfigFromEnv()
	assert.NilError(t, err)
	assert.Equal(t, cfg.HeartbeatInterval, 3*time.Second)

	t.Setenv("CTRADER_ADDR", "")
	_, err = ConfigFromEnv()
	assert.ErrorContains(t, err, "CTRADER_ADDR is empty")
}
