package main

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("GATEWAY_ADDR", "")
	t.Setenv("ENCLAVE_TRANSPORT", "tcp")
	t.Setenv("ENCLAVE_TIMEOUT", "")

	cfg, err := loadConfig()
	assert.NoError(t, err)
	check.Equal(t, "127.0.0.1:8080", cfg.Addr)
	check.Equal(t, "127.0.0.1:5000", cfg.EnclaveAddr)
	check.Equal(t, 10*time.Second, cfg.EnclaveTimeout)

	t.Setenv("GATEWAY_ADDR", "0.0.0.0:9000")
	t.Setenv("ENCLAVE_TIMEOUT", "3s")
	cfg, err = loadConfig()
	assert.NoError(t, err)
	check.Equal(t, "0.0.0.0:9000", cfg.Addr)
	check.Equal(t, 3*time.Second, cfg.EnclaveTimeout)
}

func TestLoadConfigRejectsBadTransport(t *testing.T) {
	t.Setenv("ENCLAVE_TRANSPORT", "udp")
	_, err := loadConfig()
	check.Error(t, err)

	t.Setenv("ENCLAVE_TRANSPORT", "vsock")
	t.Setenv("ENCLAVE_CID", "")
	_, err = loadConfig()
	check.Error(t, err)
}
