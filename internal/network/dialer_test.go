// internal/network/dialer_test.go
package network

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDialerConfig(t *testing.T) {
	cfg := NewDialerConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, 15*time.Second, cfg.Timeout)
	assert.Equal(t, 30*time.Second, cfg.KeepAlive)
	assert.True(t, cfg.NoDelay)
	assert.NotNil(t, cfg.Resolver)
}

func TestDialerConfigClone(t *testing.T) {
	cfg := NewDialerConfig()
	clone := cfg.Clone()
	require.NotSame(t, cfg, clone)

	clone.Timeout = time.Second
	assert.Equal(t, 15*time.Second, cfg.Timeout, "Mutating the clone must not affect the original")

	var nilCfg *DialerConfig
	assert.NotNil(t, nilCfg.Clone(), "Cloning nil should produce usable defaults")
}

func TestDialTCPContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan struct{})
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
		close(accepted)
	}()

	conn, err := DialTCPContext(context.Background(), "tcp", ln.Addr().String(), nil)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("listener never saw the connection")
	}
}

func TestDialTCPContextRefused(t *testing.T) {
	// Grab a port that is definitely closed by opening and releasing a listener.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = DialTCPContext(context.Background(), "tcp", addr, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tcp dial failed")
}

func TestDialTCPContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := DialTCPContext(ctx, "tcp", "192.0.2.1:80", nil)
	assert.Error(t, err, "Dial with a cancelled context must fail")
}
