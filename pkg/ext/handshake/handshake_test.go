package handshake_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ventosilenzioso/reliudp/internal/telemetry"
	"github.com/ventosilenzioso/reliudp/pkg/conn"
	"github.com/ventosilenzioso/reliudp/pkg/ext/handshake"
	"github.com/ventosilenzioso/reliudp/pkg/transport"
)

func TestHandshakeClientServerReachesAuthenticated(t *testing.T) {
	connClient, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer connClient.Close()
	connServer, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer connServer.Close()

	clientAddr := connClient.LocalAddr().(*net.UDPAddr)
	serverAddr := connServer.LocalAddr().(*net.UDPAddr)

	epClient := transport.NewEndpoint(connClient, transport.NewConfig(), telemetry.NoOp(), zap.NewNop())
	epServer := transport.NewEndpoint(connServer, transport.NewConfig(), telemetry.NoOp(), zap.NewNop())

	client := conn.New(epClient, serverAddr, conn.DefaultConfig(), telemetry.NoOp(), zap.NewNop())
	server := conn.New(epServer, clientAddr, conn.DefaultConfig(), telemetry.NoOp(), zap.NewNop())

	clientExt := handshake.NewClient(1, []byte("alice"), []byte("secret"), telemetry.NoOp())
	serverExt := handshake.NewServer(42, 20, func(token []byte) (bool, string) {
		return string(token) == "secret", "bad token"
	}, telemetry.NoOp())

	client.AddExtension(clientExt)
	server.AddExtension(serverExt)

	now := time.Now()
	for i := 0; i < 8; i++ {
		client.Tick(now, 5*time.Millisecond, 5*time.Millisecond, 64, 64)
		server.Tick(now, 5*time.Millisecond, 5*time.Millisecond, 64, 64)
		time.Sleep(2 * time.Millisecond)
	}

	assert.Equal(t, handshake.Authenticated, clientExt.State())
	assert.Equal(t, handshake.Authenticated, serverExt.State())
	assert.Empty(t, client.RecvAll())
	assert.Empty(t, server.RecvAll())
}

func TestHandshakeRejectsBadToken(t *testing.T) {
	connClient, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer connClient.Close()
	connServer, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer connServer.Close()

	clientAddr := connClient.LocalAddr().(*net.UDPAddr)
	serverAddr := connServer.LocalAddr().(*net.UDPAddr)

	epClient := transport.NewEndpoint(connClient, transport.NewConfig(), telemetry.NoOp(), zap.NewNop())
	epServer := transport.NewEndpoint(connServer, transport.NewConfig(), telemetry.NoOp(), zap.NewNop())

	client := conn.New(epClient, serverAddr, conn.DefaultConfig(), telemetry.NoOp(), zap.NewNop())
	server := conn.New(epServer, clientAddr, conn.DefaultConfig(), telemetry.NoOp(), zap.NewNop())

	clientExt := handshake.NewClient(1, []byte("bob"), []byte("wrong"), telemetry.NoOp())
	serverExt := handshake.NewServer(7, 20, func(token []byte) (bool, string) {
		return string(token) == "secret", "bad token"
	}, telemetry.NoOp())

	client.AddExtension(clientExt)
	server.AddExtension(serverExt)

	now := time.Now()
	for i := 0; i < 8; i++ {
		client.Tick(now, 5*time.Millisecond, 5*time.Millisecond, 64, 64)
		server.Tick(now, 5*time.Millisecond, 5*time.Millisecond, 64, 64)
		time.Sleep(2 * time.Millisecond)
	}

	assert.Equal(t, handshake.Closed, clientExt.State())
	assert.Equal(t, handshake.Closed, serverExt.State())
}
