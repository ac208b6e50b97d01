// Command reliudp-echo is a demo entrypoint: a client and a server, each
// driving one Connection over a real loopback UDP socket, completing the
// Hello/Welcome/Auth/AuthResult handshake and then echoing Input records
// back as Delta records until interrupted.
package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ventosilenzioso/reliudp/internal/obslog"
	"github.com/ventosilenzioso/reliudp/internal/telemetry"
	"github.com/ventosilenzioso/reliudp/pkg/conn"
	"github.com/ventosilenzioso/reliudp/pkg/ext/handshake"
	"github.com/ventosilenzioso/reliudp/pkg/ext/ping"
	"github.com/ventosilenzioso/reliudp/pkg/health"
	"github.com/ventosilenzioso/reliudp/pkg/protocol"
	"github.com/ventosilenzioso/reliudp/pkg/transport"
)

const (
	version = "1.0.0"
	tickHz  = 60
)

// Config holds the demo's runtime settings; loadConfig fills in defaults
// and then reads overrides from the environment, since this command has
// no config file of its own.
type Config struct {
	ListenHost  string
	ServerHost  string
	ServerPort  int
	ClientPort  int
	MetricsAddr string
	Nickname    string
	Token       string
}

// loadConfig fills in defaults, then applies environment overrides. The
// demo fixes both the server's and the client's UDP port up front: each
// Connection here is a single dedicated peer-to-peer pairing, so there is
// no rendezvous step to negotiate.
func loadConfig() Config {
	cfg := Config{
		ListenHost:  "127.0.0.1",
		ServerHost:  "127.0.0.1",
		ServerPort:  19132,
		ClientPort:  19133,
		MetricsAddr: "127.0.0.1:9090",
		Nickname:    "guest",
		Token:       "letmein",
	}
	if v := os.Getenv("RELIUDP_SERVER_PORT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.ServerPort)
	}
	if v := os.Getenv("RELIUDP_CLIENT_PORT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.ClientPort)
	}
	if v := os.Getenv("RELIUDP_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	return cfg
}

func main() {
	obslog.Banner("reliudp echo demo", version)
	cfg := loadConfig()
	log := obslog.Named("main")

	mode := "server"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewSink(reg)
	go serveMetrics(cfg.MetricsAddr, reg, log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	errCh := make(chan error, 1)
	switch mode {
	case "server":
		go func() { errCh <- runServer(cfg, metrics) }()
	case "client":
		go func() { errCh <- runClient(cfg, metrics) }()
	default:
		log.Sugar().Fatalf("unknown mode %q, want \"server\" or \"client\"", mode)
	}

	select {
	case err := <-errCh:
		if err != nil {
			log.Sugar().Errorf("exited with error: %v", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		log.Sugar().Infof("received signal %v, shutting down", sig)
		os.Exit(0)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	_ = http.ListenAndServe(addr, mux)
}

func runServer(cfg Config, metrics *telemetry.Sink) error {
	log := obslog.Named("server")
	addr := &net.UDPAddr{IP: net.ParseIP(cfg.ListenHost), Port: cfg.ServerPort}
	sock, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}
	defer sock.Close()
	log.Sugar().Infof("listening on %s", sock.LocalAddr())

	ep := transport.NewEndpoint(sock, transport.NewConfig(), metrics, log)

	peerAddr := &net.UDPAddr{IP: net.ParseIP(cfg.ListenHost), Port: cfg.ClientPort}
	c := conn.New(ep, peerAddr, conn.DefaultConfig(), metrics, log)
	c.AddExtension(handshake.NewServer(1, tickHz, handshake.AlwaysAllow, metrics))
	c.AddExtension(ping.New(health.DefaultPingConfig(), c.Rto(), metrics))

	ticker := time.NewTicker(time.Second / tickHz)
	defer ticker.Stop()
	for now := range ticker.C {
		c.Tick(now, 5*time.Millisecond, 5*time.Millisecond, 256, 256)
		for _, rec := range c.RecvAll() {
			if in, ok := rec.(protocol.Input); ok {
				_ = c.SendRecord(protocol.Delta{Blob: in.Blob})
			}
		}
	}
	return nil
}

func runClient(cfg Config, metrics *telemetry.Sink) error {
	log := obslog.Named("client")
	sock, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(cfg.ListenHost), Port: cfg.ClientPort})
	if err != nil {
		return err
	}
	defer sock.Close()

	remote := &net.UDPAddr{IP: net.ParseIP(cfg.ServerHost), Port: cfg.ServerPort}
	ep := transport.NewEndpoint(sock, transport.NewConfig(), metrics, log)
	c := conn.New(ep, remote, conn.DefaultConfig(), metrics, log)
	c.AddExtension(handshake.NewClient(1, []byte(cfg.Nickname), []byte(cfg.Token), metrics))
	c.AddExtension(ping.New(health.DefaultPingConfig(), c.Rto(), metrics))

	ticker := time.NewTicker(time.Second / tickHz)
	defer ticker.Stop()
	tick := 0
	for now := range ticker.C {
		c.Tick(now, 5*time.Millisecond, 5*time.Millisecond, 256, 256)
		for _, rec := range c.RecvAll() {
			if d, ok := rec.(protocol.Delta); ok {
				log.Sugar().Infof("echoed back %d bytes", len(d.Blob))
			}
		}
		tick++
		if tick%tickHz == 0 {
			_ = c.SendRecord(protocol.Input{Blob: []byte("tick")})
		}
	}
	return nil
}
