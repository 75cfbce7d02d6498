// Command neteqd listens for RTP on a UDP socket, feeds every stream
// through a NetEQ decoder instance keyed by SSRC, and serves live and
// historical jitter-buffer statistics over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowpbx/neteq/internal/api"
	"github.com/flowpbx/neteq/internal/config"
	neteqmetrics "github.com/flowpbx/neteq/internal/metrics"
	"github.com/flowpbx/neteq/internal/neteq/engine"
	"github.com/flowpbx/neteq/internal/neteq/rtp"
	"github.com/flowpbx/neteq/internal/statsdb"
	"github.com/prometheus/client_golang/prometheus"
)

// maxRTPPacket bounds the UDP read buffer at one standard Ethernet MTU,
// more than the largest UDP payload an unfragmented Ethernet frame can
// carry; a longer datagram is truncated to this size.
const maxRTPPacket = 1500

// networkTypeFromString maps the config's buffer-sizing profile name to
// engine.NetworkType.
func networkTypeFromString(s string) engine.NetworkType {
	switch s {
	case "udp-video-sync":
		return engine.NetworkUDPVideoSync
	case "tcp-normal":
		return engine.NetworkTCPNormal
	case "tcp-large-jitter":
		return engine.NetworkTCPLargeJitter
	case "tcp-xlarge-jitter":
		return engine.NetworkTCPXLargeJitter
	default:
		return engine.NetworkUDPNormal
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting neteqd",
		"rtp_port", cfg.RTPPort,
		"stats_port", cfg.StatsPort,
		"sample_rate", cfg.SampleRate,
		"network_type", cfg.NetworkType,
		"data_dir", cfg.DataDir,
	)

	db, err := statsdb.Open(cfg.DataDir)
	if err != nil {
		slog.Error("failed to open stats database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	snapshots := statsdb.NewSnapshotRepository(db)

	jwtSecret, err := cfg.JWTSecretBytes()
	if err != nil {
		slog.Error("failed to resolve jwt secret", "error", err)
		os.Exit(1)
	}

	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	registry := newSessionRegistry(cfg.SampleRate, networkTypeFromString(cfg.NetworkType), cfg.DataDir)
	prometheus.MustRegister(neteqmetrics.NewCollector(registry.list, time.Now()))

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: cfg.RTPPort})
	if err != nil {
		slog.Error("failed to open rtp socket", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	go receiveLoop(appCtx, conn, registry)
	go registry.runPlayout(appCtx, cfg.SampleRate/100)
	go snapshotLoop(appCtx, registry, snapshots)

	handler := api.NewServer(cfg, registry.list, snapshots, jwtSecret)
	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.StatsPort),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("stats http server listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("stats http server error", "error", err)
	}

	appCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("stats http server shutdown error", "error", err)
	}

	registry.closeAll()
	slog.Info("neteqd stopped")
}

// receiveLoop reads RTP datagrams, demultiplexes by SSRC, and feeds each
// packet to its session's decoder. Grounded on the teacher's per-leg
// forward loop (internal/media/relay.go forward()), substituting a
// single shared socket and SSRC-based session lookup for the teacher's
// fixed caller/callee leg pair.
func receiveLoop(ctx context.Context, conn *net.UDPConn, registry *sessionRegistry) {
	buf := make([]byte, maxRTPPacket)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			slog.Error("rtp read error", "error", err)
			continue
		}

		pkt, code := rtp.Parse(buf[:n])
		if code != 0 {
			slog.Debug("dropping malformed rtp packet", "error", code)
			continue
		}

		sess, err := registry.getOrCreate(pkt.SSRC)
		if err != nil {
			slog.Error("failed to create session", "error", err)
			continue
		}

		// Arrival time in sample-rate units, the clock arrival stats
		// compare against RTP timestamps.
		now := time.Now()
		sr := int64(registry.cfg.sampleRate)
		recvTS := uint32(now.Unix()*sr + int64(now.Nanosecond())*sr/int64(time.Second))
		if code := sess.inst.RecIn(buf[:n], recvTS); code != 0 {
			slog.Debug("recin failed", "session", sess.label, "error", code)
		}
	}
}

// snapshotLoop persists session stats to the stats database periodically.
func snapshotLoop(ctx context.Context, registry *sessionRegistry, repo statsdb.SnapshotRepository) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			registry.snapshotAll(ctx, repo)
		}
	}
}
