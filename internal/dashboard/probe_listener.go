package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// probeReply reports whether the camera and the backend session are both up,
// e.g. "rppg-dashboard:degraded camera=true stream=false".
func (d *Dashboard) probeReply() string {
	return fmt.Sprintf("rppg-dashboard:%s camera=%t stream=%t\n",
		d.healthState(), d.health.CameraOpen(), d.health.StreamConnected())
}

func (d *Dashboard) runProbeListener(ctx context.Context) error {
	addr := strings.TrimSpace(d.cfg.ProbeListenAddr)
	if addr == "" {
		d.logger.Info("probe endpoint disabled")
		return nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen probe endpoint %s: %w", addr, err)
	}
	d.logger.Info("probe endpoint listening", "addr", ln.Addr().String())
	return serveProbe(ctx, ln, d.probeReply)
}

func serveProbe(ctx context.Context, ln net.Listener, reply func() string) error {
	defer func() { _ = ln.Close() }()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, acceptErr := ln.Accept()
		if acceptErr != nil {
			if ctx.Err() != nil {
				return nil
			}
			if ne, ok := acceptErr.(net.Error); ok && ne.Timeout() {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			if errors.Is(acceptErr, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept probe endpoint %s: %w", ln.Addr(), acceptErr)
		}

		_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
		_, _ = conn.Write([]byte(reply()))
		_ = conn.Close()
	}
}
