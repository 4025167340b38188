package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

const testMethod = "/rppg.inference.v1.InferenceService/Stream"

func startEchoBackend(t *testing.T) (string, <-chan metadata.MD) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	seen := make(chan metadata.MD, 1)
	srv := grpc.NewServer(
		grpc.ForceServerCodec(jsonCodec{}),
		grpc.UnknownServiceHandler(func(_ any, stream grpc.ServerStream) error {
			md, _ := metadata.FromIncomingContext(stream.Context())
			seen <- md
			for {
				var frame json.RawMessage
				if err := stream.RecvMsg(&frame); err != nil {
					return nil
				}
				reply := json.RawMessage(`{"advanced":{"rppg":[0.25]},"inference":{"hr":"64"}}`)
				if err := stream.SendMsg(reply); err != nil {
					return err
				}
			}
		}),
	)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(srv.Stop)
	return ln.Addr().String(), seen
}

func TestGRPCSessionRoundTrip(t *testing.T) {
	addr, seen := startEchoBackend(t)
	dialer := NewGRPCDialer(addr, testMethod, "secret", "goClient", nil, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := dialer.Dial(ctx)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	queue := NewFrameQueue(2)
	queue.Push(BuildEnvelope("frame-1", "1.0", "Zm9v"))
	received := make(chan string, 1)
	s := NewSession(conn, queue, func(p []byte) { received <- string(p) }, discardLogger())
	runCtx, stop := context.WithCancel(ctx)
	done := runSession(t, s, runCtx)

	select {
	case md := <-seen:
		if got := md.Get("api_key"); len(got) != 1 || got[0] != "secret" {
			t.Fatalf("api key metadata = %v", got)
		}
		if got := md.Get("client"); len(got) != 1 || got[0] != "goClient" {
			t.Fatalf("client metadata = %v", got)
		}
	case <-ctx.Done():
		t.Fatalf("backend never saw the stream")
	}

	select {
	case text := <-received:
		if text != `{"advanced":{"rppg":[0.25]},"inference":{"hr":"64"}}` {
			t.Fatalf("unexpected reply %q", text)
		}
	case <-ctx.Done():
		t.Fatalf("no reply received")
	}

	stop()
	if err := waitErr(t, done); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
}

func TestGRPCCloseUnblocksPendingWrite(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := grpc.NewServer(
		grpc.ForceServerCodec(jsonCodec{}),
		grpc.UnknownServiceHandler(func(_ any, stream grpc.ServerStream) error {
			<-stream.Context().Done()
			return nil
		}),
	)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(srv.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := NewGRPCDialer(ln.Addr().String(), testMethod, "k", "c", nil, discardLogger()).Dial(ctx)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	payload := []byte(`"` + strings.Repeat("a", 32<<10) + `"`)
	writeErr := make(chan error, 1)
	go func() {
		for {
			if err := conn.Write(ctx, payload); err != nil {
				writeErr <- err
				return
			}
		}
	}()

	// The backend never reads, so the writer ends up parked in flow control.
	time.Sleep(100 * time.Millisecond)
	if err := conn.Close("session ended"); err != nil {
		t.Fatalf("close: %v", err)
	}

	select {
	case err := <-writeErr:
		if !errors.Is(err, ErrConnection) && !errors.Is(err, ErrProtocol) {
			t.Fatalf("unexpected write error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("write still blocked after close")
	}
}

func TestGRPCDialCancelled(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	dialer := NewGRPCDialer(addr, testMethod, "k", "c", nil, discardLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, err := dialer.Dial(ctx); !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}

func TestGRPCErrorClassification(t *testing.T) {
	if err := grpcError(errors.New("transport is closing")); !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}
