package stream

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type jsonCodec struct{}

func (jsonCodec) Name() string {
	return "json"
}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// GRPCDialer opens a bidirectional stream carrying the same JSON documents as
// the websocket transport.
type GRPCDialer struct {
	logger    *slog.Logger
	addr      string
	method    string
	apiKey    string
	clientID  string
	tlsConfig *tls.Config
}

func NewGRPCDialer(addr, method, apiKey, clientID string, tlsCfg *tls.Config, logger *slog.Logger) *GRPCDialer {
	return &GRPCDialer{
		logger:    logger,
		addr:      addr,
		method:    method,
		apiKey:    apiKey,
		clientID:  clientID,
		tlsConfig: tlsCfg,
	}
}

func (d *GRPCDialer) Target() string {
	return d.addr + d.method
}

func (d *GRPCDialer) Dial(ctx context.Context) (Conn, error) {
	var creds credentials.TransportCredentials
	if d.tlsConfig != nil {
		creds = credentials.NewTLS(d.tlsConfig)
	} else {
		creds = insecure.NewCredentials()
	}

	cc, err := grpc.NewClient(
		d.addr,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{}), grpc.CallContentSubtype("json")),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: grpc client %s: %v", ErrConnection, d.addr, err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	streamCtx = metadata.AppendToOutgoingContext(streamCtx, "api_key", d.apiKey, "client", d.clientID)
	stop := context.AfterFunc(ctx, cancel)
	s, err := cc.NewStream(streamCtx, &grpc.StreamDesc{ClientStreams: true, ServerStreams: true}, d.method, grpc.WaitForReady(true))
	if !stop() {
		cancel()
		_ = cc.Close()
		return nil, fmt.Errorf("%w: grpc open stream %s: %v", ErrConnection, d.Target(), ctx.Err())
	}
	if err != nil {
		cancel()
		_ = cc.Close()
		return nil, fmt.Errorf("%w: grpc open stream %s: %v", ErrConnection, d.Target(), err)
	}
	d.logger.Info("grpc stream connected", "addr", d.addr, "method", d.method)
	return &grpcConn{cc: cc, stream: s, cancel: cancel}, nil
}

type grpcConn struct {
	cc        *grpc.ClientConn
	stream    grpc.ClientStream
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (c *grpcConn) Write(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.stream.SendMsg(json.RawMessage(payload)); err != nil {
		return grpcError(err)
	}
	return nil
}

func (c *grpcConn) Read(ctx context.Context) ([]byte, error) {
	var msg json.RawMessage
	if err := c.stream.RecvMsg(&msg); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, grpcError(err)
	}
	return msg, nil
}

// Close may run while Write is inside SendMsg, so it only cancels the stream
// context and closes the client; CloseSend is not safe to call concurrently
// with SendMsg.
func (c *grpcConn) Close(string) error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.cc.Close()
	})
	return err
}

func grpcError(err error) error {
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: stream closed by backend", ErrConnection)
	}
	switch status.Code(err) {
	case codes.Internal, codes.InvalidArgument, codes.Unimplemented:
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return fmt.Errorf("%w: %v", ErrConnection, err)
}
