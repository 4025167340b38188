package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Conn is one streaming connection to the inference backend. Read returns the
// next message as text. Close must unblock pending Read and Write calls.
type Conn interface {
	Write(ctx context.Context, payload []byte) error
	Read(ctx context.Context) ([]byte, error)
	Close(reason string) error
}

type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
	Target() string
}

// MessageHandler receives each inbound payload in arrival order.
type MessageHandler func(payload []byte)

var errUplinkClosed = errors.New("uplink queue closed")

type SessionStats struct {
	FramesSent       uint64
	MessagesReceived uint64
}

// Session runs the send and receive duties of one connection. The first duty
// to fail cancels the other and the connection is closed.
type Session struct {
	logger  *slog.Logger
	conn    Conn
	queue   *FrameQueue
	handler MessageHandler

	sent     atomic.Uint64
	received atomic.Uint64
}

func NewSession(conn Conn, queue *FrameQueue, handler MessageHandler, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if handler == nil {
		handler = func([]byte) {}
	}
	return &Session{logger: logger, conn: conn, queue: queue, handler: handler}
}

// Run blocks until ctx ends, the uplink queue is closed, or either direction
// fails. A nil return means the session ended cleanly.
func (s *Session) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() {
		_ = s.conn.Close("session ended")
	})
	defer stop()

	g.Go(func() error {
		return s.sendLoop(gctx)
	})
	g.Go(func() error {
		return s.receiveLoop(gctx)
	})

	err := g.Wait()
	_ = s.conn.Close("session ended")
	s.logger.Info("session finished", "frames_sent", s.sent.Load(), "messages_received", s.received.Load(), "error", err)
	if err == nil || errors.Is(err, errUplinkClosed) || ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Session) Stats() SessionStats {
	return SessionStats{FramesSent: s.sent.Load(), MessagesReceived: s.received.Load()}
}

func (s *Session) sendLoop(ctx context.Context) error {
	for {
		msg, ok := s.queue.Pop(ctx)
		if !ok {
			if ctx.Err() != nil {
				return nil
			}
			return errUplinkClosed
		}
		payload, err := EncodeMessage(msg)
		if err != nil {
			s.logger.Warn("dropping unencodable frame message", "datapt_id", msg.DataPointID, "error", err)
			continue
		}
		if err := s.conn.Write(ctx, payload); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return classify("send", err)
		}
		s.sent.Add(1)
	}
}

func (s *Session) receiveLoop(ctx context.Context) error {
	for {
		payload, err := s.conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return classify("receive", err)
		}
		s.received.Add(1)
		s.handler(payload)
	}
}

func classify(op string, err error) error {
	if errors.Is(err, ErrProtocol) || errors.Is(err, ErrConnection) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrConnection, err)
}
