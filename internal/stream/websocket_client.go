package stream

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

const wsReadLimit = 10 << 20

// BuildWebSocketURL appends the api key and client id to the backend base
// endpoint.
func BuildWebSocketURL(base, apiKey, clientID string) string {
	params := url.Values{}
	params.Set("api_key", apiKey)
	params.Set("client", clientID)
	return strings.TrimRight(base, "/") + "/?" + params.Encode()
}

type WebSocketDialer struct {
	logger       *slog.Logger
	url          string
	tlsConfig    *tls.Config
	writeTimeout time.Duration
	pingInterval time.Duration
}

func NewWebSocketDialer(url string, tlsCfg *tls.Config, writeTimeout, pingInterval time.Duration, logger *slog.Logger) *WebSocketDialer {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 10 * time.Second
	}
	return &WebSocketDialer{
		logger:       logger,
		url:          url,
		tlsConfig:    tlsCfg,
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
	}
}

// Target hides the api key.
func (d *WebSocketDialer) Target() string {
	u, err := url.Parse(d.url)
	if err != nil {
		return "websocket"
	}
	u.RawQuery = ""
	return u.String()
}

func (d *WebSocketDialer) Dial(ctx context.Context) (Conn, error) {
	opt := &websocket.DialOptions{}
	if d.tlsConfig != nil {
		opt.HTTPClient = &http.Client{Transport: &http.Transport{TLSClientConfig: d.tlsConfig}}
	}
	conn, _, err := websocket.Dial(ctx, d.url, opt)
	if err != nil {
		return nil, fmt.Errorf("%w: websocket dial %s: %v", ErrConnection, d.Target(), err)
	}
	conn.SetReadLimit(wsReadLimit)

	c := &webSocketConn{conn: conn, writeTimeout: d.writeTimeout}
	c.startPingLoop(d.pingInterval)
	d.logger.Info("websocket stream connected", "url", d.Target())
	return c, nil
}

type webSocketConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	closeOnce  sync.Once
	pingCancel context.CancelFunc
}

func (c *webSocketConn) Write(ctx context.Context, payload []byte) error {
	wctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	if err := c.conn.Write(wctx, websocket.MessageText, payload); err != nil {
		return wsError(err)
	}
	return nil
}

// Read returns binary frames decoded as UTF-8 text; invalid bytes are dropped.
func (c *webSocketConn) Read(ctx context.Context) ([]byte, error) {
	typ, data, err := c.conn.Read(ctx)
	if err != nil {
		return nil, wsError(err)
	}
	if typ == websocket.MessageBinary {
		data = []byte(strings.ToValidUTF8(string(data), ""))
	}
	return data, nil
}

func (c *webSocketConn) Close(reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.pingCancel()
		err = c.conn.Close(websocket.StatusNormalClosure, reason)
	})
	return err
}

func (c *webSocketConn) startPingLoop(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	c.pingCancel = cancel
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
				_ = c.conn.Ping(pingCtx)
				pingCancel()
			}
		}
	}()
}

func wsError(err error) error {
	switch websocket.CloseStatus(err) {
	case websocket.StatusProtocolError, websocket.StatusUnsupportedData,
		websocket.StatusInvalidFramePayloadData, websocket.StatusMessageTooBig:
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrConnection, err)
}
