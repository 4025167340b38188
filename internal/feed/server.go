package feed

import (
	"context"
	"encoding/json"
	"errors"
	"image/jpeg"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"rppg-dashboard/internal/model"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingEvery    = (pongWait * 9) / 10
	frameQuality = 80
	updateBuffer = 64
)

type StatusFunc func() map[string]any

// SnapshotFunc returns the updates a new subscriber needs to render the
// current dashboard state.
type SnapshotFunc func() []model.Update

type subscriber struct {
	writeMu sync.Mutex
	binary  bool
}

// Server exposes the dashboard over HTTP: health, status, the latest camera
// preview and a websocket stream of updates.
type Server struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader
	status   StatusFunc
	snapshot SnapshotFunc
	updates  chan model.Update

	mu      sync.Mutex
	clients map[*websocket.Conn]*subscriber

	frame   atomic.Pointer[model.DisplayFrame]
	dropped atomic.Uint64
}

func NewServer(logger *slog.Logger, status StatusFunc, snapshot SnapshotFunc) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		status:   status,
		snapshot: snapshot,
		updates:  make(chan model.Update, updateBuffer),
		clients:  make(map[*websocket.Conn]*subscriber),
	}
}

// Publish queues u for broadcast. It never blocks; updates are dropped when
// subscribers cannot keep up.
func (s *Server) Publish(u model.Update) {
	select {
	case s.updates <- u:
	default:
		s.dropped.Add(1)
	}
}

// SetFrame replaces the preview served on /frame.jpg.
func (s *Server) SetFrame(df model.DisplayFrame) {
	s.frame.Store(&df)
}

func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:   []string{"Content-Length"},
		MaxAge:          12 * time.Hour,
	}))

	r.GET("/healthz", s.handleHealth)
	r.GET("/status", s.handleStatus)
	r.GET("/frame.jpg", s.handleFrame)
	r.GET("/ws", s.handleWS)
	return r
}

// Run serves on addr until ctx ends.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		s.closeAll()
	}()
	go s.broadcast(ctx)

	s.logger.Info("feed listening", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("feed request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (s *Server) handleStatus(c *gin.Context) {
	payload := map[string]any{}
	if s.status != nil {
		if st := s.status(); st != nil {
			payload = st
		}
	}
	payload["ws_clients"] = s.ClientCount()
	payload["feed_dropped"] = s.dropped.Load()
	c.JSON(http.StatusOK, payload)
}

func (s *Server) handleFrame(c *gin.Context) {
	df := s.frame.Load()
	if df == nil || df.Image == nil {
		c.String(http.StatusServiceUnavailable, "no frame yet")
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Header("Content-Type", "image/jpeg")
	c.Status(http.StatusOK)
	if err := jpeg.Encode(c.Writer, df.Image, &jpeg.Options{Quality: frameQuality}); err != nil {
		s.logger.Warn("preview encode failed", "error", err)
	}
}

func (s *Server) handleWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	sub := &subscriber{binary: c.Query("format") == "cbor"}
	if s.snapshot != nil {
		for _, u := range s.snapshot() {
			if err := s.write(conn, sub, u); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
	s.mu.Lock()
	s.clients[conn] = sub
	s.mu.Unlock()
	defer s.removeClient(conn)

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				sub.writeMu.Lock()
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				err := conn.WriteMessage(websocket.PingMessage, nil)
				sub.writeMu.Unlock()
				if err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	// Subscribers only send control frames; reading keeps pongs flowing.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) broadcast(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-s.updates:
			var stale []*websocket.Conn
			s.mu.Lock()
			for conn, sub := range s.clients {
				if err := s.write(conn, sub, u); err != nil {
					stale = append(stale, conn)
				}
			}
			s.mu.Unlock()
			for _, conn := range stale {
				s.removeClient(conn)
			}
		}
	}
}

func (s *Server) write(conn *websocket.Conn, sub *subscriber, u model.Update) error {
	messageType, payload, err := Encode(u, sub.binary)
	if err != nil {
		s.logger.Warn("feed encode failed", "type", u.Type, "error", err)
		return nil
	}
	sub.writeMu.Lock()
	defer sub.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(messageType, payload)
}

// Encode renders u as a JSON text frame, or a CBOR binary frame when binary
// is set.
func Encode(u model.Update, binary bool) (int, []byte, error) {
	if binary {
		payload, err := cbor.Marshal(u)
		return websocket.BinaryMessage, payload, err
	}
	payload, err := json.Marshal(u)
	return websocket.TextMessage, payload, err
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	_ = conn.Close()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.mu.Unlock()
	for _, conn := range conns {
		s.removeClient(conn)
	}
}
