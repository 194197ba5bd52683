// Package ws is the browser-facing websocket gateway. Each connection gets
// its own session; inbound messages are decoded and handled strictly in
// arrival order on the connection's read goroutine.
package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/harunnryd/juru/pkg/errorsx"
	"github.com/harunnryd/juru/pkg/logging"
	"github.com/harunnryd/juru/pkg/metrics"
	"github.com/harunnryd/juru/pkg/protocol"
	"github.com/harunnryd/juru/pkg/session"
	"golang.org/x/time/rate"
)

// DefaultHealthBody is returned by the liveness endpoints.
const DefaultHealthBody = "Translator Backend is working."

var ErrConnClosed = errors.New("connection closed")

type Config struct {
	ServerAddr     string   `mapstructure:"addr"`
	WebsocketPath  string   `mapstructure:"ws_path"`
	HealthBody     string   `mapstructure:"health_body"`
	MetricsPath    string   `mapstructure:"metrics_path"`
	AllowAnyOrigin bool     `mapstructure:"allow_any_origin"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// MaxMessageBytes caps one inbound websocket message.
	MaxMessageBytes int64 `mapstructure:"max_message_bytes"`
	// MessagesPerSecond paces inbound messages per connection; zero disables pacing.
	MessagesPerSecond float64       `mapstructure:"messages_per_second"`
	Burst             int           `mapstructure:"burst"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	SendBuffer        int           `mapstructure:"send_buffer"`
}

func (c Config) withDefaults() Config {
	if c.ServerAddr == "" {
		c.ServerAddr = ":3000"
	}
	if c.WebsocketPath == "" {
		c.WebsocketPath = "/"
	}
	if c.HealthBody == "" {
		c.HealthBody = DefaultHealthBody
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 10 << 20
	}
	if c.Burst <= 0 {
		c.Burst = 50
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if !c.AllowAnyOrigin && len(c.AllowedOrigins) == 0 {
		c.AllowAnyOrigin = true
	}
	return c
}

// Handler receives a connection's decoded events. Close must release every
// resource the handler owns before it returns.
type Handler interface {
	Handle(in protocol.Inbound)
	Close()
}

// HandlerFactory builds the handler for one accepted connection.
type HandlerFactory func(ctx context.Context, id string, emitter session.Emitter) Handler

// SessionFactory adapts session.New to a HandlerFactory.
func SessionFactory(cfg session.Config, deps session.Deps) HandlerFactory {
	return func(ctx context.Context, id string, emitter session.Emitter) Handler {
		return session.New(ctx, id, cfg, deps, emitter)
	}
}

type Transport struct {
	cfg      Config
	factory  HandlerFactory
	metrics  http.Handler
	observer metrics.Observer
	upgrader websocket.Upgrader
	server   *http.Server
	logger   *slog.Logger

	mu    sync.Mutex
	conns map[string]*conn
	wg    sync.WaitGroup

	draining atomic.Bool
}

// New builds the gateway. metricsHandler may be nil to disable the metrics route.
func New(cfg Config, factory HandlerFactory, observer metrics.Observer, metricsHandler http.Handler) *Transport {
	cfg = cfg.withDefaults()
	if observer == nil {
		observer = metrics.NoopObserver{}
	}
	t := &Transport{
		cfg:      cfg,
		factory:  factory,
		metrics:  metricsHandler,
		observer: observer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		conns:  make(map[string]*conn),
		logger: logging.NewComponentLogger(slog.Default(), "ws_transport"),
	}
	t.upgrader.CheckOrigin = t.checkOrigin
	return t
}

func (t *Transport) Name() string { return "ws" }

// Handler returns the HTTP routes: the websocket endpoint, liveness, and metrics.
func (t *Transport) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(t.cfg.WebsocketPath, t)
	mux.HandleFunc("/healthz", t.handleHealth)
	if t.cfg.WebsocketPath != "/" {
		mux.HandleFunc("/", t.handleHealth)
	}
	if t.metrics != nil && t.cfg.MetricsPath != "" {
		mux.Handle(t.cfg.MetricsPath, t.metrics)
	}
	return mux
}

// Start listens in the background until ctx ends or Stop is called.
func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	t.server = &http.Server{
		Addr:              t.cfg.ServerAddr,
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           t.Handler(),
	}
	go func() {
		<-ctx.Done()
		_ = t.server.Close()
	}()
	go func() {
		if err := t.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.logger.Error("ws_transport_server_error", slog.String("error", err.Error()))
		}
	}()
	t.logger.Info("ws_transport_listening",
		slog.String("addr", t.cfg.ServerAddr),
		slog.String("ws_path", t.cfg.WebsocketPath))
	return nil
}

// Stop refuses new connections, closes open ones, and waits for their
// sessions to release their resources.
func (t *Transport) Stop(ctx context.Context) error {
	t.draining.Store(true)
	var err error
	if t.server != nil {
		err = t.server.Shutdown(ctx)
	}
	t.mu.Lock()
	for _, c := range t.conns {
		c.close()
	}
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// ActiveConnections reports how many websocket connections are open.
func (t *Transport) ActiveConnections() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		t.handleHealth(w, r)
		return
	}
	if t.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	ws, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.logger.Warn("ws_upgrade_failed", slog.String("error", err.Error()))
		return
	}
	t.wg.Add(1)
	defer t.wg.Done()

	id := uuid.NewString()
	c := newConn(ws, t.cfg.SendBuffer, t.cfg.WriteTimeout)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := t.factory(ctx, id, c)
	t.attach(id, c)
	logger := t.logger.With(slog.String("session_id", id))
	logger.Info("ws_connected", slog.String("remote", r.RemoteAddr))

	defer func() {
		c.close()
		handler.Close()
		t.detach(id)
		logger.Info("ws_disconnected")
	}()

	var limiter *rate.Limiter
	if t.cfg.MessagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(t.cfg.MessagesPerSecond), t.cfg.Burst)
	}
	ws.SetReadLimit(t.cfg.MaxMessageBytes)
	for {
		mt, msg, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("ws_read_failed", slog.String("error", err.Error()))
			}
			return
		}
		if limiter != nil {
			if err := limiter.Wait(c.ctx); err != nil {
				return
			}
		}
		var in protocol.Inbound
		switch mt {
		case websocket.BinaryMessage:
			in, err = protocol.ParseBinary(msg)
		default:
			in, err = protocol.ParseText(msg)
		}
		if err != nil {
			logger.Warn("ws_protocol_error",
				slog.String("reason_code", string(errorsx.Reason(err))),
				slog.String("error", err.Error()))
			if sendErr := c.Send(protocol.ErrorEvent(err)); sendErr == nil {
				metrics.Record(t.observer, metrics.EventErrorSent, 1,
					map[string]string{"reason": string(errorsx.ReasonProtocol)})
			}
			continue
		}
		handler.Handle(in)
	}
}

func (t *Transport) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(t.cfg.HealthBody))
}

func (t *Transport) attach(id string, c *conn) {
	t.mu.Lock()
	t.conns[id] = c
	t.mu.Unlock()
}

func (t *Transport) detach(id string) {
	t.mu.Lock()
	delete(t.conns, id)
	t.mu.Unlock()
}

func (t *Transport) checkOrigin(r *http.Request) bool {
	if t.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	origin = strings.TrimRight(origin, "/")
	originHost := strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
	for _, allowed := range t.cfg.AllowedOrigins {
		a := strings.TrimRight(strings.TrimSpace(allowed), "/")
		if a == "" {
			continue
		}
		if strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") {
			if strings.EqualFold(a, origin) {
				return true
			}
			continue
		}
		if strings.EqualFold(a, originHost) {
			return true
		}
	}
	return false
}

// conn serializes writes to one websocket through a single writer goroutine.
type conn struct {
	ws           *websocket.Conn
	sendCh       chan []byte
	writeTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	once         sync.Once
}

func newConn(ws *websocket.Conn, buffer int, writeTimeout time.Duration) *conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{
		ws:           ws,
		sendCh:       make(chan []byte, buffer),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
	go c.loop()
	return c
}

// Send queues ev for the writer. It blocks while the queue is full and fails
// once the connection is closed.
func (c *conn) Send(ev protocol.Outbound) error {
	b, err := ev.Encode()
	if err != nil {
		return err
	}
	select {
	case <-c.ctx.Done():
		return errorsx.Wrap(ErrConnClosed, errorsx.ReasonTransportSend)
	default:
	}
	select {
	case c.sendCh <- b:
		return nil
	case <-c.ctx.Done():
		return errorsx.Wrap(ErrConnClosed, errorsx.ReasonTransportSend)
	}
}

func (c *conn) loop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg := <-c.sendCh:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *conn) close() {
	c.once.Do(func() {
		c.cancel()
		_ = c.ws.Close()
	})
}
