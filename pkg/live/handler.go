package live

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/practicedesk/portal/pkg/auth/sessionauth"
	"github.com/practicedesk/portal/pkg/guard"
	"github.com/practicedesk/portal/pkg/toast"
)

// Config configures the live endpoint.
type Config struct {
	// ReadTimeout is how long a silent client is kept. Heartbeat pongs
	// extend it. Default: 60 seconds.
	ReadTimeout time.Duration

	// WriteTimeout bounds each write. Default: 10 seconds.
	WriteTimeout time.Duration

	// HeartbeatInterval is the ping period. Default: 30 seconds.
	HeartbeatInterval time.Duration

	// MaxMessageSize caps client frames. Default: 4096 bytes.
	MaxMessageSize int64

	// ReadBufferSize and WriteBufferSize size the upgrader buffers.
	// Default: 1024 bytes each.
	ReadBufferSize  int
	WriteBufferSize int

	// CheckOrigin validates the upgrade request origin.
	// Default: SameOriginCheck.
	CheckOrigin func(r *http.Request) bool

	// SignInPath is sent with signout frames. Default: "/login".
	SignInPath string

	// ForgetAfter is how long a session's guard state outlives its last
	// connection, so page reloads keep the cooldown. Default: 30 minutes.
	ForgetAfter time.Duration

	// Guard configures the per-connection guard.
	Guard guard.Config
}

// DefaultConfig returns the default live configuration.
func DefaultConfig() Config {
	return Config{
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		MaxMessageSize:    4096,
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		CheckOrigin:       SameOriginCheck,
		SignInPath:        "/login",
		ForgetAfter:       30 * time.Minute,
		Guard:             guard.DefaultConfig(),
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = d.WriteBufferSize
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = d.CheckOrigin
	}
	if c.SignInPath == "" {
		c.SignInPath = d.SignInPath
	}
	if c.ForgetAfter <= 0 {
		c.ForgetAfter = d.ForgetAfter
	}
}

// SameOriginCheck accepts requests without an Origin header and requests
// whose Origin host matches the Host header.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || r.Host == "" {
		return false
	}
	return u.Host == r.Host
}

// Observer receives connection counts.
type Observer interface {
	ObserveLiveConnections(delta int)
}

// Handler serves the live WebSocket endpoint. Each connection runs a
// guard.Guard for its session. The sessionauth middleware must run first.
type Handler struct {
	deps     guard.Deps
	config   Config
	tracker  *guard.Tracker
	upgrader websocket.Upgrader
	observer Observer
	logger   *slog.Logger

	mu     sync.Mutex
	conns  map[*Conn]struct{}
	refs   map[string]*sessionRef
	closed bool
}

type sessionRef struct {
	conns int
	timer *time.Timer
}

// Option configures a Handler.
type Option func(*Handler)

// WithObserver sets the connection observer.
func WithObserver(o Observer) Option {
	return func(h *Handler) {
		h.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHandler creates a live handler. deps.Notifier is ignored: each guard
// notifies through its own connection.
func NewHandler(deps guard.Deps, config Config, opts ...Option) *Handler {
	config.applyDefaults()
	h := &Handler{
		deps:    deps,
		config:  config,
		tracker: guard.NewTracker(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		logger: slog.Default(),
		conns:  make(map[*Conn]struct{}),
		refs:   make(map[string]*sessionRef),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "live")
	if h.deps.Logger == nil {
		h.deps.Logger = h.logger
	}
	return h
}

// Tracker returns the guard state shared by the handler's connections.
func (h *Handler) Tracker() *guard.Tracker {
	return h.tracker
}

// Len returns the number of open connections.
func (h *Handler) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// ServeHTTP upgrades the request and serves the connection until it closes.
// Requests without a signed-in session get 401. The optional "path" query
// parameter is the page the client is on.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionauth.SessionFromContext(r.Context())
	if !ok || !sess.SignedIn() {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &Conn{
		ws:      ws,
		sess:    sess,
		config:  h.config,
		logger:  h.logger.With("session_id", sess.ID),
		onClose: h.release,
		done:    make(chan struct{}),
	}
	deps := h.deps
	deps.Notifier = toast.EmitterNotifier{Emitter: c}
	deps.Logger = c.logger
	c.guard = guard.New(sess, h.acquire(c), deps, h.config.Guard)

	c.logger.Debug("live connection opened")
	// The request context ends when the handler returns, so the guard runs
	// on its own.
	c.start(context.WithoutCancel(r.Context()), r.URL.Query().Get("path"))
}

func (h *Handler) acquire(c *Conn) *guard.Machine {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.conns[c] = struct{}{}
	ref, ok := h.refs[c.sess.ID]
	if !ok {
		ref = &sessionRef{}
		h.refs[c.sess.ID] = ref
	}
	if ref.timer != nil {
		ref.timer.Stop()
		ref.timer = nil
	}
	ref.conns++

	if h.observer != nil {
		h.observer.ObserveLiveConnections(1)
	}
	return h.tracker.Machine(c.sess.ID)
}

func (h *Handler) release(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; !ok {
		return
	}
	delete(h.conns, c)
	if h.observer != nil {
		h.observer.ObserveLiveConnections(-1)
	}

	id := c.sess.ID
	ref := h.refs[id]
	if ref == nil {
		return
	}
	ref.conns--
	if ref.conns > 0 {
		return
	}
	if !c.sess.SignedIn() {
		delete(h.refs, id)
		h.tracker.Forget(id)
		return
	}
	ref.timer = time.AfterFunc(h.config.ForgetAfter, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if cur := h.refs[id]; cur == ref && ref.conns == 0 {
			delete(h.refs, id)
			h.tracker.Forget(id)
		}
	})
}

// Close closes every connection and refuses new ones.
func (h *Handler) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	for _, ref := range h.refs {
		if ref.timer != nil {
			ref.timer.Stop()
		}
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
