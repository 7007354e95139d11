package live

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/practicedesk/portal/pkg/guard"
	"github.com/practicedesk/portal/pkg/routepath"
	"github.com/practicedesk/portal/pkg/session"
	"github.com/practicedesk/portal/pkg/toast"
)

// ErrConnClosed is returned when writing to a closed connection.
var ErrConnClosed = errors.New("live: connection closed")

// Conn is one live connection of a signed-in session. It implements
// toast.Emitter.
type Conn struct {
	ws      *websocket.Conn
	sess    *session.Session
	guard   *guard.Guard
	config  Config
	logger  *slog.Logger
	onClose func(*Conn)

	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}

	signOutOnce sync.Once

	unsubscribe func()
}

var _ toast.Emitter = (*Conn)(nil)

// Session returns the connection's session.
func (c *Conn) Session() *session.Session {
	return c.sess
}

// Done is closed when the connection has closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Emit sends a browser event. Toast events are sent as toast frames.
func (c *Conn) Emit(name string, data any) error {
	typ := FrameEvent
	if name == toast.EventName {
		typ = FrameToast
	}
	return c.send(Frame{Type: typ, Name: name, Detail: data})
}

func (c *Conn) send(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed.Load() {
		return ErrConnClosed
	}
	c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Debug("write failed", "error", err)
		go c.Close()
		return err
	}
	return nil
}

// Close stops the guard and closes the socket. It is safe to call more
// than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.closed.Store(true)
		c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
		c.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.ws.Close()
		c.writeMu.Unlock()

		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		c.guard.Stop()
		close(c.done)

		if c.onClose != nil {
			c.onClose(c)
		}
	})
}

func (c *Conn) start(ctx context.Context, path string) {
	if cleaned, err := routepath.Clean(path); err == nil && path != "" {
		c.guard.SetRoute(cleaned)
	}
	c.unsubscribe = c.sess.Subscribe(c.onSessionEvent)
	if !c.sess.SignedIn() {
		// Signed out between the handler's check and Subscribe.
		c.signOut()
		return
	}
	c.guard.Start(ctx)

	go c.writeLoop()
	c.readLoop()
}

func (c *Conn) onSessionEvent(ev session.Event, _ *session.Session) {
	if ev != session.SignedOut {
		return
	}
	// Listeners run on the signing-out goroutine, which may be the guard's.
	go c.signOut()
}

// signOut tells the client its session ended and closes the connection.
func (c *Conn) signOut() {
	c.signOutOnce.Do(func() {
		if err := c.send(Frame{Type: FrameSignOut, Redirect: c.config.SignInPath}); err != nil && !errors.Is(err, ErrConnClosed) {
			c.logger.Debug("signout frame not delivered", "error", err)
		}
		c.Close()
	})
}

// readLoop reads client frames until the socket fails or closes.
func (c *Conn) readLoop() {
	defer c.Close()

	c.ws.SetReadLimit(c.config.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		return nil
	})

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.logger.Warn("read error", "error", err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		frame, err := DecodeFrame(msg)
		if err != nil {
			c.logger.Debug("frame decode error", "error", err)
			continue
		}

		switch frame.Type {
		case FrameRoute:
			path, err := routepath.Clean(frame.Path)
			if err != nil {
				c.logger.Debug("invalid route", "path", frame.Path, "error", err)
				continue
			}
			c.guard.SetRoute(path)
		case FramePing:
			if err := c.send(Frame{Type: FramePong}); err != nil && !errors.Is(err, ErrConnClosed) {
				c.logger.Debug("pong not delivered", "error", err)
			}
		default:
			c.logger.Debug("unknown frame type", "type", frame.Type)
		}
	}
}

// writeLoop sends heartbeat pings until the connection closes.
func (c *Conn) writeLoop() {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			if c.closed.Load() {
				c.writeMu.Unlock()
				return
			}
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("ping failed", "error", err)
				go c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
