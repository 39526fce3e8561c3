// Package pushchannel dials the backend's websocket push channel.
package pushchannel

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"Overlord/internal/domain/models"
	drepo "Overlord/internal/domain/repository"
	applogger "Overlord/pkg/logger"

	"github.com/gorilla/websocket"
)

// Dialer implements repository.PushDialer over gorilla/websocket.
type Dialer struct {
	url          string
	pingInterval time.Duration
	dialer       *websocket.Dialer
	log          *applogger.Logger
}

// New creates a dialer for wsURL. A zero pingInterval disables keepalive pings.
func New(wsURL string, handshakeTimeout, pingInterval time.Duration, l *applogger.Logger) *Dialer {
	return &Dialer{
		url:          wsURL,
		pingInterval: pingInterval,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		log: l,
	}
}

var _ drepo.PushDialer = (*Dialer)(nil)

// URLFromBase derives ws(s)://host/ws from the backend's http(s) base URL.
func URLFromBase(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

// Dial opens one connection.
func (d *Dialer) Dial(ctx context.Context) (drepo.PushConn, error) {
	conn, _, err := d.dialer.DialContext(ctx, d.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.url, err)
	}
	d.log.Debug("push channel connected", applogger.String("url", d.url))

	c := &Conn{conn: conn, done: make(chan struct{})}
	if d.pingInterval > 0 {
		pongWait := 2 * d.pingInterval
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		go c.pingLoop(d.pingInterval)
	}
	return c, nil
}

// Conn is a single websocket connection.
type Conn struct {
	conn      *websocket.Conn
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// ReadMessage returns the next text or binary frame. Cancelling ctx closes
// the connection so the blocked read returns.
func (c *Conn) ReadMessage(ctx context.Context) ([]byte, error) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-stop:
		case <-c.done:
		}
	}()

	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", models.ErrChannelClosed, err)
	}
	return msg, nil
}

// Close closes the connection once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *Conn) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(interval)); err != nil {
				return
			}
		}
	}
}
