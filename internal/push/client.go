package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	readLimit    = 1 << 20
	writeWait    = 5 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 25 * time.Second
)

// ErrUnavailable is returned when the channel could not be established
// within the configured number of attempts.
var ErrUnavailable = errors.New("push: channel unavailable")

var ErrClosed = errors.New("push: client closed")

type TokenSource interface {
	Token() string
}

type Config struct {
	URL      string
	Tokens   TokenSource
	Attempts int
	Delay    time.Duration
	Dialer   *websocket.Dialer
	Logger   *slog.Logger
}

// Client is a single-use push channel connection. After Done is closed a
// new Client has to be created.
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
	rooms    map[string]Envelope
	handlers map[string][]func(json.RawMessage)

	wmu sync.Mutex

	done     chan struct{}
	doneOnce sync.Once
	err      error
}

func NewClient(cfg Config) *Client {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:      cfg,
		logger:   logger.With("component", "push"),
		rooms:    make(map[string]Envelope),
		handlers: make(map[string][]func(json.RawMessage)),
		done:     make(chan struct{}),
	}
}

// On registers fn for events of the given type. Handlers run on the read
// goroutine, one event at a time.
func (c *Client) On(eventType string, fn func(json.RawMessage)) {
	c.mu.Lock()
	c.handlers[eventType] = append(c.handlers[eventType], fn)
	c.mu.Unlock()
}

// Connect dials the channel, retrying a fixed number of times with a fixed
// delay. A dropped connection is re-dialled with the same budget; when that
// fails too the client finishes with ErrUnavailable.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("push: client already started")
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(ctx)
	runCtx := c.ctx
	c.mu.Unlock()

	conn, err := c.dialWithRetry(runCtx)
	if err != nil {
		c.finish(err)
		return err
	}
	c.attach(conn)
	return nil
}

// Done is closed once the client stops for good.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err reports why the client stopped; nil after a normal Close.
func (c *Client) Err() error {
	select {
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.err
	default:
		return nil
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	cancel := c.cancel
	conn := c.conn
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		c.wmu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(writeWait))
		c.wmu.Unlock()
		_ = conn.Close()
	} else {
		c.finish(nil)
	}
	return nil
}

// Send writes a command and remembers room membership so it can be replayed
// after a reconnect.
func (c *Client) Send(cmd Envelope) error {
	c.mu.Lock()
	switch cmd.Type {
	case CommandSubscribe, CommandJoinTicket:
		c.rooms[roomKey(cmd)] = cmd
	case CommandLeaveTicket:
		delete(c.rooms, roomKey(Envelope{Type: CommandJoinTicket, TicketID: cmd.TicketID}))
	}
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return ErrClosed
	}
	return c.write(conn, cmd)
}

func (c *Client) write(conn *websocket.Conn, v interface{}) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func (c *Client) dialWithRetry(ctx context.Context) (*websocket.Conn, error) {
	target, err := c.dialURL()
	if err != nil {
		return nil, err
	}
	var lastErr error
	for attempt := 1; attempt <= c.cfg.Attempts; attempt++ {
		conn, _, err := c.cfg.Dialer.DialContext(ctx, target, nil)
		if err == nil {
			c.logger.Info("push connected", "attempt", attempt)
			return conn, nil
		}
		lastErr = err
		c.logger.Warn("push dial failed", "attempt", attempt, "err", err)
		if attempt == c.cfg.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.Delay):
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrUnavailable, c.cfg.Attempts, lastErr)
}

func (c *Client) dialURL() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse push url: %w", err)
	}
	if c.cfg.Tokens != nil {
		if tok := c.cfg.Tokens.Token(); tok != "" {
			q := u.Query()
			q.Set("token", tok)
			u.RawQuery = q.Encode()
		}
	}
	return u.String(), nil
}

func (c *Client) attach(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	replay := make([]Envelope, 0, len(c.rooms))
	for _, cmd := range c.rooms {
		replay = append(replay, cmd)
	}
	c.mu.Unlock()

	for _, cmd := range replay {
		if err := c.write(conn, cmd); err != nil {
			c.logger.Warn("push replay failed", "type", cmd.Type, "err", err)
		}
	}

	stop := make(chan struct{})
	go c.pingLoop(conn, stop)
	go c.readLoop(conn, stop)
}

func (c *Client) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			c.wmu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.wmu.Unlock()
			if err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn, stop chan struct{}) {
	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	var readErr error
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if mt != websocket.TextMessage {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(string(data)), "pong") {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("push: bad frame", "err", err)
			continue
		}
		c.dispatch(env)
	}
	close(stop)
	_ = conn.Close()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	ctx := c.ctx
	c.mu.Unlock()

	if ctx.Err() != nil {
		c.finish(nil)
		return
	}
	c.logger.Warn("push disconnected", "err", readErr)
	next, err := c.dialWithRetry(ctx)
	if err != nil {
		if ctx.Err() != nil {
			err = nil
		}
		c.finish(err)
		return
	}
	c.attach(next)
}

func (c *Client) dispatch(env Envelope) {
	c.mu.Lock()
	hs := append([]func(json.RawMessage){}, c.handlers[env.Type]...)
	c.mu.Unlock()
	for _, h := range hs {
		h(env.Data)
	}
}

func (c *Client) finish(err error) {
	c.doneOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		cancel := c.cancel
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		close(c.done)
	})
}

func roomKey(cmd Envelope) string {
	if cmd.Type == CommandJoinTicket {
		return fmt.Sprintf("ticket:%d", cmd.TicketID)
	}
	return cmd.Room
}
