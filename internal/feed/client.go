package feed

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"solana-trade-feed/internal/observability"
)

// ConnState is the connection state machine position.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateHandshaking
	StateSubscribed
)

// String returns the state name.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateSubscribed:
		return "subscribed"
	default:
		return "unknown"
	}
}

// Conn is the minimal websocket surface the client needs. Satisfied by
// *websocket.Conn; injectable so the state machine can be driven in
// tests without a real socket.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// DialFunc opens a websocket connection.
type DialFunc func(ctx context.Context, url string, header http.Header) (Conn, error)

// gorillaDial is the default DialFunc using gorilla/websocket.
func gorillaDial(ctx context.Context, url string, header http.Header) (Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}

// ClientConfig configures the feed client.
type ClientConfig struct {
	// URL is the websocket endpoint of the realtime feed.
	URL string
	// Subjects to subscribe to on every (re)connect.
	Subjects []string
	// Origin header value attached at connect time.
	Origin string
	// UserAgent header value attached at connect time.
	UserAgent string
	// ReconnectDelay is the fixed delay before the single pending
	// reconnect attempt.
	ReconnectDelay time.Duration
	// WriteTimeout bounds outbound control writes.
	WriteTimeout time.Duration
	// Dial overrides the websocket dialer (tests).
	Dial DialFunc
}

// DefaultClientConfig returns a config with production defaults.
func DefaultClientConfig(url string, subjects []string) ClientConfig {
	return ClientConfig{
		URL:            url,
		Subjects:       subjects,
		Origin:         "https://pump.fun",
		UserAgent:      "solana-trade-feed/1.0",
		ReconnectDelay: 3 * time.Second,
		WriteTimeout:   10 * time.Second,
	}
}

// Client owns the persistent feed connection lifecycle: connect,
// handshake, subscribe, receive, reconnect. Received data frames are
// decoded and pushed to the event queue; the receive loop never blocks
// on persistence.
type Client struct {
	cfg     ClientConfig
	queue   *EventQueue
	decoder *Decoder
	logger  *log.Logger

	connMu sync.Mutex
	conn   Conn

	state            atomic.Int32
	closed           atomic.Bool
	reconnectPending atomic.Bool
	reconnectCh      chan struct{}
	done             chan struct{}
	wg               sync.WaitGroup
}

// NewClient creates a feed client pushing decoded events to queue.
func NewClient(cfg ClientConfig, queue *EventQueue, logger *log.Logger) *Client {
	if cfg.Dial == nil {
		cfg.Dial = gorillaDial
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}

	return &Client{
		cfg:         cfg,
		queue:       queue,
		decoder:     NewDecoder(logger),
		logger:      logger,
		reconnectCh: make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *Client) setState(s ConnState) {
	c.state.Store(int32(s))
}

// Start connects and begins receiving. It returns immediately; the
// connection is maintained in the background until Close.
func (c *Client) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.run(ctx)
}

// Close shuts the client down. The connection is closed first so no new
// frames arrive; queued events stay in the queue for the drain loop.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil // already closed
	}
	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.setState(StateDisconnected)
	c.wg.Wait()
	return nil
}

// run drives the connect/reconnect cycle.
func (c *Client) run(ctx context.Context) {
	defer c.wg.Done()

	c.attempt(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-c.reconnectCh:
			c.attempt(ctx)
		}
	}
}

// attempt performs one connect + handshake + subscribe cycle and starts
// the receive loop. Any failure schedules a single reconnect.
func (c *Client) attempt(ctx context.Context) {
	if c.closed.Load() {
		return
	}

	c.setState(StateConnecting)

	header := http.Header{}
	if c.cfg.Origin != "" {
		header.Set("Origin", c.cfg.Origin)
	}
	if c.cfg.UserAgent != "" {
		header.Set("User-Agent", c.cfg.UserAgent)
	}
	header.Set("Cache-Control", "no-cache")

	conn, err := c.cfg.Dial(ctx, c.cfg.URL, header)
	if err != nil {
		c.logger.Printf("Feed connect failed: %v", err)
		c.setState(StateDisconnected)
		c.scheduleReconnect()
		return
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.setState(StateHandshaking)

	if err := c.handshake(conn); err != nil {
		c.logger.Printf("Feed handshake failed: %v", err)
		conn.Close()
		c.setState(StateDisconnected)
		c.scheduleReconnect()
		return
	}

	c.wg.Add(1)
	go c.readLoop(conn)
}

// handshake sends, in order, the connect message, a liveness probe and
// one subscription per subject. Resubscription is idempotent and
// replayed fully on every reconnect: no subscription state is carried
// across connections beyond the fixed subject list.
func (c *Client) handshake(conn Conn) error {
	connect := `CONNECT {"no_responders":true,"protocol":1,"verbose":false,"pedantic":false,"lang":"go","version":"1.0.0"}`
	if err := c.writeLine(conn, connect); err != nil {
		return fmt.Errorf("write connect: %w", err)
	}
	if err := c.writeLine(conn, "PING"); err != nil {
		return fmt.Errorf("write ping: %w", err)
	}
	for i, subject := range c.cfg.Subjects {
		if err := c.writeLine(conn, fmt.Sprintf("SUB %s %d", subject, i+1)); err != nil {
			return fmt.Errorf("write sub %s: %w", subject, err)
		}
	}
	return nil
}

// writeLine writes one terminated control line.
func (c *Client) writeLine(conn Conn, line string) error {
	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, []byte(line+crlf))
}

// readLoop appends received bytes to a fresh frame buffer and handles
// every complete frame. On read error it schedules a single reconnect
// and exits; the next attempt gets its own buffer, discarding any
// partial frame from the dead connection.
func (c *Client) readLoop(conn Conn) {
	defer c.wg.Done()

	buf := NewBuffer()
	skipped := 0

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			if !c.closed.Load() {
				c.logger.Printf("Feed connection lost: %v", err)
				c.setState(StateDisconnected)
				c.scheduleReconnect()
			}
			return
		}

		for _, frame := range buf.Append(data) {
			c.handleFrame(conn, frame)
		}

		if s := buf.Skipped(); s > skipped {
			observability.RecordFramesSkipped(s - skipped)
			skipped = s
		}
	}
}

// handleFrame processes one protocol frame.
func (c *Client) handleFrame(conn Conn, frame Frame) {
	switch frame.Kind {
	case FramePing:
		// Answer immediately, ahead of any payload work, so a busy
		// pipeline can never starve keepalives.
		if err := c.writeLine(conn, "PONG"); err != nil {
			c.logger.Printf("Failed to answer feed ping: %v", err)
		}

	case FramePong, FrameOK:
		if c.State() == StateHandshaking {
			c.setState(StateSubscribed)
			c.logger.Printf("Feed subscribed to %d subjects", len(c.cfg.Subjects))
		}

	case FrameInfo:
		c.logger.Printf("Feed server info: %.200s", frame.Info)

	case FrameErr:
		c.logger.Printf("Feed server error: %s", frame.Info)

	case FrameMsg:
		observability.RecordFrameReceived(frame.Subject)
		ev, err := c.decoder.Decode(frame.Payload)
		if err != nil {
			// Per-event recoverable: drop, count, keep the connection.
			observability.RecordDecodeFailure()
			return
		}
		c.queue.PushBack(ev)
		observability.UpdateQueueDepth(c.queue.Len())
	}
}

// scheduleReconnect arms the single pending reconnect timer. Duplicate
// disconnect notifications while one is pending are no-ops: only one
// reconnect may ever be in flight.
func (c *Client) scheduleReconnect() {
	if c.closed.Load() {
		return
	}
	if c.reconnectPending.Swap(true) {
		return
	}

	observability.RecordReconnectScheduled()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		select {
		case <-c.done:
			return
		case <-time.After(c.cfg.ReconnectDelay):
		}
		c.reconnectPending.Store(false)
		select {
		case c.reconnectCh <- struct{}{}:
		default:
		}
	}()
}
