package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1024 * 1024
	sendBufferSize = 256
)

var (
	// ErrMissingBrokerURL indicates the channel was built without an endpoint.
	ErrMissingBrokerURL = errors.New("channel: broker url is required")
	// ErrAlreadyConnected is returned when Connect is called on a live channel.
	ErrAlreadyConnected = errors.New("channel: already connected")
	// ErrNotConnected is returned for sends and subscribes while the
	// channel is not in the connected state.
	ErrNotConnected = errors.New("channel: not connected")
	// ErrSendBufferFull signals outbound backpressure.
	ErrSendBufferFull = errors.New("channel: send buffer full")
	// ErrDisconnected aborts a reconnect loop when Disconnect was requested.
	ErrDisconnected = errors.New("channel: disconnected")
	// ErrReconnectExhausted is returned after the attempt budget is spent.
	ErrReconnectExhausted = errors.New("channel: reconnect attempts exhausted")
)

// State describes the connection lifecycle of the channel.
type State int

const (
	// StateIdle means the channel has never connected or was cleanly closed.
	StateIdle State = iota
	// StateConnecting covers the first dial.
	StateConnecting
	// StateConnected means the session is live and heartbeats flow.
	StateConnected
	// StateReconnecting covers automatic redial after a dropped session.
	StateReconnecting
	// StateFailed is terminal: the attempt budget ran out.
	StateFailed
)

// String renders the state for logs and the status API.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Handler receives the body of a broadcast message for one subscription.
type Handler func(destination string, body []byte)

// Config carries channel construction parameters.
type Config struct {
	BrokerURL            string
	HeartbeatInterval    time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	Dialer               *websocket.Dialer
	Logger               *zap.Logger
}

type subscriptionEntry struct {
	id          string
	destination string
	handler     Handler
}

// Channel owns one persistent WebSocket session to the broker. It knows
// nothing about room topics: consumers register subscriptions and re-arm
// them when the state signal reports a fresh connection.
type Channel struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *zap.Logger

	mu             sync.Mutex
	state          State
	stateListeners []func(State)
	conn           *websocket.Conn
	outbound       chan Frame
	sessionDone    chan struct{}
	subscriptions  map[string]subscriptionEntry
	lifeCtx        context.Context
	lifeCancel     context.CancelFunc
	stopped        bool
}

// New constructs a Channel. It does not dial.
func New(cfg Config) (*Channel, error) {
	if cfg.BrokerURL == "" {
		return nil, ErrMissingBrokerURL
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 10 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 10
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{
		cfg:           cfg,
		dialer:        dialer,
		logger:        logger,
		state:         StateIdle,
		subscriptions: make(map[string]subscriptionEntry),
	}, nil
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange registers a listener invoked on every state transition.
// Listeners run on the channel's internal goroutines and must not block.
func (c *Channel) OnStateChange(listener func(State)) {
	if listener == nil {
		return
	}
	c.mu.Lock()
	c.stateListeners = append(c.stateListeners, listener)
	c.mu.Unlock()
}

// Connect dials the broker and starts the session pumps. It blocks until
// the first session is established or the attempt budget is exhausted.
// Later drops are redialed automatically in the background.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle && c.state != StateFailed {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	lifeCtx, lifeCancel := context.WithCancel(context.WithoutCancel(ctx))
	c.lifeCtx = lifeCtx
	c.lifeCancel = lifeCancel
	c.stopped = false
	c.mu.Unlock()

	c.setState(StateConnecting)

	conn, err := c.dial(ctx)
	if err != nil {
		c.logger.Warn("initial dial failed", zap.String("broker_url", c.cfg.BrokerURL), zap.Error(err))
		conn, err = c.redial()
		if err != nil {
			return err
		}
	}
	c.startSession(conn)
	return nil
}

// Disconnect closes the session and stops all reconnection. It is
// idempotent and safe to call at any point in the lifecycle.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.stopped = true
	lifeCancel := c.lifeCancel
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if lifeCancel != nil {
		lifeCancel()
	}
	if conn != nil {
		deadline := time.Now().Add(writeWait)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
		return // the read pump observes the close and settles into idle
	}
	if state != StateIdle {
		c.setState(StateIdle)
	}
}

// Subscribe registers a handler and asks the broker for the destination's
// broadcasts. The returned id cancels the subscription; ids do not survive
// a reconnect, consumers re-arm on the connected state signal.
func (c *Channel) Subscribe(destination string, handler Handler) (string, error) {
	if destination == "" || handler == nil {
		return "", fmt.Errorf("channel: destination and handler are required")
	}
	c.mu.Lock()
	if c.state != StateConnected || c.outbound == nil {
		c.mu.Unlock()
		return "", ErrNotConnected
	}
	id := uuid.NewString()
	c.subscriptions[id] = subscriptionEntry{id: id, destination: destination, handler: handler}
	outbound := c.outbound
	c.mu.Unlock()

	if err := enqueue(outbound, Frame{Type: FrameSubscribe, ID: id, Destination: destination}); err != nil {
		c.mu.Lock()
		delete(c.subscriptions, id)
		c.mu.Unlock()
		return "", err
	}
	c.logger.Debug("subscribed", zap.String("destination", destination), zap.String("subscription_id", id))
	return id, nil
}

// Unsubscribe cancels a subscription. Unknown ids are a no-op so teardown
// can run unconditionally.
func (c *Channel) Unsubscribe(id string) {
	c.mu.Lock()
	entry, known := c.subscriptions[id]
	delete(c.subscriptions, id)
	outbound := c.outbound
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !known || !connected || outbound == nil {
		return
	}
	if err := enqueue(outbound, Frame{Type: FrameUnsubscribe, ID: id}); err != nil {
		c.logger.Warn("failed to send unsubscribe", zap.String("destination", entry.destination), zap.Error(err))
	}
}

// Send publishes a payload to an application destination.
func (c *Channel) Send(destination string, body any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("channel: encode body: %w", err)
	}
	c.mu.Lock()
	if c.state != StateConnected || c.outbound == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	outbound := c.outbound
	c.mu.Unlock()
	return enqueue(outbound, Frame{Type: FrameSend, Destination: destination, Body: encoded})
}

func enqueue(outbound chan Frame, frame Frame) error {
	select {
	case outbound <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.BrokerURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// redial runs the bounded reconnect loop: fixed delay between attempts,
// terminal failed state once the budget is spent.
func (c *Channel) redial() (*websocket.Conn, error) {
	c.setState(StateReconnecting)
	for attempt := 1; attempt <= c.cfg.MaxReconnectAttempts; attempt++ {
		select {
		case <-c.lifeCtx.Done():
			c.setState(StateIdle)
			return nil, ErrDisconnected
		case <-time.After(c.cfg.ReconnectDelay):
		}

		conn, err := c.dial(c.lifeCtx)
		if err == nil {
			c.logger.Info("reconnected", zap.Int("attempt", attempt))
			return conn, nil
		}
		if c.lifeCtx.Err() != nil {
			c.setState(StateIdle)
			return nil, ErrDisconnected
		}
		c.logger.Warn("reconnect attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.cfg.MaxReconnectAttempts),
			zap.Error(err))
	}
	c.setState(StateFailed)
	return nil, ErrReconnectExhausted
}

func (c *Channel) startSession(conn *websocket.Conn) {
	done := make(chan struct{})
	outbound := make(chan Frame, sendBufferSize)

	c.mu.Lock()
	c.conn = conn
	c.outbound = outbound
	c.sessionDone = done
	// Broker-side subscriptions died with the previous session; consumers
	// re-arm when they observe the connected transition.
	c.subscriptions = make(map[string]subscriptionEntry)
	c.mu.Unlock()

	go c.writePump(conn, outbound, done)
	go c.readPump(conn, done)

	c.setState(StateConnected)
}

func (c *Channel) writePump(conn *websocket.Conn, outbound chan Frame, done chan struct{}) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-outbound:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(frame); err != nil {
				c.logger.Warn("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (c *Channel) readPump(conn *websocket.Conn, done chan struct{}) {
	defer c.sessionEnded(conn, done)

	heartbeatWindow := 2 * c.cfg.HeartbeatInterval
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(heartbeatWindow))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(heartbeatWindow))
	})
	pingHandler := conn.PingHandler()
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(heartbeatWindow))
		return pingHandler(appData)
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("session dropped", zap.Error(err))
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		if frame.Type != FrameMessage {
			continue
		}
		handler := c.lookupHandler(frame)
		if handler == nil {
			continue
		}
		// Handlers run on this single goroutine, so delivery within one
		// subscription (and across the whole session) stays serialized.
		handler(frame.Destination, frame.Body)
	}
}

func (c *Channel) lookupHandler(frame Frame) Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.subscriptions[frame.Subscription]; ok {
		return entry.handler
	}
	// Brokers that do not echo subscription ids are matched by destination.
	for _, entry := range c.subscriptions {
		if entry.destination == frame.Destination {
			return entry.handler
		}
	}
	return nil
}

func (c *Channel) sessionEnded(conn *websocket.Conn, done chan struct{}) {
	close(done)
	_ = conn.Close()

	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.outbound = nil
	c.sessionDone = nil
	stopped := c.stopped
	c.mu.Unlock()

	if stopped {
		c.setState(StateIdle)
		return
	}

	go func() {
		newConn, err := c.redial()
		if err != nil {
			return
		}
		c.startSession(newConn)
	}()
}

func (c *Channel) setState(next State) {
	c.mu.Lock()
	if c.state == next {
		c.mu.Unlock()
		return
	}
	previous := c.state
	c.state = next
	listeners := make([]func(State), len(c.stateListeners))
	copy(listeners, c.stateListeners)
	c.mu.Unlock()

	c.logger.Debug("channel state changed",
		zap.String("from", previous.String()),
		zap.String("to", next.String()))
	for _, listener := range listeners {
		listener(next)
	}
}
