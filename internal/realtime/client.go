package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultHeartbeat   = 30 * time.Second
	defaultJoinTimeout = 10 * time.Second
	changeBuffer       = 64
	protocolVersion    = "1.0.0"
)

// ErrJoinRejected is returned when the server refuses the channel join.
var ErrJoinRejected = errors.New("channel join rejected")

// Client opens change-feed subscriptions over the realtime websocket.
type Client struct {
	endpoint    *url.URL
	apiKey      string
	dialer      *websocket.Dialer
	heartbeat   time.Duration
	joinTimeout time.Duration
	log         *zap.Logger

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithHeartbeat sets the heartbeat interval.
func WithHeartbeat(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.heartbeat = d
		}
	}
}

// WithJoinTimeout bounds how long Subscribe waits for the join reply.
func WithJoinTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.joinTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient builds a Client for the project at baseURL.
func NewClient(baseURL, apiKey string, opts ...Option) (*Client, error) {
	endpoint, err := websocketURL(baseURL, apiKey)
	if err != nil {
		return nil, err
	}
	c := &Client{
		endpoint:    endpoint,
		apiKey:      apiKey,
		dialer:      &websocket.Dialer{HandshakeTimeout: defaultJoinTimeout},
		heartbeat:   defaultHeartbeat,
		joinTimeout: defaultJoinTimeout,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetToken sets the user access token sent when joining. Empty means the
// public key is used.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) accessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token != "" {
		return c.token
	}
	return c.apiKey
}

// Subscribe connects and joins the change channel for public.<table>. It
// returns once the server accepts the join.
func (c *Client) Subscribe(ctx context.Context, table string) (*Subscription, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.endpoint.String(), http.Header{})
	if err != nil {
		return nil, fmt.Errorf("dial realtime: %w", err)
	}

	s := &Subscription{
		conn:      conn,
		topic:     "realtime:public:" + table,
		heartbeat: c.heartbeat,
		log:       c.log.With(zap.String("table", table)),
		changes:   make(chan Change, changeBuffer),
		done:      make(chan struct{}),
	}
	if err := s.join(ctx, table, c.accessToken(), c.joinTimeout); err != nil {
		_ = conn.Close()
		return nil, err
	}
	go s.readLoop()
	go s.heartbeatLoop()
	return s, nil
}

// Subscription is one joined channel.
type Subscription struct {
	conn      *websocket.Conn
	topic     string
	heartbeat time.Duration
	log       *zap.Logger
	ref       atomic.Uint64
	joinRef   string

	writeMu sync.Mutex

	changes chan Change
	done    chan struct{}
	once    sync.Once
	errMu   sync.Mutex
	err     error
}

// Changes delivers row changes in arrival order. It is closed when the
// subscription ends.
func (s *Subscription) Changes() <-chan Change { return s.changes }

// Done is closed when the subscription ends for any reason.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err reports why the subscription ended; nil after Close.
func (s *Subscription) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close leaves the channel and closes the connection.
func (s *Subscription) Close() error {
	_ = s.send(message{Topic: s.topic, Event: eventLeave, Payload: json.RawMessage(`{}`)})
	s.shutdown(nil)
	return nil
}

func (s *Subscription) join(ctx context.Context, table, token string, timeout time.Duration) error {
	payload := joinPayload{
		Config: joinConfig{
			PostgresChanges: []changeFilter{{Event: "*", Schema: "public", Table: table}},
		},
		AccessToken: token,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode join: %w", err)
	}
	s.joinRef = s.nextRef()
	if err := s.send(message{Topic: s.topic, Event: eventJoin, Payload: raw, Ref: s.joinRef, JoinRef: s.joinRef}); err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetReadDeadline(deadline)
	defer func() { _ = s.conn.SetReadDeadline(time.Time{}) }()

	for {
		var msg message
		if err := s.conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("await join reply: %w", err)
		}
		if msg.Event != eventReply || msg.Ref != s.joinRef {
			continue
		}
		var reply replyPayload
		if err := json.Unmarshal(msg.Payload, &reply); err != nil {
			return fmt.Errorf("decode join reply: %w", err)
		}
		if reply.Status != "ok" {
			return fmt.Errorf("%w: %s", ErrJoinRejected, strings.TrimSpace(string(reply.Response)))
		}
		return nil
	}
}

func (s *Subscription) readLoop() {
	defer close(s.changes)
	for {
		_ = s.conn.SetReadDeadline(time.Now().Add(2*s.heartbeat + 5*time.Second))
		var msg message
		if err := s.conn.ReadJSON(&msg); err != nil {
			s.shutdown(fmt.Errorf("read realtime: %w", err))
			return
		}
		switch {
		case msg.Event == eventChanges && msg.Topic == s.topic:
			var p changesPayload
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				s.log.Warn("malformed change event", zap.Error(err))
				continue
			}
			select {
			case s.changes <- p.Data:
			case <-s.done:
				return
			}
		case msg.Event == eventError && msg.Topic == s.topic:
			s.shutdown(fmt.Errorf("channel error: %s", string(msg.Payload)))
			return
		case msg.Event == eventClose && msg.Topic == s.topic:
			s.shutdown(errors.New("channel closed by server"))
			return
		case msg.Event == eventSystem:
			s.log.Debug("realtime system message", zap.ByteString("payload", msg.Payload))
		}
	}
}

func (s *Subscription) heartbeatLoop() {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			err := s.send(message{Topic: heartbeatTopic, Event: eventHeartbeat, Payload: json.RawMessage(`{}`), Ref: s.nextRef()})
			if err != nil {
				s.shutdown(fmt.Errorf("send heartbeat: %w", err))
				return
			}
		}
	}
}

func (s *Subscription) send(msg message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteJSON(msg)
}

func (s *Subscription) shutdown(err error) {
	s.once.Do(func() {
		s.errMu.Lock()
		s.err = err
		s.errMu.Unlock()
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *Subscription) nextRef() string {
	return strconv.FormatUint(s.ref.Add(1), 10)
}

func websocketURL(baseURL, apiKey string) (*url.URL, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return nil, fmt.Errorf("realtime url is required")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse realtime url %q: %w", baseURL, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	default:
		u.Scheme = "wss"
	}
	u.Path = "/realtime/v1/websocket"
	u.RawQuery = url.Values{"apikey": {apiKey}, "vsn": {protocolVersion}}.Encode()
	u.Fragment = ""
	return u, nil
}
