// Package websocket broadcasts stream to websocket clients.
package websocket

import (
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"pipelined.dev/stream"
	"pipelined.dev/stream/log"
	"pipelined.dev/stream/metadata"
)

// Defaults of broadcaster.
const (
	DefaultQueueDepth   = 64
	DefaultWriteTimeout = 5 * time.Second
)

type (
	// Broadcaster is a sink that fans bytes out to connected websocket
	// clients as binary messages. Metadata changes are sent as JSON text
	// messages before the bytes they describe. Clients that can't keep up
	// are disconnected.
	Broadcaster struct {
		logger       logrus.FieldLogger
		upgrader     websocket.Upgrader
		depth        int
		writeTimeout time.Duration

		mu      sync.Mutex
		clients map[*client]struct{}
		meta    *Info
		closed  bool
	}

	// Info is the JSON message that describes stream.
	Info struct {
		Channels  int    `json:"channels"`
		Frequency int    `json:"frequency"`
		Encoding  string `json:"encoding"`
		Artist    string `json:"artist,omitempty"`
		Name      string `json:"name,omitempty"`
		Title     string `json:"title,omitempty"`
		Comment   string `json:"comment,omitempty"`
	}

	// Option configures broadcaster.
	Option func(*Broadcaster)

	client struct {
		send chan message
	}

	message struct {
		info *Info
		data []byte
	}
)

// WithLogger sets logger of broadcaster.
func WithLogger(l logrus.FieldLogger) Option {
	return func(b *Broadcaster) {
		b.logger = l
	}
}

// WithQueueDepth sets the number of messages buffered per client.
func WithQueueDepth(n int) Option {
	return func(b *Broadcaster) {
		b.depth = n
	}
}

// WithWriteTimeout sets deadline of a single write to client.
func WithWriteTimeout(d time.Duration) Option {
	return func(b *Broadcaster) {
		b.writeTimeout = d
	}
}

// WithCheckOrigin replaces the default origin check.
func WithCheckOrigin(check func(*http.Request) bool) Option {
	return func(b *Broadcaster) {
		b.upgrader.CheckOrigin = check
	}
}

// NewBroadcaster returns broadcaster without clients.
func NewBroadcaster(options ...Option) *Broadcaster {
	b := Broadcaster{
		logger:       log.Discard(),
		depth:        DefaultQueueDepth,
		writeTimeout: DefaultWriteTimeout,
		clients:      make(map[*client]struct{}),
	}
	b.upgrader.CheckOrigin = b.checkOrigin
	for _, option := range options {
		option(&b)
	}
	return &b
}

// NewInfo returns message for metadata.
func NewInfo(m metadata.Metadata) Info {
	return Info{
		Channels:  m.Channels,
		Frequency: m.Frequency,
		Encoding:  m.Encoding,
		Artist:    m.Artist(),
		Name:      m.Name(),
		Title:     m.Title(),
		Comment:   m.Comment(),
	}
}

// checkOrigin allows same origin, local and private network clients.
func (b *Broadcaster) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		b.logger.WithField("origin", origin).Warn("rejected client: invalid origin")
		return false
	}
	host := u.Hostname()
	requestHost := r.Host
	if h, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = h
	}
	if host == "localhost" || host == requestHost {
		return true
	}
	if ip := net.ParseIP(host); ip != nil && (ip.IsLoopback() || ip.IsPrivate()) {
		return true
	}
	b.logger.WithField("origin", origin).Warn("rejected client")
	return false
}

// Clients returns the number of connected clients.
func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Open sends initial metadata to connected clients.
func (b *Broadcaster) Open(m metadata.Metadata) error {
	b.broadcast(message{info: infoPtr(m)})
	return nil
}

// Process sends metadata change and bytes to clients.
func (b *Broadcaster) Process(p stream.Packet) error {
	if p.Metadata != nil {
		b.broadcast(message{info: infoPtr(*p.Metadata)})
	}
	if len(p.Buffer) > 0 {
		b.broadcast(message{data: append([]byte(nil), p.Buffer...)})
	}
	return nil
}

// Close disconnects all clients. New clients are rejected after close.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for c := range b.clients {
		b.drop(c)
	}
	return nil
}

func infoPtr(m metadata.Metadata) *Info {
	info := NewInfo(m)
	return &info
}

func (b *Broadcaster) broadcast(msg message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if msg.info != nil {
		b.meta = msg.info
	}
	for c := range b.clients {
		select {
		case c.send <- msg:
		default:
			b.logger.Warn("client too slow, disconnecting")
			b.drop(c)
		}
	}
}

// drop removes client and stops its writer. Must be called with lock held.
func (b *Broadcaster) drop(c *client) {
	if _, ok := b.clients[c]; !ok {
		return
	}
	delete(b.clients, c)
	close(c.send)
}

func (b *Broadcaster) remove(c *client) {
	b.mu.Lock()
	b.drop(c)
	b.mu.Unlock()
}

// ServeHTTP upgrades connection and streams to it until the client
// disconnects or the broadcaster is closed.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		http.Error(w, "stream is closed", http.StatusServiceUnavailable)
		return
	}
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.WithError(err).Debug("upgrade failed")
		return
	}
	defer conn.Close()

	logger := b.logger.WithField("client", r.RemoteAddr)
	c := client{send: make(chan message, b.depth+1)}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.closeMessage(conn)
		return
	}
	if b.meta != nil {
		c.send <- message{info: b.meta}
	}
	b.clients[&c] = struct{}{}
	b.mu.Unlock()
	logger.Info("client connected")

	// control frames are handled by reads
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				b.remove(&c)
				return
			}
		}
	}()

	for msg := range c.send {
		if err := b.write(conn, msg); err != nil {
			logger.WithError(err).Debug("write failed")
			b.remove(&c)
			for range c.send {
			}
			logger.Info("client disconnected")
			return
		}
	}
	b.closeMessage(conn)
	logger.Info("client disconnected")
}

func (b *Broadcaster) write(conn *websocket.Conn, msg message) error {
	if b.writeTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(b.writeTimeout))
	}
	if msg.info != nil {
		return conn.WriteJSON(msg.info)
	}
	return conn.WriteMessage(websocket.BinaryMessage, msg.data)
}

func (b *Broadcaster) closeMessage(conn *websocket.Conn) {
	closing := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, closing, time.Now().Add(time.Second))
}
