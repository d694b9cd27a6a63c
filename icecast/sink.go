// Package icecast streams to Icecast server as a source client.
package icecast

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"pipelined.dev/stream"
	"pipelined.dev/stream/icy"
	"pipelined.dev/stream/internal/backoff"
	"pipelined.dev/stream/log"
	"pipelined.dev/stream/metadata"
)

// ErrRejected is returned when server doesn't accept the source.
var ErrRejected = errors.New("icecast: source rejected")

type (
	// Sink is a source client of Icecast server. Failed writes are
	// retried with a new connection. Title changes are sent to the admin
	// metadata endpoint.
	Sink struct {
		config Config
		logger logrus.FieldLogger
		dialer Dialer
		client *http.Client
		retry  backoff.Policy
		ctx    context.Context
		cancel context.CancelFunc

		meta metadata.Metadata
		conn net.Conn
	}

	// Dialer opens connections to the server.
	Dialer interface {
		DialContext(ctx context.Context, network, address string) (net.Conn, error)
	}

	// Option configures sink.
	Option func(*Sink)
)

// WithLogger sets logger of sink.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Sink) {
		s.logger = l
	}
}

// WithHTTPClient sets client used for metadata updates.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Sink) {
		s.client = c
	}
}

// WithDialer sets dialer of source connections.
func WithDialer(d Dialer) Option {
	return func(s *Sink) {
		s.dialer = d
	}
}

// NewSink returns sink that connects on Open.
func NewSink(config Config, options ...Option) *Sink {
	s := Sink{
		config: config,
		logger: log.Discard(),
		retry: backoff.Policy{
			Initial: config.InitialBackoff,
			Max:     config.MaxBackoff,
			Retries: config.Retries,
		},
		dialer: &net.Dialer{Timeout: config.Timeout},
	}
	for _, option := range options {
		option(&s)
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: config.Timeout}
	}
	s.logger = s.logger.WithFields(logrus.Fields{
		"server": config.Address(),
		"mount":  config.Mount,
	})
	return &s
}

// Handshake returns source request for provided metadata. Lines end with
// CRLF and the request ends with a blank line.
func Handshake(c Config, m metadata.Metadata) []byte {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteString("\r\n")
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(c.User + ":" + c.Password))
	line("SOURCE %s HTTP/1.0", c.Mount)
	line("Authorization: Basic %s", credentials)
	line("Content-Type: %s", icy.ContentType(m.Encoding))
	header := func(key, value string) {
		if value != "" {
			line("%s: %s", key, value)
		}
	}
	header("ice-name", c.Name)
	header("ice-description", c.Description)
	header("ice-genre", c.Genre)
	header("ice-url", c.URL)
	if c.Public {
		line("ice-public: 1")
	} else {
		line("ice-public: 0")
	}
	if m.Channels > 0 && m.Frequency > 0 {
		line("ice-audio-info: ice-channels=%d;ice-samplerate=%d", m.Channels, m.Frequency)
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}

// Open validates config and connects to the server. Connection errors are
// not retried.
func (s *Sink) Open(m metadata.Metadata) error {
	if err := s.config.Validate(); err != nil {
		return err
	}
	s.meta = m
	s.ctx, s.cancel = context.WithCancel(context.Background())
	if err := s.connect(); err != nil {
		return err
	}
	s.updateTitle()
	return nil
}

func (s *Sink) connect() error {
	conn, err := s.dialer.DialContext(s.ctx, "tcp", s.config.Address())
	if err != nil {
		return fmt.Errorf("icecast: %w", err)
	}
	if s.config.Timeout > 0 {
		conn.SetDeadline(time.Now().Add(s.config.Timeout))
	}
	if _, err := conn.Write(Handshake(s.config, s.meta)); err != nil {
		conn.Close()
		return fmt.Errorf("icecast: handshake: %w", err)
	}
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		conn.Close()
		return fmt.Errorf("icecast: handshake response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		conn.Close()
		return fmt.Errorf("%w: %s", ErrRejected, resp.Status)
	}
	conn.SetDeadline(time.Time{})
	s.conn = conn
	s.logger.WithField("content-type", icy.ContentType(s.meta.Encoding)).Info("connected")
	return nil
}

func (s *Sink) disconnect() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Close(); err != nil {
		s.logger.WithError(err).Debug("failed to close connection")
	}
	s.conn = nil
}

// Process sends bytes to the server. After a failed write the rest of the
// bytes is sent on a new connection after backoff delay.
func (s *Sink) Process(p stream.Packet) error {
	if p.Metadata != nil {
		previous := s.meta
		s.meta = *p.Metadata
		if !previous.Content.EqualIgnoreComment(s.meta.Content) {
			s.updateTitle()
		}
	}
	return s.write(p.Buffer)
}

func (s *Sink) write(b []byte) error {
	err := s.retry.Retry(s.ctx, func() error {
		if s.conn == nil {
			if err := s.connect(); err != nil {
				return err
			}
		}
		if s.config.Timeout > 0 {
			s.conn.SetWriteDeadline(time.Now().Add(s.config.Timeout))
		}
		n, err := s.conn.Write(b)
		b = b[n:]
		if err != nil {
			s.disconnect()
		}
		return err
	}, func(retry int, err error) {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"attempt": retry,
			"pending": len(b),
		}).Warn("reconnecting")
	})
	switch {
	case err == nil:
		return nil
	case s.ctx.Err() != nil:
		return stream.ErrClosed
	}
	return fmt.Errorf("icecast: %d retries failed: %w", s.config.Retries, err)
}

// updateTitle sends the title to the admin endpoint. Failures are logged
// only, the stream goes on without title.
func (s *Sink) updateTitle() {
	title := s.meta.Title()
	if title == "" {
		return
	}
	if err := s.UpdateTitle(s.ctx, title); err != nil {
		s.logger.WithError(err).Warn("failed to update title")
	}
}

// UpdateTitle sets the song title of the mount.
func (s *Sink) UpdateTitle(ctx context.Context, title string) error {
	query := url.Values{
		"mount": {s.config.Mount},
		"mode":  {"updinfo"},
		"song":  {title},
	}
	u := url.URL{
		Scheme:   "http",
		Host:     s.config.Address(),
		Path:     "/admin/metadata",
		RawQuery: query.Encode(),
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(s.config.User, s.config.Password)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("icecast: metadata update: %s", resp.Status)
	}
	s.logger.WithField("title", title).Debug("title updated")
	return nil
}

// Close disconnects from the server.
func (s *Sink) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
