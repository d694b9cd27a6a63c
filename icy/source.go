package icy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"pipelined.dev/stream"
	"pipelined.dev/stream/log"
	"pipelined.dev/stream/metadata"
)

// Request and response headers of ICY protocol.
const (
	MetadataHeader = "Icy-MetaData"
	IntervalHeader = "Icy-Metaint"
	NameHeader     = "Icy-Name"
)

type (
	// Source is a stream source whose content metadata follows
	// StreamTitle of received blocks.
	Source struct {
		*stream.ReaderSource
		closer io.Closer
		logger logrus.FieldLogger
	}

	// DialOption configures Dial.
	DialOption func(*dialer)

	dialer struct {
		client    *http.Client
		logger    logrus.FieldLogger
		userAgent string
	}
)

// NewSource returns source of r with metadata blocks every interval
// bytes. If r is io.Closer, it's closed with the source.
func NewSource(r io.Reader, interval int, m metadata.Metadata) *Source {
	return newSource(r, interval, m, log.Discard())
}

func newSource(r io.Reader, interval int, m metadata.Metadata, logger logrus.FieldLogger) *Source {
	s := Source{logger: logger}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	s.ReaderSource = stream.NewReaderSource(NewReader(r, interval, s.update), m)
	return &s
}

func (s *Source) update(fields Fields) {
	c, ok := fields.Content()
	if !ok {
		return
	}
	s.logger.WithField("title", c.Title()).Debug("stream title")
	s.SetMetadata(s.Metadata().WithContent(c))
}

// Close closes the underlying reader.
func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// WithClient sets HTTP client used by Dial.
func WithClient(c *http.Client) DialOption {
	return func(d *dialer) {
		d.client = c
	}
}

// WithLogger sets logger of dialed source.
func WithLogger(l logrus.FieldLogger) DialOption {
	return func(d *dialer) {
		d.logger = l
	}
}

// WithUserAgent sets User-Agent request header.
func WithUserAgent(ua string) DialOption {
	return func(d *dialer) {
		d.userAgent = ua
	}
}

// Dial requests the stream at url with metadata enabled. Encoding is
// derived from Content-Type, channels and frequency are unknown.
func Dial(ctx context.Context, url string, options ...DialOption) (*Source, error) {
	d := dialer{
		client: http.DefaultClient,
		logger: log.Discard(),
	}
	for _, option := range options {
		option(&d)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("icy: %w", err)
	}
	req.Header.Set(MetadataHeader, "1")
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("icy: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("icy: %s: %s", url, resp.Status)
	}

	var interval int
	if v := resp.Header.Get(IntervalHeader); v != "" {
		if interval, err = strconv.Atoi(v); err != nil || interval < 0 {
			resp.Body.Close()
			return nil, fmt.Errorf("icy: invalid %s %q", IntervalHeader, v)
		}
	}
	contentType := resp.Header.Get("Content-Type")
	logger := d.logger.WithFields(logrus.Fields{
		"url":      url,
		"interval": interval,
		"name":     resp.Header.Get(NameHeader),
	})
	logger.WithField("content-type", contentType).Info("stream connected")

	m := metadata.New(
		metadata.UnknownFormat().WithEncoding(EncodingOf(contentType)),
		metadata.Content{},
	)
	return newSource(resp.Body, interval, m, logger), nil
}
