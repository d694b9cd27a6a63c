// Package archive stores stream segments as S3 objects.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"pipelined.dev/stream"
	"pipelined.dev/stream/icy"
	"pipelined.dev/stream/log"
	"pipelined.dev/stream/metadata"
)

// Defaults of archive sink.
const (
	DefaultRegion        = "auto"
	DefaultSegmentSize   = 64 << 20
	DefaultUploadTimeout = 5 * time.Minute
	maxUploads           = 2
)

// ErrNotOpened is returned when sink is used before Open.
var ErrNotOpened = errors.New("archive: sink is not opened")

var validate = validator.New(validator.WithRequiredStructEnabled())

type (
	// Config describes the bucket segments are stored to.
	Config struct {
		Bucket          string `validate:"required"`
		Endpoint        string `validate:"omitempty,url"`
		Region          string
		AccessKeyID     string `validate:"required"`
		SecretAccessKey string `validate:"required"`
		// Prefix is prepended to object keys.
		Prefix string
		// Name is the first part of object names.
		Name string `validate:"required"`
		// SegmentSize limits the size of a single object. Zero means
		// segments only rotate on content change.
		SegmentSize   int64         `validate:"gte=0"`
		UploadTimeout time.Duration `validate:"gte=0"`
	}

	// Uploader stores objects. It's implemented by *s3.Client.
	Uploader interface {
		PutObject(context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	}

	// Sink buffers stream into segments and uploads every segment when
	// it's complete. A new segment starts when content changes
	// significantly or when the segment size is reached.
	Sink struct {
		config   Config
		uploader Uploader
		logger   logrus.FieldLogger
		now      func() time.Time

		uploads *errgroup.Group
		ctx     context.Context
		cancel  context.CancelFunc

		meta    metadata.Metadata
		segment bytes.Buffer
		started time.Time
		seq     int

		mu   sync.Mutex
		keys []string
	}

	// Option configures sink.
	Option func(*Sink)
)

// Validate checks config values.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("archive: invalid config: %w", err)
	}
	return nil
}

// NewClient returns S3 client with static credentials of config. Custom
// endpoints are addressed with path style.
func NewClient(c Config) *s3.Client {
	region := c.Region
	if region == "" {
		region = DefaultRegion
	}
	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, "")
			o.Region = region
		},
	}
	if c.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(c.Endpoint)
			o.UsePathStyle = true
		})
	}
	return s3.New(s3.Options{}, options...)
}

// WithUploader replaces S3 client.
func WithUploader(u Uploader) Option {
	return func(s *Sink) {
		s.uploader = u
	}
}

// WithLogger sets logger of sink.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Sink) {
		s.logger = l
	}
}

// WithClock sets time source used in object names.
func WithClock(now func() time.Time) Option {
	return func(s *Sink) {
		s.now = now
	}
}

// NewSink returns archive sink. S3 client is created from config unless
// WithUploader is provided.
func NewSink(config Config, options ...Option) *Sink {
	if config.UploadTimeout == 0 {
		config.UploadTimeout = DefaultUploadTimeout
	}
	s := Sink{
		config: config,
		logger: log.Discard(),
		now:    time.Now,
	}
	for _, option := range options {
		option(&s)
	}
	if s.uploader == nil {
		s.uploader = NewClient(config)
	}
	s.logger = s.logger.WithField("bucket", config.Bucket)
	return &s
}

// Open validates config and starts the first segment.
func (s *Sink) Open(m metadata.Metadata) error {
	if err := s.config.Validate(); err != nil {
		return err
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.uploads = &errgroup.Group{}
	s.uploads.SetLimit(maxUploads)
	s.meta = m
	s.started = s.now()
	return nil
}

// Process appends bytes to the current segment.
func (s *Sink) Process(p stream.Packet) error {
	if s.uploads == nil {
		return ErrNotOpened
	}
	if p.Metadata != nil {
		changed := !s.meta.EqualIgnoreComment(*p.Metadata)
		if changed {
			s.rotate()
		}
		s.meta = *p.Metadata
	}
	b := p.Buffer
	for len(b) > 0 {
		n := len(b)
		if limit := s.config.SegmentSize; limit > 0 {
			n = min(n, int(limit-int64(s.segment.Len())))
		}
		s.segment.Write(b[:n])
		b = b[n:]
		if s.config.SegmentSize > 0 && int64(s.segment.Len()) >= s.config.SegmentSize {
			s.rotate()
		}
	}
	return nil
}

// Close uploads the last segment and waits for all uploads. The first
// failed upload is returned.
func (s *Sink) Close() error {
	if s.uploads == nil {
		return nil
	}
	s.rotate()
	err := s.uploads.Wait()
	s.cancel()
	return err
}

// Keys returns keys of uploaded objects.
func (s *Sink) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.keys...)
}

// rotate uploads the current segment and starts a new one. Empty segments
// are skipped.
func (s *Sink) rotate() {
	if s.segment.Len() > 0 {
		body := bytes.Clone(s.segment.Bytes())
		input := s3.PutObjectInput{
			Bucket:        aws.String(s.config.Bucket),
			Key:           aws.String(s.key()),
			Body:          bytes.NewReader(body),
			ContentLength: aws.Int64(int64(len(body))),
			ContentType:   aws.String(icy.ContentType(s.meta.Encoding)),
			Metadata:      objectMetadata(s.meta),
		}
		s.uploads.Go(func() error {
			return s.upload(&input)
		})
		s.seq++
	}
	s.segment.Reset()
	s.started = s.now()
}

func (s *Sink) upload(input *s3.PutObjectInput) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.config.UploadTimeout)
	defer cancel()
	key := aws.ToString(input.Key)
	logger := s.logger.WithFields(logrus.Fields{
		"key":  key,
		"size": aws.ToInt64(input.ContentLength),
	})
	if _, err := s.uploader.PutObject(ctx, input); err != nil {
		logger.WithError(err).Error("upload failed")
		return fmt.Errorf("archive: upload %s: %w", key, err)
	}
	s.mu.Lock()
	s.keys = append(s.keys, key)
	s.mu.Unlock()
	logger.Info("segment uploaded")
	return nil
}

// key returns object key of the current segment.
func (s *Sink) key() string {
	name := fmt.Sprintf("%s-%s-%03d%s",
		sanitize(s.config.Name),
		s.started.UTC().Format("2006-01-02-15-04-05"),
		s.seq,
		Extension(s.meta.Encoding),
	)
	return path.Join(s.config.Prefix, name)
}

// Extension returns file extension for encoding.
func Extension(encoding string) string {
	switch strings.ToUpper(encoding) {
	case metadata.MP3:
		return ".mp3"
	case metadata.Vorbis:
		return ".ogg"
	case metadata.FLAC:
		return ".flac"
	case metadata.PCM:
		return ".pcm"
	default:
		return ".bin"
	}
}

func objectMetadata(m metadata.Metadata) map[string]string {
	values := make(map[string]string)
	if artist := m.Artist(); artist != "" {
		values["artist"] = artist
	}
	if title := m.Title(); title != "" {
		values["title"] = title
	}
	if m.Channels > 0 {
		values["channels"] = fmt.Sprint(m.Channels)
	}
	if m.Frequency > 0 {
		values["frequency"] = fmt.Sprint(m.Frequency)
	}
	return values
}

// sanitize keeps letters, digits, dashes and underscores.
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '-'
		default:
			return -1
		}
	}, name)
}
