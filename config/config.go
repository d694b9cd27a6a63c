// Package config loads runtime configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"pipelined.dev/stream"
	"pipelined.dev/stream/archive"
	"pipelined.dev/stream/icecast"
	"pipelined.dev/stream/websocket"
)

// Prefix of all environment variables.
const Prefix = "STREAM_"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config holds runtime configuration. Icecast and Archive are nil unless
// their host and bucket are set.
type Config struct {
	ChunkSize int `validate:"gt=0"`
	// QueueDepth is the number of messages buffered per websocket client.
	QueueDepth int `validate:"gt=0"`
	// Listen is the address of websocket server. Empty disables it.
	Listen string `validate:"omitempty,hostname_port"`
	// Rate limits bytes per second. Zero derives it from PCM format.
	Rate int `validate:"gte=0"`

	Icecast *icecast.Config `validate:"omitempty"`
	Archive *archive.Config `validate:"omitempty"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	c := Config{
		ChunkSize:  envInt("CHUNK_SIZE", stream.DefaultChunkSize),
		QueueDepth: envInt("QUEUE_DEPTH", websocket.DefaultQueueDepth),
		Listen:     envStr("LISTEN", ""),
		Rate:       envInt("RATE", 0),
	}
	if host := envStr("ICECAST_HOST", ""); host != "" {
		ic := icecast.DefaultConfig(
			host,
			envInt("ICECAST_PORT", 8000),
			envStr("ICECAST_MOUNT", "/stream"),
			envStr("ICECAST_PASSWORD", ""),
		)
		ic.User = envStr("ICECAST_USER", icecast.DefaultUser)
		ic.Name = envStr("ICECAST_NAME", "")
		ic.Description = envStr("ICECAST_DESCRIPTION", "")
		ic.Genre = envStr("ICECAST_GENRE", "")
		ic.URL = envStr("ICECAST_URL", "")
		ic.Public = envBool("ICECAST_PUBLIC", false)
		ic.Retries = envInt("ICECAST_RETRIES", icecast.DefaultRetries)
		ic.Timeout = envDuration("ICECAST_TIMEOUT", icecast.DefaultTimeout)
		c.Icecast = &ic
	}
	if bucket := envStr("ARCHIVE_BUCKET", ""); bucket != "" {
		c.Archive = &archive.Config{
			Bucket:          bucket,
			Endpoint:        envStr("ARCHIVE_ENDPOINT", ""),
			Region:          envStr("ARCHIVE_REGION", archive.DefaultRegion),
			AccessKeyID:     envStr("ARCHIVE_ACCESS_KEY_ID", ""),
			SecretAccessKey: envStr("ARCHIVE_SECRET_ACCESS_KEY", ""),
			Prefix:          envStr("ARCHIVE_PREFIX", ""),
			Name:            envStr("ARCHIVE_NAME", "stream"),
			SegmentSize:     int64(envInt("ARCHIVE_SEGMENT_SIZE", archive.DefaultSegmentSize)),
			UploadTimeout:   envDuration("ARCHIVE_UPLOAD_TIMEOUT", archive.DefaultUploadTimeout),
		}
	}
	return c
}

// Validate checks configuration values including nested sections.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(Prefix + key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(Prefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(Prefix + key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(Prefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
