package icecast

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// Defaults of connection settings.
const (
	DefaultUser           = "source"
	DefaultRetries        = 5
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 30 * time.Second
	DefaultTimeout        = 10 * time.Second
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config describes the server mount and the station.
type Config struct {
	Host     string `validate:"required"`
	Port     int    `validate:"required,min=1,max=65535"`
	Mount    string `validate:"required,startswith=/"`
	User     string `validate:"required"`
	Password string `validate:"required"`

	Name        string `validate:"max=256"`
	Description string `validate:"max=1024"`
	Genre       string `validate:"max=256"`
	URL         string `validate:"omitempty,url"`
	Public      bool

	// Retries is the number of reconnect attempts after a write fails.
	Retries        int           `validate:"gte=0"`
	InitialBackoff time.Duration `validate:"gte=0"`
	MaxBackoff     time.Duration `validate:"gtefield=InitialBackoff"`
	Timeout        time.Duration `validate:"gte=0"`
}

// DefaultConfig returns config for provided mount with default settings.
func DefaultConfig(host string, port int, mount, password string) Config {
	return Config{
		Host:           host,
		Port:           port,
		Mount:          mount,
		User:           DefaultUser,
		Password:       password,
		Retries:        DefaultRetries,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		Timeout:        DefaultTimeout,
	}
}

// Validate checks config values.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("icecast: invalid config: %w", err)
	}
	return nil
}

// Address returns host:port of the server.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
