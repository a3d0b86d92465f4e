package streamcount

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const DefaultUIPort = 4040

type SessionConfig struct {
	AppName   string
	UIPort    int
	UIEnabled bool
	// Logger defaults to JSON lines on stderr.
	Logger  *zerolog.Logger
	Formats []Format
	// MetricsInterval is the aggregation window of the in-memory metrics sink.
	MetricsInterval time.Duration
}

func DefaultSessionConfig(appName string) SessionConfig {
	return SessionConfig{
		AppName:         appName,
		UIPort:          DefaultUIPort,
		UIEnabled:       true,
		MetricsInterval: 10 * time.Second,
	}
}

func (c *SessionConfig) Validate() error {
	if strings.TrimSpace(c.AppName) == "" {
		return fmt.Errorf("app name is required")
	}
	if c.UIPort < 0 || c.UIPort > 65535 {
		return fmt.Errorf("ui port %d out of range", c.UIPort)
	}
	if c.MetricsInterval <= 0 {
		c.MetricsInterval = 10 * time.Second
	}
	return nil
}

func (c *SessionConfig) logger() zerolog.Logger {
	if c.Logger != nil {
		return *c.Logger
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
