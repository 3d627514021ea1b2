package env

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Config holds every knob the server binary reads from the environment (or
// a local .env.local during development), per spec.md §6's configuration
// surface.
type Config struct {
	NumListeners int `env:"CHATD_NUM_LISTENERS"`

	IdleTimeout      time.Duration `env:"CHATD_IDLE_TIMEOUT,default=60s"`
	PongDeadline     time.Duration `env:"CHATD_PONG_DEADLINE,default=30s"`
	OutboundCapacity int           `env:"CHATD_OUTBOUND_CAPACITY,default=64"`

	StatusHost string `env:"CHATD_STATUS_HOST,default=0.0.0.0"`

	DebugHTTP bool `env:"CHATD_DEBUG_HTTP"`
}

func LoadConfig(ctx context.Context) (*Config, error) {
	config := Config{}

	if err := godotenv.Load(".env.local"); err != nil {
		if !os.IsNotExist(err) {
			panic(err)
		}
	}

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
