package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	jobmanager "github.com/UniQw/jobmanager-go"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Redis    Redis
	API      API
	Groups   Groups
	Manager  Manager
}

type Redis struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB"`
	// Namespace isolates the job records of this daemon.
	Namespace string `env:"JOBS_NAMESPACE" envDefault:"groupsync"`
}

type API struct {
	Addr string `env:"API_ADDR" envDefault:":8080"`
}

type Groups struct {
	ServiceURL string `env:"GROUP_SERVICE_URL" envDefault:"http://127.0.0.1:9090"`
	// ProbeAddr is dialed to decide whether the network is up. Empty disables
	// probing; the network is then assumed up unless set through the API.
	ProbeAddr     string        `env:"PROBE_ADDR"`
	ProbeInterval time.Duration `env:"PROBE_INTERVAL" envDefault:"5s"`
}

type Manager struct {
	Concurrency   int           `env:"WORKER_CONCURRENCY" envDefault:"4"`
	PollInterval  time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"5s"`
	BackoffBase   time.Duration `env:"BACKOFF_BASE" envDefault:"1s"`
	BackoffMax    time.Duration `env:"BACKOFF_MAX" envDefault:"10m"`
}

// ManagerConfig converts the settings for jobmanager.NewManager.
func (m Manager) ManagerConfig(l jobmanager.Logger) jobmanager.ManagerConfig {
	return jobmanager.ManagerConfig{
		Concurrency:   m.Concurrency,
		PollInterval:  m.PollInterval,
		SweepInterval: m.SweepInterval,
		BackoffBase:   m.BackoffBase,
		BackoffMax:    m.BackoffMax,
		Logger:        l,
	}
}

// Load reads the given dotenv files, skipping missing ones, and then parses
// the environment. Variables already set in the environment win.
func Load(files ...string) (*Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	var c Config
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &c, nil
}
