package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"tradingboard/internal/engine"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v2"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Listen         string   `yaml:"listen"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	LogLevel       string   `yaml:"log_level"`
	LogPretty      bool     `yaml:"log_pretty"`
	Board          Board    `yaml:"board"`
}

type Board struct {
	TickInterval  string `yaml:"tick_interval"`
	SubmitLatency string `yaml:"submit_latency"`
	Capacity      int    `yaml:"capacity"`
	InitialOrders int    `yaml:"initial_orders"`
	StartPaused   bool   `yaml:"start_paused"`
	Seed          int64  `yaml:"seed"`
	Market        Market `yaml:"market"`
}

type Market struct {
	InsertProbability float64 `yaml:"insert_probability"`
	UpdateProbability float64 `yaml:"update_probability"`
	RemoveProbability float64 `yaml:"remove_probability"`
	UpdateWindow      int     `yaml:"update_window"`
	RemoveFloor       int     `yaml:"remove_floor"`
	PriceMin          float64 `yaml:"price_min"`
	PriceMax          float64 `yaml:"price_max"`
	PriceDelta        float64 `yaml:"price_delta"`
	SpreadMin         int     `yaml:"spread_min"`
	SpreadMax         int     `yaml:"spread_max"`
	AmountSteps       int     `yaml:"amount_steps"`
}

func Default() Config {
	settings := engine.DefaultSettings()
	p := settings.Policy
	return Config{
		Listen:         "0.0.0.0:9001",
		AllowedOrigins: []string{"http://localhost:3000"},
		LogLevel:       "info",
		Board: Board{
			TickInterval:  settings.TickInterval.String(),
			SubmitLatency: settings.SubmitLatency.String(),
			Capacity:      settings.Capacity,
			InitialOrders: settings.InitialOrders,
			Market: Market{
				InsertProbability: p.InsertProbability,
				UpdateProbability: p.UpdateProbability,
				RemoveProbability: p.RemoveProbability,
				UpdateWindow:      p.UpdateWindow,
				RemoveFloor:       p.RemoveFloor,
				PriceMin:          p.PriceMin,
				PriceMax:          p.PriceMax,
				PriceDelta:        p.PriceDelta,
				SpreadMin:         p.SpreadMin,
				SpreadMax:         p.SpreadMax,
				AmountSteps:       p.AmountSteps,
			},
		},
	}
}

// Load reads the YAML file at filename over the defaults, then applies a
// .env file next to it and BOARD_* environment variables. An empty filename
// skips the YAML step.
func Load(filename string) (*Config, error) {
	cfg := Default()

	envPath := ".env"
	if filename != "" {
		envPath = filepath.Join(filepath.Dir(filename), ".env")

		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	if err := godotenv.Load(envPath); err != nil {
		log.Debug().Err(err).Str("path", envPath).Msg("no .env file loaded")
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("BOARD_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("BOARD_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("BOARD_TICK_INTERVAL"); v != "" {
		c.Board.TickInterval = v
	}
	if v := os.Getenv("BOARD_SUBMIT_LATENCY"); v != "" {
		c.Board.SubmitLatency = v
	}
	if v := os.Getenv("BOARD_START_PAUSED"); v != "" {
		paused, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: BOARD_START_PAUSED: %v", ErrInvalidConfig, err)
		}
		c.Board.StartPaused = paused
	}
	if v := os.Getenv("BOARD_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: BOARD_SEED: %v", ErrInvalidConfig, err)
		}
		c.Board.Seed = seed
	}
	return nil
}

func (c *Config) Validate() error {
	if _, err := c.Settings(); err != nil {
		return err
	}
	return nil
}

// Settings converts the board section into engine settings.
func (c *Config) Settings() (engine.Settings, error) {
	settings := engine.DefaultSettings()
	b := c.Board
	m := b.Market

	tick, err := parsePositiveDuration("tick_interval", b.TickInterval)
	if err != nil {
		return settings, err
	}
	latency, err := parsePositiveDuration("submit_latency", b.SubmitLatency)
	if err != nil {
		return settings, err
	}

	switch {
	case b.Capacity <= 0:
		return settings, fmt.Errorf("%w: capacity must be positive", ErrInvalidConfig)
	case b.InitialOrders < 0:
		return settings, fmt.Errorf("%w: initial_orders must not be negative", ErrInvalidConfig)
	case m.InsertProbability < 0 || m.UpdateProbability < 0 || m.RemoveProbability < 0:
		return settings, fmt.Errorf("%w: probabilities must not be negative", ErrInvalidConfig)
	case m.InsertProbability+m.UpdateProbability+m.RemoveProbability > 1:
		return settings, fmt.Errorf("%w: mutation probabilities exceed 1", ErrInvalidConfig)
	case m.PriceMax <= m.PriceMin:
		return settings, fmt.Errorf("%w: empty price band", ErrInvalidConfig)
	case m.SpreadMax <= m.SpreadMin:
		return settings, fmt.Errorf("%w: empty spread range", ErrInvalidConfig)
	case m.UpdateWindow <= 0 || m.AmountSteps <= 0:
		return settings, fmt.Errorf("%w: update_window and amount_steps must be positive", ErrInvalidConfig)
	}

	settings.TickInterval = tick
	settings.SubmitLatency = latency
	settings.Capacity = b.Capacity
	settings.InitialOrders = b.InitialOrders
	settings.StartPaused = b.StartPaused
	settings.Seed = b.Seed
	settings.Policy = engine.Policy{
		InsertProbability: m.InsertProbability,
		UpdateProbability: m.UpdateProbability,
		RemoveProbability: m.RemoveProbability,
		UpdateWindow:      m.UpdateWindow,
		RemoveFloor:       m.RemoveFloor,
		PriceMin:          m.PriceMin,
		PriceMax:          m.PriceMax,
		PriceDelta:        m.PriceDelta,
		SpreadMin:         m.SpreadMin,
		SpreadMax:         m.SpreadMax,
		AmountSteps:       m.AmountSteps,
	}
	return settings, nil
}

func parsePositiveDuration(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, name)
	}
	return d, nil
}
