package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config carries every tuning knob of the processing core. Endpoints and
// secrets for the external collaborators stay in the environment (.env);
// the YAML file only tunes behavior.
type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Queue struct {
		PollIntervalMs     int `yaml:"poll_interval_ms"`
		MaxConcurrent      int `yaml:"max_concurrent"`
		MaxRetries         int `yaml:"max_retries"`
		MaxTaskDurationSec int `yaml:"max_task_duration_sec"`
	} `yaml:"queue"`

	Segmenter struct {
		SegmentSeconds float64 `yaml:"segment_seconds"`
		PoolSize       int     `yaml:"pool_size"`
		WorkDir        string  `yaml:"work_dir"`
	} `yaml:"segmenter"`

	Transcribe struct {
		PoolSize  int `yaml:"pool_size"`
		Attempts  int `yaml:"attempts"`
		BackoffMs int `yaml:"backoff_ms"`
	} `yaml:"transcribe"`

	Transform struct {
		PoolSize       int `yaml:"pool_size"`
		Attempts       int `yaml:"attempts"`
		BackoffMs      int `yaml:"backoff_ms"`
		MaxInputChars  int `yaml:"max_input_chars"`
		MaxOutputChars int `yaml:"max_output_chars"`
		OverlapPct     int `yaml:"overlap_pct"`
	} `yaml:"transform"`

	Cache struct {
		TTLHours int `yaml:"ttl_hours"`
	} `yaml:"cache"`
}

// Default returns the tuning used when no config file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Queue.PollIntervalMs = 1000
	cfg.Queue.MaxConcurrent = 2
	cfg.Queue.MaxRetries = 2
	cfg.Queue.MaxTaskDurationSec = 1800
	cfg.Segmenter.SegmentSeconds = 170
	cfg.Segmenter.PoolSize = 2
	cfg.Segmenter.WorkDir = os.TempDir()
	cfg.Transcribe.PoolSize = 3
	cfg.Transcribe.Attempts = 3
	cfg.Transcribe.BackoffMs = 1500
	cfg.Transform.PoolSize = 3
	cfg.Transform.Attempts = 3
	cfg.Transform.BackoffMs = 1000
	cfg.Transform.MaxInputChars = 24000
	cfg.Transform.MaxOutputChars = 8000
	cfg.Transform.OverlapPct = 12
	cfg.Cache.TTLHours = 24 * 7
	return cfg
}

// Load reads a YAML config file and fills gaps with defaults. A missing
// file is not an error: the defaults run fine without one.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Queue.MaxConcurrent < 1 {
		return fmt.Errorf("queue.max_concurrent must be >= 1")
	}
	if c.Segmenter.SegmentSeconds <= 0 {
		return fmt.Errorf("segmenter.segment_seconds must be positive")
	}
	if c.Transform.MaxInputChars <= c.Transform.MaxOutputChars {
		return fmt.Errorf("transform.max_input_chars must exceed max_output_chars")
	}
	return nil
}
