// Package config is the YAML configuration of the rtcdoc command.
package config

import (
	"os"

	"github.com/drpcorg/rtcdoc/rdx"
	"github.com/drpcorg/rtcdoc/utils"
	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"
)

type Config struct {
	// Src is the replica id of edits made from this process; 0 is random.
	Src    uint64       `yaml:"src"`
	Logger LoggerConfig `yaml:"logger"`
	Store  StoreConfig  `yaml:"store"`
	Rooms  RoomsConfig  `yaml:"rooms"`
	Admin  AdminConfig  `yaml:"admin"`
	REPL   REPLConfig   `yaml:"repl"`
}

type LoggerConfig struct {
	Level string `yaml:"level"`
}

type StoreConfig struct {
	Path         string `yaml:"path"`
	HistoryLimit int    `yaml:"history_limit"`
	NoSync       bool   `yaml:"no_sync"`
	// CacheSize is the number of snapshots kept in memory, -1 for none.
	CacheSize int `yaml:"cache_size"`
}

type RoomsConfig struct {
	// FeedSize is the number of changes a subscriber may lag behind.
	FeedSize int `yaml:"feed_size"`
}

type AdminConfig struct {
	// Listen is the address of the /metrics and /healthz endpoints,
	// empty to disable.
	Listen string `yaml:"listen"`
}

type REPLConfig struct {
	Prompt      string `yaml:"prompt"`
	HistoryFile string `yaml:"history_file"`
}

// Default returns a config for local use.
func Default() Config {
	return Config{
		Logger: LoggerConfig{Level: "warn"},
		Store: StoreConfig{
			Path:         "./rtcdoc-data",
			HistoryLimit: 64,
			CacheSize:    128,
		},
		Rooms: RoomsConfig{FeedSize: 1024},
		Admin: AdminConfig{Listen: "127.0.0.1:9180"},
		REPL: REPLConfig{
			Prompt:      "rtcdoc> ",
			HistoryFile: "/tmp/rtcdoc.history",
		},
	}
}

// Load reads a YAML file over Default(); a missing file yields the
// defaults as they are.
func Load(path string) (cfg Config, err error) {
	cfg = Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, cfg.Validate()
}

func (cfg *Config) Validate() error {
	if cfg.Src > rdx.MaxSrc {
		return errors.Errorf("src %d is above %d", cfg.Src, uint64(rdx.MaxSrc))
	}
	if _, err := utils.ParseLevel(cfg.Logger.Level); err != nil {
		return err
	}
	if cfg.Store.Path == "" {
		return errors.New("store.path is empty")
	}
	if cfg.Store.HistoryLimit < 0 {
		return errors.Errorf("store.history_limit %d is negative", cfg.Store.HistoryLimit)
	}
	if cfg.Rooms.FeedSize <= 0 {
		return errors.Errorf("rooms.feed_size %d is not positive", cfg.Rooms.FeedSize)
	}
	return nil
}

// Marshal renders the config as YAML.
func (cfg Config) Marshal() ([]byte, error) {
	return yaml.Marshal(cfg)
}
