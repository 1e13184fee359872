package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"corpstore/internal/frame"
	"corpstore/internal/observer"
)

// Storage modes.
const (
	ModeMemory = "memory"
	ModeFile   = "file"
	ModeSQLite = "sqlite"
	ModeRemote = "remote"
)

// Defaults.
const (
	DefaultHost         = "127.0.0.1"
	DefaultPort         = 8080
	DefaultDataDir      = "mock_db"
	DefaultSQLitePath   = "corpstore.db"
	DefaultTablesAddr   = "127.0.0.1:50051"
	DefaultDialTimeout  = 5 * time.Second
	DefaultWriteTimeout = 5 * time.Second
)

// Storage selects and configures the backend.
type Storage struct {
	Mode        string        `yaml:"mode" env:"CORPSTORE_STORAGE_MODE"`
	DataDir     string        `yaml:"data_dir" env:"CORPSTORE_DATA_DIR"`
	SQLitePath  string        `yaml:"sqlite_path" env:"CORPSTORE_SQLITE_PATH"`
	RemoteAddr  string        `yaml:"remote_addr" env:"CORPSTORE_REMOTE_ADDR"`
	DialTimeout time.Duration `yaml:"dial_timeout" env:"CORPSTORE_DIAL_TIMEOUT"`
}

// Subscribers tunes notification delivery.
type Subscribers struct {
	QueueSize    int           `yaml:"queue_size" env:"CORPSTORE_SUBSCRIBER_QUEUE"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"CORPSTORE_SUBSCRIBER_WRITE_TIMEOUT"`
}

// Config holds the server configuration.
type Config struct {
	Host         string      `yaml:"host" env:"CORPSTORE_HOST"`
	Port         int         `yaml:"port" env:"CORPSTORE_PORT"`
	Verbose      bool        `yaml:"verbose" env:"CORPSTORE_VERBOSE"`
	MaxFrameSize int         `yaml:"max_frame_size" env:"CORPSTORE_MAX_FRAME_SIZE"`
	Storage      Storage     `yaml:"storage"`
	Subscribers  Subscribers `yaml:"subscribers"`

	// MockDB mirrors the MOCK_DB=1 switch and forces the file backend.
	MockDB bool `yaml:"-" env:"MOCK_DB"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Host:         DefaultHost,
		Port:         DefaultPort,
		MaxFrameSize: frame.DefaultMaxSize,
		Storage: Storage{
			Mode:        ModeFile,
			DataDir:     DefaultDataDir,
			SQLitePath:  DefaultSQLitePath,
			RemoteAddr:  DefaultTablesAddr,
			DialTimeout: DefaultDialTimeout,
		},
		Subscribers: Subscribers{
			QueueSize:    observer.DefaultQueueSize,
			WriteTimeout: DefaultWriteTimeout,
		},
	}
}

// Load layers an optional YAML file and the environment over Default.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.applyMockDB()

	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyMockDB() {
	if c.MockDB {
		c.Storage.Mode = ModeFile
	}
}

// Addr returns the host:port listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate checks ranges and mode-specific settings.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d (expected 0-65535)", c.Port)
	}
	if c.MaxFrameSize <= 0 {
		return fmt.Errorf("invalid max frame size %d", c.MaxFrameSize)
	}
	if c.Subscribers.QueueSize <= 0 {
		return fmt.Errorf("invalid subscriber queue size %d", c.Subscribers.QueueSize)
	}
	if c.Subscribers.WriteTimeout < 0 {
		return fmt.Errorf("invalid subscriber write timeout %s", c.Subscribers.WriteTimeout)
	}
	return c.Storage.Validate()
}

// Validate checks the settings the selected mode needs.
func (s Storage) Validate() error {
	switch s.Mode {
	case ModeMemory:
		return nil
	case ModeFile:
		if s.DataDir == "" {
			return errors.New("storage mode file requires a data dir")
		}
	case ModeSQLite:
		if s.SQLitePath == "" {
			return errors.New("storage mode sqlite requires a database path")
		}
	case ModeRemote:
		if s.RemoteAddr == "" {
			return errors.New("storage mode remote requires an address")
		}
		if s.DialTimeout <= 0 {
			return fmt.Errorf("invalid dial timeout %s", s.DialTimeout)
		}
	default:
		return fmt.Errorf("unknown storage mode %q (expected memory, file, sqlite or remote)", s.Mode)
	}
	return nil
}
