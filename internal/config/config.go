package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	DefaultPrimaryKey   = "allotment-data"
	DefaultSecondaryKey = "allotment-varieties"
	DefaultRoom         = "allotment"
	DefaultRelayAddr    = "127.0.0.1:8787"
	DefaultRedisPrefix  = "plot:"
)

// Config represents the main configuration for plot.
type Config struct {
	ReplicaID  string           `toml:"replica_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Store      StoreConfig      `toml:"store"`
	Database   DatabaseConfig   `toml:"database"`
	Keys       KeysConfig       `toml:"keys"`
	Sync       SyncConfig       `toml:"sync"`
	Relay      RelayConfig      `toml:"relay"`
	Encryption EncryptionConfig `toml:"encryption"`
}

// StoreConfig selects the persistence backend for documents and backups.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StoreConfig struct {
	Type     string `toml:"type"`                // "memory", "filesystem", "sqlite", "redis" or "s3"
	MaxBytes int64  `toml:"max_bytes,omitempty"` // total capacity; 0 means unlimited

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`

	// Redis-specific fields (only used when Type == "redis")
	RedisURL    string `toml:"redis_url,omitempty"`
	RedisPrefix string `toml:"redis_prefix,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"`
}

// DatabaseConfig represents configuration for the sqlite database that holds
// the operation journal, and the documents themselves when Store.Type is "sqlite".
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// KeysConfig names the store keys the documents live under.
type KeysConfig struct {
	Primary   string `toml:"primary"`
	Secondary string `toml:"secondary"`
}

// SyncConfig selects how replicas exchange updates.
// This uses a tagged union pattern - the Transport field determines which other fields are relevant.
type SyncConfig struct {
	Transport string `toml:"transport"`     // "memory", "websocket" or "redis"
	URL       string `toml:"url,omitempty"` // relay base URL or redis URL
	Room      string `toml:"room"`
}

// RelayConfig configures the websocket relay server.
type RelayConfig struct {
	Addr string `toml:"addr"`
}

// EncryptionConfig holds paths to the age key pair used to seal exports.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// NewConfig creates a new Config with the provided values and defaults for
// everything else.
func NewConfig(replicaID, baseDir string) *Config {
	return &Config{
		ReplicaID: replicaID,
		BaseDir:   baseDir,
		LogDir:    filepath.Join(baseDir, "log"),
		Store: StoreConfig{
			Type:   "filesystem",
			FSRoot: filepath.Join(baseDir, "store"),
		},
		Database: DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Keys:     KeysConfig{Primary: DefaultPrimaryKey, Secondary: DefaultSecondaryKey},
		Sync:     SyncConfig{Transport: "websocket", URL: "ws://" + DefaultRelayAddr, Room: DefaultRoom},
		Relay:    RelayConfig{Addr: DefaultRelayAddr},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "plot.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "plot.key"),
		},
	}
}

// PrimaryKey returns the configured primary key or its default.
func (k KeysConfig) PrimaryKey() string {
	if k.Primary == "" {
		return DefaultPrimaryKey
	}
	return k.Primary
}

// SecondaryKey returns the configured secondary key or its default.
func (k KeysConfig) SecondaryKey() string {
	if k.Secondary == "" {
		return DefaultSecondaryKey
	}
	return k.Secondary
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
