package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied by NewConfig and ApplyDefaults.
const (
	DefaultAppName         = "ArDrive-Go"
	DefaultAppURL          = "https://app.ardrive.io"
	DefaultGateway         = "https://arweave.net"
	DefaultMaxTries        = 5
	DefaultTimeoutSeconds  = 30
	DefaultWorkers         = 4
	DefaultMaxChunkRetries = 5
	DefaultMaxBundleItems  = 500
	DefaultLogMaxSizeMB    = 10
	DefaultLogMaxBackups   = 5
	DefaultLogMaxAgeDays   = 30
)

// Config represents the main configuration for ardrive.
type Config struct {
	Login      string           `toml:"login"` // wallet address the local store belongs to
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	SyncFolder string           `toml:"sync_folder"`
	AppName    string           `toml:"app_name"`
	AppVersion string           `toml:"app_version"`
	AppURL     string           `toml:"app_url"`
	Gateway    GatewayConfig    `toml:"gateway"`
	Upload     UploadConfig     `toml:"upload"`
	Keystore   KeystoreConfig   `toml:"keystore"`
	Database   DatabaseConfig   `toml:"database"`
	Vaults     []VaultConfig    `toml:"vaults"`
	Filesystem FilesystemConfig `toml:"filesystem"`
	Log        LogConfig        `toml:"log"`
}

// GatewayConfig lists the ledger gateways. The primary serves every write;
// queries fail over from the primary to each backup in order.
type GatewayConfig struct {
	Primary        string   `toml:"primary"`
	Backup         []string `toml:"backup"`
	MaxTries       int      `toml:"max_tries"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// Timeout returns the per-request timeout.
func (g GatewayConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// GraphQLEndpoints returns the query endpoints, primary first.
func (g GatewayConfig) GraphQLEndpoints() []string {
	out := make([]string, 0, 1+len(g.Backup))
	for _, base := range append([]string{g.Primary}, g.Backup...) {
		out = append(out, base+"/graphql")
	}
	return out
}

// UploadConfig tunes the upload scheduler.
type UploadConfig struct {
	Workers         int  `toml:"workers"`
	MaxChunkRetries int  `toml:"max_chunk_retries"`
	Bundle          bool `toml:"bundle"` // pack metadata transactions into one bundle
	MaxBundleItems  int  `toml:"max_bundle_items"`
}

// KeystoreConfig locates the encrypted wallet.
type KeystoreConfig struct {
	Type        string `toml:"type"` // "age" (default) or "test"
	SeedPath    string `toml:"seed_path"`
	AddressPath string `toml:"address_path"`
}

// FilesystemConfig holds filesystem-related settings.
type FilesystemConfig struct {
	Ignore []string `toml:"ignore"`
}

// VaultConfig represents configuration for a vault backend.
// The Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"` // S3-compatible services

	// Static credentials. When empty the default AWS credential chain is used.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// DatabaseConfig represents configuration for the local store.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// LogConfig controls log file rotation.
type LogConfig struct {
	MaxSizeMB  int  `toml:"max_size_mb"`
	MaxBackups int  `toml:"max_backups"`
	MaxAgeDays int  `toml:"max_age_days"`
	Compress   bool `toml:"compress"`
}

// NewConfig creates a Config for login rooted at baseDir, with every default filled in.
func NewConfig(login, baseDir string) *Config {
	cfg := &Config{
		Login:   login,
		BaseDir: baseDir,
		Keystore: KeystoreConfig{
			Type:        "age",
			SeedPath:    filepath.Join(baseDir, "wallet", "wallet.age"),
			AddressPath: filepath.Join(baseDir, "wallet", "address"),
		},
		Database: DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Vaults: []VaultConfig{
			{Type: "filesystem", Name: "local", FSVaultRoot: filepath.Join(baseDir, "vault")},
		},
		Filesystem: FilesystemConfig{Ignore: []string{".git", ".DS_Store", "*.tmp"}},
		Log:        LogConfig{Compress: true},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued settings. Explicit values are kept.
func (c *Config) ApplyDefaults() {
	if c.LogDir == "" && c.BaseDir != "" {
		c.LogDir = filepath.Join(c.BaseDir, "log")
	}
	if c.AppName == "" {
		c.AppName = DefaultAppName
	}
	if c.AppURL == "" {
		c.AppURL = DefaultAppURL
	}
	if c.Gateway.Primary == "" {
		c.Gateway.Primary = DefaultGateway
	}
	if c.Gateway.MaxTries <= 0 {
		c.Gateway.MaxTries = DefaultMaxTries
	}
	if c.Gateway.TimeoutSeconds <= 0 {
		c.Gateway.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if c.Upload.Workers <= 0 {
		c.Upload.Workers = DefaultWorkers
	}
	if c.Upload.MaxChunkRetries <= 0 {
		c.Upload.MaxChunkRetries = DefaultMaxChunkRetries
	}
	if c.Upload.MaxBundleItems <= 0 {
		c.Upload.MaxBundleItems = DefaultMaxBundleItems
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = DefaultLogMaxBackups
	}
	if c.Log.MaxAgeDays <= 0 {
		c.Log.MaxAgeDays = DefaultLogMaxAgeDays
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from r. Missing settings get their defaults.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// Write encodes a Config to w.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	cfg, err := (&Manager{}).Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// WriteToFile replaces the config file at path.
func WriteToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	if err := (&Manager{}).Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes a new config file. It refuses to overwrite an existing one.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := WriteToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
