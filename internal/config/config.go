package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults for the [api] section.
const (
	DefaultBaseURL        = "https://api.smugmug.com/api/v2"
	DefaultPageSize       = 100
	DefaultWriteInterval  = "1s"
	DefaultMaxRetries     = 3
	DefaultMaxRateRetries = 5
	DefaultInitialBackoff = "2s"
	DefaultMaxBackoff     = "60s"
	DefaultListen         = "127.0.0.1:8750"
)

// Config represents the main configuration for smugdups.
type Config struct {
	BaseDir     string            `toml:"base_dir"`
	LogDir      string            `toml:"log_dir"`
	LogLevel    string            `toml:"log_level"` // debug, info, warn or error
	Credentials CredentialsConfig `toml:"credentials"`
	API         APIConfig         `toml:"api"`
	Scan        ScanConfig        `toml:"scan"`
	Review      ReviewConfig      `toml:"review"`
	Archive     ArchiveConfig     `toml:"archive"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
}

// CredentialsConfig holds the OAuth1 consumer and access credentials.
// Environment variables override every field, see ApplyEnv.
type CredentialsConfig struct {
	APIKey       string `toml:"api_key"`
	APISecret    string `toml:"api_secret"`
	AccessToken  string `toml:"access_token"`
	AccessSecret string `toml:"access_secret"`
	User         string `toml:"user"`
}

// APIConfig tunes the API client. Durations use time.ParseDuration syntax.
type APIConfig struct {
	BaseURL        string `toml:"base_url"`
	PageSize       int    `toml:"page_size"`
	WriteInterval  string `toml:"write_interval"`
	MaxRetries     int    `toml:"max_retries"`
	MaxRateRetries int    `toml:"max_rate_retries"`
	InitialBackoff string `toml:"initial_backoff"`
	MaxBackoff     string `toml:"max_backoff"`
}

// ScanConfig holds duplicate scan settings.
type ScanConfig struct {
	// ExcludeAlbums are glob patterns matched case-insensitively against
	// album names, or against album URL paths when they contain a '/'.
	ExcludeAlbums []string `toml:"exclude_albums"`
	// Weights overrides the keeper scoring weights by rule name.
	Weights map[string]int `toml:"weights"`
}

// ReviewConfig names the dated review albums.
type ReviewConfig struct {
	Prefix    string `toml:"prefix"`
	URLPrefix string `toml:"url_prefix"`
}

// ArchiveConfig controls archiving originals before permanent deletes.
type ArchiveConfig struct {
	Enabled    bool             `toml:"enabled"`
	Vault      VaultConfig      `toml:"vault"`
	Encryption EncryptionConfig `toml:"encryption"`
	Spool      SpoolConfig      `toml:"spool"`
}

// EncryptionConfig holds paths to the age key pair used for encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
	// ExtraRecipients are additional age public keys every archive is also
	// encrypted to, e.g. an offline recovery key.
	ExtraRecipients []string `toml:"extra_recipients,omitempty"`
}

// VaultConfig represents configuration for an archive vault backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"` // for S3-compatible stores
	// Static keys; when empty the default AWS credential chain is used.
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// SpoolConfig represents configuration for the download spool.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type SpoolConfig struct {
	Type     string `toml:"type"`                // "memory" or "filesystem"
	SpoolDir string `toml:"spool_dir,omitempty"` // only used for type=filesystem
	MaxSize  int64  `toml:"max_size"`            // max total size in bytes; defaults to 512MB
}

// DatabaseConfig represents configuration for the run journal.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// ServerConfig holds control API settings.
type ServerConfig struct {
	Listen string `toml:"listen"`
}

// NewConfig creates a new Config rooted at baseDir with default values.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		LogLevel: "info",
		API: APIConfig{
			BaseURL:        DefaultBaseURL,
			PageSize:       DefaultPageSize,
			WriteInterval:  DefaultWriteInterval,
			MaxRetries:     DefaultMaxRetries,
			MaxRateRetries: DefaultMaxRateRetries,
			InitialBackoff: DefaultInitialBackoff,
			MaxBackoff:     DefaultMaxBackoff,
		},
		Review: ReviewConfig{
			Prefix:    "SmugDups Review",
			URLPrefix: "SmugDups-review",
		},
		Archive: ArchiveConfig{
			Vault: VaultConfig{
				Type:        "filesystem",
				Name:        "archive",
				FSVaultRoot: filepath.Join(baseDir, "archive"),
			},
			Encryption: EncryptionConfig{
				Type:           "age",
				PublicKeyPath:  filepath.Join(baseDir, "keys", "smugdups.pub"),
				PrivateKeyPath: filepath.Join(baseDir, "keys", "smugdups.key"),
			},
			Spool: SpoolConfig{
				Type:     "filesystem",
				SpoolDir: filepath.Join(baseDir, "spool"),
				MaxSize:  512 * 1024 * 1024,
			},
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Server: ServerConfig{Listen: DefaultListen},
	}
}

// Credential environment variables.
const (
	EnvAPIKey       = "SMUGDUPS_API_KEY"
	EnvAPISecret    = "SMUGDUPS_API_SECRET"
	EnvAccessToken  = "SMUGDUPS_ACCESS_TOKEN"
	EnvAccessSecret = "SMUGDUPS_ACCESS_SECRET"
	EnvUser         = "SMUGDUPS_USER"
)

// ApplyEnv overrides credentials with any non-empty environment values.
// lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(&c.Credentials.APIKey, EnvAPIKey)
	set(&c.Credentials.APISecret, EnvAPISecret)
	set(&c.Credentials.AccessToken, EnvAccessToken)
	set(&c.Credentials.AccessSecret, EnvAccessSecret)
	set(&c.Credentials.User, EnvUser)
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	if c.BaseDir == "" {
		errs = append(errs, errors.New("base_dir is required"))
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}
	if c.API.PageSize < 0 {
		errs = append(errs, fmt.Errorf("api.page_size must not be negative"))
	}
	for name, d := range map[string]string{
		"api.write_interval":  c.API.WriteInterval,
		"api.initial_backoff": c.API.InitialBackoff,
		"api.max_backoff":     c.API.MaxBackoff,
	} {
		if _, err := ParseDuration(d, 0); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	for name, w := range c.Scan.Weights {
		if w < 0 {
			errs = append(errs, fmt.Errorf("scan.weights.%s must not be negative", name))
		}
	}
	if c.Archive.Enabled {
		if c.Archive.Vault.Type == "" {
			errs = append(errs, errors.New("archive.vault.type is required when archiving is enabled"))
		}
		if c.Archive.Vault.Type == "s3" && c.Archive.Vault.S3Bucket == "" {
			errs = append(errs, errors.New("archive.vault.s3_bucket is required for an s3 vault"))
		}
	}
	return errors.Join(errs...)
}

// ParseDuration parses s, returning def when s is empty.
func ParseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid duration %q: must not be negative", s)
	}
	return d, nil
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
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The file holds API credentials.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
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

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
