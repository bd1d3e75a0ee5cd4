// Package config handles tedge-core configuration loading.
package config

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigDir is the configuration directory used when
// TEDGE_CONFIG_DIR is unset (§ Filesystem layout).
const DefaultConfigDir = "/etc/tedge"

// configDirEnv is the environment variable overriding DefaultConfigDir.
const configDirEnv = "TEDGE_CONFIG_DIR"

// ConfigDir returns TEDGE_CONFIG_DIR if set, else DefaultConfigDir.
func ConfigDir() string {
	if dir := os.Getenv(configDirEnv); dir != "" {
		return dir
	}
	return DefaultConfigDir
}

// DefaultSearchPaths returns the config file search order. An explicit
// path (from a -config flag) is checked first by FindConfig; this list
// covers the conventional locations otherwise.
func DefaultSearchPaths() []string {
	dir := ConfigDir()
	return []string{
		"tedge-core.yaml",
		filepath.Join(dir, "tedge-core.yaml"),
	}
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all tedge-core configuration.
type Config struct {
	DeviceID     string             `yaml:"device_id"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	Clouds       CloudsConfig       `yaml:"clouds"`
	FileTransfer FileTransferConfig `yaml:"file_transfer"`
	Operation    OperationConfig    `yaml:"operation"`
	ConfigFiles  []ConfigFileEntry  `yaml:"config_files"`
	DataDir      string             `yaml:"data_dir"`
	LogLevel     string             `yaml:"log_level"`
}

// MQTTConfig defines the local broker connection the actor runtime
// dials on startup and reconnects to with bounded exponential backoff.
type MQTTConfig struct {
	BrokerURL string `yaml:"broker_url"` // e.g. "mqtt://localhost:1883"
	ClientID  string `yaml:"client_id"`
	// BridgeConfDir is where per-cloud bridge fragments are rendered
	// (`<cloud>-bridge.conf` under this directory).
	BridgeConfDir string `yaml:"bridge_conf_dir"`
}

// CloudsConfig holds the set of cloud connections that may be bridged
// and proxied. A device may bridge to more than one concurrently (e.g.
// Cumulocity and a generic MQTT endpoint).
type CloudsConfig struct {
	Cumulocity *CumulocityConfig `yaml:"c8y"`
	Azure      *AzureConfig      `yaml:"az"`
	AWS        *AWSConfig        `yaml:"aws"`
}

// CumulocityConfig defines the Cumulocity REST/bridge endpoint and the
// client certificate used for both the MQTT bridge and the HTTP proxy.
type CumulocityConfig struct {
	URL        string `yaml:"url"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	ExternalID string `yaml:"external_id"`
}

// AzureConfig defines the Azure IoT Hub bridge endpoint.
type AzureConfig struct {
	URL      string `yaml:"url"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// AWSConfig defines the AWS IoT Core bridge endpoint.
type AWSConfig struct {
	URL      string `yaml:"url"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Configured reports whether a Cumulocity connection has enough
// material (URL plus a client certificate pair) to bridge.
func (c *CumulocityConfig) Configured() bool {
	return c != nil && c.URL != "" && c.CertFile != "" && c.KeyFile != ""
}

// Configured reports whether an Azure connection has enough material to bridge.
func (c *AzureConfig) Configured() bool {
	return c != nil && c.URL != "" && c.CertFile != "" && c.KeyFile != ""
}

// Configured reports whether an AWS connection has enough material to bridge.
func (c *AWSConfig) Configured() bool {
	return c != nil && c.URL != "" && c.CertFile != "" && c.KeyFile != ""
}

// FileTransferConfig defines the local HTTPS file-transfer endpoint.
type FileTransferConfig struct {
	Addr     string `yaml:"addr"`
	DataDir  string `yaml:"data_dir"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CADir    string `yaml:"ca_dir"` // optional; enables mutual TLS
}

// OperationConfig tunes the operation state machine's retry/timeout
// policy, independent of any particular operation kind.
type OperationConfig struct {
	FirmwareTimeoutSec int `yaml:"firmware_timeout_sec"`
	FirmwareMaxRetries int `yaml:"firmware_max_retries"`
}

// ConfigFileEntry is one registered configuration entry: a logical
// type name, the filesystem path it maps to, and the permissions to
// apply when a downloaded config is written there. Types "#" and "+"
// are reserved MQTT wildcards and rejected by Validate.
type ConfigFileEntry struct {
	Type string      `yaml:"type"`
	Path string      `yaml:"path"`
	Mode fs.FileMode `yaml:"mode"`
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults for any unset fields, and validates the
// result. After Load returns successfully, all fields are usable
// without additional nil/empty checks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${TEDGE_CONFIG_DIR}); a
	// convenience for container deployments.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
// Called automatically by Load.
func (c *Config) applyDefaults() {
	if c.MQTT.BrokerURL == "" {
		c.MQTT.BrokerURL = "mqtt://localhost:1883"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "tedge-core"
	}
	if c.MQTT.BridgeConfDir == "" {
		c.MQTT.BridgeConfDir = filepath.Join(ConfigDir(), "mosquitto-conf")
	}
	if c.DataDir == "" {
		c.DataDir = "/var/tedge"
	}
	if c.FileTransfer.Addr == "" {
		c.FileTransfer.Addr = ":8000"
	}
	if c.FileTransfer.DataDir == "" {
		c.FileTransfer.DataDir = filepath.Join(c.DataDir, "file-transfer")
	}
	if c.Operation.FirmwareTimeoutSec == 0 {
		c.Operation.FirmwareTimeoutSec = 3600
	}
	if c.Operation.FirmwareMaxRetries == 0 {
		c.Operation.FirmwareMaxRetries = 3
	}
	for i := range c.ConfigFiles {
		if c.ConfigFiles[i].Mode == 0 {
			c.ConfigFiles[i].Mode = 0644
		}
	}
}

// Validate checks that the configuration is internally consistent. It
// runs after applyDefaults, so it can assume defaults are populated.
// Returns an error describing the first problem found, or nil.
func (c *Config) Validate() error {
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}

	seen := make(map[string]bool, len(c.ConfigFiles))
	for _, e := range c.ConfigFiles {
		if e.Type == "" {
			return fmt.Errorf("config_files: entry with empty type")
		}
		if strings.ContainsAny(e.Type, "#+") {
			return fmt.Errorf("config_files: type %q must not contain MQTT wildcards '#' or '+'", e.Type)
		}
		if seen[e.Type] {
			return fmt.Errorf("config_files: duplicate type %q", e.Type)
		}
		seen[e.Type] = true
		if e.Path == "" {
			return fmt.Errorf("config_files: entry %q has empty path", e.Type)
		}
	}

	if c.Clouds.Cumulocity != nil && c.Clouds.Cumulocity.URL != "" {
		if c.Clouds.Cumulocity.CertFile == "" || c.Clouds.Cumulocity.KeyFile == "" {
			return fmt.Errorf("clouds.c8y: url set without cert_file/key_file")
		}
	}
	if c.Clouds.Azure != nil && c.Clouds.Azure.URL != "" {
		if c.Clouds.Azure.CertFile == "" || c.Clouds.Azure.KeyFile == "" {
			return fmt.Errorf("clouds.az: url set without cert_file/key_file")
		}
	}
	if c.Clouds.AWS != nil && c.Clouds.AWS.URL != "" {
		if c.Clouds.AWS.CertFile == "" || c.Clouds.AWS.KeyFile == "" {
			return fmt.Errorf("clouds.aws: url set without cert_file/key_file")
		}
	}

	return nil
}

// Default returns a default configuration with only the local MQTT
// broker and file-transfer service enabled — no cloud configured. All
// defaults are already applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
