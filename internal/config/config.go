package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"segmentline/internal/catalog"
	"segmentline/internal/domain"
	"segmentline/internal/logging"
)

// FileName is the config file looked up in a workspace.
const FileName = "segmentline.yml"

// Config models segmentline.yml.
type Config struct {
	Collector struct {
		URL            string `yaml:"url" json:"url"`
		TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
	} `yaml:"collector" json:"collector"`
	Catalog []domain.CatalogEntry `yaml:"catalog" json:"catalog"`
	Server  struct {
		Addr     string `yaml:"addr" json:"addr"`
		BasePath string `yaml:"base_path" json:"base_path"`
	} `yaml:"server" json:"server"`
	Log struct {
		Level string `yaml:"level" json:"level"`
	} `yaml:"log" json:"log"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Catalog) == 0 {
		return fmt.Errorf("config.catalog must list at least one schema")
	}
	if _, err := catalog.New(c.Catalog); err != nil {
		return fmt.Errorf("config.catalog: %w", err)
	}
	if c.Collector.URL != "" {
		if err := validateURL(c.Collector.URL); err != nil {
			return err
		}
	}
	if c.Collector.TimeoutSeconds < 0 {
		return fmt.Errorf("config.collector.timeout_seconds must not be negative")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config.log.level: %w", err)
	}
	return nil
}

// RequireCollector checks that a collector endpoint is configured.
func (c *Config) RequireCollector() error {
	if strings.TrimSpace(c.Collector.URL) == "" {
		return fmt.Errorf("collector url is required; set collector.url, --collector-url or SEGMENTLINE_COLLECTOR_URL")
	}
	return validateURL(c.Collector.URL)
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid collector url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid collector url %s: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid collector url %s: missing host", raw)
	}
	return nil
}

// Timeout is the collector timeout; zero means the client default.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Collector.TimeoutSeconds) * time.Second
}

// BuildCatalog returns the validated catalog.
func (c *Config) BuildCatalog() (catalog.Catalog, error) {
	return catalog.New(c.Catalog)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns default config YAML.
func GenerateDefault(collectorURL string) string {
	return fmt.Sprintf(defaultTemplate, collectorURL)
}

// Default returns the built-in config.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(GenerateDefault("")), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() catalog.Catalog {
	return catalog.MustNew(Default().Catalog)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `collector:
  url: "%s"
  timeout_seconds: 10

catalog:
  - value: first_name
    label: First Name
  - value: last_name
    label: Last Name
  - value: gender
    label: Gender
  - value: age
    label: Age
  - value: account_name
    label: Account Name
  - value: city
    label: City
  - value: state
    label: State

server:
  addr: 127.0.0.1:8080
  base_path: /v0

log:
  level: info
`
