package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"hellblock.ai/internal/block"
	"hellblock.ai/internal/compress"
)

type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Host     HostConfig     `yaml:"host"`
	Journal  JournalConfig  `yaml:"journal"`
	Observer ObserverConfig `yaml:"observer"`
	Worlds   []string       `yaml:"worlds"`
}

type StorageConfig struct {
	Namespace        string        `yaml:"namespace"`
	RegionExt        string        `yaml:"region_ext"`
	Compression      string        `yaml:"compression"`
	Backend          string        `yaml:"backend"`
	Generator        string        `yaml:"generator"`
	AutosaveInterval time.Duration `yaml:"autosave_interval"`
}

type HostConfig struct {
	Root           string `yaml:"root"`
	BlobEngine     string `yaml:"blob_engine"`
	PersistentData bool   `yaml:"persistent_data"`
	DBPath         string `yaml:"db_path"`
}

type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type ObserverConfig struct {
	// Listen is empty to disable the observer endpoint.
	Listen string `yaml:"listen"`
}

func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Defaults() Config {
	return Config{
		Storage: StorageConfig{
			Namespace:        block.DefaultNamespace,
			RegionExt:        "hbr",
			Compression:      "zstd",
			Backend:          "auto",
			AutosaveInterval: 5 * time.Minute,
		},
		Host: HostConfig{
			Root:           "./data/worlds",
			BlobEngine:     "leveldb",
			PersistentData: true,
			DBPath:         "./data/host.sqlite",
		},
		Journal: JournalConfig{
			Enabled: true,
			Dir:     "./data/journal",
		},
		Observer: ObserverConfig{
			Listen: "127.0.0.1:8095",
		},
		Worlds: []string{"hellblock_world"},
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	c.Storage.Namespace = strings.ToLower(strings.TrimSpace(c.Storage.Namespace))
	if c.Storage.Namespace == "" {
		c.Storage.Namespace = block.DefaultNamespace
	}
	c.Storage.RegionExt = strings.TrimPrefix(strings.TrimSpace(c.Storage.RegionExt), ".")
	if c.Storage.RegionExt == "" {
		c.Storage.RegionExt = "hbr"
	}
	c.Storage.Compression = strings.ToLower(strings.TrimSpace(c.Storage.Compression))
	if c.Storage.Compression == "" {
		c.Storage.Compression = "zstd"
	}
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = "auto"
	}
	c.Host.BlobEngine = strings.ToLower(strings.TrimSpace(c.Host.BlobEngine))
	if c.Host.BlobEngine == "" {
		c.Host.BlobEngine = "none"
	}
	seen := map[string]bool{}
	worlds := c.Worlds[:0]
	for _, w := range c.Worlds {
		w = strings.TrimSpace(w)
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		worlds = append(worlds, w)
	}
	c.Worlds = worlds
}

func (c Config) Validate() error {
	if strings.ContainsAny(c.Storage.Namespace, ": /") {
		return fmt.Errorf("storage.namespace %q must not contain ':', '/' or spaces", c.Storage.Namespace)
	}
	if strings.ContainsAny(c.Storage.RegionExt, `/\`) {
		return fmt.Errorf("storage.region_ext %q must be a plain extension", c.Storage.RegionExt)
	}
	if _, err := compress.Lookup(c.Storage.Compression); err != nil {
		return fmt.Errorf("storage.compression: %w", err)
	}
	switch c.Storage.Backend {
	case "auto", "filesystem", "embedded":
	default:
		return fmt.Errorf("storage.backend must be auto, filesystem or embedded, got %q", c.Storage.Backend)
	}
	if c.Storage.AutosaveInterval < 0 {
		return fmt.Errorf("storage.autosave_interval must be >= 0")
	}
	if c.Storage.AutosaveInterval > 0 && c.Storage.AutosaveInterval < time.Second {
		return fmt.Errorf("storage.autosave_interval must be at least 1s, got %s", c.Storage.AutosaveInterval)
	}
	if strings.TrimSpace(c.Host.Root) == "" {
		return fmt.Errorf("host.root must not be empty")
	}
	switch c.Host.BlobEngine {
	case "none", "leveldb", "sqlite":
	default:
		return fmt.Errorf("host.blob_engine must be leveldb, sqlite or none, got %q", c.Host.BlobEngine)
	}
	if c.Storage.Backend == "embedded" && c.Host.BlobEngine == "none" {
		return fmt.Errorf("storage.backend embedded needs a host.blob_engine")
	}
	if (c.Host.PersistentData || c.Host.BlobEngine == "sqlite") && strings.TrimSpace(c.Host.DBPath) == "" {
		return fmt.Errorf("host.db_path must not be empty")
	}
	if c.Journal.Enabled && strings.TrimSpace(c.Journal.Dir) == "" {
		return fmt.Errorf("journal.dir must not be empty when enabled")
	}
	if c.Observer.Listen != "" {
		host, _, err := net.SplitHostPort(c.Observer.Listen)
		if err != nil {
			return fmt.Errorf("observer.listen: %w", err)
		}
		if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
			return fmt.Errorf("observer.listen must be a loopback address, got %q", c.Observer.Listen)
		}
	}
	return nil
}
