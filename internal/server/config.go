package server

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/openhobd/dlcbridge/internal/ecu"
)

// Config holds all bridge configuration.
type Config struct {
	mu sync.RWMutex

	ECU    ECUConfig    `yaml:"ecu" json:"ecu"`
	Host   HostConfig   `yaml:"host" json:"host"`
	Server ServerConfig `yaml:"server" json:"server"`

	path string // file path for save/load
}

// ECUConfig selects and configures the vehicle-bus provider.
type ECUConfig struct {
	Type   string        `yaml:"type" json:"type"` // "dlc" or "demo"
	DLC    ecu.DLCConfig `yaml:"dlc" json:"dlc"`
	PollHz int           `yaml:"poll_hz" json:"pollHz"`
}

// HostConfig configures the framed serial link to PC/Bluetooth clients.
type HostConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	PortPath string `yaml:"port_path" json:"portPath"`
	BaudRate int    `yaml:"baud_rate" json:"baudRate"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listenAddr"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ECU: ECUConfig{
			Type: "demo",
			DLC: ecu.DLCConfig{
				PortPath:  "/dev/ttyDLC",
				BaudRate:  9600,
				TimeoutMs: 200,
			},
			PollHz: 5,
		},
		Host: HostConfig{
			Enabled:  false,
			PortPath: "/dev/ttyHost",
			BaudRate: 115200,
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
		},
	}
}

// LoadConfig reads config from a YAML file, then applies environment
// variable overrides. Falls back to defaults if the file is missing.
func LoadConfig(path string) *Config {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[config] no config at %s, using defaults", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("[config] error parsing %s: %v, using defaults", path, err)
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		log.Printf("[config] loaded from %s", path)
	}

	cfg.applyEnvOverrides()
	return cfg
}

// applyEnvOverrides reads environment variables and overrides config
// values. Supported: ECU_TYPE, ECU_PORT, ECU_BAUD, ECU_TIMEOUT_MS,
// HOST_ENABLED, HOST_PORT, HOST_BAUD, LISTEN_ADDR.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ECU_TYPE"); v != "" {
		c.ECU.Type = v
	}
	if v := os.Getenv("ECU_PORT"); v != "" {
		c.ECU.DLC.PortPath = v
	}
	if v := os.Getenv("ECU_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ECU.DLC.BaudRate = n
		}
	}
	if v := os.Getenv("ECU_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ECU.DLC.TimeoutMs = n
		}
	}
	if v := os.Getenv("HOST_ENABLED"); v != "" {
		c.Host.Enabled = v == "1" || v == "true" || v == "yes"
	}
	if v := os.Getenv("HOST_PORT"); v != "" {
		c.Host.PortPath = v
	}
	if v := os.Getenv("HOST_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Host.BaudRate = n
		}
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
}

// Save writes the config to its YAML file.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.path == "" {
		c.path = "/etc/dlcbridge/config.yaml"
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0644)
}

// ToJSON serializes config for the API.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}

// UpdateFromJSON applies a partial JSON config update by deep-merging
// incoming fields into the existing config. Fields not present in the
// incoming JSON are preserved.
func (c *Config) UpdateFromJSON(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	currentBytes, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal current config: %w", err)
	}
	var base map[string]interface{}
	if err := json.Unmarshal(currentBytes, &base); err != nil {
		return fmt.Errorf("unmarshal current config: %w", err)
	}

	var patch map[string]interface{}
	if err := json.Unmarshal(data, &patch); err != nil {
		return fmt.Errorf("unmarshal patch: %w", err)
	}

	deepMerge(base, patch)

	merged, err := json.Marshal(base)
	if err != nil {
		return fmt.Errorf("marshal merged config: %w", err)
	}
	return json.Unmarshal(merged, c)
}

// deepMerge recursively merges src into dst. For nested maps, values are
// merged rather than replaced. For all other types, src overwrites dst.
func deepMerge(dst, src map[string]interface{}) {
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]interface{}); ok {
			if dstMap, ok := dst[key].(map[string]interface{}); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
}
