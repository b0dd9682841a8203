package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"qflasher/internal/domain"
)

// DefaultExecutableName is the flasher tool looked up on PATH as a last resort.
const DefaultExecutableName = "arduino-flasher-cli"

// Config is the top-level application configuration.
type Config struct {
	Flasher FlasherConfig `yaml:"flasher"`
	Device  DeviceConfig  `yaml:"device"`
	Logger  LoggerConfig  `yaml:"logger"`
	Tracer  TracerConfig  `yaml:"tracer"`
}

// FlasherConfig holds settings for the external flashing tool.
type FlasherConfig struct {
	Executable        string        `yaml:"executable"`   // bundled location; empty = next to the qflasher binary
	Name              string        `yaml:"name"`         // bare name searched on PATH
	DevFallback       string        `yaml:"dev_fallback"` // development checkout of the tool
	Version           string        `yaml:"version"`      // "latest" or an explicit release
	RequiredDiskBytes int64         `yaml:"required_disk_bytes"`
	DiskPath          string        `yaml:"disk_path"` // volume checked for free space
	KillGrace         time.Duration `yaml:"kill_grace"`
	ListTimeout       time.Duration `yaml:"list_timeout"`
	FinishWait        time.Duration `yaml:"finish_wait"` // how long to let the tool exit after it reports success
}

// DeviceConfig identifies the EDL-mode USB device and where to watch for it.
type DeviceConfig struct {
	VendorID    uint16        `yaml:"vendor_id"`
	ProductID   uint16        `yaml:"product_id"`
	RescanDelay time.Duration `yaml:"rescan_delay"`
	SysfsRoot   string        `yaml:"sysfs_root"`
	DevRoot     string        `yaml:"dev_root"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// defaultDevFallback mirrors the layout of an unpacked release archive in
// ~/Downloads, which is where the tool lives during development.
func defaultDevFallback() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	dir := fmt.Sprintf("%s-0.5.0-%s-%s", DefaultExecutableName, runtime.GOOS, runtime.GOARCH)
	return filepath.Join(home, "Downloads", dir, DefaultExecutableName)
}

func defaultDiskPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Flasher: FlasherConfig{
			Name:              DefaultExecutableName,
			DevFallback:       defaultDevFallback(),
			Version:           "latest",
			RequiredDiskBytes: domain.RequiredDiskSpace,
			DiskPath:          defaultDiskPath(),
			KillGrace:         5 * time.Second,
			ListTimeout:       30 * time.Second,
			FinishWait:        30 * time.Second,
		},
		Device: DeviceConfig{
			VendorID:    0x05C6,
			ProductID:   0x9008,
			RescanDelay: 500 * time.Millisecond,
			SysfsRoot:   "/sys/bus/usb/devices",
			DevRoot:     "/dev/bus/usb",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file and applies env var overrides.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("%w: read config: %v", domain.ErrConfigLoad, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config: %v", domain.ErrConfigLoad, err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps QFLASHER_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("QFLASHER_FLASHER_EXECUTABLE"); v != "" {
		cfg.Flasher.Executable = v
	}
	if v := os.Getenv("QFLASHER_FLASHER_VERSION"); v != "" {
		cfg.Flasher.Version = v
	}
	if v := os.Getenv("QFLASHER_FLASHER_DISK_PATH"); v != "" {
		cfg.Flasher.DiskPath = v
	}
	if v := os.Getenv("QFLASHER_FLASHER_REQUIRED_DISK_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			cfg.Flasher.RequiredDiskBytes = n
		}
	}
	if v := os.Getenv("QFLASHER_DEVICE_RESCAN_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Device.RescanDelay = d
		}
	}
	if v := os.Getenv("QFLASHER_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("QFLASHER_LOGGER_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("QFLASHER_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("QFLASHER_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}
