package config

import (
	"fmt"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateFlasher(cfg, ve)
	validateDevice(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateFlasher(cfg *Config, ve *ValidationError) {
	f := cfg.Flasher
	if f.Name == "" && f.Executable == "" {
		ve.Add("flasher.name or flasher.executable must be set")
	}
	if strings.TrimSpace(f.Version) == "" {
		ve.Add("flasher.version must not be empty (use \"latest\")")
	} else if strings.HasPrefix(f.Version, "-") {
		ve.Add("flasher.version %q must not start with '-'", f.Version)
	}
	if f.RequiredDiskBytes < 0 {
		ve.Add("flasher.required_disk_bytes must be >= 0")
	}
	if f.KillGrace <= 0 {
		ve.Add("flasher.kill_grace must be > 0")
	}
	if f.ListTimeout <= 0 {
		ve.Add("flasher.list_timeout must be > 0")
	}
	if f.FinishWait <= 0 {
		ve.Add("flasher.finish_wait must be > 0")
	}
}

func validateDevice(cfg *Config, ve *ValidationError) {
	d := cfg.Device
	if d.VendorID == 0 {
		ve.Add("device.vendor_id must be set")
	}
	if d.ProductID == 0 {
		ve.Add("device.product_id must be set")
	}
	if d.RescanDelay <= 0 {
		ve.Add("device.rescan_delay must be > 0")
	}
}

var validLevels = map[string]bool{"": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout", "stderr":
	default:
		ve.Add("tracer.exporter %q is invalid (want: noop, stdout, stderr)", cfg.Tracer.Exporter)
	}
}
