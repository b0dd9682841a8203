package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"qflasher/internal/adapter/diskspace"
	"qflasher/internal/adapter/flashercli"
	"qflasher/internal/adapter/usb"
	"qflasher/internal/domain"
	"qflasher/internal/infra/config"
	"qflasher/internal/infra/logger"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// doctorEnv carries what the checks inspect, so tests can substitute fakes.
type doctorEnv struct {
	cfg      *config.Config
	resolver interface {
		Resolve() (string, error)
		Candidates() []string
	}
	versions domain.VersionSource
	disk     domain.DiskSpaceProber
	device   func(ctx context.Context) (present bool, err error)
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(ctx context.Context, env *doctorEnv) CheckResult
}

// runDoctor executes all health checks and reports results.
func runDoctor() error {
	cfgPath := configPath()
	cfg, cfgErr := config.Load(cfgPath)
	if cfg == nil {
		cfg = config.Defaults()
		config.ApplyEnvOverrides(cfg)
	}

	log := logger.Discard()
	env := &doctorEnv{
		cfg:      cfg,
		resolver: flashercli.NewResolver(cfg.Flasher),
		versions: newToolClient(cfg, nil, log),
		disk:     diskspace.Prober{},
		device: func(ctx context.Context) (bool, error) {
			m := usb.NewSystemMonitor(cfg.Device, nil, log)
			defer m.Stop()
			if err := m.Start(ctx); err != nil {
				return m.Present(), err
			}
			return m.Present(), nil
		},
	}

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "Flasher executable", Fn: checkExecutable},
		{Name: "Flasher responds", Fn: checkVersions},
		{Name: "Disk space", Fn: checkDiskSpace},
		{Name: "EDL device", Fn: checkDevice},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Flasher.ListTimeout+5*time.Second)
	defer cancel()

	fmt.Println("qflasher doctor")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	results := runChecks(ctx, env, checks)
	var pass, warn, fail int
	for _, result := range results {
		fmt.Printf("  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Printf("      Fix: %s\n", result.Fix)
		}
		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Println()
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		fmt.Println("\nFix the FAIL issues above before flashing.")
		return fmt.Errorf("%d check(s) failed", fail)
	}
	if warn > 0 {
		fmt.Println("\nqflasher should work, but consider addressing the warnings.")
	} else {
		fmt.Println("\nAll checks passed! Ready to flash.")
	}
	return nil
}

func runChecks(ctx context.Context, env *doctorEnv, checks []Check) []CheckResult {
	results := make([]CheckResult, 0, len(checks))
	for _, check := range checks {
		result := check.Fn(ctx, env)
		result.Name = check.Name
		results = append(results, result)
	}
	return results
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile reports whether the config file exists and parses. A
// missing file is fine; defaults apply.
func checkConfigFile(cfgPath string, cfgErr error) func(context.Context, *doctorEnv) CheckResult {
	return func(context.Context, *doctorEnv) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Check " + cfgPath + " syntax and QFLASHER_* variables",
			}
		}
		if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
			return CheckResult{Status: StatusPass, Message: "no config file, using defaults"}
		}
		return CheckResult{Status: StatusPass, Message: "config loaded from " + cfgPath}
	}
}

func checkExecutable(_ context.Context, env *doctorEnv) CheckResult {
	path, err := env.resolver.Resolve()
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: "arduino-flasher-cli not found (searched " + strings.Join(env.resolver.Candidates(), ", ") + " and PATH)",
			Fix:     "Install arduino-flasher-cli or set flasher.executable",
		}
	}
	return CheckResult{Status: StatusPass, Message: path}
}

func checkVersions(ctx context.Context, env *doctorEnv) CheckResult {
	info, err := env.versions.LatestRelease(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrExecutableNotFound) {
			return CheckResult{Status: StatusFail, Message: "cannot check, flasher not found"}
		}
		return CheckResult{
			Status:  StatusWarn,
			Message: domain.UserMessage(err),
			Fix:     "Check your internet connection",
		}
	}
	if info == nil {
		return CheckResult{Status: StatusWarn, Message: "flasher lists no images"}
	}
	return CheckResult{Status: StatusPass, Message: "latest image " + info.Version}
}

func checkDiskSpace(_ context.Context, env *doctorEnv) CheckResult {
	path := env.cfg.Flasher.DiskPath
	avail, err := env.disk.Available(path)
	if err != nil {
		return CheckResult{Status: StatusWarn, Message: fmt.Sprintf("cannot determine free space at %s: %v", path, err)}
	}
	required := env.cfg.Flasher.RequiredDiskBytes
	if avail < required {
		return CheckResult{
			Status:  StatusFail,
			Message: (&domain.InsufficientDiskSpaceError{Available: avail, Required: required}).Error(),
			Fix:     "Free up space or set flasher.disk_path to a larger volume",
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%.1f GB free at %s", float64(avail)/1e9, path)}
}

func checkDevice(ctx context.Context, env *doctorEnv) CheckResult {
	present, err := env.device(ctx)
	if err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: "device detection unavailable: " + domain.UserMessage(err),
			Fix:     "Flashing still works; start it manually once the board is connected",
		}
	}
	if !present {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("no %04x:%04x device connected", env.cfg.Device.VendorID, env.cfg.Device.ProductID),
			Fix:     "Connect the board with the JCTL jumper installed",
		}
	}
	return CheckResult{Status: StatusPass, Message: "EDL device connected"}
}
