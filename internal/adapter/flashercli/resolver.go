package flashercli

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"qflasher/internal/domain"
	"qflasher/internal/infra/config"
)

// Resolver locates the flasher executable. Candidates are tried in order:
// the configured or bundled location, the development fallback, then the
// bare name on PATH.
type Resolver struct {
	executable  string
	devFallback string
	name        string

	selfPath func() (string, error)
	lookPath func(string) (string, error)
}

// NewResolver builds a Resolver from flasher settings.
func NewResolver(cfg config.FlasherConfig) *Resolver {
	name := cfg.Name
	if name == "" {
		name = config.DefaultExecutableName
	}
	return &Resolver{
		executable:  cfg.Executable,
		devFallback: cfg.DevFallback,
		name:        name,
		selfPath:    os.Executable,
		lookPath:    exec.LookPath,
	}
}

// Candidates lists the paths Resolve checks, excluding the PATH lookup.
func (r *Resolver) Candidates() []string {
	var out []string
	if r.executable != "" {
		out = append(out, r.executable)
	} else if self, err := r.selfPath(); err == nil {
		dir := filepath.Dir(self)
		out = append(out,
			filepath.Join(dir, r.name),
			filepath.Join(dir, "..", "Resources", r.name),
		)
	}
	if r.devFallback != "" {
		out = append(out, r.devFallback)
	}
	return out
}

// Resolve returns the first candidate that exists as a regular file.
func (r *Resolver) Resolve() (string, error) {
	candidates := r.Candidates()
	for _, p := range candidates {
		if isFile(p) {
			return p, nil
		}
	}
	if p, err := r.lookPath(r.name); err == nil {
		return p, nil
	}
	return "", domain.NewSubSystemError("flasher", "Resolver.Resolve", domain.ErrExecutableNotFound,
		"searched "+strings.Join(append(candidates, "$PATH/"+r.name), ", "))
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
