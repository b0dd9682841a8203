package main

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func withArgs(t *testing.T, args ...string) {
	t.Helper()
	saved := os.Args
	os.Args = append([]string{"qflasher"}, args...)
	t.Cleanup(func() { os.Args = saved })
}

func TestConfigPath(t *testing.T) {
	t.Setenv("QFLASHER_CONFIG", "")
	withArgs(t, "flash")
	assert.Equal(t, defaultConfigFile, configPath())

	t.Setenv("QFLASHER_CONFIG", "/etc/qflasher.yaml")
	assert.Equal(t, "/etc/qflasher.yaml", configPath())

	withArgs(t, "flash", "--config", "/tmp/a.yaml")
	assert.Equal(t, "/tmp/a.yaml", configPath())

	withArgs(t, "--config=/tmp/b.yaml")
	assert.Equal(t, "/tmp/b.yaml", configPath())
}

func TestCommandArgsStripsConfig(t *testing.T) {
	assert.Equal(t, []string{"1.2.0", "-y"}, commandArgs([]string{"--config", "x.yaml", "1.2.0", "-y"}))
	assert.Equal(t, []string{"--json"}, commandArgs([]string{"--json", "--config=x.yaml"}))
	assert.Empty(t, commandArgs(nil))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 130, exitCode(errCancelled))
	assert.Equal(t, 130, exitCode(errAborted))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
}
