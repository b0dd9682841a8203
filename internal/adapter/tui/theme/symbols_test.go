package theme

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func envOf(kv map[string]string) func(string) string {
	return func(k string) string { return kv[k] }
}

func TestWantsASCII(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want bool
	}{
		{"empty environment", nil, false},
		{"forced on", map[string]string{"QFLASHER_ASCII_SYMBOLS": "1"}, true},
		{"forced off beats console", map[string]string{"QFLASHER_ASCII_SYMBOLS": "false", "TERM": "linux"}, false},
		{"linux console", map[string]string{"TERM": "linux", "LANG": "en_US.UTF-8"}, true},
		{"utf-8 locale", map[string]string{"TERM": "xterm-256color", "LANG": "en_US.UTF-8"}, false},
		{"C locale", map[string]string{"LANG": "C"}, true},
		{"LC_ALL wins over LANG", map[string]string{"LC_ALL": "POSIX", "LANG": "de_DE.utf8"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, WantsASCII(envOf(tc.env)))
		})
	}
}

func TestSelectSymbols(t *testing.T) {
	t.Cleanup(SelectSymbols)

	t.Setenv("QFLASHER_ASCII_SYMBOLS", "1")
	SelectSymbols()
	assert.Equal(t, "[OK]", Sym.Success)
	assert.Equal(t, "[ ]", Sym.Pending)

	t.Setenv("QFLASHER_ASCII_SYMBOLS", "0")
	SelectSymbols()
	assert.Equal(t, Unicode, Sym)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 10, Clamp(3, 10, 20))
	assert.Equal(t, 20, Clamp(30, 10, 20))
	assert.Equal(t, 15, Clamp(15, 10, 20))
}
