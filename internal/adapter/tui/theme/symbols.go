package theme

import (
	"os"
	"strings"
)

// SymbolSet is the glyph vocabulary of the TUI.
type SymbolSet struct {
	Success  string
	Error    string
	Warning  string
	Info     string
	Pending  string
	ArrowR   string
	Bullet   string
	Ellipsis string
}

// Unicode glyphs, used on UTF-8 capable terminals.
var Unicode = SymbolSet{
	Success: "✓", Error: "✗", Warning: "⚠", Info: "●",
	Pending: "○", ArrowR: "→", Bullet: "•", Ellipsis: "…",
}

// ASCII glyphs for the Linux virtual console, dumb terminals and anyone who
// sets QFLASHER_ASCII_SYMBOLS.
var ASCII = SymbolSet{
	Success: "[OK]", Error: "[ERR]", Warning: "[!]", Info: "[*]",
	Pending: "[ ]", ArrowR: "->", Bullet: "*", Ellipsis: "...",
}

// Sym is the active set. SelectSymbols replaces it.
var Sym = Unicode

// WantsASCII reports whether the environment asks for plain ASCII output.
// getenv is os.Getenv outside tests.
func WantsASCII(getenv func(string) string) bool {
	switch strings.ToLower(getenv("QFLASHER_ASCII_SYMBOLS")) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	switch getenv("TERM") {
	case "linux", "dumb":
		return true
	}
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		if val := strings.ToLower(getenv(key)); val != "" {
			return !strings.Contains(val, "utf-8") && !strings.Contains(val, "utf8")
		}
	}
	return false
}

// SelectSymbols sets Sym from the process environment.
func SelectSymbols() {
	if WantsASCII(os.Getenv) {
		Sym = ASCII
		return
	}
	Sym = Unicode
}

func init() { SelectSymbols() }
