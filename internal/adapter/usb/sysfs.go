package usb

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// SysfsEnumerator reads idVendor/idProduct attributes under a
// /sys/bus/usb/devices style tree.
type SysfsEnumerator struct {
	Root string
}

// Count returns how many devices under Root carry the given identifiers.
// Interface entries without id attributes are skipped.
func (e SysfsEnumerator) Count(vendorID, productID uint16) (int, error) {
	entries, err := os.ReadDir(e.Root)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, entry := range entries {
		dir := filepath.Join(e.Root, entry.Name())
		v, ok := readHexID(filepath.Join(dir, "idVendor"))
		if !ok || v != vendorID {
			continue
		}
		p, ok := readHexID(filepath.Join(dir, "idProduct"))
		if ok && p == productID {
			n++
		}
	}
	return n, nil
}

func readHexID(path string) (uint16, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 16, 16)
	if err != nil {
		return 0, false
	}
	return uint16(v), true
}
