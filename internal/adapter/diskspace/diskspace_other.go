//go:build !unix

package diskspace

import (
	"runtime"

	"qflasher/internal/domain"
)

func available(string) (int64, error) {
	return 0, domain.NewSubSystemError("disk", "Prober.Available", domain.ErrDisabled, "free space query not supported on "+runtime.GOOS)
}
