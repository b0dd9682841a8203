//go:build unix

package diskspace

import (
	"math"

	"golang.org/x/sys/unix"

	"qflasher/internal/domain"
)

func available(path string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, domain.NewSubSystemError("disk", "Prober.Available", domain.ErrNotFound, path+": "+err.Error())
	}
	free := uint64(st.Bavail) * uint64(st.Bsize)
	if free > math.MaxInt64 {
		return math.MaxInt64, nil
	}
	return int64(free), nil
}
