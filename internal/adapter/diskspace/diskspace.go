// Package diskspace answers how many bytes the current user can still
// write to a volume.
package diskspace

// Prober implements domain.DiskSpaceProber for the host OS.
type Prober struct{}

// Available returns the free bytes available to unprivileged users on the
// volume that holds path.
func (Prober) Available(path string) (int64, error) {
	return available(path)
}
