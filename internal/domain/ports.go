package domain

import "context"

// FlashAttempt is one running invocation of the flasher tool.
type FlashAttempt interface {
	// ID identifies the attempt in logs and snapshots.
	ID() string
	// Events delivers classified progress in order. At most one terminal
	// event is sent; the channel is closed once the process is reaped.
	Events() <-chan ProgressEvent
	// Kill terminates the tool. Safe to call repeatedly and after exit.
	Kill()
}

// Flasher drives the external flashing tool.
type Flasher interface {
	// Resolve locates the executable without running it.
	Resolve() (string, error)
	// Flash starts writing version ("latest" or an explicit release).
	Flash(ctx context.Context, version string) (FlashAttempt, error)
}

// VersionSource lists the firmware images the tool can flash.
type VersionSource interface {
	ListVersions(ctx context.Context) (*VersionList, error)
	LatestRelease(ctx context.Context) (*VersionInfo, error)
}

// DiskSpaceProber reports free bytes available to the current user on the
// volume holding path.
type DiskSpaceProber interface {
	Available(path string) (int64, error)
}

// DevicePresence is the read side of a device monitor.
type DevicePresence interface {
	Present() bool
	// Updates delivers every published change of the present flag.
	Updates() <-chan bool
}
