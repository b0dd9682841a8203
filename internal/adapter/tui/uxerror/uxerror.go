// Package uxerror translates raw errors and failure messages into
// user-facing text with recovery hints.
package uxerror

import (
	"errors"
	"fmt"
	"strings"

	"qflasher/internal/adapter/tui/theme"
	"qflasher/internal/domain"
)

// FriendlyError is a user-facing error with suggestions for recovery.
type FriendlyError struct {
	Title   string   // short heading, e.g. "Flasher Not Found"
	Message string   // one-liner explanation
	Hints   []string // actionable recovery suggestions
	Raw     string   // original error text, shown under "Error Details"
}

// Render formats the FriendlyError as plain indented text.
func (fe FriendlyError) Render() string {
	var sb strings.Builder
	sb.WriteString(fe.Title)
	if fe.Message != "" {
		sb.WriteString("\n  ")
		sb.WriteString(fe.Message)
	}
	if len(fe.Hints) > 0 {
		sb.WriteString("\n  Suggestions:")
		for _, h := range fe.Hints {
			sb.WriteString(fmt.Sprintf("\n    %s %s", theme.Sym.Bullet, h))
		}
	}
	return sb.String()
}

type errorPattern struct {
	match   func(err error) bool
	produce func(err error) FriendlyError
}

var patterns = []errorPattern{
	// Domain sentinels first so errors.Is works through wrapping.
	{
		match: func(err error) bool { return errors.Is(err, domain.ErrExecutableNotFound) },
		produce: func(err error) FriendlyError {
			return FriendlyError{
				Title:   "Flasher Not Found",
				Message: "arduino-flasher-cli could not be located.",
				Hints: []string{
					"Install arduino-flasher-cli and make sure it is on your PATH",
					"Set flasher.executable in qflasher.yaml or QFLASHER_FLASHER_EXECUTABLE",
					"Run 'qflasher doctor' to see where qflasher looked",
				},
				Raw: err.Error(),
			}
		},
	},
	{
		match: func(err error) bool { return errors.Is(err, domain.ErrInsufficientDiskSpace) },
		produce: func(err error) FriendlyError {
			return FriendlyError{
				Title:   "Not Enough Disk Space",
				Message: domain.UserMessage(err),
				Hints:   []string{"Free up space in your home directory", "Point flasher.disk_path at a larger volume"},
				Raw:     err.Error(),
			}
		},
	},
	{
		match: func(err error) bool { return errors.Is(err, domain.ErrCancelUnsafe) },
		produce: func(err error) FriendlyError {
			return FriendlyError{
				Title:   "Cannot Cancel Now",
				Message: "The board is being written. Stopping now could leave it unbootable.",
				Hints:   []string{"Wait for flashing to finish", "Do not disconnect the USB cable"},
				Raw:     err.Error(),
			}
		},
	},
	{
		match: func(err error) bool { return errors.Is(err, domain.ErrFlashInProgress) },
		produce: func(err error) FriendlyError {
			return FriendlyError{
				Title:   "Flash Already Running",
				Message: "Only one flash can run at a time.",
				Hints:   []string{"Wait for the current flash to finish"},
				Raw:     err.Error(),
			}
		},
	},
	{
		match: func(err error) bool { return errors.Is(err, domain.ErrParse) },
		produce: func(err error) FriendlyError {
			return FriendlyError{
				Title:   "Unexpected Flasher Output",
				Message: domain.UserMessage(err),
				Hints:   []string{"Update arduino-flasher-cli to a supported version"},
				Raw:     err.Error(),
			}
		},
	},

	// Tool output patterns (string matching on stderr text).
	{
		match: containsAny("permission denied", "access denied", "operation not permitted"),
		produce: constantError("Permission Denied", "The flasher could not open the USB device.", []string{
			"Install the udev rules shipped with arduino-flasher-cli",
			"Replug the board after changing permissions",
		}),
	},
	{
		match: containsAny("sahara", "firehose", "no device", "device not found", "usb error"),
		produce: constantError("Device Communication Failed", "The board stopped responding while in EDL mode.", []string{
			"Check that the jumper is still on the JCTL pins",
			"Try a different USB-C cable or port",
			"Disconnect power, then try again",
		}),
	},
	{
		match: containsAny("connection refused", "dial tcp", "no such host", "network is unreachable"),
		produce: constantError("Download Failed", "The firmware image could not be downloaded.", []string{
			"Check your internet connection",
			"Try again in a few minutes",
		}),
	},
	{
		match: containsAny("checksum", "sha256", "mismatch"),
		produce: constantError("Image Verification Failed", "The downloaded image is corrupt.", []string{
			"Try again to download a fresh copy",
		}),
	},
	{
		match: containsAny("no space left"),
		produce: constantError("Disk Full", "The disk filled up while downloading or extracting.", []string{
			"Free up at least 12 GB and try again",
		}),
	},
	{
		match: containsAny("deadline exceeded", "timed out", "timeout"),
		produce: constantError("Timed Out", "The flasher took too long to respond.", []string{
			"Check your connection and try again",
		}),
	},
}

// Humanize converts a raw error into a FriendlyError with recovery hints.
func Humanize(err error) FriendlyError {
	if err == nil {
		return FriendlyError{Title: "Unknown Error", Raw: "nil"}
	}

	for _, p := range patterns {
		if p.match(err) {
			return p.produce(err)
		}
	}

	return FriendlyError{
		Title:   "Something Went Wrong",
		Message: "The flash process encountered an error.",
		Hints:   []string{"Try again", "Run 'qflasher doctor' to check your setup"},
		Raw:     err.Error(),
	}
}

// HumanizeMessage is Humanize for a failure message carried by a snapshot.
func HumanizeMessage(msg string) FriendlyError {
	if msg == "" {
		msg = "unknown failure"
	}
	fe := Humanize(errors.New(msg))
	fe.Raw = msg
	return fe
}

// containsAny returns a match func that checks if the error string contains
// any of the given substrings (case-insensitive).
func containsAny(substrs ...string) func(error) bool {
	return func(err error) bool {
		lower := strings.ToLower(err.Error())
		for _, s := range substrs {
			if strings.Contains(lower, s) {
				return true
			}
		}
		return false
	}
}

// constantError returns a produce func that always returns the same FriendlyError.
func constantError(title, message string, hints []string) func(error) FriendlyError {
	return func(err error) FriendlyError {
		return FriendlyError{
			Title:   title,
			Message: message,
			Hints:   hints,
			Raw:     err.Error(),
		}
	}
}
