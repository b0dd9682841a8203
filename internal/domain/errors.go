package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Use with NewSubSystemError for subsystem-specific errors.
var (
	ErrNotFound         = fmt.Errorf("not found")
	ErrTimeout          = fmt.Errorf("operation timed out")
	ErrPermissionDenied = fmt.Errorf("permission denied")
	ErrDisabled         = fmt.Errorf("disabled")
	ErrInvalidInput     = fmt.Errorf("invalid input")
)

// Sentinel errors for the flashing workflow.
var (
	ErrExecutableNotFound    = fmt.Errorf("flasher executable not found")
	ErrExecutionFailed       = fmt.Errorf("flash failed")
	ErrParse                 = fmt.Errorf("failed to parse flasher output")
	ErrInsufficientDiskSpace = fmt.Errorf("insufficient disk space")
	ErrConfigLoad            = fmt.Errorf("failed to load configuration")

	// Session errors.
	ErrInvalidTransition = fmt.Errorf("invalid state transition")
	ErrCancelUnsafe      = fmt.Errorf("cancellation is not safe during this step")
	ErrFlashInProgress   = fmt.Errorf("a flash is already in progress")
	ErrSessionClosed     = fmt.Errorf("session closed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Flasher.ListVersions")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "flasher", "usb"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// RequiredDiskSpace is the free space the flasher needs to download and
// extract an image (12 GB, decimal).
const RequiredDiskSpace int64 = 12_000_000_000

// InsufficientDiskSpaceError reports a failed disk space preflight.
type InsufficientDiskSpaceError struct {
	Available int64
	Required  int64
}

func (e *InsufficientDiskSpaceError) Error() string {
	return fmt.Sprintf("Insufficient disk space. You have %.1f GB available but need at least %.1f GB free to download and flash the image.",
		float64(e.Available)/1e9, float64(e.Required)/1e9)
}

func (e *InsufficientDiskSpaceError) Unwrap() error { return ErrInsufficientDiskSpace }

// UserMessage returns the most human-readable text for err: the typed
// message for known error kinds, the detail of a DomainError, or err.Error().
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var disk *InsufficientDiskSpaceError
	if errors.As(err, &disk) {
		return disk.Error()
	}
	if errors.Is(err, ErrExecutableNotFound) {
		return "arduino-flasher-cli not found"
	}
	var de *DomainError
	if errors.As(err, &de) && de.Detail != "" {
		switch {
		case errors.Is(de.Err, ErrExecutionFailed):
			return "Flash failed: " + de.Detail
		case errors.Is(de.Err, ErrParse):
			return "Failed to parse CLI output: " + de.Detail
		}
		return de.Detail
	}
	return err.Error()
}

// ErrorCode is a machine-parseable error category for monitoring and logs.
type ErrorCode string

const (
	CodeUnknown            ErrorCode = "UNKNOWN"
	CodeExecutableNotFound ErrorCode = "EXECUTABLE_NOT_FOUND"
	CodeExecutionFailed    ErrorCode = "EXECUTION_FAILED"
	CodeParse              ErrorCode = "PARSE_ERROR"
	CodeDiskSpace          ErrorCode = "INSUFFICIENT_DISK_SPACE"
	CodeConfigLoad         ErrorCode = "CONFIG_LOAD"
	CodeInvalidTransition  ErrorCode = "INVALID_TRANSITION"
	CodeCancelUnsafe       ErrorCode = "CANCEL_UNSAFE"
	CodeFlashInProgress    ErrorCode = "FLASH_IN_PROGRESS"
	CodeSessionClosed      ErrorCode = "SESSION_CLOSED"

	// Subsystem-specific codes used by subSystemCodeMap.
	CodeDeviceUnsupported ErrorCode = "USB_UNSUPPORTED"
	CodeDiskUnsupported   ErrorCode = "DISK_UNSUPPORTED"
	CodeProcessNotFound   ErrorCode = "PROCESS_NOT_FOUND"
	CodeFlasherTimeout    ErrorCode = "FLASHER_TIMEOUT"

	// Category error codes: fallback codes when no subsystem-specific code matches.
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	CodeDisabled         ErrorCode = "DISABLED"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:         CodeNotFound,
	ErrTimeout:          CodeTimeout,
	ErrPermissionDenied: CodePermissionDenied,
	ErrDisabled:         CodeDisabled,
	ErrInvalidInput:     CodeInvalidInput,

	ErrExecutableNotFound:    CodeExecutableNotFound,
	ErrExecutionFailed:       CodeExecutionFailed,
	ErrParse:                 CodeParse,
	ErrInsufficientDiskSpace: CodeDiskSpace,
	ErrConfigLoad:            CodeConfigLoad,
	ErrInvalidTransition:     CodeInvalidTransition,
	ErrCancelUnsafe:          CodeCancelUnsafe,
	ErrFlashInProgress:       CodeFlashInProgress,
	ErrSessionClosed:         CodeSessionClosed,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"process": CodeProcessNotFound,
	},
	ErrDisabled: {
		"usb":  CodeDeviceUnsupported,
		"disk": CodeDiskUnsupported,
	},
	ErrTimeout: {
		"flasher": CodeFlasherTimeout,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		return de.Code()
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	for sentinel, code := range errorCodeMap {
		if errors.Is(e.Err, sentinel) {
			return code
		}
	}
	return CodeUnknown
}
