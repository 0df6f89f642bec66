package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a CappitError
type Kind int

const (
	KindGeneral Kind = iota
	KindRangeExhausted
	KindInvalidPort
	KindMissingArtifacts
	KindPipelineStepFailed
	KindIndexOutOfRange
	KindEntryNotFound
	KindRuntimeUnreachable
	KindStorageCorrupt
	KindUnsupportedVersion
	KindInvalidName
	KindConfig
	KindSSH
)

// Exit codes for cappit
const (
	ExitSuccess            = 0
	ExitGeneralError       = 1
	ExitRangeExhausted     = 2
	ExitInvalidInput       = 3
	ExitMissingArtifacts   = 4
	ExitPipelineFailed     = 5
	ExitEntryNotFound      = 6
	ExitRuntimeUnreachable = 7
	ExitStorageCorrupt     = 8
	ExitConfigError        = 9
	ExitSSHError           = 10
)

var exitCodes = map[Kind]int{
	KindGeneral:            ExitGeneralError,
	KindRangeExhausted:     ExitRangeExhausted,
	KindInvalidPort:        ExitInvalidInput,
	KindMissingArtifacts:   ExitMissingArtifacts,
	KindPipelineStepFailed: ExitPipelineFailed,
	KindIndexOutOfRange:    ExitInvalidInput,
	KindEntryNotFound:      ExitEntryNotFound,
	KindRuntimeUnreachable: ExitRuntimeUnreachable,
	KindStorageCorrupt:     ExitStorageCorrupt,
	KindUnsupportedVersion: ExitInvalidInput,
	KindInvalidName:        ExitInvalidInput,
	KindConfig:             ExitConfigError,
	KindSSH:                ExitSSHError,
}

// Sentinels for matching with Is. They carry no message.
var (
	ErrRangeExhausted     = &CappitError{Kind: KindRangeExhausted}
	ErrInvalidPort        = &CappitError{Kind: KindInvalidPort}
	ErrMissingArtifacts   = &CappitError{Kind: KindMissingArtifacts}
	ErrPipelineStepFailed = &CappitError{Kind: KindPipelineStepFailed}
	ErrIndexOutOfRange    = &CappitError{Kind: KindIndexOutOfRange}
	ErrEntryNotFound      = &CappitError{Kind: KindEntryNotFound}
	ErrRuntimeUnreachable = &CappitError{Kind: KindRuntimeUnreachable}
	ErrStorageCorrupt     = &CappitError{Kind: KindStorageCorrupt}
	ErrUnsupportedVersion = &CappitError{Kind: KindUnsupportedVersion}
	ErrInvalidName        = &CappitError{Kind: KindInvalidName}
	ErrConfig             = &CappitError{Kind: KindConfig}
	ErrSSH                = &CappitError{Kind: KindSSH}
)

// CappitError is the base error type for cappit
type CappitError struct {
	Kind    Kind
	Message string
	// Step names the pipeline step for KindPipelineStepFailed.
	Step  string
	Cause error
}

func (e *CappitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *CappitError) Unwrap() error {
	return e.Cause
}

// Is matches sentinels by kind. A target with a message only matches itself.
func (e *CappitError) Is(target error) bool {
	t, ok := target.(*CappitError)
	if !ok {
		return false
	}
	if t.Message != "" {
		return e == t
	}
	return e.Kind == t.Kind
}

// ExitCode returns the exit code for this error
func (e *CappitError) ExitCode() int {
	if code, ok := exitCodes[e.Kind]; ok {
		return code
	}
	return ExitGeneralError
}

// New creates a new CappitError
func New(kind Kind, message string) *CappitError {
	return &CappitError{Kind: kind, Message: message}
}

// Wrap wraps an existing error with a CappitError
func Wrap(kind Kind, message string, cause error) *CappitError {
	return &CappitError{Kind: kind, Message: message, Cause: cause}
}

// RangeExhausted returns an error for a fully allocated port range
func RangeExhausted(from, to int) *CappitError {
	return New(KindRangeExhausted, fmt.Sprintf("no available ports in range %d-%d", from, to-1))
}

// InvalidPort returns an error for a malformed or out-of-range manual port
func InvalidPort(input string, from, to int) *CappitError {
	return New(KindInvalidPort, fmt.Sprintf("invalid port %q: must be a number between %d and %d", input, from, to-1))
}

// MissingArtifacts returns an error when a challenge's build inputs are absent
func MissingArtifacts(name string, missing []string) *CappitError {
	return New(KindMissingArtifacts, fmt.Sprintf("challenge %s is missing build inputs: %v", name, missing))
}

// PipelineStepFailed returns an error for a failed generate, build or run step
func PipelineStepFailed(step string, cause error) *CappitError {
	e := Wrap(KindPipelineStepFailed, fmt.Sprintf("%s step failed", step), cause)
	e.Step = step
	return e
}

// IndexOutOfRange returns an error for a selection outside [1, count]
func IndexOutOfRange(index, count int) *CappitError {
	if count == 0 {
		return New(KindIndexOutOfRange, fmt.Sprintf("index %d out of range: no challenges listed", index))
	}
	return New(KindIndexOutOfRange, fmt.Sprintf("index %d out of range: choose 1-%d", index, count))
}

// EntryNotFound returns an error for a name with no registry entry
func EntryNotFound(name string) *CappitError {
	return New(KindEntryNotFound, fmt.Sprintf("challenge not found: %s", name))
}

// RuntimeUnreachable returns an error for container runtime API failures
func RuntimeUnreachable(op string, cause error) *CappitError {
	return Wrap(KindRuntimeUnreachable, fmt.Sprintf("container %s failed", op), cause)
}

// StorageCorrupt returns an error for an unreadable registry document
func StorageCorrupt(path string, cause error) *CappitError {
	return Wrap(KindStorageCorrupt, fmt.Sprintf("registry %s is corrupt", path), cause)
}

// UnsupportedVersion returns an error for an OS version the pipeline cannot build
func UnsupportedVersion(version string, supported []string) *CappitError {
	return New(KindUnsupportedVersion, fmt.Sprintf("unsupported version %q: supported versions are %v", version, supported))
}

// InvalidName returns an error for a challenge name that cannot be used
func InvalidName(name, reason string) *CappitError {
	return New(KindInvalidName, fmt.Sprintf("invalid challenge name %q: %s", name, reason))
}

// ConfigError returns an error for configuration issues
func ConfigError(message string, cause error) *CappitError {
	return Wrap(KindConfig, message, cause)
}

// SSHError returns an error for SSH operations
func SSHError(message string, cause error) *CappitError {
	return Wrap(KindSSH, message, cause)
}

// GetExitCode extracts the exit code from an error
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ce *CappitError
	if errors.As(err, &ce) {
		return ce.ExitCode()
	}
	return ExitGeneralError
}

// Is checks if an error is of a specific type
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return errors.As(err, target)
}
