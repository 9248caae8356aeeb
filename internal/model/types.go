package model

import (
	"fmt"
	"strings"
	"time"
)

// SourceMode selects how the application source is obtained.
type SourceMode string

const (
	// SourceGit clones the repository with the git CLI.
	SourceGit SourceMode = "git"

	// SourceRelease downloads and unpacks a tarball release over HTTP.
	SourceRelease SourceMode = "release"
)

// String returns the string representation of SourceMode.
func (m SourceMode) String() string {
	return string(m)
}

// IsValid checks whether the SourceMode is one of the predefined modes.
func (m SourceMode) IsValid() bool {
	switch m {
	case SourceGit, SourceRelease:
		return true
	default:
		return false
	}
}

// ParseSourceMode converts a string to a SourceMode.
// Returns an error if the string does not match any valid mode.
func ParseSourceMode(s string) (SourceMode, error) {
	mode := SourceMode(strings.ToLower(strings.TrimSpace(s)))
	if !mode.IsValid() {
		return "", fmt.Errorf("invalid source mode: %q (valid: git, release)", s)
	}
	return mode, nil
}

// ReinstallPolicy decides what happens when the install directory already
// exists at the start of a bootstrap run.
type ReinstallPolicy string

const (
	// ReinstallWipe removes the existing directory and fetches the source again.
	ReinstallWipe ReinstallPolicy = "wipe"

	// ReinstallReuse leaves the existing directory untouched and skips the fetch.
	ReinstallReuse ReinstallPolicy = "reuse"
)

// String returns the string representation of ReinstallPolicy.
func (p ReinstallPolicy) String() string {
	return string(p)
}

// IsValid checks whether the ReinstallPolicy is one of the predefined policies.
func (p ReinstallPolicy) IsValid() bool {
	switch p {
	case ReinstallWipe, ReinstallReuse:
		return true
	default:
		return false
	}
}

// ParseReinstallPolicy converts a string to a ReinstallPolicy.
func ParseReinstallPolicy(s string) (ReinstallPolicy, error) {
	policy := ReinstallPolicy(strings.ToLower(strings.TrimSpace(s)))
	if !policy.IsValid() {
		return "", fmt.Errorf("invalid reinstall policy: %q (valid: wipe, reuse)", s)
	}
	return policy, nil
}

// DefaultReinstallPolicy returns the policy each source mode used before the
// policy became configurable: clones were wiped, releases were reused.
func DefaultReinstallPolicy(mode SourceMode) ReinstallPolicy {
	if mode == SourceRelease {
		return ReinstallReuse
	}
	return ReinstallWipe
}

// FetchAction records what the source step actually did.
type FetchAction string

const (
	FetchCloned       FetchAction = "cloned"
	FetchRecloned     FetchAction = "recloned"
	FetchDownloaded   FetchAction = "downloaded"
	FetchRedownloaded FetchAction = "redownloaded"
	FetchReused       FetchAction = "reused"
)

// StepName identifies one stage of the bootstrap sequence.
type StepName string

const (
	StepPackages     StepName = "packages"
	StepSource       StepName = "source"
	StepVenv         StepName = "venv"
	StepDependencies StepName = "dependencies"
	StepInstaller    StepName = "installer"
)

// BootstrapSteps is the fixed order in which bootstrap steps run.
var BootstrapSteps = []StepName{
	StepPackages,
	StepSource,
	StepVenv,
	StepDependencies,
	StepInstaller,
}

// ExitCode returns the process exit code reported when this step fails.
func (s StepName) ExitCode() ExitCode {
	switch s {
	case StepPackages:
		return ExitPackageInstallFailed
	case StepSource:
		return ExitSourceFetchFailed
	case StepVenv:
		return ExitVenvFailed
	case StepDependencies:
		return ExitDependencyInstallFailed
	case StepInstaller:
		return ExitInstallerFailed
	default:
		return ExitGeneralError
	}
}

// StepStatus is the outcome of a single step.
type StepStatus string

const (
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// StepReport describes how a single bootstrap step ended.
type StepReport struct {
	// Name is the step identifier.
	Name StepName `json:"name"`

	// Status is succeeded, failed or skipped.
	Status StepStatus `json:"status"`

	// Detail is a short human-readable summary (e.g. "cloned", "fallback: 8 packages").
	Detail string `json:"detail,omitempty"`

	// Error holds the failure message for failed steps.
	Error string `json:"error,omitempty"`

	// Duration is how long the step took. Zero for skipped steps.
	Duration time.Duration `json:"duration"`
}

// ExitCode defines the process exit codes of ovnode-setup.
// Scripts wrapping the binary can tell which stage failed from the code alone.
type ExitCode int

const (
	// ExitSuccess indicates every step completed.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitInvalidConfig indicates the configuration file or flags are invalid.
	ExitInvalidConfig ExitCode = 2

	// ExitNotRoot indicates the command needs root privileges.
	ExitNotRoot ExitCode = 3

	// ExitPackageInstallFailed indicates the system package manager failed.
	ExitPackageInstallFailed ExitCode = 4

	// ExitSourceFetchFailed indicates the clone or release download failed.
	ExitSourceFetchFailed ExitCode = 5

	// ExitVenvFailed indicates the virtual environment could not be created.
	ExitVenvFailed ExitCode = 6

	// ExitDependencyInstallFailed indicates pip failed to install packages.
	ExitDependencyInstallFailed ExitCode = 7

	// ExitInstallerFailed indicates installer.py is missing or exited non-zero.
	ExitInstallerFailed ExitCode = 8

	// ExitServiceFailed indicates a systemd operation failed.
	ExitServiceFailed ExitCode = 9

	// ExitUserCancelled indicates the user cancelled an interactive prompt or
	// interrupted a running bootstrap (SIGINT/SIGTERM).
	ExitUserCancelled ExitCode = 10

	// ExitLocked indicates another run holds the install lock.
	ExitLocked ExitCode = 11

	// ExitOpenVPNFailed indicates openvpn-install.sh could not be obtained or failed.
	ExitOpenVPNFailed ExitCode = 12
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
