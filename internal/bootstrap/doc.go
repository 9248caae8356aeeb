// Package bootstrap runs the host preparation sequence for ov-node.
//
// The sequence is strictly linear: OS packages, application source,
// virtual environment, Python dependencies, and finally the interactive
// installer.py. The first failing step aborts the run; the remaining steps
// are reported as skipped and the returned error carries the exit code of
// the failing step (see model.StepName.ExitCode).
package bootstrap
