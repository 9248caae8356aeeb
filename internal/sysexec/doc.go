// Package sysexec runs host commands for the bootstrap steps.
//
// Every step of the bootstrap (package manager, git, python, pip, systemctl,
// bash) is an external program. Runner is the single seam through which they
// are executed, so the other packages can be tested with Recorder instead of
// touching the host.
package sysexec
