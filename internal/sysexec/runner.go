package sysexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Command describes one external program invocation.
type Command struct {
	// Name is the executable (looked up in PATH when not absolute).
	Name string

	// Args are passed to the program as-is; no shell is involved.
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env holds extra KEY=VALUE pairs appended to the inherited environment.
	Env []string

	// Stdin, when set, is fed to the program's standard input.
	Stdin io.Reader

	// Interactive attaches the program to the terminal (stdin, stdout and
	// stderr of this process) instead of capturing its output. Used for
	// installer.py and openvpn-install.sh, which prompt the operator.
	Interactive bool

	// Stdout, when set, replaces the runner's standard output for an
	// interactive command. bootstrap --json points it at stderr so the
	// JSON document stays the only thing written to stdout.
	Stdout io.Writer
}

// String renders the command line for logs and error messages.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result holds the captured output of a finished command.
// Both fields are empty for interactive commands.
type Result struct {
	Stdout string
	Stderr string
}

// Runner executes commands. Implementations must return a *CommandError
// when the program exits non-zero.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// CommandError reports a command that could not be started or exited non-zero.
type CommandError struct {
	// Command is the rendered command line.
	Command string

	// ExitCode is the program's exit status, or -1 when it never started.
	ExitCode int

	// Stderr is the trimmed standard error output, if captured.
	Stderr string

	// Err is the underlying exec error.
	Err error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s failed", e.Command)
	if e.ExitCode >= 0 {
		msg = fmt.Sprintf("%s (exit status %d)", msg, e.ExitCode)
	}
	if e.Stderr != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Stderr)
	} else if e.ExitCode < 0 && e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Logger receives one record per command. Nil disables logging.
	Logger *slog.Logger

	// Stdin, Stdout and Stderr are used for interactive commands.
	// They default to the process's own streams.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewExecRunner creates an ExecRunner attached to the process's terminal.
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	return &ExecRunner{
		Logger: logger,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Run executes cmd and waits for it to finish. There are no retries: the
// first failure is returned to the caller, which aborts its step.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	// #nosec G204 -- commands are built internally from configuration
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	var stdout, stderr strings.Builder
	if cmd.Interactive {
		c.Stdin = r.Stdin
		c.Stdout = r.Stdout
		c.Stderr = r.Stderr
		if cmd.Stdin != nil {
			c.Stdin = cmd.Stdin
		}
		if cmd.Stdout != nil {
			c.Stdout = cmd.Stdout
		}
	} else {
		c.Stdin = cmd.Stdin
		c.Stdout = &stdout
		c.Stderr = &stderr
	}

	r.log(ctx, slog.LevelDebug, "exec.start", cmd, nil)
	err := c.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		cmdErr := &CommandError{
			Command:  cmd.String(),
			ExitCode: -1,
			Stderr:   strings.TrimSpace(res.Stderr),
			Err:      err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			cmdErr.ExitCode = exitErr.ExitCode()
		}
		r.log(ctx, slog.LevelError, "exec.failed", cmd, cmdErr)
		return res, cmdErr
	}

	r.log(ctx, slog.LevelInfo, "exec.done", cmd, nil)
	return res, nil
}

func (r *ExecRunner) log(ctx context.Context, level slog.Level, msg string, cmd Command, err error) {
	if r.Logger == nil {
		return
	}
	attrs := []any{"cmd", cmd.String()}
	if cmd.Dir != "" {
		attrs = append(attrs, "dir", cmd.Dir)
	}
	if err != nil {
		attrs = append(attrs, "error", err.Error())
	}
	r.Logger.Log(ctx, level, msg, attrs...)
}

// LookPath reports the absolute path of an executable, like exec.LookPath.
// It is a variable so tests can stub host tool discovery.
var LookPath = exec.LookPath
