package sysexec

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestExecRunner_CapturesOutput verifies stdout is captured for
// non-interactive commands.
func TestExecRunner_CapturesOutput(t *testing.T) {
	r := NewExecRunner(nil)

	res, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo hello; echo oops >&2"}})
	require.NoError(t, err)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, "oops\n", res.Stderr)
}

// TestExecRunner_NonZeroExit verifies that a failing program yields a
// CommandError carrying the exit status and trimmed stderr.
func TestExecRunner_NonZeroExit(t *testing.T) {
	r := NewExecRunner(nil)

	_, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo broken >&2; exit 3"}})
	require.Error(t, err)

	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, 3, cmdErr.ExitCode)
	assert.Equal(t, "broken", cmdErr.Stderr)
	assert.Contains(t, err.Error(), "exit status 3")
}

// TestExecRunner_MissingBinary verifies that a program that cannot start
// is reported with ExitCode -1.
func TestExecRunner_MissingBinary(t *testing.T) {
	r := NewExecRunner(nil)

	_, err := r.Run(context.Background(), Command{Name: "definitely-not-a-real-binary-xyz"})
	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, -1, cmdErr.ExitCode)
}

// TestExecRunner_DirEnvStdin exercises working directory, extra env and stdin.
func TestExecRunner_DirEnvStdin(t *testing.T) {
	dir := t.TempDir()
	r := NewExecRunner(nil)

	res, err := r.Run(context.Background(), Command{
		Name:  "sh",
		Args:  []string{"-c", `pwd; echo "$OVNODE_TEST"; cat`},
		Dir:   dir,
		Env:   []string{"OVNODE_TEST=42"},
		Stdin: strings.NewReader("from-stdin"),
	})
	require.NoError(t, err)

	lines := strings.Split(res.Stdout, "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	assert.True(t, strings.HasSuffix(lines[0], dirBase(dir)))
	assert.Equal(t, "42", lines[1])
	assert.Equal(t, "from-stdin", lines[2])
}

// TestExecRunner_Interactive verifies interactive commands write to the
// runner's streams instead of the Result.
func TestExecRunner_Interactive(t *testing.T) {
	var out bytes.Buffer
	r := &ExecRunner{Stdout: &out, Stderr: &out}

	res, err := r.Run(context.Background(), Command{
		Name:        "sh",
		Args:        []string{"-c", "echo prompt"},
		Interactive: true,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Stdout)
	assert.Equal(t, "prompt\n", out.String())
}

// TestExecRunner_InteractiveStdoutOverride verifies a per-command Stdout
// takes the place of the runner's stream while stderr is unchanged.
func TestExecRunner_InteractiveStdoutOverride(t *testing.T) {
	var terminal, redirected bytes.Buffer
	r := &ExecRunner{Stdout: &terminal, Stderr: &terminal}

	_, err := r.Run(context.Background(), Command{
		Name:        "sh",
		Args:        []string{"-c", "echo menu; echo warn >&2"},
		Interactive: true,
		Stdout:      &redirected,
	})
	require.NoError(t, err)
	assert.Equal(t, "menu\n", redirected.String())
	assert.Equal(t, "warn\n", terminal.String())
}

// TestExecRunner_ContextCancelled verifies a cancelled context stops the command.
func TestExecRunner_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewExecRunner(nil).Run(ctx, Command{Name: "sleep", Args: []string{"5"}})
	assert.Error(t, err)
}

func TestCommand_String(t *testing.T) {
	assert.Equal(t, "git", Command{Name: "git"}.String())
	assert.Equal(t, "git clone x y", Command{Name: "git", Args: []string{"clone", "x", "y"}}.String())
}

func dirBase(dir string) string {
	parts := strings.Split(strings.TrimRight(dir, "/"), "/")
	return parts[len(parts)-1]
}
