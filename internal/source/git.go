package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/primezdev/ovnode-setup/internal/sysexec"
)

// GitManager performs the git operations the bootstrap and update flows
// need by invoking the git CLI through a Runner.
//
// We shell out to git rather than using a Go git library so that the
// host's credential helpers, proxies and CA configuration apply exactly as
// they did for the shell scripts.
type GitManager struct {
	runner sysexec.Runner
}

// NewGitManager creates a GitManager that runs git through runner.
func NewGitManager(runner sysexec.Runner) *GitManager {
	return &GitManager{runner: runner}
}

// Clone clones url into dest, checking out branch.
//
// Parameters:
//   - url: the repository to clone
//   - branch: branch or tag to check out; empty uses the remote's default
//   - dest: target directory, which must not exist; its parent is created
//     when missing
//
// The clone output is captured, not shown: on failure git's stderr is part
// of the returned *sysexec.CommandError.
func (g *GitManager) Clone(ctx context.Context, url, branch, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create parent of %s: %w", dest, err)
	}

	args := []string{"clone"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, url, dest)

	_, err := g.runner.Run(ctx, sysexec.Command{Name: "git", Args: args})
	return err
}

// IsRepo reports whether dir is the top of a git checkout, i.e. contains a
// .git directory. A .git file (worktree or submodule pointer) does not count:
// update resets the checkout hard and must own it outright.
func (g *GitManager) IsRepo(dir string) bool {
	info, err := os.Lstat(filepath.Join(dir, ".git"))
	if err != nil {
		return false
	}
	return info.IsDir()
}

// Sync brings an existing checkout to the tip of origin/branch, discarding
// local modifications. This mirrors the update flow: fetch all remotes,
// hard-reset to the remote branch, then pull.
func (g *GitManager) Sync(ctx context.Context, dir, branch string) error {
	steps := [][]string{
		{"fetch", "--all"},
		{"reset", "--hard", "origin/" + branch},
		{"pull", "origin", branch},
	}
	for _, args := range steps {
		if _, err := g.run(ctx, dir, args...); err != nil {
			return err
		}
	}
	return nil
}

// Head returns the commit SHA checked out in dir. verify reports it so an
// operator can tell which revision a host is running.
func (g *GitManager) Head(ctx context.Context, dir string) (string, error) {
	out, err := g.run(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// run executes git with -C dir so that the process's working directory
// never changes.
func (g *GitManager) run(ctx context.Context, dir string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", dir}, args...)
	res, err := g.runner.Run(ctx, sysexec.Command{Name: "git", Args: fullArgs})
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}
