package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primezdev/ovnode-setup/internal/config"
	"github.com/primezdev/ovnode-setup/internal/lock"
	"github.com/primezdev/ovnode-setup/internal/model"
	"github.com/primezdev/ovnode-setup/internal/pkgmgr"
	"github.com/primezdev/ovnode-setup/internal/sysexec"
	"github.com/primezdev/ovnode-setup/internal/venv"
)

// testConfig returns the default configuration relocated into a temp dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.InstallDir = filepath.Join(t.TempDir(), "ov-node")
	return cfg
}

// fakeClone makes `git clone` create the checkout a real clone would,
// optionally without installer.py.
func fakeClone(rec *sysexec.Recorder, withInstaller bool) {
	rec.Do("git clone", func(cmd sysexec.Command) {
		dest := cmd.Args[len(cmd.Args)-1]
		_ = os.MkdirAll(filepath.Join(dest, ".git"), 0755)
		if withInstaller {
			_ = os.WriteFile(filepath.Join(dest, "installer.py"), []byte("print('ok')\n"), 0644)
		}
	})
}

func statuses(reports []model.StepReport) map[model.StepName]model.StepStatus {
	m := make(map[model.StepName]model.StepStatus, len(reports))
	for _, r := range reports {
		m[r.Name] = r.Status
	}
	return m
}

// TestRun_CleanInstall verifies a run against an empty host leaves the
// install directory with the installer entry point, installs exactly the
// fallback set, and hands off to installer.py.
func TestRun_CleanInstall(t *testing.T) {
	cfg := testConfig(t)
	rec := sysexec.NewRecorder()
	fakeClone(rec, true)

	var seen []model.StepName
	b := New(cfg, rec, pkgmgr.New(rec, pkgmgr.Apt), nil, nil, Options{})
	b.OnStep = func(r model.StepReport) { seen = append(seen, r.Name) }

	reports, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(cfg.InstallDir, "installer.py"))

	pip := filepath.Join(cfg.InstallDir, "venv", "bin", "pip")
	python := filepath.Join(cfg.InstallDir, "venv", "bin", "python")
	want := []string{
		"apt-get update",
		"apt-get install -y python3 python3-venv python3-pip git curl wget",
		"git clone --branch main https://github.com/primeZdev/ov-node.git " + cfg.InstallDir,
		"/usr/bin/python3 -m venv " + filepath.Join(cfg.InstallDir, "venv"),
		pip + " install --upgrade pip",
		pip + " install fastapi uvicorn psutil pydantic_settings python-dotenv colorama pexpect requests",
		python + " " + filepath.Join(cfg.InstallDir, "installer.py"),
	}
	if diff := cmp.Diff(want, rec.Commands()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}

	calls := rec.Calls()
	last := calls[len(calls)-1]
	assert.True(t, last.Interactive)
	assert.Equal(t, cfg.InstallDir, last.Dir)

	assert.Equal(t, model.BootstrapSteps, seen)
	for _, r := range reports {
		assert.Equal(t, model.StepSucceeded, r.Status, "step %s", r.Name)
	}
	assert.Equal(t, venv.FromFallback, b.Installed.Source)
	assert.Equal(t, cfg.FallbackPackages, b.Installed.Packages)
	assert.Equal(t, "cloned (git)", reports[1].Detail)
}

// TestRun_SecondRunWipes verifies the git default policy replaces an
// existing install directory.
func TestRun_SecondRunWipes(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.InstallDir, 0755))
	stale := filepath.Join(cfg.InstallDir, "stale.txt")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0644))

	rec := sysexec.NewRecorder()
	fakeClone(rec, true)

	reports, err := New(cfg, rec, pkgmgr.New(rec, pkgmgr.Apt), nil, nil, Options{SkipPackages: true}).Run(context.Background())
	require.NoError(t, err)
	assert.NoFileExists(t, stale)
	assert.Equal(t, "recloned (git)", reports[1].Detail)
	assert.Equal(t, model.StepSkipped, reports[0].Status)
}

// TestRun_SecondRunReuses verifies the release default policy leaves an
// existing install untouched and fetches nothing.
func TestRun_SecondRunReuses(t *testing.T) {
	cfg := testConfig(t)
	cfg.Source = model.SourceRelease
	cfg.ReleaseURL = "http://127.0.0.1:1/never-contacted.tar.gz"
	require.NoError(t, os.MkdirAll(cfg.InstallDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.InstallDir, "installer.py"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.InstallDir, "requirements.txt"), []byte("fastapi\n"), 0644))

	rec := sysexec.NewRecorder()
	b := New(cfg, rec, nil, nil, nil, Options{SkipPackages: true, SkipInstaller: true})
	reports, err := b.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "reused (release)", reports[1].Detail)
	assert.Equal(t, venv.FromRequirements, b.Installed.Source)
	assert.FileExists(t, filepath.Join(cfg.InstallDir, "installer.py"))
	for _, line := range rec.Commands() {
		assert.NotContains(t, line, "git")
		assert.NotContains(t, line, "installer.py")
	}
}

func TestRun_FailureExitCodes(t *testing.T) {
	tests := []struct {
		name       string
		script     func(rec *sysexec.Recorder, cfg *config.Config)
		wantStep   model.StepName
		wantCode   model.ExitCode
		wantStatus map[model.StepName]model.StepStatus
	}{
		{
			name: "package install",
			script: func(rec *sysexec.Recorder, _ *config.Config) {
				rec.On("apt-get install", sysexec.Result{Stderr: "E: Unable to locate package"}, errors.New("exit status 100"))
			},
			wantStep: model.StepPackages,
			wantCode: model.ExitPackageInstallFailed,
		},
		{
			name: "clone",
			script: func(rec *sysexec.Recorder, _ *config.Config) {
				rec.On("git clone", sysexec.Result{Stderr: "fatal: repository not found"}, errors.New("exit status 128"))
			},
			wantStep: model.StepSource,
			wantCode: model.ExitSourceFetchFailed,
		},
		{
			name: "venv",
			script: func(rec *sysexec.Recorder, _ *config.Config) {
				fakeClone(rec, true)
				rec.On("/usr/bin/python3 -m venv", sysexec.Result{}, errors.New("exit status 1"))
			},
			wantStep: model.StepVenv,
			wantCode: model.ExitVenvFailed,
		},
		{
			name: "pip",
			script: func(rec *sysexec.Recorder, cfg *config.Config) {
				fakeClone(rec, true)
				rec.On(filepath.Join(cfg.VenvPath(), "bin", "pip")+" install fastapi", sysexec.Result{}, errors.New("exit status 1"))
			},
			wantStep: model.StepDependencies,
			wantCode: model.ExitDependencyInstallFailed,
		},
		{
			name: "installer missing",
			script: func(rec *sysexec.Recorder, _ *config.Config) {
				fakeClone(rec, false)
			},
			wantStep: model.StepInstaller,
			wantCode: model.ExitInstallerFailed,
		},
		{
			name: "installer exits non-zero",
			script: func(rec *sysexec.Recorder, cfg *config.Config) {
				fakeClone(rec, true)
				rec.On(cfg.VenvPython()+" ", sysexec.Result{}, errors.New("exit status 2"))
			},
			wantStep: model.StepInstaller,
			wantCode: model.ExitInstallerFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			rec := sysexec.NewRecorder()
			tt.script(rec, cfg)

			reports, err := New(cfg, rec, pkgmgr.New(rec, pkgmgr.Apt), nil, nil, Options{}).Run(context.Background())
			require.Error(t, err)

			var cliErr *model.CLIError
			require.ErrorAs(t, err, &cliErr)
			assert.Equal(t, tt.wantCode, cliErr.Code)

			require.Len(t, reports, len(model.BootstrapSteps))
			failed := false
			for _, r := range reports {
				switch {
				case r.Name == tt.wantStep:
					assert.Equal(t, model.StepFailed, r.Status)
					assert.NotEmpty(t, r.Error)
					failed = true
				case failed:
					assert.Equal(t, model.StepSkipped, r.Status, "step %s after failure", r.Name)
				default:
					assert.Equal(t, model.StepSucceeded, r.Status, "step %s before failure", r.Name)
				}
			}
		})
	}
}

func TestRun_Locked(t *testing.T) {
	cfg := testConfig(t)
	held, err := lock.Acquire(cfg.LockPath())
	require.NoError(t, err)
	defer func() { _ = held.Release() }()

	rec := sysexec.NewRecorder()
	reports, err := New(cfg, rec, pkgmgr.New(rec, pkgmgr.Apt), nil, nil, Options{}).Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, reports)
	assert.Empty(t, rec.Commands())

	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitLocked, cliErr.Code)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := sysexec.NewRecorder()
	reports, err := New(testConfig(t), rec, pkgmgr.New(rec, pkgmgr.Apt), nil, nil, Options{}).Run(ctx)
	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitUserCancelled, cliErr.Code)
	assert.Empty(t, rec.Commands())
	assert.Equal(t, map[model.StepName]model.StepStatus{
		model.StepPackages:     model.StepFailed,
		model.StepSource:       model.StepSkipped,
		model.StepVenv:         model.StepSkipped,
		model.StepDependencies: model.StepSkipped,
		model.StepInstaller:    model.StepSkipped,
	}, statuses(reports))
}

// TestRun_CancelledMidStep verifies an interrupt while a host command runs
// reports the cancellation exit code instead of the step's own code.
func TestRun_CancelledMidStep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := sysexec.NewRecorder()
	rec.Do("apt-get", func(sysexec.Command) { cancel() })
	rec.On("apt-get", sysexec.Result{}, errors.New("signal: interrupt"))

	reports, err := New(testConfig(t), rec, pkgmgr.New(rec, pkgmgr.Apt), nil, nil, Options{}).Run(ctx)
	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitUserCancelled, cliErr.Code)
	assert.Contains(t, cliErr.Message, "packages step interrupted")
	assert.Equal(t, model.StepFailed, statuses(reports)[model.StepPackages])
	assert.Equal(t, model.StepSkipped, statuses(reports)[model.StepSource])
}

// TestRun_InstallerStdout verifies the installer command carries the
// configured stdout writer, and none by default.
func TestRun_InstallerStdout(t *testing.T) {
	var sink bytes.Buffer
	for _, tt := range []struct {
		name string
		out  io.Writer
	}{
		{"terminal", nil},
		{"redirected", &sink},
	} {
		t.Run(tt.name, func(t *testing.T) {
			rec := sysexec.NewRecorder()
			fakeClone(rec, true)

			_, err := New(testConfig(t), rec, nil, nil, nil, Options{
				SkipPackages:    true,
				InstallerStdout: tt.out,
			}).Run(context.Background())
			require.NoError(t, err)

			calls := rec.Calls()
			last := calls[len(calls)-1]
			assert.True(t, last.Interactive)
			assert.Equal(t, tt.out, last.Stdout)
		})
	}
}
