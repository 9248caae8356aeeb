package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/primezdev/ovnode-setup/internal/config"
	"github.com/primezdev/ovnode-setup/internal/lock"
	"github.com/primezdev/ovnode-setup/internal/model"
	"github.com/primezdev/ovnode-setup/internal/pkgmgr"
	"github.com/primezdev/ovnode-setup/internal/source"
	"github.com/primezdev/ovnode-setup/internal/sysexec"
	"github.com/primezdev/ovnode-setup/internal/venv"
)

// PackageInstaller installs OS packages. *pkgmgr.Manager implements it.
type PackageInstaller interface {
	Install(ctx context.Context, packages []string) error
}

// Options toggles optional steps.
type Options struct {
	// SkipPackages skips the OS package step (host already provisioned).
	SkipPackages bool

	// SkipInstaller stops after the dependencies step instead of handing
	// control to installer.py.
	SkipInstaller bool

	// InstallerStdout, when set, receives installer.py's standard output
	// instead of the terminal. Its prompts still read from the terminal.
	InstallerStdout io.Writer
}

// Bootstrapper executes the bootstrap sequence for one configuration.
type Bootstrapper struct {
	cfg      *config.Config
	runner   sysexec.Runner
	packages PackageInstaller
	fetcher  *source.Fetcher
	venv     *venv.Manager
	logger   *slog.Logger
	opts     Options

	// OnStep, when set, is called after each step finishes or is skipped.
	OnStep func(model.StepReport)

	// Installed records the dependency install of the last run.
	Installed venv.InstallResult
}

// New creates a Bootstrapper. A nil packages installer means the host
// package manager is detected when the packages step runs. A nil fetcher
// uses git and HTTP release downloads through runner.
func New(cfg *config.Config, runner sysexec.Runner, packages PackageInstaller, fetcher *source.Fetcher, logger *slog.Logger, opts Options) *Bootstrapper {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if fetcher == nil {
		fetcher = source.NewFetcher(source.NewGitManager(runner), source.NewReleaseDownloader(nil, logger), logger)
	}
	return &Bootstrapper{
		cfg:      cfg,
		runner:   runner,
		packages: packages,
		fetcher:  fetcher,
		venv:     venv.NewManager(runner, cfg.Python, cfg.VenvPath()),
		logger:   logger,
		opts:     opts,
	}
}

type step struct {
	name model.StepName
	skip bool
	run  func(ctx context.Context) (string, error)
}

// Run executes every step in order and returns one report per step.
//
// The install lock is held for the whole run; a concurrent run against the
// same install directory fails immediately with ExitLocked and no reports.
func (b *Bootstrapper) Run(ctx context.Context) ([]model.StepReport, error) {
	l, err := lock.Acquire(b.cfg.LockPath())
	if err != nil {
		return nil, err
	}
	defer func() { _ = l.Release() }()

	steps := []step{
		{name: model.StepPackages, skip: b.opts.SkipPackages, run: b.installPackages},
		{name: model.StepSource, run: b.fetchSource},
		{name: model.StepVenv, run: b.createVenv},
		{name: model.StepDependencies, run: b.installDependencies},
		{name: model.StepInstaller, skip: b.opts.SkipInstaller, run: b.runInstaller},
	}

	reports := make([]model.StepReport, 0, len(steps))
	var failure error
	for _, s := range steps {
		if failure != nil || s.skip {
			detail := "skipped by option"
			if failure != nil {
				detail = "previous step failed"
			}
			reports = append(reports, b.report(model.StepReport{
				Name:   s.name,
				Status: model.StepSkipped,
				Detail: detail,
			}))
			continue
		}

		if err := ctx.Err(); err != nil {
			failure = model.WrapCLIError(model.ExitUserCancelled, fmt.Sprintf("%s step interrupted", s.name), err)
			reports = append(reports, b.report(model.StepReport{
				Name:   s.name,
				Status: model.StepFailed,
				Error:  err.Error(),
			}))
			continue
		}

		b.logger.Info("step.start", "step", string(s.name))
		start := time.Now()
		detail, err := s.run(ctx)
		r := model.StepReport{
			Name:     s.name,
			Status:   model.StepSucceeded,
			Detail:   detail,
			Duration: time.Since(start),
		}
		if err != nil {
			r.Status = model.StepFailed
			r.Error = err.Error()
			if ctx.Err() != nil {
				failure = model.WrapCLIError(model.ExitUserCancelled, fmt.Sprintf("%s step interrupted", s.name), err)
			} else {
				failure = model.WrapCLIError(s.name.ExitCode(), fmt.Sprintf("%s step failed", s.name), err)
			}
		}
		reports = append(reports, b.report(r))
	}

	return reports, failure
}

func (b *Bootstrapper) report(r model.StepReport) model.StepReport {
	attrs := []any{"step", string(r.Name), "status", string(r.Status)}
	if r.Detail != "" {
		attrs = append(attrs, "detail", r.Detail)
	}
	if r.Duration > 0 {
		attrs = append(attrs, "duration", r.Duration)
	}
	if r.Error != "" {
		b.logger.Error("step.done", append(attrs, "error", r.Error)...)
	} else {
		b.logger.Info("step.done", attrs...)
	}
	if b.OnStep != nil {
		b.OnStep(r)
	}
	return r
}

func (b *Bootstrapper) installPackages(ctx context.Context) (string, error) {
	pm := b.packages
	if pm == nil {
		detected, err := pkgmgr.Detect(b.runner)
		if err != nil {
			return "", err
		}
		pm = detected
	}
	if err := pm.Install(ctx, b.cfg.OSPackages); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d packages", len(b.cfg.OSPackages)), nil
}

func (b *Bootstrapper) fetchSource(ctx context.Context) (string, error) {
	action, err := b.fetcher.Fetch(ctx, b.cfg)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s (%s)", action, b.cfg.Source), nil
}

func (b *Bootstrapper) createVenv(ctx context.Context) (string, error) {
	created, err := b.venv.Create(ctx)
	if err != nil {
		return "", err
	}
	if created {
		return "created " + b.venv.Dir(), nil
	}
	return "reused " + b.venv.Dir(), nil
}

func (b *Bootstrapper) installDependencies(ctx context.Context) (string, error) {
	if err := b.venv.UpgradePip(ctx); err != nil {
		return "", err
	}
	res, err := b.venv.Install(ctx, b.cfg.RequirementsPath(), b.cfg.FallbackPackages)
	if err != nil {
		return "", err
	}
	b.Installed = res
	return fmt.Sprintf("%s: %d packages", res.Source, len(res.Packages)), nil
}

func (b *Bootstrapper) runInstaller(ctx context.Context) (string, error) {
	path := b.cfg.InstallerPath()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s not found in %s", b.cfg.Installer, b.cfg.InstallDir)
		}
		return "", fmt.Errorf("failed to inspect %s: %w", path, err)
	}

	_, err := b.runner.Run(ctx, sysexec.Command{
		Name:        b.venv.Python(),
		Args:        []string{path},
		Dir:         b.cfg.InstallDir,
		Interactive: true,
		Stdout:      b.opts.InstallerStdout,
	})
	if err != nil {
		return "", err
	}
	return "completed", nil
}
