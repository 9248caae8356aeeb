package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/primezdev/ovnode-setup/internal/config"
	"github.com/primezdev/ovnode-setup/internal/model"
)

// Fetcher places the application source in the install directory
// according to the configured source mode and reinstall policy.
//
// Fetcher holds no state of its own. It decides what to do with an existing
// directory and delegates the transfer to GitManager or ReleaseDownloader,
// which keeps both acquisition modes behind one reinstall policy.
type Fetcher struct {
	git     *GitManager
	release *ReleaseDownloader
	logger  *slog.Logger
}

// NewFetcher creates a Fetcher.
//
// Parameters:
//   - git: used for model.SourceGit
//   - release: used for model.SourceRelease
//   - logger: receives source.* records; nil discards them
func NewFetcher(git *GitManager, release *ReleaseDownloader, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Fetcher{git: git, release: release, logger: logger}
}

// Fetch obtains the source into cfg.InstallDir.
//
// When the directory already exists, the effective reinstall policy decides:
// reuse returns FetchReused without touching the network or the directory;
// wipe removes the directory and fetches again. No partial recovery is
// attempted: any failure is returned as-is.
func (f *Fetcher) Fetch(ctx context.Context, cfg *config.Config) (model.FetchAction, error) {
	dir := filepath.Clean(cfg.InstallDir)
	policy := cfg.ReinstallPolicy()

	exists, err := dirExists(dir)
	if err != nil {
		return "", err
	}

	if exists {
		if policy == model.ReinstallReuse {
			f.logger.Info("source.reused", "dir", dir)
			return model.FetchReused, nil
		}
		f.logger.Info("source.wipe", "dir", dir)
		if err := os.RemoveAll(dir); err != nil {
			return "", fmt.Errorf("failed to remove existing %s: %w", dir, err)
		}
	}

	switch cfg.Source {
	case model.SourceGit:
		if err := f.git.Clone(ctx, cfg.RepoURL, cfg.Branch, dir); err != nil {
			return "", err
		}
		if exists {
			return model.FetchRecloned, nil
		}
		return model.FetchCloned, nil

	case model.SourceRelease:
		if err := f.release.Download(ctx, cfg.ReleaseURL, dir); err != nil {
			return "", err
		}
		if exists {
			return model.FetchRedownloaded, nil
		}
		return model.FetchDownloaded, nil

	default:
		return "", fmt.Errorf("unsupported source mode %q", cfg.Source)
	}
}

// dirExists reports whether dir exists. A regular file at dir is an error
// rather than false, so neither policy removes or reuses it.
func dirExists(dir string) (bool, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to inspect %s: %w", dir, err)
	}
	if !info.IsDir() {
		return false, fmt.Errorf("%s exists and is not a directory", dir)
	}
	return true, nil
}
