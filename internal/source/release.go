package source

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// ReleaseDownloader fetches a .tar.gz release archive and unpacks it.
//
// Release mode exists for hosts without git or without access to the git
// remote: a single HTTPS GET of GitHub's archive endpoint is enough. The
// archive is streamed straight from the response body through the gzip and
// tar readers, so it is never held in memory or written to disk whole.
type ReleaseDownloader struct {
	client *http.Client
	logger *slog.Logger
}

// NewReleaseDownloader creates a downloader.
//
// Parameters:
//   - client: HTTP client used for the download; nil means http.DefaultClient
//     (tests pass an httptest server's client)
//   - logger: receives release.download / release.extracted records; nil
//     discards them
func NewReleaseDownloader(client *http.Client, logger *slog.Logger) *ReleaseDownloader {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ReleaseDownloader{client: client, logger: logger}
}

// Download fetches url and extracts it into dest, which must not exist yet.
//
// GitHub archives wrap the tree in a single "<repo>-<ref>/" directory; that
// top-level directory is stripped so dest holds the project root directly.
// The archive is unpacked into a temporary sibling and renamed into place,
// so a failed download never leaves a half-populated dest behind. dest is
// cleaned first: with a trailing slash its parent would be dest itself and
// the staging directory would end up inside it.
//
// Parameters:
//   - url: the archive URL; any non-2xx status is an error
//   - dest: the install directory to create
//
// An archive with no files is an error, since installer.py could not be in it.
func (d *ReleaseDownloader) Download(ctx context.Context, url, dest string) error {
	dest = filepath.Clean(dest)
	parent := filepath.Dir(dest)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return errors.Wrapf(err, "create parent of %s", dest)
	}

	staging, err := os.MkdirTemp(parent, "."+filepath.Base(dest)+".partial-")
	if err != nil {
		return errors.Wrap(err, "create staging directory")
	}
	defer func() { _ = os.RemoveAll(staging) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrapf(err, "build request for %s", url)
	}

	d.logger.Info("release.download", "url", url, "dest", dest)
	resp, err := d.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "download %s", url)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("download %s: unexpected status %s", url, resp.Status)
	}

	n, err := Extract(resp.Body, staging)
	if err != nil {
		return errors.Wrapf(err, "extract %s", url)
	}
	if n == 0 {
		return errors.Errorf("extract %s: archive contains no files", url)
	}

	if err := os.Rename(staging, dest); err != nil {
		return errors.Wrapf(err, "move release into %s", dest)
	}
	d.logger.Info("release.extracted", "dest", dest, "entries", n)
	return nil
}

// Extract unpacks a gzip-compressed tar stream into dest, stripping the
// first path component of every entry. It returns the number of entries
// written.
//
// The archive comes from the network and is extracted as root, so three
// rules keep every write inside dest:
//
//   - entry names are cleaned and joined below dest (".." cannot climb out);
//   - no entry is created beneath a path component that is a symlink, so a
//     symlink extracted earlier can never redirect a later write;
//   - symlink targets are resolved component by component against what is
//     already on disk; targets that leave dest, are absolute, or pass
//     through another symlink are refused.
//
// Hard links, devices and pax metadata entries are skipped.
func Extract(r io.Reader, dest string) (int, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return 0, errors.Wrap(err, "open gzip stream")
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	written := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, errors.Wrap(err, "read tar entry")
		}

		rel := stripFirstComponent(hdr.Name)
		if rel == "" {
			continue
		}
		target, err := safeJoin(dest, rel)
		if err != nil {
			return written, err
		}
		switch hdr.Typeflag {
		case tar.TypeDir, tar.TypeReg, tar.TypeSymlink:
			if err := checkNoSymlinkParents(dest, target); err != nil {
				return written, err
			}
		default:
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return written, errors.Wrapf(err, "create directory %s", rel)
			}
		case tar.TypeReg:
			// A symlink of the same name would make the write follow it.
			if err := removeSymlink(target); err != nil {
				return written, errors.Wrapf(err, "replace %s", rel)
			}
			if err := writeFile(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return written, errors.Wrapf(err, "write %s", rel)
			}
		case tar.TypeSymlink:
			if err := checkLinkTarget(dest, target, hdr.Linkname); err != nil {
				return written, errors.Wrapf(err, "symlink %s points outside the archive: %s", rel, hdr.Linkname)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return written, errors.Wrapf(err, "create directory for %s", rel)
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return written, errors.Wrapf(err, "create symlink %s", rel)
			}
		}
		written++
	}
}

// checkNoSymlinkParents fails when a directory between dest and target
// already exists on disk as a symlink.
func checkNoSymlinkParents(dest, target string) error {
	rel, err := filepath.Rel(dest, filepath.Dir(target))
	if err != nil || rel == "." {
		return err
	}
	cur := dest
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		cur = filepath.Join(cur, part)
		info, err := os.Lstat(cur)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "inspect %s", cur)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return errors.Errorf("archive entry %s lies beneath symlink %s", target, cur)
		}
	}
	return nil
}

// checkLinkTarget walks linkname from the directory of link the way the
// kernel would, refusing absolute targets, any step that leaves dest, and
// any step through an existing symlink (whose own target the lexical walk
// would not see).
func checkLinkTarget(dest, link, linkname string) error {
	if filepath.IsAbs(linkname) {
		return errors.New("absolute target")
	}
	cur := filepath.Dir(link)
	for _, part := range strings.Split(filepath.ToSlash(linkname), "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			cur = filepath.Dir(cur)
		default:
			cur = filepath.Join(cur, part)
		}
		if !within(dest, cur) {
			return errors.New("target leaves the destination")
		}
		info, err := os.Lstat(cur)
		if err == nil && info.Mode()&os.ModeSymlink != 0 {
			return errors.Errorf("target passes through symlink %s", cur)
		}
	}
	return nil
}

func removeSymlink(path string) error {
	info, err := os.Lstat(path)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		return nil
	}
	return os.Remove(path)
}

func writeFile(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0o644
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func stripFirstComponent(name string) string {
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	_, rest, found := strings.Cut(name, "/")
	if !found {
		return ""
	}
	return rest
}

// safeJoin joins rel onto base and fails when the result escapes base.
func safeJoin(base, rel string) (string, error) {
	target := filepath.Join(base, filepath.FromSlash(rel))
	if !within(base, target) {
		return "", fmt.Errorf("archive entry %q escapes destination", rel)
	}
	return target, nil
}

func within(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
