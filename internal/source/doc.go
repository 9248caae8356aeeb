// Package source obtains the application source tree.
//
// Two acquisition modes exist: a git clone of the repository (GitManager)
// and a download of a gzip-compressed tarball release (ReleaseDownloader).
// Fetcher applies the reinstall policy when the install directory already
// exists: wipe removes it and fetches again, reuse keeps it and skips the
// fetch entirely.
package source
