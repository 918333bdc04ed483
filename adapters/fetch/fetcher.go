package fetch

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bankml/internal/errors"
)

// Fetcher makes a dataset archive available locally: downloaded at most
// once, extracted on every call.
type Fetcher struct {
	httpClient  *http.Client
	archiveName string
	tablePath   string
}

// NewFetcher creates a fetcher. archiveName is the file the download is
// stored under; tablePath locates the primary table inside the extracted
// tree. A nil client means http.DefaultClient.
func NewFetcher(archiveName, tablePath string, httpClient *http.Client) *Fetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Fetcher{
		httpClient:  httpClient,
		archiveName: archiveName,
		tablePath:   filepath.FromSlash(tablePath),
	}
}

// Acquire ensures destinationDir holds the extracted archive and returns the
// path of the primary table.
func (f *Fetcher) Acquire(ctx context.Context, url, destinationDir string) (string, error) {
	if err := os.MkdirAll(destinationDir, 0755); err != nil {
		return "", errors.Wrapf(err, "failed to create %s", destinationDir)
	}

	archivePath := filepath.Join(destinationDir, f.archiveName)
	if _, err := os.Stat(archivePath); os.IsNotExist(err) {
		log.Printf("[Fetcher] 📥 downloading dataset from %s", url)
		if err := f.download(ctx, url, archivePath); err != nil {
			return "", err
		}
	} else if err != nil {
		return "", errors.Wrapf(err, "failed to stat %s", archivePath)
	} else {
		log.Printf("[Fetcher] ✅ archive already present at %s, skipping download", archivePath)
	}

	if err := Extract(archivePath, destinationDir); err != nil {
		return "", err
	}

	tablePath := filepath.Join(destinationDir, f.tablePath)
	if _, err := os.Stat(tablePath); err != nil {
		if os.IsNotExist(err) {
			return "", errors.NotFound(fmt.Sprintf("primary table %s", tablePath))
		}
		return "", errors.Wrapf(err, "failed to stat %s", tablePath)
	}
	return tablePath, nil
}

// download streams url into a temp file next to dest and renames it into
// place once complete.
func (f *Fetcher) download(ctx context.Context, url, dest string) error {
	startTime := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.NetworkError("failed to build download request", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return errors.NetworkError("download request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.NetworkError(fmt.Sprintf("download of %s returned status %d", url, resp.StatusCode), nil)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+"-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary download file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	written, err := io.Copy(tmp, resp.Body)
	if err != nil {
		tmp.Close()
		return errors.NetworkError("failed to read download body", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close temporary download file")
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return errors.Wrapf(err, "failed to move download into %s", dest)
	}

	log.Printf("[Fetcher] downloaded %d bytes in %.2fs", written, time.Since(startTime).Seconds())
	return nil
}

// Extract unpacks a zip archive into dir, overwriting existing files.
// Entries that would land outside dir are rejected.
func Extract(archivePath, dir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		if r != nil {
			r.Close()
		}
		return errors.WithCode(errors.CodeValidationError, errors.Wrapf(err, "failed to open archive %s", archivePath))
	}
	defer r.Close()

	root, err := filepath.Abs(dir)
	if err != nil {
		return errors.Wrapf(err, "failed to resolve %s", dir)
	}

	for _, entry := range r.File {
		target := filepath.Join(root, filepath.FromSlash(entry.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return errors.ValidationError(fmt.Sprintf("archive entry %q escapes %s", entry.Name, dir))
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return errors.Wrapf(err, "failed to create %s", target)
			}
			continue
		}
		if err := extractFile(entry, target); err != nil {
			return err
		}
	}

	log.Printf("[Fetcher] extracted %d entries into %s", len(r.File), dir)
	return nil
}

func extractFile(entry *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", target)
	}

	src, err := entry.Open()
	if err != nil {
		return errors.Wrapf(err, "failed to open archive entry %s", entry.Name)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", target)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return errors.Wrapf(err, "failed to extract %s", entry.Name)
	}
	return dst.Close()
}
