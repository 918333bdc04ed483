package testkit

import (
	"archive/zip"
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"
)

// ZipArchive builds an in-memory zip with the given entries. Entry names use
// forward slashes.
func ZipArchive(t testing.TB, files map[string][]byte) []byte {
	t.Helper()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create zip entry %s: %v", name, err)
		}
		if _, err := w.Write(files[name]); err != nil {
			t.Fatalf("write zip entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

// ArchiveServer serves a fixed payload and counts requests.
type ArchiveServer struct {
	*httptest.Server
	hits atomic.Int32
}

// NewArchiveServer starts a server answering every request with payload.
// It is closed when the test ends.
func NewArchiveServer(t testing.TB, payload []byte) *ArchiveServer {
	t.Helper()
	s := &ArchiveServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		w.Header().Set("Content-Type", "application/zip")
		w.Write(payload)
	}))
	t.Cleanup(s.Close)
	return s
}

// Hits returns how many requests the server has answered
func (s *ArchiveServer) Hits() int {
	return int(s.hits.Load())
}

// WriteConfig writes a pipeline configuration rooted at dir and returns its
// path. Paths in the file are absolute so tests do not depend on the
// working directory.
func WriteConfig(t testing.TB, dir, url, trackingURI string, params string) string {
	t.Helper()
	if params == "" {
		params = "{max_iter: 100}"
	}
	body := fmt.Sprintf(`data:
  external_url: %s
  raw_dir: %s
  processed_dir: %s
  target: y
  table_path: bank-additional/bank-additional-full.csv
test_size: 0.25
random_state: 42
model:
  params: %s
  dir: %s
mlflow:
  tracking_uri: %s
  experiment_name: bank-marketing-test
  artifact_root: %s
`,
		url,
		filepath.Join(dir, "data", "raw"),
		filepath.Join(dir, "data", "processed"),
		params,
		filepath.Join(dir, "models"),
		trackingURI,
		filepath.Join(dir, "mlartifacts"),
	)
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
