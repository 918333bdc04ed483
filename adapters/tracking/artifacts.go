package tracking

import (
	"encoding/json"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"bankml/internal/errors"

	"gopkg.in/yaml.v3"
)

const (
	tagRunName         = "mlflow.runName"
	tagLogModelHistory = "mlflow.log-model.history"
)

// artifactFile is one file of a local artifact directory
type artifactFile struct {
	abs string
	rel string // slash-separated, relative to the directory root
}

func listArtifacts(dir string) ([]artifactFile, error) {
	var files []artifactFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, artifactFile{abs: path, rel: filepath.ToSlash(rel)})
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list artifacts in %s", dir)
	}
	if len(files) == 0 {
		return nil, errors.ValidationError("artifact directory " + dir + " is empty")
	}
	return files, nil
}

func copyDir(src, dst string) error {
	files, err := listArtifacts(src)
	if err != nil {
		return err
	}
	for _, f := range files {
		target := filepath.Join(dst, filepath.FromSlash(f.rel))
		if err := copyFile(f.abs, target); err != nil {
			return errors.Wrapf(err, "failed to copy artifact %s", f.rel)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// modelJSON reads the MLmodel descriptor of a model directory and renders
// it as JSON with the run id and artifact path filled in.
func modelJSON(localDir, runID, artifactPath string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(localDir, "MLmodel"))
	if err != nil {
		return "", errors.Wrapf(err, "model directory %s has no MLmodel descriptor", localDir)
	}
	var descriptor map[string]interface{}
	if err := yaml.Unmarshal(raw, &descriptor); err != nil {
		return "", errors.WithCode(errors.CodeValidationError, errors.Wrap(err, "malformed MLmodel descriptor"))
	}
	if descriptor == nil {
		descriptor = map[string]interface{}{}
	}
	descriptor["run_id"] = runID
	descriptor["artifact_path"] = artifactPath
	if _, ok := descriptor["utc_time_created"]; !ok {
		descriptor["utc_time_created"] = time.Now().UTC().Format("2006-01-02 15:04:05.000000")
	}
	b, err := json.Marshal(descriptor)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode model descriptor")
	}
	return string(b), nil
}

// appendHistory adds a descriptor to the JSON list kept in the
// log-model history tag.
func appendHistory(existing, descriptor string) (string, error) {
	var history []json.RawMessage
	if strings.TrimSpace(existing) != "" {
		if err := json.Unmarshal([]byte(existing), &history); err != nil {
			return "", errors.Wrap(err, "malformed log-model history")
		}
	}
	history = append(history, json.RawMessage(descriptor))
	b, err := json.Marshal(history)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode log-model history")
	}
	return string(b), nil
}

// validKey rejects keys that would escape a store directory
func validKey(key string) error {
	if key == "" {
		return errors.ValidationError("empty key")
	}
	clean := filepath.ToSlash(filepath.Clean(key))
	if filepath.IsAbs(key) || clean == ".." || strings.HasPrefix(clean, "../") {
		return errors.ValidationError("invalid key " + key)
	}
	return nil
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
