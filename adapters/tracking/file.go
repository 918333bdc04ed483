package tracking

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"bankml/internal/errors"
	"bankml/ports"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const metaFile = "meta.yaml"

// Run status values as stored in file-store run metadata
var fileRunStatus = map[ports.RunStatus]int{
	"RUNNING":         1,
	ports.RunFinished: 3,
	ports.RunFailed:   4,
}

type experimentMeta struct {
	ArtifactLocation string `yaml:"artifact_location"`
	CreationTime     int64  `yaml:"creation_time"`
	ExperimentID     string `yaml:"experiment_id"`
	LastUpdateTime   int64  `yaml:"last_update_time"`
	LifecycleStage   string `yaml:"lifecycle_stage"`
	Name             string `yaml:"name"`
}

type runMeta struct {
	ArtifactURI    string   `yaml:"artifact_uri"`
	EndTime        *int64   `yaml:"end_time"`
	EntryPointName string   `yaml:"entry_point_name"`
	ExperimentID   string   `yaml:"experiment_id"`
	LifecycleStage string   `yaml:"lifecycle_stage"`
	RunID          string   `yaml:"run_id"`
	RunName        string   `yaml:"run_name"`
	RunUUID        string   `yaml:"run_uuid"`
	SourceName     string   `yaml:"source_name"`
	SourceType     int      `yaml:"source_type"`
	SourceVersion  string   `yaml:"source_version"`
	StartTime      int64    `yaml:"start_time"`
	Status         int      `yaml:"status"`
	Tags           []string `yaml:"tags"`
	UserID         string   `yaml:"user_id"`
}

// FileTracker writes runs to a local mlruns directory that the MLflow UI
// can read.
type FileTracker struct {
	root string
}

// NewFileTracker creates a tracker rooted at dir, creating it if needed
func NewFileTracker(dir string) (*FileTracker, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve tracking directory %s", dir)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, errors.ExternalServiceError("file tracking store", err)
	}
	return &FileTracker{root: root}, nil
}

// Root returns the absolute store directory
func (t *FileTracker) Root() string {
	return t.root
}

func (t *FileTracker) Close() error {
	return nil
}

func (t *FileTracker) StartRun(ctx context.Context, experimentName, runName string) (ports.Run, error) {
	exp, err := t.experiment(experimentName)
	if err != nil {
		return nil, err
	}

	runID := strings.ReplaceAll(uuid.NewString(), "-", "")
	dir := filepath.Join(t.root, exp.ExperimentID, runID)
	meta := &runMeta{
		ArtifactURI:    "file://" + filepath.ToSlash(filepath.Join(dir, "artifacts")),
		ExperimentID:   exp.ExperimentID,
		LifecycleStage: "active",
		RunID:          runID,
		RunName:        runName,
		RunUUID:        runID,
		SourceType:     4,
		StartTime:      nowMillis(),
		Status:         fileRunStatus["RUNNING"],
		Tags:           []string{},
		UserID:         currentUser(),
	}
	for _, sub := range []string{"params", "metrics", "tags", "artifacts"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, errors.ExternalServiceError("file tracking store", err)
		}
	}
	run := &fileRun{dir: dir, meta: meta}
	if err := run.writeMeta(); err != nil {
		return nil, err
	}
	if err := run.setTag(tagRunName, runName); err != nil {
		return nil, err
	}

	log.Printf("[Tracking] 🏃 Started run %s in %s", runID, dir)
	return run, nil
}

// experiment finds the experiment by name or creates it with the next
// free numeric id.
func (t *FileTracker) experiment(name string) (*experimentMeta, error) {
	entries, err := os.ReadDir(t.root)
	if err != nil {
		return nil, errors.ExternalServiceError("file tracking store", err)
	}

	nextID := 1
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		if id >= nextID {
			nextID = id + 1
		}
		raw, err := os.ReadFile(filepath.Join(t.root, entry.Name(), metaFile))
		if err != nil {
			continue
		}
		var meta experimentMeta
		if err := yaml.Unmarshal(raw, &meta); err != nil {
			return nil, errors.ExternalServiceError("file tracking store",
				fmt.Errorf("malformed experiment metadata in %s: %w", entry.Name(), err))
		}
		if meta.Name == name && meta.LifecycleStage != "deleted" {
			return &meta, nil
		}
	}

	id := strconv.Itoa(nextID)
	now := nowMillis()
	meta := &experimentMeta{
		ArtifactLocation: "file://" + filepath.ToSlash(filepath.Join(t.root, id)),
		CreationTime:     now,
		ExperimentID:     id,
		LastUpdateTime:   now,
		LifecycleStage:   "active",
		Name:             name,
	}
	if err := writeYAML(filepath.Join(t.root, id, metaFile), meta); err != nil {
		return nil, err
	}
	log.Printf("[Tracking] 🆕 Created experiment %s (%s)", name, id)
	return meta, nil
}

type fileRun struct {
	dir  string
	meta *runMeta
}

func (r *fileRun) ID() string {
	return r.meta.RunID
}

func (r *fileRun) LogParams(ctx context.Context, params map[string]string) error {
	for _, key := range sortedKeys(params) {
		if err := validKey(key); err != nil {
			return err
		}
		if err := writeFile(filepath.Join(r.dir, "params", key), []byte(params[key])); err != nil {
			return err
		}
	}
	return nil
}

func (r *fileRun) LogMetric(ctx context.Context, key string, value float64) error {
	if err := validKey(key); err != nil {
		return err
	}
	path := filepath.Join(r.dir, "metrics", key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.ExternalServiceError("file tracking store", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return errors.ExternalServiceError("file tracking store", err)
	}
	line := fmt.Sprintf("%d %s 0\n", nowMillis(), strconv.FormatFloat(value, 'g', -1, 64))
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return errors.ExternalServiceError("file tracking store", err)
	}
	if err := f.Close(); err != nil {
		return errors.ExternalServiceError("file tracking store", err)
	}
	return nil
}

func (r *fileRun) LogModel(ctx context.Context, artifactPath, localDir string) error {
	if err := validKey(artifactPath); err != nil {
		return err
	}
	if err := copyDir(localDir, filepath.Join(r.dir, "artifacts", artifactPath)); err != nil {
		return errors.ExternalServiceError("file tracking store", err)
	}

	descriptor, err := modelJSON(localDir, r.meta.RunID, artifactPath)
	if err != nil {
		return err
	}
	historyPath := filepath.Join(r.dir, "tags", tagLogModelHistory)
	existing, err := os.ReadFile(historyPath)
	if err != nil && !os.IsNotExist(err) {
		return errors.ExternalServiceError("file tracking store", err)
	}
	history, err := appendHistory(string(existing), descriptor)
	if err != nil {
		return err
	}
	if err := r.setTag(tagLogModelHistory, history); err != nil {
		return err
	}
	log.Printf("[Tracking] 📦 Logged model %s to run %s", artifactPath, r.meta.RunID)
	return nil
}

func (r *fileRun) End(ctx context.Context, status ports.RunStatus) error {
	code, ok := fileRunStatus[status]
	if !ok {
		return errors.ValidationError(fmt.Sprintf("unknown run status %s", status))
	}
	end := nowMillis()
	r.meta.Status = code
	r.meta.EndTime = &end
	if err := r.writeMeta(); err != nil {
		return err
	}
	log.Printf("[Tracking] 🏁 Run %s ended %s", r.meta.RunID, status)
	return nil
}

func (r *fileRun) setTag(key, value string) error {
	return writeFile(filepath.Join(r.dir, "tags", key), []byte(value))
}

func (r *fileRun) writeMeta() error {
	return writeYAML(filepath.Join(r.dir, metaFile), r.meta)
}

func writeYAML(path string, v interface{}) error {
	b, err := yaml.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "failed to encode tracking metadata")
	}
	return writeFile(path, b)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.ExternalServiceError("file tracking store", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.ExternalServiceError("file tracking store", err)
	}
	return nil
}

func currentUser() string {
	for _, key := range []string{"USER", "USERNAME"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return "unknown"
}
