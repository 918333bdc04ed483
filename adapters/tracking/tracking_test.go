package tracking

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"bankml/internal/errors"
	"bankml/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

func modelDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "model")
	require.NoError(t, os.MkdirAll(dir, 0755))
	mlmodel := `artifact_path: model
flavors:
  go_logreg:
    model_data: model.gob
signature:
  inputs: '[{"type":"long","name":"age","required":true}]'
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "MLmodel"), []byte(mlmodel), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.gob"), []byte("weights"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "input_example.json"), []byte(`{"columns":["age"],"data":[[30]]}`), 0644))
	return dir
}

func logRun(t *testing.T, tracker ports.Tracker) ports.Run {
	t.Helper()
	ctx := context.Background()
	run, err := tracker.StartRun(ctx, "bank-marketing", "logistic_regression_training")
	require.NoError(t, err)
	require.NotEmpty(t, run.ID())

	require.NoError(t, run.LogParams(ctx, map[string]string{"max_iter": "100", "C": "1.0"}))
	require.NoError(t, run.LogMetric(ctx, "accuracy", 0.9))
	require.NoError(t, run.LogMetric(ctx, "f1_score", 0.5))
	require.NoError(t, run.LogModel(ctx, "model", modelDir(t)))
	require.NoError(t, run.End(ctx, ports.RunFinished))
	return run
}

func TestOpen_SelectsBackendByScheme(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tr, err := Open(ctx, "http://localhost:5000", Options{})
	require.NoError(t, err)
	assert.IsType(t, &RESTTracker{}, tr)

	tr, err = Open(ctx, "file://"+filepath.ToSlash(filepath.Join(dir, "a")), Options{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a"), tr.(*FileTracker).Root())

	tr, err = Open(ctx, filepath.Join(dir, "b"), Options{})
	require.NoError(t, err)
	assert.IsType(t, &FileTracker{}, tr)

	tr, err = Open(ctx, "sqlite:///:memory:", Options{ArtifactRoot: dir})
	require.NoError(t, err)
	assert.IsType(t, &SQLTracker{}, tr)
	require.NoError(t, tr.Close())

	_, err = Open(ctx, "ftp://example.com", Options{})
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
	_, err = Open(ctx, "", Options{})
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestFileTracker_WritesStoreLayout(t *testing.T) {
	tracker, err := NewFileTracker(t.TempDir())
	require.NoError(t, err)

	run := logRun(t, tracker)
	runDir := filepath.Join(tracker.Root(), "1", run.ID())

	var exp experimentMeta
	raw, err := os.ReadFile(filepath.Join(tracker.Root(), "1", metaFile))
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(raw, &exp))
	assert.Equal(t, "bank-marketing", exp.Name)

	var meta runMeta
	raw, err = os.ReadFile(filepath.Join(runDir, metaFile))
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(raw, &meta))
	assert.Equal(t, 3, meta.Status)
	assert.NotNil(t, meta.EndTime)
	assert.Equal(t, "logistic_regression_training", meta.RunName)

	param, err := os.ReadFile(filepath.Join(runDir, "params", "max_iter"))
	require.NoError(t, err)
	assert.Equal(t, "100", string(param))

	metrics, err := os.ReadDir(filepath.Join(runDir, "metrics"))
	require.NoError(t, err)
	assert.Len(t, metrics, 2)
	line, err := os.ReadFile(filepath.Join(runDir, "metrics", "accuracy"))
	require.NoError(t, err)
	assert.Equal(t, []string{"0.9", "0"}, strings.Fields(string(line))[1:])

	assert.FileExists(t, filepath.Join(runDir, "artifacts", "model", "MLmodel"))
	assert.FileExists(t, filepath.Join(runDir, "artifacts", "model", "model.gob"))

	history, err := os.ReadFile(filepath.Join(runDir, "tags", tagLogModelHistory))
	require.NoError(t, err)
	assert.Equal(t, run.ID(), gjson.GetBytes(history, "0.run_id").String())

	// a second run reuses the experiment
	second, err := tracker.StartRun(context.Background(), "bank-marketing", "again")
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(tracker.Root(), "1", second.ID()))
	require.NoError(t, second.End(context.Background(), ports.RunFailed))
}

func TestFileTracker_RejectsEscapingKeys(t *testing.T) {
	tracker, err := NewFileTracker(t.TempDir())
	require.NoError(t, err)
	run, err := tracker.StartRun(context.Background(), "exp", "run")
	require.NoError(t, err)

	err = run.LogParams(context.Background(), map[string]string{"../../evil": "x"})
	assert.Equal(t, errors.CodeValidationError, errors.GetCode(err))
	err = run.LogModel(context.Background(), "../model", modelDir(t))
	assert.Equal(t, errors.CodeValidationError, errors.GetCode(err))
}

func TestSQLTracker_RecordsRun(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	tracker, err := OpenSQLTracker(ctx, "sqlite3", ":memory:", root)
	require.NoError(t, err)
	defer tracker.Close()

	run := logRun(t, tracker)
	db := tracker.DB()

	var status string
	require.NoError(t, db.Get(&status, db.Rebind(`SELECT status FROM runs WHERE run_uuid = ?`), run.ID()))
	assert.Equal(t, "FINISHED", status)

	var params []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	require.NoError(t, db.Select(&params, db.Rebind(`SELECT key, value FROM params WHERE run_uuid = ? ORDER BY key`), run.ID()))
	require.Len(t, params, 2)
	assert.Equal(t, "C", params[0].Key)
	assert.Equal(t, "100", params[1].Value)

	var metricKeys []string
	require.NoError(t, db.Select(&metricKeys, db.Rebind(`SELECT key FROM metrics WHERE run_uuid = ? ORDER BY key`), run.ID()))
	assert.Equal(t, []string{"accuracy", "f1_score"}, metricKeys)

	assert.FileExists(t, filepath.Join(root, "1", run.ID(), "artifacts", "model", "MLmodel"))

	// experiments are reused by name
	second, err := tracker.StartRun(ctx, "bank-marketing", "again")
	require.NoError(t, err)
	var experiments int
	require.NoError(t, db.Get(&experiments, `SELECT COUNT(*) FROM experiments`))
	assert.Equal(t, 1, experiments)
	require.NoError(t, second.End(ctx, ports.RunFailed))
}

// fakeMLflow records the REST calls a run makes
type fakeMLflow struct {
	mu          sync.Mutex
	experiments map[string]string
	calls       []string
	bodies      map[string][]string
	uploads     map[string]string
	status      string
}

func newFakeMLflow(t *testing.T) (*fakeMLflow, *httptest.Server) {
	f := &fakeMLflow{
		experiments: map[string]string{},
		bodies:      map[string][]string{},
		uploads:     map[string]string{},
	}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeMLflow) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	body, _ := io.ReadAll(r.Body)
	if rest, ok := strings.CutPrefix(r.URL.Path, artifactsAPIPrefix); ok && r.Method == http.MethodPut {
		f.uploads[rest] = string(body)
		w.Write([]byte(`{}`))
		return
	}

	endpoint := strings.TrimPrefix(r.URL.Path, restAPIPrefix)
	f.calls = append(f.calls, endpoint)
	f.bodies[endpoint] = append(f.bodies[endpoint], string(body))

	switch endpoint {
	case "experiments/get-by-name":
		id, ok := f.experiments[r.URL.Query().Get("experiment_name")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error_code":"RESOURCE_DOES_NOT_EXIST","message":"no such experiment"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"experiment": map[string]string{"experiment_id": id}})
	case "experiments/create":
		id := "7"
		f.experiments[gjson.GetBytes(body, "name").String()] = id
		json.NewEncoder(w).Encode(map[string]string{"experiment_id": id})
	case "runs/create":
		json.NewEncoder(w).Encode(map[string]interface{}{"run": map[string]interface{}{
			"info": map[string]string{
				"run_id":       "abc123",
				"artifact_uri": "mlflow-artifacts:/7/abc123/artifacts",
			},
		}})
	case "runs/update":
		f.status = gjson.GetBytes(body, "status").String()
		w.Write([]byte(`{}`))
	case "runs/log-batch", "runs/log-metric", "runs/log-model":
		w.Write([]byte(`{}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestRESTTracker_LogsRun(t *testing.T) {
	fake, srv := newFakeMLflow(t)
	tracker := NewRESTTracker(srv.URL+"/", srv.Client())

	run := logRun(t, tracker)
	assert.Equal(t, "abc123", run.ID())

	assert.Equal(t, []string{
		"experiments/get-by-name",
		"experiments/create",
		"runs/create",
		"runs/log-batch",
		"runs/log-metric",
		"runs/log-metric",
		"runs/log-model",
		"runs/update",
	}, fake.calls)
	assert.Equal(t, "FINISHED", fake.status)

	batch := fake.bodies["runs/log-batch"][0]
	assert.Equal(t, []interface{}{"C", "max_iter"}, gjson.Get(batch, "params.#.key").Value())

	metrics := fake.bodies["runs/log-metric"]
	assert.Equal(t, "accuracy", gjson.Get(metrics[0], "key").String())
	assert.Equal(t, 0.5, gjson.Get(metrics[1], "value").Float())

	assert.Equal(t, "weights", fake.uploads["7/abc123/artifacts/model/model.gob"])
	assert.Contains(t, fake.uploads, "7/abc123/artifacts/model/MLmodel")

	modelJSON := gjson.Get(fake.bodies["runs/log-model"][0], "model_json").String()
	assert.Equal(t, "abc123", gjson.Get(modelJSON, "run_id").String())
	assert.Equal(t, "model.gob", gjson.Get(modelJSON, "flavors.go_logreg.model_data").String())

	// the experiment now exists and is not created again
	_, err := tracker.StartRun(context.Background(), "bank-marketing", "again")
	require.NoError(t, err)
	assert.Len(t, fake.bodies["experiments/create"], 1)
}

func TestRESTTracker_ServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error_code":"INTERNAL_ERROR","message":"boom"}`))
	}))
	defer srv.Close()

	_, err := NewRESTTracker(srv.URL, nil).StartRun(context.Background(), "exp", "run")
	require.Error(t, err)
	assert.Equal(t, errors.CodeExternalService, errors.GetCode(err))
	assert.Contains(t, err.Error(), "boom")
}

func TestArtifactRoot(t *testing.T) {
	cases := map[string]string{
		"mlflow-artifacts:/7/abc/artifacts":            "7/abc/artifacts",
		"mlflow-artifacts://host:5000/7/abc/artifacts": "7/abc/artifacts",
		"/srv/mlruns/7/abc/artifacts":                  "7/abc/artifacts",
		"s3://bucket/7/abc/artifacts":                  "7/abc/artifacts",
	}
	for uri, want := range cases {
		r := &restRun{id: "abc", experimentID: "7", artifactURI: uri}
		assert.Equal(t, want, r.artifactRoot(), uri)
	}
}
