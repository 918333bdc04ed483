package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"

	"bankml/internal/errors"
	"bankml/ports"

	"github.com/tidwall/gjson"
)

const (
	restAPIPrefix      = "/api/2.0/mlflow/"
	artifactsAPIPrefix = "/api/2.0/mlflow-artifacts/artifacts/"
	// MLflow rejects log-batch requests with more params than this
	maxParamsPerBatch = 100
)

// RESTTracker talks to an MLflow tracking server over its REST API
type RESTTracker struct {
	baseURL    string
	httpClient *http.Client
}

// NewRESTTracker creates a tracker for the server at baseURL
func NewRESTTracker(baseURL string, client *http.Client) *RESTTracker {
	if client == nil {
		client = http.DefaultClient
	}
	return &RESTTracker{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}
}

// apiError is a non-2xx answer from the server
type apiError struct {
	status int
	code   string
	body   string
}

func (e *apiError) Error() string {
	if e.code != "" {
		return fmt.Sprintf("status %d (%s): %s", e.status, e.code, e.body)
	}
	return fmt.Sprintf("status %d: %s", e.status, e.body)
}

func (t *RESTTracker) StartRun(ctx context.Context, experimentName, runName string) (ports.Run, error) {
	experimentID, err := t.experimentID(ctx, experimentName)
	if err != nil {
		return nil, err
	}

	body, err := t.post(ctx, "runs/create", map[string]interface{}{
		"experiment_id": experimentID,
		"run_name":      runName,
		"start_time":    nowMillis(),
		"tags":          []map[string]string{{"key": tagRunName, "value": runName}},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create run")
	}

	info := gjson.GetBytes(body, "run.info")
	runID := info.Get("run_id").String()
	if runID == "" {
		runID = info.Get("run_uuid").String()
	}
	if runID == "" {
		return nil, errors.ExternalServiceError("mlflow", fmt.Errorf("runs/create returned no run id"))
	}

	log.Printf("[Tracking] 🏃 Started run %s in experiment %s (%s)", runID, experimentName, experimentID)
	return &restRun{
		tracker:      t,
		id:           runID,
		experimentID: experimentID,
		artifactURI:  info.Get("artifact_uri").String(),
	}, nil
}

func (t *RESTTracker) Close() error {
	return nil
}

func (t *RESTTracker) experimentID(ctx context.Context, name string) (string, error) {
	body, err := t.get(ctx, "experiments/get-by-name", url.Values{"experiment_name": {name}})
	if err == nil {
		if id := gjson.GetBytes(body, "experiment.experiment_id").String(); id != "" {
			return id, nil
		}
	}
	var apiErr *apiError
	if err != nil && !(stderrors.As(err, &apiErr) && apiErr.code == "RESOURCE_DOES_NOT_EXIST") {
		return "", errors.Wrapf(err, "failed to look up experiment %s", name)
	}

	body, err = t.post(ctx, "experiments/create", map[string]interface{}{"name": name})
	if err != nil {
		return "", errors.Wrapf(err, "failed to create experiment %s", name)
	}
	id := gjson.GetBytes(body, "experiment_id").String()
	if id == "" {
		return "", errors.ExternalServiceError("mlflow", fmt.Errorf("experiments/create returned no id"))
	}
	log.Printf("[Tracking] 🆕 Created experiment %s (%s)", name, id)
	return id, nil
}

func (t *RESTTracker) get(ctx context.Context, endpoint string, query url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+restAPIPrefix+endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	return t.do(req)
}

func (t *RESTTracker) post(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+restAPIPrefix+endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	return t.do(req)
}

func (t *RESTTracker) do(req *http.Request) ([]byte, error) {
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, errors.ExternalServiceError("mlflow", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.ExternalServiceError("mlflow", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.ExternalServiceError("mlflow", &apiError{
			status: resp.StatusCode,
			code:   gjson.GetBytes(body, "error_code").String(),
			body:   strings.TrimSpace(string(body)),
		})
	}
	return body, nil
}

type restRun struct {
	tracker      *RESTTracker
	id           string
	experimentID string
	artifactURI  string
}

func (r *restRun) ID() string {
	return r.id
}

func (r *restRun) LogParams(ctx context.Context, params map[string]string) error {
	batch := make([]map[string]string, 0, len(params))
	for _, key := range sortedKeys(params) {
		batch = append(batch, map[string]string{"key": key, "value": params[key]})
	}
	for start := 0; start < len(batch); start += maxParamsPerBatch {
		end := start + maxParamsPerBatch
		if end > len(batch) {
			end = len(batch)
		}
		if _, err := r.tracker.post(ctx, "runs/log-batch", map[string]interface{}{
			"run_id": r.id,
			"params": batch[start:end],
		}); err != nil {
			return errors.Wrap(err, "failed to log params")
		}
	}
	return nil
}

func (r *restRun) LogMetric(ctx context.Context, key string, value float64) error {
	_, err := r.tracker.post(ctx, "runs/log-metric", map[string]interface{}{
		"run_id":    r.id,
		"key":       key,
		"value":     value,
		"timestamp": nowMillis(),
		"step":      0,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to log metric %s", key)
	}
	return nil
}

func (r *restRun) LogModel(ctx context.Context, artifactPath, localDir string) error {
	if err := validKey(artifactPath); err != nil {
		return err
	}
	files, err := listArtifacts(localDir)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := r.upload(ctx, artifactPath+"/"+f.rel, f.abs); err != nil {
			return err
		}
	}

	descriptor, err := modelJSON(localDir, r.id, artifactPath)
	if err != nil {
		return err
	}
	if _, err := r.tracker.post(ctx, "runs/log-model", map[string]interface{}{
		"run_id":     r.id,
		"model_json": descriptor,
	}); err != nil {
		return errors.Wrap(err, "failed to register model")
	}
	log.Printf("[Tracking] 📦 Logged model %s (%d files) to run %s", artifactPath, len(files), r.id)
	return nil
}

// upload PUTs one file through the server's artifact proxy
func (r *restRun) upload(ctx context.Context, relPath, localPath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return errors.Wrapf(err, "failed to read artifact %s", localPath)
	}
	target := r.tracker.baseURL + artifactsAPIPrefix + r.artifactRoot() + "/" + relPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, "failed to build upload request")
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if _, err := r.tracker.do(req); err != nil {
		return errors.Wrapf(err, "failed to upload artifact %s", relPath)
	}
	return nil
}

// artifactRoot is the proxy path of the run's artifact directory
func (r *restRun) artifactRoot() string {
	if rest, ok := strings.CutPrefix(r.artifactURI, "mlflow-artifacts:"); ok {
		if strings.HasPrefix(rest, "//") {
			// mlflow-artifacts://host:port/path
			rest = rest[2:]
			if j := strings.Index(rest, "/"); j >= 0 {
				rest = rest[j:]
			}
		}
		return strings.Trim(rest, "/")
	}
	return r.experimentID + "/" + r.id + "/artifacts"
}

func (r *restRun) End(ctx context.Context, status ports.RunStatus) error {
	_, err := r.tracker.post(ctx, "runs/update", map[string]interface{}{
		"run_id":   r.id,
		"status":   string(status),
		"end_time": nowMillis(),
	})
	if err != nil {
		return errors.Wrapf(err, "failed to end run %s", r.id)
	}
	log.Printf("[Tracking] 🏁 Run %s ended %s", r.id, status)
	return nil
}
