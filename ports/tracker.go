package ports

import (
	"context"
)

// RunStatus is the terminal state recorded when a run ends
type RunStatus string

const (
	RunFinished RunStatus = "FINISHED"
	RunFailed   RunStatus = "FAILED"
)

// Tracker is a session against an experiment-tracking store. It holds no
// process-wide state; every run is started explicitly.
type Tracker interface {
	// StartRun gets or creates the named experiment and opens a run in it
	StartRun(ctx context.Context, experimentName, runName string) (Run, error)
	Close() error
}

// Run records parameters, metrics and artifacts for one training attempt.
type Run interface {
	ID() string
	LogParams(ctx context.Context, params map[string]string) error
	LogMetric(ctx context.Context, key string, value float64) error
	// LogModel uploads a model directory (MLmodel descriptor plus files)
	// under artifactPath and registers it with the run.
	LogModel(ctx context.Context, artifactPath, localDir string) error
	End(ctx context.Context, status RunStatus) error
}
