package training

import (
	"context"
	"os"
	"path/filepath"

	"bankml/internal"
	"bankml/internal/config"
	"bankml/internal/errors"
	"bankml/internal/model"
	"bankml/internal/preprocess"
	"bankml/ports"

	"gonum.org/v1/gonum/mat"
)

const (
	// ModelArtifactPath is where the model is logged inside a run
	ModelArtifactPath = "model"

	MetricAccuracy = "accuracy"
	MetricF1       = "f1_score"

	inputExampleRows = 2
)

var logger = internal.NewComponentLogger("Training")

// Result is the outcome of one training run
type Result struct {
	RunID     string
	Accuracy  float64
	F1        float64
	ModelPath string
	Model     *model.LogisticRegression
}

// dataset is the numeric form of the persisted partitions
type dataset struct {
	features []string
	xTrain   *mat.Dense
	yTrain   []int
	xTest    *mat.Dense
	yTest    []int
}

// Train fits the classifier on the processed partitions, evaluates it on
// the test partition and records everything in one tracking run. The local
// model file is written inside the same run so a failure marks it FAILED.
func Train(ctx context.Context, cfg *config.Config, tracker ports.Tracker) (*Result, error) {
	data, err := loadDataset(cfg.Data.ProcessedDir)
	if err != nil {
		return nil, err
	}
	logger.Infof("📊 loaded %d training rows, %d test rows, %d features",
		len(data.yTrain), len(data.yTest), len(data.features))

	run, err := tracker.StartRun(ctx, cfg.MLflow.ExperimentName, cfg.MLflow.RunName)
	if err != nil {
		return nil, errors.Wrap(err, "failed to start tracking run")
	}

	result, err := train(ctx, cfg, run, data)
	if err != nil {
		if endErr := run.End(ctx, ports.RunFailed); endErr != nil {
			logger.Warnf("failed to mark run %s as failed: %v", run.ID(), endErr)
		}
		return nil, err
	}
	if err := run.End(ctx, ports.RunFinished); err != nil {
		return nil, errors.Wrap(err, "failed to finish tracking run")
	}

	logger.Infof("✅ run %s finished: accuracy=%.4f f1=%.4f", result.RunID, result.Accuracy, result.F1)
	return result, nil
}

func train(ctx context.Context, cfg *config.Config, run ports.Run, data *dataset) (*Result, error) {
	if err := run.LogParams(ctx, cfg.Model.Params.Params()); err != nil {
		return nil, err
	}

	clf := model.NewLogisticRegression(cfg.Model.Params)
	if err := clf.Fit(data.xTrain, model.LabelVector(data.yTrain), data.features); err != nil {
		return nil, errors.Wrap(err, "failed to fit model")
	}
	logger.Debugf("solver ran %d iterations, intercept %.4f", clf.Iterations, clf.Intercept)
	if clf.Iterations >= clf.MaxIter {
		logger.Warnf("solver stopped at max_iter=%d before reaching tol=%g", clf.MaxIter, clf.Tol)
	}

	predictions, err := clf.Predict(data.xTest)
	if err != nil {
		return nil, errors.Wrap(err, "failed to predict test partition")
	}
	accuracy, err := model.Accuracy(data.yTest, predictions)
	if err != nil {
		return nil, err
	}
	f1, err := model.F1(data.yTest, predictions)
	if err != nil {
		return nil, err
	}
	if err := run.LogMetric(ctx, MetricAccuracy, accuracy); err != nil {
		return nil, err
	}
	if err := run.LogMetric(ctx, MetricF1, f1); err != nil {
		return nil, err
	}

	if err := logModel(ctx, run, clf, data); err != nil {
		return nil, err
	}

	modelPath := filepath.Join(cfg.Model.Dir, cfg.Model.Filename)
	if err := clf.Save(modelPath); err != nil {
		return nil, errors.Wrap(err, "failed to save model")
	}
	logger.Infof("💾 model saved to %s", modelPath)

	return &Result{
		RunID:     run.ID(),
		Accuracy:  accuracy,
		F1:        f1,
		ModelPath: modelPath,
		Model:     clf,
	}, nil
}

// logModel writes the model directory with its signature and input example
// to a scratch location and hands it to the run.
func logModel(ctx context.Context, run ports.Run, clf *model.LogisticRegression, data *dataset) error {
	trainPredictions, err := clf.Predict(data.xTrain)
	if err != nil {
		return errors.Wrap(err, "failed to predict training partition")
	}
	signature, err := model.InferSignature(data.features, data.xTrain, trainPredictions)
	if err != nil {
		return err
	}
	example := model.NewInputExample(data.features, data.xTrain, inputExampleRows)

	scratch, err := os.MkdirTemp("", "bankml-model-")
	if err != nil {
		return errors.Wrap(err, "failed to create scratch directory")
	}
	defer os.RemoveAll(scratch)

	dir := filepath.Join(scratch, ModelArtifactPath)
	if _, err := model.WriteArtifact(dir, ModelArtifactPath, run.ID(), clf, signature, example); err != nil {
		return err
	}
	return run.LogModel(ctx, ModelArtifactPath, dir)
}

func loadDataset(dir string) (*dataset, error) {
	parts, err := preprocess.LoadPartitions(dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load processed data")
	}

	xTrain, err := model.FeatureMatrix(parts.XTrain)
	if err != nil {
		return nil, errors.Wrap(err, "invalid training features")
	}
	xTest, err := model.FeatureMatrix(parts.XTest)
	if err != nil {
		return nil, errors.Wrap(err, "invalid test features")
	}
	yTrain, err := preprocess.LabelValues(parts.YTrain)
	if err != nil {
		return nil, errors.Wrap(err, "invalid training labels")
	}
	yTest, err := preprocess.LabelValues(parts.YTest)
	if err != nil {
		return nil, errors.Wrap(err, "invalid test labels")
	}

	return &dataset{
		features: append([]string(nil), parts.XTrain.Headers...),
		xTrain:   xTrain,
		yTrain:   yTrain,
		xTest:    xTest,
		yTest:    yTest,
	}, nil
}
