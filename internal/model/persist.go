package model

import (
	"encoding/gob"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"bankml/internal/errors"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Artifact file names inside a logged model directory.
const (
	MLmodelFile      = "MLmodel"
	ModelDataFile    = "model.gob"
	InputExampleFile = "input_example.json"
	FlavorName       = "go_logreg"
)

// Save serializes the fitted model to path, creating parent directories.
func (m *LogisticRegression) Save(path string) error {
	if !m.Fitted() {
		return errors.ValidationError("refusing to save an unfitted model")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", path)
	}
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	if err := gob.NewEncoder(file).Encode(m); err != nil {
		file.Close()
		return errors.Wrap(err, "failed to encode model")
	}
	if err := file.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", path)
	}
	return nil
}

// Load reads a model written by Save
func Load(path string) (*LogisticRegression, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open model %s", path)
	}
	defer file.Close()

	var m LogisticRegression
	if err := gob.NewDecoder(file).Decode(&m); err != nil {
		return nil, errors.Wrap(err, "failed to decode model")
	}
	return &m, nil
}

// MLmodel is the descriptor written at the root of a logged model directory.
type MLmodel struct {
	ArtifactPath          string                       `yaml:"artifact_path"`
	Flavors               map[string]map[string]string `yaml:"flavors"`
	ModelUUID             string                       `yaml:"model_uuid"`
	RunID                 string                       `yaml:"run_id"`
	SavedInputExampleInfo map[string]string            `yaml:"saved_input_example_info"`
	Signature             map[string]string            `yaml:"signature"`
	UTCTimeCreated        string                       `yaml:"utc_time_created"`
}

// WriteArtifact lays out a model directory: MLmodel descriptor, serialized
// model and input example. It returns the descriptor it wrote.
func WriteArtifact(dir, artifactPath, runID string, m *LogisticRegression, sig *Signature, example *InputExample) (*MLmodel, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create artifact directory %s", dir)
	}
	if err := m.Save(filepath.Join(dir, ModelDataFile)); err != nil {
		return nil, err
	}

	exampleJSON, err := json.Marshal(example)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode input example")
	}
	if err := os.WriteFile(filepath.Join(dir, InputExampleFile), exampleJSON, 0644); err != nil {
		return nil, errors.Wrap(err, "failed to write input example")
	}

	inputs, err := sig.InputsJSON()
	if err != nil {
		return nil, err
	}
	outputs, err := sig.OutputsJSON()
	if err != nil {
		return nil, err
	}

	descriptor := &MLmodel{
		ArtifactPath: artifactPath,
		Flavors: map[string]map[string]string{
			FlavorName: {
				"model_data":           ModelDataFile,
				"serialization_format": "gob",
			},
		},
		ModelUUID: uuid.NewString(),
		RunID:     runID,
		SavedInputExampleInfo: map[string]string{
			"artifact_path": InputExampleFile,
			"type":          "dataframe",
			"pandas_orient": "split",
		},
		Signature: map[string]string{
			"inputs":  inputs,
			"outputs": outputs,
		},
		UTCTimeCreated: time.Now().UTC().Format("2006-01-02 15:04:05.000000"),
	}

	b, err := yaml.Marshal(descriptor)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode MLmodel")
	}
	if err := os.WriteFile(filepath.Join(dir, MLmodelFile), b, 0644); err != nil {
		return nil, errors.Wrap(err, "failed to write MLmodel")
	}
	return descriptor, nil
}
