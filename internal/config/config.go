package config

import (
	"fmt"
	"os"
	"strings"

	"bankml/internal/errors"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where both pipeline stages look for configuration.
const DefaultPath = "configs/config.yaml"

// Config represents the complete pipeline configuration
type Config struct {
	Data        DataConfig
	TestSize    float64
	RandomState int64
	Model       ModelConfig
	MLflow      MLflowConfig
}

// DataConfig holds dataset source and layout settings
type DataConfig struct {
	ExternalURL   string
	RawDir        string
	ProcessedDir  string
	Target        string
	PositiveLabel string
	ArchiveName   string
	TablePath     string
	Delimiter     rune
}

// ModelConfig holds classifier settings and the local model location
type ModelConfig struct {
	Params   Hyperparameters
	Dir      string
	Filename string
}

// MLflowConfig holds experiment tracking settings
type MLflowConfig struct {
	TrackingURI    string
	ExperimentName string
	RunName        string
	ArtifactRoot   string
}

// LabelColumn is the indicator column holding the binary label after encoding.
func (d DataConfig) LabelColumn() string {
	return d.Target + "_" + d.PositiveLabel
}

// fileConfig mirrors the YAML document. Pointers distinguish absent keys
// from zero values.
type fileConfig struct {
	Data struct {
		ExternalURL   *string `yaml:"external_url"`
		RawDir        *string `yaml:"raw_dir"`
		ProcessedDir  *string `yaml:"processed_dir"`
		Target        *string `yaml:"target"`
		PositiveLabel *string `yaml:"positive_label"`
		ArchiveName   *string `yaml:"archive_name"`
		TablePath     *string `yaml:"table_path"`
		Delimiter     *string `yaml:"delimiter"`
	} `yaml:"data"`
	TestSize    *float64 `yaml:"test_size"`
	RandomState *int64   `yaml:"random_state"`
	Model       struct {
		Params   map[string]interface{} `yaml:"params"`
		Dir      *string                `yaml:"dir"`
		Filename *string                `yaml:"filename"`
	} `yaml:"model"`
	MLflow struct {
		TrackingURI    *string `yaml:"tracking_uri"`
		ExperimentName *string `yaml:"experiment_name"`
		RunName        *string `yaml:"run_name"`
		ArtifactRoot   *string `yaml:"artifact_root"`
	} `yaml:"mlflow"`
}

// Load reads a YAML configuration file, applies environment overrides and
// validates every required key.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, errors.Wrapf(err, "failed to read config file %s", path))
	}
	return Parse(data)
}

// Parse decodes and validates a configuration document.
func Parse(data []byte) (*Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, errors.Wrap(err, "failed to parse config"))
	}

	applyEnvOverrides(&fc)

	var missing []string
	required := func(key string, v *string) string {
		if v == nil || strings.TrimSpace(*v) == "" {
			missing = append(missing, key)
			return ""
		}
		return *v
	}

	config := &Config{
		Data: DataConfig{
			ExternalURL:   required("data.external_url", fc.Data.ExternalURL),
			RawDir:        required("data.raw_dir", fc.Data.RawDir),
			ProcessedDir:  required("data.processed_dir", fc.Data.ProcessedDir),
			Target:        required("data.target", fc.Data.Target),
			PositiveLabel: stringOrDefault(fc.Data.PositiveLabel, "yes"),
			ArchiveName:   stringOrDefault(fc.Data.ArchiveName, "bank.zip"),
			TablePath:     stringOrDefault(fc.Data.TablePath, "bank-additional/bank-additional-full.csv"),
		},
		Model: ModelConfig{
			Dir:      stringOrDefault(fc.Model.Dir, "models"),
			Filename: stringOrDefault(fc.Model.Filename, "logreg_model.gob"),
		},
		MLflow: MLflowConfig{
			TrackingURI:    required("mlflow.tracking_uri", fc.MLflow.TrackingURI),
			ExperimentName: required("mlflow.experiment_name", fc.MLflow.ExperimentName),
			RunName:        stringOrDefault(fc.MLflow.RunName, "logistic_regression_training"),
			ArtifactRoot:   stringOrDefault(fc.MLflow.ArtifactRoot, "mlartifacts"),
		},
	}

	if fc.TestSize == nil {
		missing = append(missing, "test_size")
	} else {
		config.TestSize = *fc.TestSize
	}
	if fc.RandomState == nil {
		missing = append(missing, "random_state")
	} else {
		config.RandomState = *fc.RandomState
	}
	if fc.Model.Params == nil {
		missing = append(missing, "model.params")
	}

	if len(missing) > 0 {
		return nil, errors.ConfigInvalid(fmt.Sprintf("missing required configuration keys: %s", strings.Join(missing, ", ")))
	}

	// whitespace is a valid delimiter, so it is taken untrimmed
	rawDelimiter := ";"
	if fc.Data.Delimiter != nil && *fc.Data.Delimiter != "" {
		rawDelimiter = *fc.Data.Delimiter
	}
	delimiter, err := parseDelimiter(rawDelimiter)
	if err != nil {
		return nil, err
	}
	config.Data.Delimiter = delimiter

	params, err := ParseHyperparameters(fc.Model.Params)
	if err != nil {
		return nil, errors.Wrap(err, "invalid model.params")
	}
	config.Model.Params = params

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

// Validate checks value ranges that cannot be expressed by presence alone.
func (c *Config) Validate() error {
	if c.TestSize <= 0 || c.TestSize >= 1 {
		return errors.ConfigInvalid(fmt.Sprintf("test_size must be in (0, 1), got %v", c.TestSize))
	}
	if strings.ContainsAny(c.Data.PositiveLabel, "\n\r") {
		return errors.ConfigInvalid("data.positive_label must be a single line")
	}
	if c.Model.Filename == "" || strings.ContainsRune(c.Model.Filename, os.PathSeparator) {
		return errors.ConfigInvalid(fmt.Sprintf("model.filename must be a bare file name, got %q", c.Model.Filename))
	}
	return nil
}

func applyEnvOverrides(fc *fileConfig) {
	if v := os.Getenv("MLFLOW_TRACKING_URI"); v != "" {
		fc.MLflow.TrackingURI = &v
	}
	if v := os.Getenv("MLFLOW_EXPERIMENT_NAME"); v != "" {
		fc.MLflow.ExperimentName = &v
	}
}

func parseDelimiter(s string) (rune, error) {
	switch s {
	case `\t`, "tab":
		return '\t', nil
	}
	r := []rune(s)
	if len(r) != 1 || r[0] == '"' || r[0] == '\n' || r[0] == '\r' {
		return 0, errors.ConfigInvalid(fmt.Sprintf("data.delimiter must be a single character, got %q", s))
	}
	return r[0], nil
}

func stringOrDefault(v *string, defaultValue string) string {
	if v != nil && strings.TrimSpace(*v) != "" {
		return *v
	}
	return defaultValue
}
