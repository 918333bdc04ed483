package model

import (
	"fmt"
	"math"

	"bankml/internal/config"
	"bankml/internal/errors"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// LogisticRegression is a binary classifier fitted by full-batch gradient
// descent on standardized features. The step never exceeds the inverse
// curvature bound, so the configured learning rate is an upper limit. Fields are exported for gob; treat a
// fitted model as read-only.
type LogisticRegression struct {
	Weights      []float64
	Intercept    float64
	Means        []float64
	Scales       []float64
	FeatureNames []string
	Iterations   int

	MaxIter      int
	C            float64
	Tol          float64
	Penalty      string
	FitIntercept bool
	LearningRate float64
	ClassWeight  string
}

// NewLogisticRegression creates an unfitted classifier from validated
// hyperparameters.
func NewLogisticRegression(h config.Hyperparameters) *LogisticRegression {
	return &LogisticRegression{
		MaxIter:      h.MaxIter,
		C:            h.C,
		Tol:          h.Tol,
		Penalty:      h.Penalty,
		FitIntercept: h.FitIntercept,
		LearningRate: h.LearningRate,
		ClassWeight:  h.ClassWeight,
	}
}

// Fitted reports whether Fit has completed
func (m *LogisticRegression) Fitted() bool {
	return m.Weights != nil
}

// Fit trains the model. y must hold 0/1 labels with both classes present.
func (m *LogisticRegression) Fit(X *mat.Dense, y []float64, featureNames []string) error {
	if m.Fitted() {
		return errors.ValidationError("model is already fitted")
	}
	n, p := X.Dims()
	if n == 0 || p == 0 {
		return errors.ValidationError("cannot fit on an empty matrix")
	}
	if len(y) != n {
		return errors.ValidationError(fmt.Sprintf("feature rows (%d) and labels (%d) differ", n, len(y)))
	}
	if featureNames != nil && len(featureNames) != p {
		return errors.ValidationError(fmt.Sprintf("%d feature names for %d columns", len(featureNames), p))
	}

	positives := 0.0
	for i, v := range y {
		if v != 0 && v != 1 {
			return errors.ValidationError(fmt.Sprintf("label %d is %v, expected 0 or 1", i, v))
		}
		positives += v
	}
	if positives == 0 || positives == float64(n) {
		return errors.ValidationError("labels contain a single class")
	}

	means, scales := columnStats(X)
	Z := standardize(X, means, scales)

	sampleWeights := make([]float64, n)
	for i := range sampleWeights {
		sampleWeights[i] = 1
	}
	if m.ClassWeight == "balanced" {
		wPos := float64(n) / (2 * positives)
		wNeg := float64(n) / (2 * (float64(n) - positives))
		for i, v := range y {
			if v == 1 {
				sampleWeights[i] = wPos
			} else {
				sampleWeights[i] = wNeg
			}
		}
	}

	w := mat.NewVecDense(p, nil)
	b := 0.0
	yVec := mat.NewVecDense(n, y)
	logits := mat.NewVecDense(n, nil)
	residual := mat.NewVecDense(n, nil)
	grad := mat.NewVecDense(p, nil)

	lambda := 0.0
	if m.Penalty == "l2" {
		lambda = 1 / (m.C * float64(n))
	}
	step := stepSize(Z, sampleWeights, lambda, m.LearningRate)

	iter := 0
	for iter < m.MaxIter {
		iter++

		logits.MulVec(Z, w)
		for i := 0; i < n; i++ {
			residual.SetVec(i, sampleWeights[i]*(sigmoid(logits.AtVec(i)+b)-yVec.AtVec(i)))
		}

		grad.MulVec(Z.T(), residual)
		grad.ScaleVec(1/float64(n), grad)
		if lambda > 0 {
			grad.AddScaledVec(grad, lambda, w)
		}
		gradB := 0.0
		if m.FitIntercept {
			gradB = mat.Sum(residual) / float64(n)
		}

		w.AddScaledVec(w, -step, grad)
		b -= step * gradB

		maxGrad := math.Max(floats.Norm(grad.RawVector().Data, math.Inf(1)), math.Abs(gradB))
		if maxGrad < m.Tol {
			break
		}
	}

	weights := w.RawVector().Data
	if !finite(weights...) || !finite(b) {
		return errors.ValidationError("solver diverged to non-finite coefficients")
	}

	m.Weights = append([]float64(nil), weights...)
	m.Intercept = b
	m.Means = means
	m.Scales = scales
	m.Iterations = iter
	if featureNames != nil {
		m.FeatureNames = append([]string(nil), featureNames...)
	}
	return nil
}

// PredictProba returns P(y=1) for each row of X
func (m *LogisticRegression) PredictProba(X *mat.Dense) ([]float64, error) {
	if !m.Fitted() {
		return nil, errors.ValidationError("model is not fitted")
	}
	n, p := X.Dims()
	if p != len(m.Weights) {
		return nil, errors.ValidationError(fmt.Sprintf("model expects %d features, got %d", len(m.Weights), p))
	}

	Z := standardize(X, m.Means, m.Scales)
	logits := mat.NewVecDense(n, nil)
	logits.MulVec(Z, mat.NewVecDense(p, m.Weights))

	out := make([]float64, n)
	for i := range out {
		out[i] = sigmoid(logits.AtVec(i) + m.Intercept)
	}
	return out, nil
}

// Predict returns 0/1 class labels using a 0.5 probability threshold
func (m *LogisticRegression) Predict(X *mat.Dense) ([]int, error) {
	proba, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(proba))
	for i, p := range proba {
		if p >= 0.5 {
			out[i] = 1
		}
	}
	return out, nil
}

// stepSize caps the configured rate at 1/L, where L bounds the curvature of
// the weighted log loss plus the L2 term. Larger steps diverge.
func stepSize(Z *mat.Dense, sampleWeights []float64, lambda, rate float64) float64 {
	n, p := Z.Dims()
	if !finite(Z.RawMatrix().Data...) {
		return rate
	}

	// largest eigenvalue of ZᵀZ, i.e. the squared spectral norm of Z
	gram := mat.NewSymDense(p, nil)
	gram.SymOuterK(1, Z.T())
	var eig mat.EigenSym
	var spectral float64
	if eig.Factorize(gram, false) {
		values := eig.Values(nil)
		spectral = values[len(values)-1]
	} else {
		f := mat.Norm(Z, 2)
		spectral = f * f
	}
	// the intercept column is orthogonal to centred features
	spectral = math.Max(spectral, float64(n))

	curvature := 0.25*floats.Max(sampleWeights)*spectral/float64(n) + lambda
	if curvature <= 0 || math.IsNaN(curvature) || math.IsInf(curvature, 0) {
		return rate
	}
	return math.Min(rate, 1/curvature)
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// columnStats returns per-column means and standard deviations. Constant
// columns get scale 1 so they standardize to zero.
func columnStats(X *mat.Dense) (means, scales []float64) {
	n, p := X.Dims()
	means = make([]float64, p)
	scales = make([]float64, p)
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		mat.Col(col, j, X)
		mean, std := stat.PopMeanStdDev(col, nil)
		means[j] = mean
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		scales[j] = std
	}
	return means, scales
}

func standardize(X *mat.Dense, means, scales []float64) *mat.Dense {
	n, p := X.Dims()
	Z := mat.NewDense(n, p, nil)
	Z.Apply(func(i, j int, v float64) float64 {
		return (v - means[j]) / scales[j]
	}, X)
	return Z
}
