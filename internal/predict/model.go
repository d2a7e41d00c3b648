// Package predict estimates how many more ticks a machine can work safely.
package predict

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Features is the model input: working_time, wear, alignment, temperature.
type Features [4]float64

// Model maps machine features to a predicted remain_time. Predictions may be
// negative; callers clamp with RemainTime.
type Model interface {
	Predict(ctx context.Context, f Features) (float64, error)
}

// RemainTime converts a raw prediction into a remain_time, truncating toward
// zero and clamping negative or non-finite values to 0.
func RemainTime(prediction float64) int {
	if math.IsNaN(prediction) || prediction <= 0 {
		return 0
	}
	if prediction >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int(prediction)
}

// Linear is an ordinary least squares regression over Features.
type Linear struct {
	Intercept    float64    `yaml:"intercept"`
	Coefficients [4]float64 `yaml:"coefficients"`
}

func (l *Linear) Predict(_ context.Context, f Features) (float64, error) {
	y := l.Intercept
	for i, c := range l.Coefficients {
		y += c * f[i]
	}
	return y, nil
}

// LoadLinear reads a YAML model file.
func LoadLinear(path string) (*Linear, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	var l Linear
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse model %s: %w", path, err)
	}
	return &l, nil
}

// Save writes the model as YAML.
func (l *Linear) Save(path string) error {
	data, err := yaml.Marshal(l)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ErrSingular is returned when the samples do not determine a unique fit.
var ErrSingular = errors.New("singular system")

// Sample is one labelled training row.
type Sample struct {
	Features   Features
	RemainTime float64
}

// Fit solves the normal equations (XᵀX)β = Xᵀy by Gaussian elimination with
// partial pivoting.
func Fit(samples []Sample) (*Linear, error) {
	const n = 5
	if len(samples) < n {
		return nil, fmt.Errorf("need at least %d samples, got %d: %w", n, len(samples), ErrSingular)
	}
	var a [n][n + 1]float64
	for _, s := range samples {
		x := [n]float64{1, s.Features[0], s.Features[1], s.Features[2], s.Features[3]}
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				a[i][j] += x[i] * x[j]
			}
			a[i][n] += x[i] * s.RemainTime
		}
	}
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, ErrSingular
		}
		a[col], a[pivot] = a[pivot], a[col]
		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			f := a[r][col] / a[col][col]
			for c := col; c <= n; c++ {
				a[r][c] -= f * a[col][c]
			}
		}
	}
	l := &Linear{Intercept: a[0][n] / a[0][0]}
	for i := 1; i < n; i++ {
		l.Coefficients[i-1] = a[i][n] / a[i][i]
	}
	return l, nil
}
