// Package scoring wraps a trained model artifact behind a pure Score call.
package scoring

import (
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/floats"
	"gopkg.in/yaml.v3"

	"prediction-ledger-api/schema"
)

// Scorer returns the positive-class probability for an observation.
type Scorer interface {
	Score(obs schema.Observation) (float64, error)
}

// ScoringError is returned when the model cannot produce a probability for
// an observation that already passed coercion.
type ScoringError struct {
	Column string
	Reason string
}

func (e *ScoringError) Error() string {
	if e.Column == "" {
		return "scoring failed: " + e.Reason
	}
	return fmt.Sprintf("scoring failed on %s: %s", e.Column, e.Reason)
}

type NumericFeature struct {
	Weight float64 `yaml:"weight"`
	Mean   float64 `yaml:"mean"`
	Scale  float64 `yaml:"scale"`
	Impute float64 `yaml:"impute"`
}

type CategoricalFeature struct {
	Weights map[string]float64 `yaml:"weights"`
	// Default is the weight of an unseen or null level.
	Default float64 `yaml:"default"`
}

type BooleanFeature struct {
	Weight float64 `yaml:"weight"`
	Impute bool    `yaml:"impute"`
}

// LogisticModel is a standardised logistic regression exported from the
// training pipeline: numeric features are centred and scaled, categorical
// features are one-hot encoded.
type LogisticModel struct {
	Version     string                        `yaml:"version"`
	Intercept   float64                       `yaml:"intercept"`
	Numeric     map[string]NumericFeature     `yaml:"numeric"`
	Categorical map[string]CategoricalFeature `yaml:"categorical"`
	Boolean     map[string]BooleanFeature     `yaml:"boolean"`

	numericCols []string
	catCols     []string
	boolCols    []string
}

func Load(path string) (*LogisticModel, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading model artifact %s", path)
	}
	return Parse(b)
}

func Parse(b []byte) (*LogisticModel, error) {
	var m LogisticModel
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, errors.Wrap(err, "decoding model artifact")
	}
	if len(m.Numeric)+len(m.Categorical)+len(m.Boolean) == 0 {
		return nil, errors.New("model artifact declares no features")
	}
	m.numericCols = sortedKeys(m.Numeric)
	m.catCols = sortedKeys(m.Categorical)
	m.boolCols = sortedKeys(m.Boolean)
	return &m, nil
}

// Validate checks that every feature the model reads exists in the schema
// with a compatible type.
func (m *LogisticModel) Validate(s *schema.Schema) error {
	for _, col := range m.numericCols {
		if typ, ok := s.DTypes[col]; !ok || !typ.Numeric() {
			return errors.Newf("model numeric feature %q is not a numeric schema column", col)
		}
	}
	for _, col := range m.catCols {
		if typ, ok := s.DTypes[col]; !ok || typ != schema.TypeCategorical {
			return errors.Newf("model categorical feature %q is not a categorical schema column", col)
		}
	}
	for _, col := range m.boolCols {
		if typ, ok := s.DTypes[col]; !ok || typ != schema.TypeBoolean {
			return errors.Newf("model boolean feature %q is not a boolean schema column", col)
		}
	}
	return nil
}

func (m *LogisticModel) Score(obs schema.Observation) (float64, error) {
	n := len(m.numericCols) + len(m.catCols) + len(m.boolCols)
	weights := make([]float64, 0, n)
	x := make([]float64, 0, n)

	for _, col := range m.numericCols {
		f := m.Numeric[col]
		v, err := lookup(obs, col)
		if err != nil {
			return 0, err
		}
		if v.Valid && !v.Type.Numeric() {
			return 0, &ScoringError{Column: col, Reason: "expected a numeric value, got " + v.Type.String()}
		}
		raw := f.Impute
		if v.Valid {
			raw = v.Num
		}
		scale := f.Scale
		if scale == 0 {
			scale = 1
		}
		weights = append(weights, f.Weight)
		x = append(x, (raw-f.Mean)/scale)
	}

	for _, col := range m.catCols {
		f := m.Categorical[col]
		v, err := lookup(obs, col)
		if err != nil {
			return 0, err
		}
		if v.Valid && v.Type != schema.TypeCategorical {
			return 0, &ScoringError{Column: col, Reason: "expected a categorical value, got " + v.Type.String()}
		}
		w := f.Default
		if v.Valid {
			if lw, ok := f.Weights[v.Str]; ok {
				w = lw
			}
		}
		weights = append(weights, w)
		x = append(x, 1)
	}

	for _, col := range m.boolCols {
		f := m.Boolean[col]
		v, err := lookup(obs, col)
		if err != nil {
			return 0, err
		}
		if v.Valid && v.Type != schema.TypeBoolean {
			return 0, &ScoringError{Column: col, Reason: "expected a boolean value, got " + v.Type.String()}
		}
		b := f.Impute
		if v.Valid {
			b = v.Bool
		}
		weights = append(weights, f.Weight)
		if b {
			x = append(x, 1)
		} else {
			x = append(x, 0)
		}
	}

	z := m.Intercept + floats.Dot(weights, x)
	p := 1 / (1 + math.Exp(-z))
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, &ScoringError{Reason: fmt.Sprintf("non-finite probability from linear term %v", z)}
	}
	return p, nil
}

func lookup(obs schema.Observation, col string) (schema.Value, error) {
	v, ok := obs.Get(col)
	if !ok {
		return schema.Value{}, &ScoringError{Column: col, Reason: "feature missing from observation"}
	}
	return v, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
