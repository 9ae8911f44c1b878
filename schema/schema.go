// Package schema turns loosely typed feature payloads into observations that
// match the column set and dtypes a model was trained on.
package schema

import (
	"os"
	"sort"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

type MissingPolicy string

const (
	MissingFill   MissingPolicy = "fill"
	MissingReject MissingPolicy = "reject"
)

type ExtraPolicy string

const (
	ExtraIgnore ExtraPolicy = "ignore"
	ExtraReject ExtraPolicy = "reject"
)

type Policy struct {
	Missing MissingPolicy `yaml:"missing" json:"missing"`
	Extra   ExtraPolicy   `yaml:"extra" json:"extra"`
}

// Constraint narrows the values accepted for a column beyond its dtype.
type Constraint struct {
	Allowed []string `yaml:"allowed,omitempty" json:"allowed,omitempty"`
	Min     *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max     *float64 `yaml:"max,omitempty" json:"max,omitempty"`
}

// Schema is the immutable training-time contract of a model. It is loaded
// once at startup and shared read-only between requests.
type Schema struct {
	Version     string                `yaml:"version" json:"version"`
	Columns     []string              `yaml:"columns" json:"columns"`
	DTypes      map[string]ColumnType `yaml:"dtypes" json:"dtypes"`
	Constraints map[string]Constraint `yaml:"constraints,omitempty" json:"constraints,omitempty"`
	Policy      Policy                `yaml:"policy" json:"policy"`
}

// Load reads a schema artifact. JSON files are accepted since YAML is a
// superset of JSON.
func Load(path string) (*Schema, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading schema artifact %s", path)
	}
	return Parse(b)
}

func Parse(b []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, errors.Wrap(err, "decoding schema artifact")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Schema) Validate() error {
	if len(s.Columns) == 0 {
		return errors.New("schema declares no columns")
	}
	seen := make(map[string]struct{}, len(s.Columns))
	for _, col := range s.Columns {
		if _, dup := seen[col]; dup {
			return errors.Newf("column %q declared twice", col)
		}
		seen[col] = struct{}{}
		if _, ok := s.DTypes[col]; !ok {
			return errors.Newf("column %q has no dtype", col)
		}
	}
	for col, c := range s.Constraints {
		typ, ok := s.DTypes[col]
		if _, known := seen[col]; !ok || !known {
			return errors.Newf("constraint on unknown column %q", col)
		}
		if len(c.Allowed) > 0 && typ != TypeCategorical {
			return errors.Newf("allowed values only apply to categorical columns, %q is %s", col, typ)
		}
		if (c.Min != nil || c.Max != nil) && !typ.Numeric() {
			return errors.Newf("min/max only apply to numeric columns, %q is %s", col, typ)
		}
	}

	switch s.Policy.Missing {
	case "":
		s.Policy.Missing = MissingFill
	case MissingFill, MissingReject:
	default:
		return errors.Newf("unknown missing policy %q", s.Policy.Missing)
	}
	switch s.Policy.Extra {
	case "":
		s.Policy.Extra = ExtraIgnore
	case ExtraIgnore, ExtraReject:
	default:
		return errors.Newf("unknown extra policy %q", s.Policy.Extra)
	}
	return nil
}

// Coerce applies the schema policy and constraints around the pure Coerce.
func (s *Schema) Coerce(payload Payload) (Observation, error) {
	if s.Policy.Missing == MissingReject {
		for _, col := range s.Columns {
			if _, ok := payload[col]; !ok {
				return Observation{}, &CoercionError{Column: col, Reason: "is missing"}
			}
		}
	}
	if s.Policy.Extra == ExtraReject {
		// sorted so the reported column is stable across requests
		keys := make([]string, 0, len(payload))
		for k := range payload {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, ok := s.DTypes[k]; !ok {
				return Observation{}, &CoercionError{Column: k, Reason: "is an extra column"}
			}
		}
	}

	obs, err := Coerce(payload, s.Columns, s.DTypes)
	if err != nil {
		return Observation{}, err
	}

	for _, col := range s.Columns {
		c, ok := s.Constraints[col]
		if !ok {
			continue
		}
		v, _ := obs.Get(col)
		if err := c.check(v); err != nil {
			return Observation{}, &CoercionError{Column: col, Reason: err.Error()}
		}
	}
	return obs, nil
}

func (c Constraint) check(v Value) error {
	if !v.Valid {
		return nil
	}
	if len(c.Allowed) > 0 {
		for _, a := range c.Allowed {
			if v.Str == a {
				return nil
			}
		}
		return errors.Newf("%q is not a valid option", v.Str)
	}
	if c.Min != nil && v.Num < *c.Min {
		return errors.Newf("%v is below the minimum %v", v.Num, *c.Min)
	}
	if c.Max != nil && v.Num > *c.Max {
		return errors.Newf("%v is above the maximum %v", v.Num, *c.Max)
	}
	return nil
}
