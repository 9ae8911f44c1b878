package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// CoercionError reports a payload value that cannot be mapped onto the
// training schema.
type CoercionError struct {
	Column string
	Reason string
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Column, e.Reason)
}

// Coerce builds one Observation using exactly columns, in order. Columns
// absent from the payload are null, extra payload keys are dropped, and each
// present value is cast to the declared type.
func Coerce(payload Payload, columns []string, dtypes map[string]ColumnType) (Observation, error) {
	obs := newObservation(len(columns))
	for _, col := range columns {
		typ, ok := dtypes[col]
		if !ok {
			return Observation{}, &CoercionError{Column: col, Reason: "no dtype declared for column"}
		}
		raw, present := payload[col]
		if !present {
			raw = Null()
		}
		v, err := cast(raw, typ)
		if err != nil {
			return Observation{}, &CoercionError{Column: col, Reason: err.Error()}
		}
		obs.set(col, v)
	}
	return obs, nil
}

func cast(raw Scalar, typ ColumnType) (Value, error) {
	if raw.IsNull() {
		return Value{Type: typ}, nil
	}
	switch typ {
	case TypeFloat:
		f, err := toFloat(raw)
		if err != nil {
			return Value{}, err
		}
		return Value{Type: typ, Valid: true, Num: f}, nil
	case TypeInteger:
		i, err := toInteger(raw)
		if err != nil {
			return Value{}, err
		}
		return Value{Type: typ, Valid: true, Num: float64(i)}, nil
	case TypeCategorical:
		return Value{Type: typ, Valid: true, Str: toCategory(raw)}, nil
	case TypeBoolean:
		b, err := toBool(raw)
		if err != nil {
			return Value{}, err
		}
		return Value{Type: typ, Valid: true, Bool: b}, nil
	default:
		return Value{}, errors.Newf("unsupported column type %d", typ)
	}
}

func toFloat(raw Scalar) (float64, error) {
	switch raw.Kind {
	case KindBool:
		if raw.Bool {
			return 1, nil
		}
		return 0, nil
	case KindNumber, KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw.Text), 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, errors.Newf("cannot cast %q to float64", raw.Text)
		}
		return f, nil
	}
	return 0, errors.Newf("cannot cast %s to float64", raw.Kind)
}

func toInteger(raw Scalar) (int64, error) {
	switch raw.Kind {
	case KindBool:
		if raw.Bool {
			return 1, nil
		}
		return 0, nil
	case KindNumber, KindString:
		text := strings.TrimSpace(raw.Text)
		if i, err := strconv.ParseInt(text, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
			return 0, errors.Newf("cannot cast %q to int64", raw.Text)
		}
		return int64(f), nil
	}
	return 0, errors.Newf("cannot cast %s to int64", raw.Kind)
}

func toCategory(raw Scalar) string {
	switch raw.Kind {
	case KindBool:
		if raw.Bool {
			return "True"
		}
		return "False"
	case KindNumber:
		if f, err := strconv.ParseFloat(raw.Text, 64); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return raw.Text
	default:
		return raw.Text
	}
}

func toBool(raw Scalar) (bool, error) {
	switch raw.Kind {
	case KindBool:
		return raw.Bool, nil
	case KindNumber:
		f, err := strconv.ParseFloat(raw.Text, 64)
		if err == nil && (f == 0 || f == 1) {
			return f == 1, nil
		}
	case KindString:
		switch strings.ToLower(strings.TrimSpace(raw.Text)) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		}
	}
	return false, errors.Newf("cannot cast %q to bool", raw.String())
}
