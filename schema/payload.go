package schema

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/cockroachdb/errors"
)

// ScalarKind is the closed set of JSON value kinds accepted in a raw payload.
type ScalarKind int

const (
	KindNull ScalarKind = iota
	KindNumber
	KindString
	KindBool
)

func (k ScalarKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	default:
		return "null"
	}
}

// Scalar is one untyped payload value as received on the wire.
type Scalar struct {
	Kind ScalarKind
	// Text holds the literal number text or the string value.
	Text string
	Bool bool
}

func Null() Scalar { return Scalar{Kind: KindNull} }
func String(s string) Scalar { return Scalar{Kind: KindString, Text: s} }
func Bool(b bool) Scalar { return Scalar{Kind: KindBool, Bool: b} }
func Number(text string) Scalar { return Scalar{Kind: KindNumber, Text: text} }
func Float(f float64) Scalar { return Number(strconv.FormatFloat(f, 'g', -1, 64)) }
func Int(i int64) Scalar { return Number(strconv.FormatInt(i, 10)) }
func (s Scalar) IsNull() bool { return s.Kind == KindNull }
func (s Scalar) String() string {
	switch s.Kind {
	case KindNumber, KindString:
		return s.Text
	case KindBool:
		return strconv.FormatBool(s.Bool)
	default:
		return "null"
	}
}

var errNotScalar = errors.New("value must be a number, string, boolean or null")

func (s *Scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errNotScalar
	}
	switch data[0] {
	case 'n':
		*s = Null()
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return errNotScalar
		}
		*s = Bool(b)
		return nil
	case '"':
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return errNotScalar
		}
		*s = String(str)
		return nil
	case '{', '[':
		return errNotScalar
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return errNotScalar
		}
		*s = Number(n.String())
		return nil
	}
}

func (s Scalar) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case KindNumber:
		return []byte(s.Text), nil
	case KindString:
		return json.Marshal(s.Text)
	case KindBool:
		return json.Marshal(s.Bool)
	default:
		return []byte("null"), nil
	}
}

// Payload is the loosely typed feature mapping sent by clients.
type Payload map[string]Scalar

// UnmarshalJSON decodes a JSON object whose values must all be scalars. A
// nested object or array is rejected with a CoercionError naming the key.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "observation must be a JSON object")
	}
	if raw == nil {
		return errors.New("observation must be a JSON object")
	}

	out := make(Payload, len(raw))
	for key, value := range raw {
		var s Scalar
		if err := json.Unmarshal(value, &s); err != nil {
			return &CoercionError{Column: key, Reason: errNotScalar.Error()}
		}
		out[key] = s
	}
	*p = out
	return nil
}
