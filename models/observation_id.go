package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
)

// MaxObservationIDLength matches the observation_id column width.
const MaxObservationIDLength = 255

// ObservationID is the caller-supplied natural key of a prediction. Clients
// may send it as a JSON string or an integral number; numbers are stored in
// canonical decimal form so 1, 1.0 and 1e0 name the same observation.
type ObservationID string

var ErrInvalidObservationID = errors.New("observation id must be a non-empty string or an integer")

// maxExactFloat is the largest integer a float64 holds exactly.
const maxExactFloat = 1 << 53

func (id *ObservationID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return ErrInvalidObservationID
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return errors.Wrap(err, "decoding observation id")
		}
		parsed := ObservationID(strings.TrimSpace(s))
		if err := parsed.Validate(); err != nil {
			return err
		}
		*id = parsed
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return ErrInvalidObservationID
	}
	canonical, err := canonicalInteger(n)
	if err != nil {
		return err
	}
	*id = ObservationID(canonical)
	return nil
}

// Validate checks the identifier is non-empty and fits the storage column.
func (id ObservationID) Validate() error {
	if id == "" {
		return ErrInvalidObservationID
	}
	if n := utf8.RuneCountInString(string(id)); n > MaxObservationIDLength {
		return errors.Wrapf(ErrInvalidObservationID, "%d characters exceeds %d", n, MaxObservationIDLength)
	}
	return nil
}

func (id ObservationID) String() string { return string(id) }

func canonicalInteger(n json.Number) (string, error) {
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil || math.Trunc(f) != f || math.Abs(f) > maxExactFloat {
		return "", errors.Wrapf(ErrInvalidObservationID, "numeric id %s is not an exact integer", n)
	}
	if f == 0 {
		// -0 and 0 are the same id
		return "0", nil
	}
	return strconv.FormatInt(int64(f), 10), nil
}
