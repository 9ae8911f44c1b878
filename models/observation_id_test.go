package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/guregu/null/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservationIDUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ObservationID
		wantErr bool
	}{
		{"integer", `0`, "0", false},
		{"large integer", `123456789012`, "123456789012", false},
		{"string", `"obs-42"`, "obs-42", false},
		{"string is trimmed", `"  7 "`, "7", false},
		{"null", `null`, "", true},
		{"empty string", `""`, "", true},
		{"object", `{"a":1}`, "", true},
		{"bool", `true`, "", true},
		{"integral float", `1.0`, "1", false},
		{"exponent", `1e0`, "1", false},
		{"negative zero", `-0.0`, "0", false},
		{"negative integer", `-12`, "-12", false},
		{"fraction", `1.5`, "", true},
		{"beyond exact range", `1e300`, "", true},
		{"string keeps its text", `"1.0"`, "1.0", false},
		{"string at max length", `"` + strings.Repeat("a", MaxObservationIDLength) + `"`, ObservationID(strings.Repeat("a", MaxObservationIDLength)), false},
		{"string too long", `"` + strings.Repeat("a", MaxObservationIDLength+1) + `"`, "", true},
		{"multibyte at max length", `"` + strings.Repeat("é", MaxObservationIDLength) + `"`, ObservationID(strings.Repeat("é", MaxObservationIDLength)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id ObservationID
			err := json.Unmarshal([]byte(tt.input), &id)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidObservationID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestObservationIDValidate(t *testing.T) {
	assert.NoError(t, ObservationID("x").Validate())
	assert.ErrorIs(t, ObservationID("").Validate(), ErrInvalidObservationID)
	assert.ErrorIs(t, ObservationID(strings.Repeat("x", MaxObservationIDLength+1)).Validate(), ErrInvalidObservationID)
}

func TestPredictionRecordJSON(t *testing.T) {
	rec := PredictionRecord{
		ID:            3,
		ObservationID: "0",
		Observation:   `{"id":0}`,
		Proba:         0.25,
	}
	assert.False(t, rec.Reconciled())

	b, err := json.Marshal(rec)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, float64(3), out["id"])
	assert.Equal(t, "0", out["observation_id"])
	assert.Nil(t, out["true_class"])

	rec.TrueClass = null.IntFrom(1)
	assert.True(t, rec.Reconciled())
}
