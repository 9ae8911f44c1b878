package scoring

import (
	"math"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"prediction-ledger-api/schema"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func loadTitanic(t *testing.T) (*LogisticModel, *schema.Schema) {
	t.Helper()
	m, err := Load("testdata/titanic_model.yaml")
	require.NoError(t, err)
	s, err := schema.Load("testdata/titanic_schema.yaml")
	require.NoError(t, err)
	require.NoError(t, m.Validate(s))
	return m, s
}

func passenger() schema.Payload {
	return schema.Payload{
		"Age":      schema.Float(22.0),
		"Fare":     schema.Float(7.25),
		"Pclass":   schema.Int(3),
		"Sex":      schema.String("male"),
		"Embarked": schema.String("S"),
		"SibSp":    schema.Int(1),
		"Parch":    schema.Int(0),
	}
}

func TestScoreKnownPassenger(t *testing.T) {
	m, s := loadTitanic(t)

	obs, err := s.Coerce(passenger())
	require.NoError(t, err)

	p, err := m.Score(obs)
	require.NoError(t, err)
	assert.InDelta(t, 0.1610, p, 5e-5)
}

func TestScoreMatchesLogisticFormula(t *testing.T) {
	m, err := Load("testdata/employment_model.json")
	require.NoError(t, err)

	cols := []string{"unemployed"}
	dtypes := map[string]schema.ColumnType{"unemployed": schema.TypeBoolean}

	yes, err := schema.Coerce(schema.Payload{"unemployed": schema.Bool(true)}, cols, dtypes)
	require.NoError(t, err)
	p, err := m.Score(yes)
	require.NoError(t, err)
	assert.InDelta(t, 1/(1+math.Exp(-1.0)), p, 1e-12)

	// null falls back to the impute value (false)
	missing, err := schema.Coerce(schema.Payload{}, cols, dtypes)
	require.NoError(t, err)
	p, err = m.Score(missing)
	require.NoError(t, err)
	assert.InDelta(t, 1/(1+math.Exp(1.0)), p, 1e-12)
}

func TestScoreUnseenCategoryUsesDefault(t *testing.T) {
	m, s := loadTitanic(t)

	withS := passenger()
	withUnknown := passenger()
	withUnknown["Embarked"] = schema.String("X")

	a, err := s.Coerce(withS)
	require.NoError(t, err)
	b, err := s.Coerce(withUnknown)
	require.NoError(t, err)

	pa, err := m.Score(a)
	require.NoError(t, err)
	pb, err := m.Score(b)
	require.NoError(t, err)
	// S carries a negative weight, the default level carries none
	assert.Greater(t, pb, pa)
}

func TestScoreIsDeterministicAcrossGoroutines(t *testing.T) {
	m, s := loadTitanic(t)
	obs, err := s.Coerce(passenger())
	require.NoError(t, err)

	want, err := m.Score(obs)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]float64, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = m.Score(obs)
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, want, got)
	}
}

func TestScoreErrors(t *testing.T) {
	m, _ := loadTitanic(t)

	t.Run("feature missing from observation", func(t *testing.T) {
		obs, err := schema.Coerce(schema.Payload{}, []string{"Age"}, map[string]schema.ColumnType{"Age": schema.TypeFloat})
		require.NoError(t, err)
		_, err = m.Score(obs)
		var serr *ScoringError
		require.True(t, errors.As(err, &serr))
		assert.NotEmpty(t, serr.Column)
	})

	t.Run("type mismatch", func(t *testing.T) {
		cols := []string{"Age", "Fare", "Pclass", "Sex", "Embarked", "SibSp", "Parch"}
		dtypes := map[string]schema.ColumnType{
			"Age": schema.TypeCategorical, "Fare": schema.TypeFloat, "Pclass": schema.TypeInteger,
			"Sex": schema.TypeCategorical, "Embarked": schema.TypeCategorical,
			"SibSp": schema.TypeInteger, "Parch": schema.TypeInteger,
		}
		obs, err := schema.Coerce(passenger(), cols, dtypes)
		require.NoError(t, err)
		_, err = m.Score(obs)
		var serr *ScoringError
		require.True(t, errors.As(err, &serr))
		assert.Equal(t, "Age", serr.Column)
	})

	t.Run("non-finite weights", func(t *testing.T) {
		bad, err := Parse([]byte("intercept: .nan\nboolean: {unemployed: {weight: 1}}"))
		require.NoError(t, err)
		obs, err := schema.Coerce(schema.Payload{"unemployed": schema.Bool(true)},
			[]string{"unemployed"}, map[string]schema.ColumnType{"unemployed": schema.TypeBoolean})
		require.NoError(t, err)
		_, err = bad.Score(obs)
		var serr *ScoringError
		assert.True(t, errors.As(err, &serr))
	})
}

func TestValidateAgainstSchema(t *testing.T) {
	m, err := Load("testdata/titanic_model.yaml")
	require.NoError(t, err)

	s, err := schema.Parse([]byte("columns: [Age]\ndtypes: {Age: float64}"))
	require.NoError(t, err)
	assert.Error(t, m.Validate(s))

	s, err = schema.Parse([]byte("columns: [unemployed]\ndtypes: {unemployed: category}"))
	require.NoError(t, err)
	emp, err := Load("testdata/employment_model.json")
	require.NoError(t, err)
	assert.Error(t, emp.Validate(s))
}

func TestParseRejectsEmptyModel(t *testing.T) {
	_, err := Parse([]byte("intercept: 1"))
	assert.Error(t, err)
	_, err = Load("testdata/missing.yaml")
	assert.Error(t, err)
}
