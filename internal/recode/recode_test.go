package recode

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/surveyloom/internal/table"
)

func ageColumn(t *testing.T) *table.Column {
	t.Helper()
	col, err := table.CategoricalFromLabels("age",
		[]string{"22", "45", "89 OR OLDER"},
		[]string{"45", "89 OR OLDER", "22"}, nil)
	require.NoError(t, err)
	return col
}

func floats(t *testing.T, col *table.Column) ([]float64, []bool) {
	t.Helper()
	vals, miss, err := col.Floats()
	require.NoError(t, err)
	return vals, miss
}

func TestRecodeThenConvert(t *testing.T) {
	col := ageColumn(t)
	recoded, err := Label(col, "89 OR OLDER", "90")
	require.NoError(t, err)
	require.Equal(t, []string{"22", "45", "90"}, recoded.Levels())

	num, err := ToNumeric(recoded)
	require.NoError(t, err)
	vals, _ := floats(t, num)
	require.Equal(t, []float64{45, 90, 22}, vals)

	// source column untouched
	require.Equal(t, []string{"22", "45", "89 OR OLDER"}, col.Levels())
}

func TestConvertWithoutRecodeFails(t *testing.T) {
	_, err := ToNumeric(ageColumn(t))
	var nne *table.NonNumericLabelError
	require.True(t, errors.As(err, &nne))
	require.Equal(t, "89 OR OLDER", nne.Label)
	require.Equal(t, 1, nne.Row)
	require.Equal(t, "age", nne.Column)
}

func TestToNumericUnusedLevelReportsNoRow(t *testing.T) {
	col, err := table.CategoricalFromLabels("x", []string{"1", "DK"}, []string{"1", "1"}, nil)
	require.NoError(t, err)
	_, err = ToNumeric(col)
	var nne *table.NonNumericLabelError
	require.True(t, errors.As(err, &nne))
	require.Equal(t, -1, nne.Row)
}

func TestLabelUnknownFails(t *testing.T) {
	_, err := Label(ageColumn(t), "89 OR OLDR", "90")
	var ule *table.UnknownLabelError
	require.True(t, errors.As(err, &ule))
	require.Equal(t, "89 OR OLDR", ule.Label)
}

func TestLabelMergesIntoExistingLevel(t *testing.T) {
	col, err := table.CategoricalFromLabels("degree",
		[]string{"LT HIGH SCHOOL", "HIGH SCHOOL", "JUNIOR COLLEGE", "BACHELOR"},
		[]string{"BACHELOR", "JUNIOR COLLEGE", "HIGH SCHOOL"}, nil)
	require.NoError(t, err)

	merged, err := Label(col, "JUNIOR COLLEGE", "HIGH SCHOOL")
	require.NoError(t, err)
	require.Equal(t, []string{"LT HIGH SCHOOL", "HIGH SCHOOL", "BACHELOR"}, merged.Levels())
	for i, want := range []string{"BACHELOR", "HIGH SCHOOL", "HIGH SCHOOL"} {
		got, ok := merged.Label(i)
		require.True(t, ok)
		require.Equal(t, want, got)
	}
}

func TestToMissingDropsLevels(t *testing.T) {
	col, err := table.CategoricalFromLabels("happy",
		[]string{"IAP", "VERY HAPPY", "NOT TOO HAPPY", "DK"},
		[]string{"IAP", "VERY HAPPY", "DK", "NOT TOO HAPPY"}, nil)
	require.NoError(t, err)

	out, err := ToMissing(col, "IAP", "DK")
	require.NoError(t, err)
	require.Equal(t, []string{"VERY HAPPY", "NOT TOO HAPPY"}, out.Levels())
	require.True(t, out.IsMissing(0))
	require.True(t, out.IsMissing(2))
	require.Equal(t, 1, out.Code(3))

	_, err = ToMissing(col, "NA")
	var ule *table.UnknownLabelError
	require.True(t, errors.As(err, &ule))
}

func TestToOrdinal(t *testing.T) {
	col, err := table.CategoricalFromLabels("health",
		[]string{"EXCELLENT", "GOOD", "FAIR", "POOR"},
		[]string{"FAIR", "", "EXCELLENT"}, []bool{false, true, false})
	require.NoError(t, err)
	out, err := ToOrdinal(col)
	require.NoError(t, err)
	vals, miss := floats(t, out)
	require.Equal(t, 3.0, vals[0])
	require.True(t, miss[1])
	require.Equal(t, 1.0, vals[2])
}

func TestScaleKeepsMissing(t *testing.T) {
	col := table.NewNumeric("realinc", []float64{10, 20, 30, 40, math.NaN()}, nil)
	out, err := Scale(col, 2.19)
	require.NoError(t, err)
	vals, miss := floats(t, out)
	require.Equal(t, []float64{21.9, 43.8, 65.7, 87.6, 0}, vals)
	require.Equal(t, []bool{false, false, false, false, true}, miss)

	_, err = Scale(ageColumn(t), 2)
	require.ErrorIs(t, err, table.ErrKind)
}

func TestScaleNonFinite(t *testing.T) {
	col := table.NewNumeric("realinc", []float64{10, math.Inf(1), math.Inf(-1)}, nil)
	out, err := Scale(col, 2.19)
	require.NoError(t, err)
	vals, miss := floats(t, out)
	require.Equal(t, 21.9, vals[0])
	require.True(t, math.IsInf(vals[1], 1))
	require.True(t, math.IsInf(vals[2], -1))
	require.Equal(t, []bool{false, false, false}, miss)

	for _, f := range []float64{math.Inf(1), math.Inf(-1), math.NaN()} {
		_, err := Scale(col, f)
		require.ErrorContains(t, err, "factor must be finite")
	}
}

func TestApplyRunsRulesInOrder(t *testing.T) {
	col, err := table.CategoricalFromLabels("age",
		[]string{"22", "89 OR OLDER", "NA"},
		[]string{"22", "89 OR OLDER", "NA"}, nil)
	require.NoError(t, err)

	out, err := Apply(col,
		Rule{From: "89 OR OLDER", To: "89"},
		Rule{From: "NA", Missing: true},
	)
	require.NoError(t, err)
	num, err := ToNumeric(out)
	require.NoError(t, err)
	vals, miss := floats(t, num)
	require.Equal(t, []float64{22, 89, 0}, vals)
	require.True(t, miss[2])

	_, err = Apply(col, Rule{From: "nope", To: "x"})
	require.ErrorContains(t, err, "rule 1")
}
