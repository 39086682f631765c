package reshape

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/surveyloom/internal/table"
)

func longTable(t *testing.T) *table.Table {
	t.Helper()
	degree, err := table.CategoricalFromLabels("degree",
		[]string{"HS", "COLLEGE"},
		[]string{"HS", "HS", "COLLEGE", "COLLEGE", "HS"}, nil)
	require.NoError(t, err)
	happy, err := table.CategoricalFromLabels("happy",
		[]string{"VERY", "PRETTY", "NOT TOO"},
		[]string{"VERY", "PRETTY", "VERY", "NOT TOO", "NOT TOO"}, nil)
	require.NoError(t, err)
	prop := table.NewNumeric("prop", []float64{0.3, 0.5, 0.4, 0.1, 0.2}, nil)
	tbl, err := table.New(degree, happy, prop)
	require.NoError(t, err)
	return tbl
}

// tuples renders each row as text so tables can be compared up to row order.
func tuples(t *testing.T, tbl *table.Table, names ...string) []string {
	t.Helper()
	sub, err := tbl.Select(names...)
	require.NoError(t, err)
	out := make([]string, sub.NumRows())
	for i := range out {
		var cells []string
		for _, v := range sub.Row(i) {
			cells = append(cells, fmt.Sprintf("%s/%t", v.Str, v.Valid))
		}
		out[i] = strings.Join(cells, "|")
	}
	sort.Strings(out)
	return out
}

func TestPivotWide(t *testing.T) {
	wide, err := PivotWide(longTable(t), []string{"degree"}, "happy", "prop")
	require.NoError(t, err)
	require.Equal(t, []string{"degree", "VERY", "PRETTY", "NOT TOO"}, wide.Names())
	require.Equal(t, 2, wide.NumRows())

	pretty, err := wide.Column("PRETTY")
	require.NoError(t, err)
	x, ok := pretty.Float(0)
	require.True(t, ok)
	require.Equal(t, 0.5, x)
	require.True(t, pretty.IsMissing(1))
}

func TestPivotRoundTrip(t *testing.T) {
	long := longTable(t)
	wide, err := PivotWide(long, []string{"degree"}, "happy", "prop")
	require.NoError(t, err)
	back, err := PivotLong(wide, []string{"degree"}, []string{"VERY", "PRETTY", "NOT TOO"}, "happy", "prop")
	require.NoError(t, err)

	require.Equal(t, long.NumRows(), back.NumRows())
	require.Equal(t,
		tuples(t, long, "degree", "happy", "prop"),
		tuples(t, back, "degree", "happy", "prop"))
}

func TestPivotRoundTripCategoricalValues(t *testing.T) {
	id := table.NewNumeric("id", []float64{1, 1, 2}, nil)
	year := table.NewNumeric("year", []float64{2018, 2016, 2018}, nil)
	ans, err := table.CategoricalFromLabels("answer", []string{"yes", "no"}, []string{"yes", "no", "no"}, nil)
	require.NoError(t, err)
	long, err := table.New(id, year, ans)
	require.NoError(t, err)

	wide, err := PivotWide(long, []string{"id"}, "year", "answer")
	require.NoError(t, err)
	// numeric names are ascending
	require.Equal(t, []string{"id", "2016", "2018"}, wide.Names())

	back, err := PivotLong(wide, []string{"id"}, []string{"2016", "2018"}, "year", "answer")
	require.NoError(t, err)
	require.Equal(t,
		tuples(t, long, "id", "year", "answer"),
		tuples(t, back, "id", "year", "answer"))
}

func TestPivotWideDuplicate(t *testing.T) {
	degree, err := table.CategoricalFromLabels("degree", []string{"HS"}, []string{"HS", "HS"}, nil)
	require.NoError(t, err)
	happy, err := table.CategoricalFromLabels("happy", []string{"VERY"}, []string{"VERY", "VERY"}, nil)
	require.NoError(t, err)
	tbl, err := table.New(degree, happy, table.NewNumeric("n", []float64{1, 2}, nil))
	require.NoError(t, err)

	_, err = PivotWide(tbl, []string{"degree"}, "happy", "n")
	var dke *table.DuplicateKeyError
	require.True(t, errors.As(err, &dke))
	require.Equal(t, []string{"HS"}, dke.ID)
	require.Equal(t, "VERY", dke.Category)
}

func TestPivotWideMissingIDDistinctFromMissingText(t *testing.T) {
	id, err := table.CategoricalFromLabels("id", []string{"<missing>", "a"},
		[]string{"<missing>", "", "a"}, []bool{false, true, false})
	require.NoError(t, err)
	q, err := table.CategoricalFromLabels("q", []string{"x"}, []string{"x", "x", "x"}, nil)
	require.NoError(t, err)
	tbl, err := table.New(id, q, table.NewNumeric("v", []float64{1, 2, 3}, nil))
	require.NoError(t, err)

	wide, err := PivotWide(tbl, []string{"id"}, "q", "v")
	require.NoError(t, err)
	require.Equal(t, 3, wide.NumRows())
	ids, err := wide.Column("id")
	require.NoError(t, err)
	require.False(t, ids.IsMissing(0))
	require.True(t, ids.IsMissing(1))
	x, err := wide.Column("x")
	require.NoError(t, err)
	vals, _, err := x.Floats()
	require.NoError(t, err)
	require.Equal(t, []float64{1, 2, 3}, vals)
}

func TestPivotWideRejectsLevelNamedLikeID(t *testing.T) {
	degree, err := table.CategoricalFromLabels("degree", []string{"HS"}, []string{"HS", "HS"}, nil)
	require.NoError(t, err)
	q, err := table.CategoricalFromLabels("q", []string{"degree", "other"}, []string{"degree", "other"}, nil)
	require.NoError(t, err)
	tbl, err := table.New(degree, q, table.NewNumeric("n", []float64{1, 2}, nil))
	require.NoError(t, err)

	_, err = PivotWide(tbl, []string{"degree"}, "q", "n")
	require.ErrorContains(t, err, `q level "degree" clashes with id column "degree"`)
}

func TestPivotLongRejectsMixedKinds(t *testing.T) {
	a := table.NewNumeric("a", []float64{1}, nil)
	b, err := table.CategoricalFromLabels("b", []string{"x"}, []string{"x"}, nil)
	require.NoError(t, err)
	tbl, err := table.New(a, b)
	require.NoError(t, err)
	_, err = PivotLong(tbl, nil, []string{"a", "b"}, "k", "v")
	require.ErrorIs(t, err, table.ErrKind)
}
