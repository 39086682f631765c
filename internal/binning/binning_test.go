package binning

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/surveyloom/internal/table"
)

func counts(t *testing.T, col *table.Column) []int {
	t.Helper()
	out := make([]int, len(col.Levels()))
	for i := 0; i < col.Len(); i++ {
		if c := col.Code(i); c >= 0 {
			out[c]++
		}
	}
	return out
}

func TestQuantileSizesDifferByAtMostOne(t *testing.T) {
	for _, m := range []int{5, 7, 11, 23, 100} {
		vals := make([]float64, m)
		for i := range vals {
			// distinct, unsorted
			vals[i] = float64((i * 37) % 101)
		}
		col := table.NewNumeric("realinc", vals, nil)
		out, sum, err := Quantile(col, 5, nil)
		require.NoError(t, err)
		require.False(t, sum.Uneven())

		c := counts(t, out)
		lo, hi := c[0], c[0]
		total := 0
		for _, x := range c {
			lo = min(lo, x)
			hi = max(hi, x)
			total += x
		}
		require.LessOrEqual(t, hi-lo, 1, "m=%d counts=%v", m, c)
		require.Equal(t, m, total)
	}
}

func TestQuantileOrdersByValue(t *testing.T) {
	col := table.NewNumeric("x", []float64{40, 10, math.NaN(), 30, 20}, nil)
	out, sum, err := Quantile(col, 2, []string{"low", "high"})
	require.NoError(t, err)
	require.Equal(t, []string{"low", "high"}, out.Levels())

	lbl := func(i int) string {
		s, _ := out.Label(i)
		return s
	}
	require.Equal(t, "high", lbl(0))
	require.Equal(t, "low", lbl(1))
	require.True(t, out.IsMissing(2))
	require.Equal(t, "high", lbl(3))
	require.Equal(t, "low", lbl(4))

	require.Equal(t, 10.0, sum.Bins[0].Min)
	require.Equal(t, 20.0, sum.Bins[0].Max)
}

func TestQuantileTiesGoToLowerBin(t *testing.T) {
	// sorted: 1 2 2 2 3 4; natural boundaries at positions 2 and 4
	col := table.NewNumeric("x", []float64{2, 1, 2, 3, 2, 4}, nil)
	out, sum, err := Quantile(col, 3, nil)
	require.NoError(t, err)

	require.Equal(t, []int{4, 0, 2}, counts(t, out))
	require.True(t, sum.Uneven())
	require.Len(t, sum.Notes, 2)
	require.Equal(t, 2, sum.Bins[1].Target)
	for i := 0; i < out.Len(); i++ {
		x, _ := col.Float(i)
		if x == 2 {
			require.Equal(t, 0, out.Code(i))
		}
	}
}

func TestQuantileRejectsBadInput(t *testing.T) {
	col := table.NewNumeric("x", []float64{1, 2}, nil)
	_, _, err := Quantile(col, 0, nil)
	require.Error(t, err)
	_, _, err = Quantile(col, 2, []string{"only one"})
	require.ErrorContains(t, err, "got 1 labels for 2 bins")

	cat, err := table.NewCategorical("c", []string{"a"}, []int{0})
	require.NoError(t, err)
	_, _, err = Quantile(cat, 2, nil)
	require.ErrorIs(t, err, table.ErrKind)
}

func TestFixedOutOfRange(t *testing.T) {
	col := table.NewNumeric("age", []float64{17, 18, 29.9, 30, 65, 90, math.NaN()}, nil)
	out, err := Fixed(col, []float64{18, 30, 65}, []string{"18-29", "30-64"})
	require.NoError(t, err)
	require.Equal(t, []string{BelowRange, "18-29", "30-64", AboveRange}, out.Levels())

	want := []string{BelowRange, "18-29", "18-29", "30-64", AboveRange, AboveRange}
	for i, w := range want {
		got, ok := out.Label(i)
		require.True(t, ok)
		require.Equal(t, w, got, "row %d", i)
	}
	require.True(t, out.IsMissing(6))
}

func TestFixedValidatesCuts(t *testing.T) {
	col := table.NewNumeric("x", []float64{1}, nil)
	_, err := Fixed(col, []float64{1}, nil)
	require.Error(t, err)
	_, err = Fixed(col, []float64{3, 1}, nil)
	require.Error(t, err)
	_, err = Fixed(col, []float64{1, 1, 2}, nil)
	require.Error(t, err)
	_, err = Fixed(col, []float64{1, 2}, []string{"a", "b"})
	require.Error(t, err)
}
