package dta_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/surveyloom/internal/dta"
	"github.com/KaramelBytes/surveyloom/internal/dta/dtatest"
)

func sample() dtatest.File {
	return dtatest.File{
		Label: "gss extract",
		Vars: []dtatest.Var{
			{Name: "id", Type: "long", Numbers: []float64{1, 2, 3}},
			{Name: "age", Label: "age of respondent", Type: "byte", ValueLabel: "agelbl",
				Numbers: []float64{45, 89, 0}, Missing: []bool{false, false, true}},
			{Name: "happy", Type: "int", ValueLabel: "happylbl", Numbers: []float64{1, 3, 2}},
			{Name: "income", Numbers: []float64{21000.5, 0, -3}, Missing: []bool{false, true, false}},
			{Name: "wt", Type: "float", Numbers: []float64{0.5, 1.25, 2}},
			{Name: "region", Strings: []string{"NEW ENGLAND", "PACIFIC", ""}},
		},
		ValueLabels: map[string]map[int32]string{
			"agelbl":   {89: "89 OR OLDER"},
			"happylbl": {1: "VERY HAPPY", 2: "PRETTY HAPPY", 3: "NOT TOO HAPPY"},
		},
	}
}

func readAll(t *testing.T, raw []byte) (*dta.Reader, []*dta.Variable) {
	t.Helper()
	rdr, err := dta.NewReader(bytes.NewReader(raw))
	require.NoError(t, err)
	vars, err := rdr.Read()
	require.NoError(t, err)
	return rdr, vars
}

// checkSample asserts the decoded content of sample() in any layout.
func checkSample(t *testing.T, rdr *dta.Reader, vars []*dta.Variable) {
	t.Helper()
	require.Len(t, vars, 6)
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = v.Name
	}
	require.Equal(t, []string{"id", "age", "happy", "income", "wt", "region"}, names)
	require.Equal(t, "age of respondent", vars[1].Label)
	require.Equal(t, "happylbl", vars[2].ValueLabel)

	require.Equal(t, []float64{1, 2, 3}, vars[0].Numbers)
	require.Equal(t, []bool{false, false, true}, vars[1].Missing)
	require.Equal(t, 89.0, vars[1].Numbers[1])
	require.Equal(t, []float64{1, 3, 2}, vars[2].Numbers)
	require.Equal(t, 21000.5, vars[3].Numbers[0])
	require.True(t, vars[3].Missing[1])
	require.Equal(t, -3.0, vars[3].Numbers[2])
	require.Equal(t, 1.25, vars[4].Numbers[1])

	require.True(t, vars[5].IsString)
	require.Equal(t, []string{"NEW ENGLAND", "PACIFIC", ""}, vars[5].Strings)

	require.Equal(t, map[int32]string{1: "VERY HAPPY", 2: "PRETTY HAPPY", 3: "NOT TOO HAPPY"}, rdr.ValueLabels["happylbl"])
	require.Equal(t, "89 OR OLDER", rdr.ValueLabels["agelbl"][89])
}

func TestReadFormat117(t *testing.T) {
	rdr, vars := readAll(t, sample().Bytes())
	require.Equal(t, 117, rdr.FormatVersion)
	require.Equal(t, binary.LittleEndian, rdr.ByteOrder)
	require.Equal(t, 6, rdr.Nvar)
	checkSample(t, rdr, vars)
}

func TestReadLayouts(t *testing.T) {
	cases := []struct {
		name      string
		version   int
		bigEndian bool
	}{
		{"114 LSF", 114, false},
		{"114 MSF", 114, true},
		{"115 LSF", 115, false},
		{"117 MSF", 117, true},
		{"118 LSF", 118, false},
		{"118 MSF", 118, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := sample()
			f.Version = tc.version
			f.BigEndian = tc.bigEndian
			rdr, vars := readAll(t, f.Bytes())
			require.Equal(t, tc.version, rdr.FormatVersion)
			if tc.bigEndian {
				require.Equal(t, binary.BigEndian, rdr.ByteOrder)
			} else {
				require.Equal(t, binary.LittleEndian, rdr.ByteOrder)
			}
			checkSample(t, rdr, vars)
		})
	}
}

func TestReadStrL(t *testing.T) {
	long := "a free-text answer that does not fit a fixed-width str column"
	for _, version := range []int{117, 118} {
		for _, big := range []bool{false, true} {
			f := dtatest.File{
				Version:   version,
				BigEndian: big,
				Vars: []dtatest.Var{
					{Name: "id", Type: "int", Numbers: []float64{1, 2, 3}},
					{Name: "comment", StrL: true, Strings: []string{long, "short", "third"}},
				},
			}
			_, vars := readAll(t, f.Bytes())
			require.True(t, vars[1].IsString)
			require.Equal(t, []string{long, "short", "third"}, vars[1].Strings, "version %d big-endian %v", version, big)
		}
	}
}

func TestReadTruncated(t *testing.T) {
	raw := sample().Bytes()
	_, err := dta.NewReader(bytes.NewReader(raw[:40]))
	require.Error(t, err)
	require.True(t, errors.Is(err, dta.ErrTruncated))
}

func TestReadTruncatedOldFormat(t *testing.T) {
	f := sample()
	f.Version = 114
	raw := f.Bytes()
	rdr, err := dta.NewReader(bytes.NewReader(raw[:len(raw)-200]))
	if err == nil {
		_, err = rdr.Read()
	}
	require.ErrorIs(t, err, dta.ErrTruncated)
}

// The observation count N starts after the fixed-width release, byteorder
// and K fields.
const nOffset = len("<stata_dta><header><release>118</release><byteorder>LSF</byteorder><K>") + 2 + len("</K><N>")

func TestRejectsHugeObservationCount(t *testing.T) {
	f := sample()
	f.Version = 118

	for _, n := range []uint64{^uint64(0), 1 << 40} {
		raw := f.Bytes()
		binary.LittleEndian.PutUint64(raw[nOffset:], n)
		_, err := dta.NewReader(bytes.NewReader(raw))
		require.ErrorIs(t, err, dta.ErrTruncated, "N=%d", n)
	}
}

func TestRejectsObservationsBeyondData(t *testing.T) {
	raw := sample().Bytes()
	// within the file size but far more rows than the data section holds
	binary.LittleEndian.PutUint32(raw[nOffset:], 200)
	rdr, err := dta.NewReader(bytes.NewReader(raw))
	require.NoError(t, err)
	_, err = rdr.Read()
	require.ErrorIs(t, err, dta.ErrTruncated)
}

func TestRejectsOversizedValueLabelTable(t *testing.T) {
	raw := sample().Bytes()
	i := bytes.Index(raw, []byte("<lbl>"))
	require.Positive(t, i)
	binary.LittleEndian.PutUint32(raw[i+5:], 0xfffffff0)
	_, err := dta.NewReader(bytes.NewReader(raw))
	require.ErrorIs(t, err, dta.ErrTruncated)
}

func TestRejectsUnknownVersion(t *testing.T) {
	raw := sample().Bytes()
	copy(raw[28:31], "999")
	_, err := dta.NewReader(bytes.NewReader(raw))
	require.ErrorContains(t, err, "unsupported Stata dta format version 999")
}

func TestRejectsGarbage(t *testing.T) {
	_, err := dta.NewReader(bytes.NewReader([]byte("<html>not stata at all, not even close</html>")))
	require.Error(t, err)
}
