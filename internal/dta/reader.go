// Package dta reads Stata dta data files, formats 114, 115, 117 and 118.
//
// The reader returns every variable as a Variable holding either string
// or numeric (float64) cells plus a missing mask, together with the value
// label dictionaries stored in the file. Technical information about the
// format is at https://www.stata.com/help.cgi?dta
package dta

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

// Variable type codes, in the 117+ numbering. Older files are translated.
const (
	typeStrL   = 32768
	typeDouble = 65526
	typeFloat  = 65527
	typeLong   = 65528
	typeInt    = 65529
	typeByte   = 65530
	maxStrf    = 2045
)

// ErrTruncated indicates a file that ends before its declared structure.
var ErrTruncated = errors.New("stata file appears to be truncated")

type layout struct {
	nameLen     int // varnames and value label names
	formatLen   int
	varLabelLen int
	nobsLen     int
	dsLabelLen  int // width of the dataset label length prefix (117+)
	strlPtrLen  int // width of a GSO (v,o) pair
}

var layouts = map[int]layout{
	114: {nameLen: 33, formatLen: 49, varLabelLen: 81, nobsLen: 4},
	115: {nameLen: 33, formatLen: 49, varLabelLen: 81, nobsLen: 4},
	117: {nameLen: 33, formatLen: 49, varLabelLen: 81, nobsLen: 4, dsLabelLen: 1, strlPtrLen: 8},
	118: {nameLen: 129, formatLen: 57, varLabelLen: 321, nobsLen: 8, dsLabelLen: 2, strlPtrLen: 12},
}

// Variable is one column of a dta file.
type Variable struct {
	Name string
	// Label is the descriptive variable label.
	Label string
	// ValueLabel names the value label dictionary attached to the
	// variable, or is empty.
	ValueLabel string
	IsString   bool
	Strings    []string
	Numbers    []float64
	Missing    []bool
}

// A Reader reads a Stata dta file. Header information is available once
// NewReader returns; Read decodes the data.
type Reader struct {
	FormatVersion int
	ByteOrder     binary.ByteOrder
	Nvar          int

	// Value label dictionaries by name, mapping codes to labels.
	ValueLabels map[string]map[int32]string

	rowCount        int
	varTypes        []int
	names           []string
	varLabels       []string
	valueLabelNames []string
	lay             layout

	strls map[string]string

	seekVartypes        int64
	seekVarnames        int64
	seekSortlist        int64
	seekFormats         int64
	seekValueLabelNames int64
	seekVariableLabels  int64
	seekCharacteristics int64
	seekData            int64
	seekStrls           int64
	seekValueLabels     int64

	size int64
	r    io.ReadSeeker
}

// NewReader parses the header and dictionary of a dta file.
func NewReader(r io.ReadSeeker) (*Reader, error) {
	rdr := &Reader{r: r, ValueLabels: map[string]map[int32]string{}}
	if err := rdr.init(); err != nil {
		return nil, err
	}
	return rdr, nil
}

func (rdr *Reader) init() error {
	size, err := rdr.r.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	rdr.size = size
	if _, err := rdr.r.Seek(0, io.SeekStart); err != nil {
		return err
	}

	first, err := rdr.read(1)
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if _, err := rdr.r.Seek(0, io.SeekStart); err != nil {
		return err
	}

	if first[0] == '<' {
		err = rdr.readNewHeader()
	} else {
		err = rdr.readOldHeader()
	}
	if err != nil {
		return err
	}

	if err := rdr.readVarTypes(); err != nil {
		return err
	}
	if rdr.names, err = rdr.readStrings(rdr.seekVarnames+10, rdr.lay.nameLen); err != nil {
		return fmt.Errorf("read varnames: %w", err)
	}
	if rdr.old() {
		// srtlist
		if _, err := rdr.r.Seek(int64(2*(rdr.Nvar+1)), io.SeekCurrent); err != nil {
			return err
		}
	}
	// Display formats are not used but old files must be read past them.
	if _, err = rdr.readStrings(rdr.seekFormats+9, rdr.lay.formatLen); err != nil {
		return fmt.Errorf("read formats: %w", err)
	}
	if rdr.valueLabelNames, err = rdr.readStrings(rdr.seekValueLabelNames+19, rdr.lay.nameLen); err != nil {
		return fmt.Errorf("read value label names: %w", err)
	}
	if rdr.varLabels, err = rdr.readStrings(rdr.seekVariableLabels+17, rdr.lay.varLabelLen); err != nil {
		return fmt.Errorf("read variable labels: %w", err)
	}

	if rdr.old() {
		if err := rdr.readExpansionFields(); err != nil {
			return err
		}
		pos, err := rdr.r.Seek(0, io.SeekCurrent)
		if err != nil {
			return err
		}
		rdr.seekData = pos - 6
		return nil
	}

	if err := rdr.readStrls(); err != nil {
		return err
	}
	return rdr.readValueLabels()
}

func (rdr *Reader) old() bool { return rdr.FormatVersion < 117 }

// read returns the next n bytes. A length beyond the file size means a
// corrupt count and is reported as truncation before allocating.
func (rdr *Reader) read(n int) ([]byte, error) {
	if n < 0 || int64(n) > rdr.size {
		return nil, ErrTruncated
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(rdr.r, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, ErrTruncated
		}
		return nil, err
	}
	return buf, nil
}

func (rdr *Reader) skip(n int64) error {
	_, err := rdr.r.Seek(n, io.SeekCurrent)
	return err
}

func (rdr *Reader) readUint(width int) (int, error) {
	b, err := rdr.read(width)
	if err != nil {
		return 0, err
	}
	switch width {
	case 1:
		return int(b[0]), nil
	case 2:
		return int(rdr.ByteOrder.Uint16(b)), nil
	case 4:
		return int(rdr.ByteOrder.Uint32(b)), nil
	case 8:
		return int(rdr.ByteOrder.Uint64(b)), nil
	default:
		return 0, fmt.Errorf("unsupported width %d in readUint", width)
	}
}

func (rdr *Reader) setVersion(v int) error {
	lay, ok := layouts[v]
	if !ok {
		return fmt.Errorf("unsupported Stata dta format version %d", v)
	}
	rdr.FormatVersion = v
	rdr.lay = lay
	return nil
}

// readOldHeader reads the pre version 117 header.
func (rdr *Reader) readOldHeader() error {
	hdr, err := rdr.read(4)
	if err != nil {
		return err
	}
	if err := rdr.setVersion(int(hdr[0])); err != nil {
		return err
	}
	if hdr[1] == 1 {
		rdr.ByteOrder = binary.BigEndian
	} else {
		rdr.ByteOrder = binary.LittleEndian
	}

	if rdr.Nvar, err = rdr.readUint(2); err != nil {
		return err
	}
	if rdr.rowCount, err = rdr.readUint(rdr.lay.nobsLen); err != nil {
		return err
	}
	if err := rdr.checkRowCount(); err != nil {
		return err
	}
	// data_label and time_stamp
	if err := rdr.skip(81 + 18); err != nil {
		return err
	}

	// Sequential layout: every section follows the previous one, so the
	// seek offsets are unused and reads continue from the current position.
	return nil
}

// readNewHeader reads the xml-style header of versions 117+.
func (rdr *Reader) readNewHeader() error {
	b, err := rdr.read(28)
	if err != nil {
		return err
	}
	if string(b[0:11]) != "<stata_dta>" {
		return errors.New("invalid Stata file: missing <stata_dta> tag")
	}
	if b, err = rdr.read(3); err != nil {
		return err
	}
	v, err := strconv.Atoi(string(b))
	if err != nil {
		return fmt.Errorf("invalid Stata release %q", string(b))
	}
	if err := rdr.setVersion(v); err != nil {
		return err
	}

	// </release><byteorder>
	if err := rdr.skip(21); err != nil {
		return err
	}
	if b, err = rdr.read(3); err != nil {
		return err
	}
	if string(b) == "MSF" {
		rdr.ByteOrder = binary.BigEndian
	} else {
		rdr.ByteOrder = binary.LittleEndian
	}

	// </byteorder><K>
	if err := rdr.skip(15); err != nil {
		return err
	}
	if rdr.Nvar, err = rdr.readUint(2); err != nil {
		return err
	}

	// </K><N>
	if err := rdr.skip(7); err != nil {
		return err
	}
	if rdr.rowCount, err = rdr.readUint(rdr.lay.nobsLen); err != nil {
		return err
	}
	if err := rdr.checkRowCount(); err != nil {
		return err
	}

	// </N><label>
	if err := rdr.skip(11); err != nil {
		return err
	}
	w, err := rdr.readUint(rdr.lay.dsLabelLen)
	if err != nil {
		return err
	}
	if err := rdr.skip(int64(w)); err != nil {
		return err
	}

	// </label><timestamp>
	if err := rdr.skip(19); err != nil {
		return err
	}
	if w, err = rdr.readUint(1); err != nil {
		return err
	}
	if err := rdr.skip(int64(w)); err != nil {
		return err
	}

	// </timestamp></header><map> and the first two map entries
	if err := rdr.skip(42); err != nil {
		return err
	}
	for _, dst := range []*int64{
		&rdr.seekVartypes, &rdr.seekVarnames, &rdr.seekSortlist, &rdr.seekFormats,
		&rdr.seekValueLabelNames, &rdr.seekVariableLabels, &rdr.seekCharacteristics,
		&rdr.seekData, &rdr.seekStrls, &rdr.seekValueLabels,
	} {
		if err := binary.Read(rdr.r, rdr.ByteOrder, dst); err != nil {
			return fmt.Errorf("read map: %w", err)
		}
	}
	return nil
}

// checkRowCount rejects observation counts that cannot fit in the file.
func (rdr *Reader) checkRowCount() error {
	if rdr.rowCount < 0 || int64(rdr.rowCount) > rdr.size {
		return fmt.Errorf("observation count %d exceeds file size: %w", rdr.rowCount, ErrTruncated)
	}
	return nil
}

func (rdr *Reader) readVarTypes() error {
	rdr.varTypes = make([]int, rdr.Nvar)
	if rdr.old() {
		for k := range rdr.varTypes {
			t, err := rdr.readUint(1)
			if err != nil {
				return err
			}
			if rdr.varTypes[k], err = translateOldType(t); err != nil {
				return err
			}
		}
		return nil
	}

	if _, err := rdr.r.Seek(rdr.seekVartypes+16, io.SeekStart); err != nil {
		return err
	}
	for k := range rdr.varTypes {
		t, err := rdr.readUint(2)
		if err != nil {
			return err
		}
		rdr.varTypes[k] = t
	}
	return nil
}

func translateOldType(t int) (int, error) {
	switch {
	case t <= 244:
		return t, nil
	case t == 251:
		return typeByte, nil
	case t == 252:
		return typeInt, nil
	case t == 253:
		return typeLong, nil
	case t == 254:
		return typeFloat, nil
	case t == 255:
		return typeDouble, nil
	default:
		return 0, fmt.Errorf("unknown variable type %d", t)
	}
}

// readStrings reads Nvar fixed-width, NUL-terminated strings. For 117+ it
// first seeks to offset; older files are read sequentially.
func (rdr *Reader) readStrings(offset int64, width int) ([]string, error) {
	if !rdr.old() {
		if _, err := rdr.r.Seek(offset, io.SeekStart); err != nil {
			return nil, err
		}
	}
	out := make([]string, rdr.Nvar)
	for k := range out {
		b, err := rdr.read(width)
		if err != nil {
			return nil, err
		}
		out[k] = string(partition(b))
	}
	return out, nil
}

// partition returns everything before the first null byte.
func partition(b []byte) []byte {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return b[:i]
	}
	return b
}

func (rdr *Reader) readExpansionFields() error {
	for {
		b, err := rdr.read(1)
		if err != nil {
			return err
		}
		n, err := rdr.readUint(4)
		if err != nil {
			return err
		}
		if b[0] == 0 && n == 0 {
			return nil
		}
		if err := rdr.skip(int64(n)); err != nil {
			return err
		}
	}
}

func (rdr *Reader) readStrls() error {
	rdr.strls = map[string]string{}
	if _, err := rdr.r.Seek(rdr.seekStrls+7, io.SeekStart); err != nil {
		return err
	}
	for {
		tag := make([]byte, 3)
		if _, err := io.ReadFull(rdr.r, tag); err != nil || string(tag) != "GSO" {
			return nil
		}
		vo, err := rdr.read(rdr.lay.strlPtrLen)
		if err != nil {
			return err
		}
		t, err := rdr.readUint(1)
		if err != nil {
			return err
		}
		n, err := rdr.readUint(4)
		if err != nil {
			return err
		}
		data, err := rdr.read(n)
		if err != nil {
			return err
		}
		if t == 130 {
			data = partition(data)
		} else if t != 129 {
			return fmt.Errorf("unknown strl type %d", t)
		}
		rdr.strls[rdr.strlKey(vo)] = string(data)
	}
}

// strlKey maps a GSO (v,o) pair to the 8-byte form used in the data
// section. Format 118 stores v in 4 bytes and o in 8 in the GSO block but
// packs them into 2 and 6 bytes in the data.
func (rdr *Reader) strlKey(vo []byte) string {
	if len(vo) == 8 {
		return string(vo)
	}
	k := make([]byte, 8)
	if rdr.ByteOrder == binary.BigEndian {
		copy(k[0:2], vo[2:4])
		copy(k[2:8], vo[6:12])
	} else {
		copy(k[0:2], vo[0:2])
		copy(k[2:8], vo[4:10])
	}
	return string(k)
}

func (rdr *Reader) readValueLabels() error {
	if _, err := rdr.r.Seek(rdr.seekValueLabels+14, io.SeekStart); err != nil {
		return err
	}
	for {
		tag := make([]byte, 5)
		if _, err := io.ReadFull(rdr.r, tag); err != nil || string(tag) != "<lbl>" {
			return nil
		}
		n, err := rdr.readUint(4)
		if err != nil {
			return err
		}
		b, err := rdr.read(rdr.lay.nameLen)
		if err != nil {
			return err
		}
		name := string(partition(b))
		if err := rdr.skip(3); err != nil {
			return err
		}
		body, err := rdr.read(n)
		if err != nil {
			return err
		}
		if rdr.ValueLabels[name], err = rdr.parseLabelTable(body); err != nil {
			return fmt.Errorf("value labels %q: %w", name, err)
		}
		// </lbl>
		if err := rdr.skip(6); err != nil {
			return err
		}
	}
}

// readOldValueLabels reads the value label tables that follow the data in
// files older than 117.
func (rdr *Reader) readOldValueLabels() error {
	for {
		hdr := make([]byte, 4)
		if _, err := io.ReadFull(rdr.r, hdr); err != nil {
			return nil
		}
		n := int(rdr.ByteOrder.Uint32(hdr))
		b, err := rdr.read(rdr.lay.nameLen)
		if err != nil {
			return err
		}
		name := string(partition(b))
		if err := rdr.skip(3); err != nil {
			return err
		}
		body, err := rdr.read(n)
		if err != nil {
			return err
		}
		if rdr.ValueLabels[name], err = rdr.parseLabelTable(body); err != nil {
			return fmt.Errorf("value labels %q: %w", name, err)
		}
	}
}

func (rdr *Reader) parseLabelTable(b []byte) (map[int32]string, error) {
	if len(b) < 8 {
		return nil, ErrTruncated
	}
	bo := rdr.ByteOrder
	n := int(bo.Uint32(b[0:4]))
	txtlen := int(bo.Uint32(b[4:8]))
	if len(b) < 8+8*n+txtlen {
		return nil, ErrTruncated
	}
	txt := b[8+8*n : 8+8*n+txtlen]
	out := make(map[int32]string, n)
	for j := 0; j < n; j++ {
		off := int(bo.Uint32(b[8+4*j:]))
		val := int32(bo.Uint32(b[8+4*n+4*j:]))
		if off < 0 || off > len(txt) {
			return nil, fmt.Errorf("label offset %d out of range", off)
		}
		out[val] = string(partition(txt[off:]))
	}
	return out, nil
}

func (rdr *Reader) width(t int) int {
	switch {
	case t <= maxStrf:
		return t
	case t == typeStrL, t == typeDouble:
		return 8
	case t == typeFloat, t == typeLong:
		return 4
	case t == typeInt:
		return 2
	default:
		return 1
	}
}

// Read decodes all observations. Numeric variables are returned as float64
// with Stata missing values (. and .a through .z) flagged in Missing.
func (rdr *Reader) Read() ([]*Variable, error) {
	rowWidth := 0
	for _, t := range rdr.varTypes {
		if t > maxStrf && t != typeStrL && (t < typeDouble || t > typeByte) {
			return nil, fmt.Errorf("unknown variable type: %d", t)
		}
		rowWidth += rdr.width(t)
	}
	start := rdr.seekData + 6
	if rowWidth > 0 && int64(rdr.rowCount) > (rdr.size-start)/int64(rowWidth) {
		return nil, fmt.Errorf("%d observations of %d bytes exceed the data section: %w", rdr.rowCount, rowWidth, ErrTruncated)
	}

	vars := make([]*Variable, rdr.Nvar)
	for j, t := range rdr.varTypes {
		v := &Variable{
			Name:       rdr.names[j],
			Label:      rdr.varLabels[j],
			ValueLabel: rdr.valueLabelNames[j],
			IsString:   t <= maxStrf || t == typeStrL,
			Missing:    make([]bool, rdr.rowCount),
		}
		if v.IsString {
			v.Strings = make([]string, rdr.rowCount)
		} else {
			v.Numbers = make([]float64, rdr.rowCount)
		}
		vars[j] = v
	}
	if _, err := rdr.r.Seek(start, io.SeekStart); err != nil {
		return nil, err
	}

	bo := rdr.ByteOrder
	row := make([]byte, rowWidth)
	for i := 0; i < rdr.rowCount; i++ {
		if _, err := io.ReadFull(rdr.r, row); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, ErrTruncated)
		}
		off := 0
		for j, t := range rdr.varTypes {
			v := vars[j]
			w := rdr.width(t)
			cell := row[off : off+w]
			off += w
			switch {
			case t <= maxStrf:
				v.Strings[i] = string(partition(cell))
			case t == typeStrL:
				v.Strings[i] = rdr.strls[string(cell)]
			case t == typeDouble:
				x := math.Float64frombits(bo.Uint64(cell))
				v.Numbers[i] = x
				// Stata documents the negative bound as unused.
				v.Missing[i] = x > 8.988e307 || x < -8.988e307 || math.IsNaN(x)
			case t == typeFloat:
				x := math.Float32frombits(bo.Uint32(cell))
				v.Numbers[i] = float64(x)
				v.Missing[i] = x > 1.701e38 || x < -1.701e38
			case t == typeLong:
				x := int32(bo.Uint32(cell))
				v.Numbers[i] = float64(x)
				v.Missing[i] = x > 2147483620 || x < -2147483647
			case t == typeInt:
				x := int16(bo.Uint16(cell))
				v.Numbers[i] = float64(x)
				v.Missing[i] = x > 32740 || x < -32767
			case t == typeByte:
				x := int8(cell[0])
				v.Numbers[i] = float64(x)
				v.Missing[i] = x > 100 || x < -127
			}
			if v.Missing[i] && !v.IsString {
				v.Numbers[i] = 0
			}
		}
	}

	if rdr.old() {
		if err := rdr.readOldValueLabels(); err != nil {
			return nil, err
		}
	}
	return vars, nil
}
