// Package dtatest writes small dta files (formats 114, 115, 117 and 118)
// for tests.
package dtatest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sort"
)

// Var describes one variable. String variables set Strings; numeric ones
// set Numbers and optionally Type ("byte", "int", "long", "float"; double
// when empty). Missing rows are written as the type's system missing value.
// StrL stores a string variable as strL (117+ only).
type Var struct {
	Name       string
	Label      string
	ValueLabel string
	Type       string
	StrL       bool
	Strings    []string
	Numbers    []float64
	Missing    []bool
}

// File is a dataset to write.
type File struct {
	// Version is 114, 115, 117 or 118. Zero means 117.
	Version int
	// BigEndian writes an MSF (HILO) file instead of LSF.
	BigEndian   bool
	Label       string
	Vars        []Var
	ValueLabels map[string]map[int32]string
}

type dims struct {
	name, format, varLabel, nobs, dsLabel int
}

var versionDims = map[int]dims{
	114: {name: 33, format: 49, varLabel: 81, nobs: 4},
	115: {name: 33, format: 49, varLabel: 81, nobs: 4},
	117: {name: 33, format: 49, varLabel: 81, nobs: 4, dsLabel: 1},
	118: {name: 129, format: 57, varLabel: 321, nobs: 8, dsLabel: 2},
}

const timeStamp = "19 Oct 2026 12:00"

type encoder struct {
	bytes.Buffer
	bo      binary.ByteOrder
	version int
	dims    dims
}

// Bytes encodes f. It panics on an unknown version or a strL variable in a
// pre-117 file.
func (f File) Bytes() []byte {
	v := f.Version
	if v == 0 {
		v = 117
	}
	d, ok := versionDims[v]
	if !ok {
		panic(fmt.Sprintf("dtatest: unsupported version %d", v))
	}
	e := &encoder{bo: binary.LittleEndian, version: v, dims: d}
	if f.BigEndian {
		e.bo = binary.BigEndian
	}
	if v < 117 {
		for _, vr := range f.Vars {
			if vr.StrL {
				panic("dtatest: strL needs format 117 or later")
			}
		}
		return e.old(f)
	}
	return e.xml(f)
}

// WriteFile writes f to path.
func (f File) WriteFile(path string) error {
	return os.WriteFile(path, f.Bytes(), 0o644)
}

func (f File) nobs() int {
	if len(f.Vars) == 0 {
		return 0
	}
	return len(f.Vars[0].Strings) + len(f.Vars[0].Numbers)
}

func (f File) labelNames() []string {
	names := make([]string, 0, len(f.ValueLabels))
	for n := range f.ValueLabels {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// old writes the sequential layout of formats 114 and 115.
func (e *encoder) old(f File) []byte {
	nobs := f.nobs()
	e.WriteByte(byte(e.version))
	if e.bo == binary.BigEndian {
		e.WriteByte(1)
	} else {
		e.WriteByte(2)
	}
	e.WriteByte(1) // filetype
	e.WriteByte(0)
	e.putUint(2, uint64(len(f.Vars)))
	e.putUint(4, uint64(nobs))
	e.fixed(f.Label, 81)
	e.fixed(timeStamp, 18)

	widths := make([]int, len(f.Vars))
	for j, v := range f.Vars {
		code, w := typeCode(v)
		widths[j] = w
		e.WriteByte(byte(oldTypeCode(code)))
	}
	for _, v := range f.Vars {
		e.fixed(v.Name, e.dims.name)
	}
	e.Write(make([]byte, 2*(len(f.Vars)+1)))
	for range f.Vars {
		e.fixed("%9.0g", e.dims.format)
	}
	for _, v := range f.Vars {
		e.fixed(v.ValueLabel, e.dims.name)
	}
	for _, v := range f.Vars {
		e.fixed(v.Label, e.dims.varLabel)
	}

	// one characteristic, then the terminating empty field
	if len(f.Vars) > 0 {
		var ch bytes.Buffer
		writeFixed(&ch, f.Vars[0].Name, e.dims.name)
		writeFixed(&ch, "note0", e.dims.name)
		ch.WriteString("1\x00")
		e.WriteByte(1)
		e.putUint(4, uint64(ch.Len()))
		e.Write(ch.Bytes())
	}
	e.WriteByte(0)
	e.putUint(4, 0)

	for i := 0; i < nobs; i++ {
		for j, v := range f.Vars {
			e.cell(v, j, widths[j], i)
		}
	}

	for _, n := range f.labelNames() {
		table := e.labelTable(f.ValueLabels[n])
		e.putUint(4, uint64(len(table)))
		e.fixed(n, e.dims.name)
		e.Write(make([]byte, 3))
		e.Write(table)
	}
	return e.Bytes()
}

// xml writes the tagged layout of formats 117 and 118.
func (e *encoder) xml(f File) []byte {
	nobs := f.nobs()
	order := "LSF"
	if e.bo == binary.BigEndian {
		order = "MSF"
	}
	fmt.Fprintf(e, "<stata_dta><header><release>%d</release><byteorder>%s</byteorder><K>", e.version, order)
	e.putUint(2, uint64(len(f.Vars)))
	e.WriteString("</K><N>")
	e.putUint(e.dims.nobs, uint64(nobs))
	e.WriteString("</N><label>")
	e.putUint(e.dims.dsLabel, uint64(len(f.Label)))
	e.WriteString(f.Label)
	e.WriteString("</label><timestamp>")
	e.putUint(1, uint64(len(timeStamp)))
	e.WriteString(timeStamp)
	e.WriteString("</timestamp></header>")

	mapPos := e.Len()
	e.WriteString("<map>")
	for i := 0; i < 14; i++ {
		e.putUint(8, 0)
	}
	e.WriteString("</map>")

	var offsets []uint64
	mark := func() { offsets = append(offsets, uint64(e.Len())) }

	widths := make([]int, len(f.Vars))
	mark()
	e.WriteString("<variable_types>")
	for j, v := range f.Vars {
		code, w := typeCode(v)
		widths[j] = w
		e.putUint(2, uint64(code))
	}
	e.WriteString("</variable_types>")

	mark()
	e.WriteString("<varnames>")
	for _, v := range f.Vars {
		e.fixed(v.Name, e.dims.name)
	}
	e.WriteString("</varnames>")

	mark()
	e.WriteString("<sortlist>")
	e.Write(make([]byte, 2*(len(f.Vars)+1)))
	e.WriteString("</sortlist>")

	mark()
	e.WriteString("<formats>")
	for range f.Vars {
		e.fixed("%9.0g", e.dims.format)
	}
	e.WriteString("</formats>")

	mark()
	e.WriteString("<value_label_names>")
	for _, v := range f.Vars {
		e.fixed(v.ValueLabel, e.dims.name)
	}
	e.WriteString("</value_label_names>")

	mark()
	e.WriteString("<variable_labels>")
	for _, v := range f.Vars {
		e.fixed(v.Label, e.dims.varLabel)
	}
	e.WriteString("</variable_labels>")

	mark()
	e.WriteString("<characteristics></characteristics>")

	mark()
	e.WriteString("<data>")
	for i := 0; i < nobs; i++ {
		for j, v := range f.Vars {
			e.cell(v, j, widths[j], i)
		}
	}
	e.WriteString("</data>")

	mark()
	e.WriteString("<strls>")
	for i := 0; i < nobs; i++ {
		for j, v := range f.Vars {
			if !v.StrL || (v.Missing != nil && v.Missing[i]) {
				continue
			}
			e.WriteString("GSO")
			if e.version == 117 {
				e.putUint(4, uint64(j+1))
				e.putUint(4, uint64(i+1))
			} else {
				e.putUint(4, uint64(j+1))
				e.putUint(8, uint64(i+1))
			}
			e.WriteByte(130)
			e.putUint(4, uint64(len(v.Strings[i])+1))
			e.WriteString(v.Strings[i])
			e.WriteByte(0)
		}
	}
	e.WriteString("</strls>")

	mark()
	e.WriteString("<value_labels>")
	for _, n := range f.labelNames() {
		table := e.labelTable(f.ValueLabels[n])
		e.WriteString("<lbl>")
		e.putUint(4, uint64(len(table)))
		e.fixed(n, e.dims.name)
		e.Write(make([]byte, 3))
		e.Write(table)
		e.WriteString("</lbl>")
	}
	e.WriteString("</value_labels>")

	mark()
	e.WriteString("</stata_dta>")
	mark()

	out := e.Bytes()
	// map: stata_data, map, then the recorded section offsets
	entries := append([]uint64{0, uint64(mapPos)}, offsets...)
	for i, off := range entries {
		e.bo.PutUint64(out[mapPos+5+8*i:], off)
	}
	return out
}

func typeCode(v Var) (code, width int) {
	if v.StrL {
		return 32768, 8
	}
	if v.Strings != nil {
		w := 1
		for _, s := range v.Strings {
			if len(s) > w {
				w = len(s)
			}
		}
		return w, w
	}
	switch v.Type {
	case "byte":
		return 65530, 1
	case "int":
		return 65529, 2
	case "long":
		return 65528, 4
	case "float":
		return 65527, 4
	default:
		return 65526, 8
	}
}

// oldTypeCode maps a 117 type code to the 114/115 typlist byte.
func oldTypeCode(code int) int {
	switch code {
	case 65530:
		return 251
	case 65529:
		return 252
	case 65528:
		return 253
	case 65527:
		return 254
	case 65526:
		return 255
	default:
		return code
	}
}

func (e *encoder) cell(v Var, j, width, i int) {
	miss := v.Missing != nil && v.Missing[i]
	if v.StrL {
		if miss {
			e.Write(make([]byte, 8))
			return
		}
		e.strlRef(j+1, i+1)
		return
	}
	if v.Strings != nil {
		s := v.Strings[i]
		if miss {
			s = ""
		}
		e.fixed(s, width)
		return
	}
	x := v.Numbers[i]
	switch v.Type {
	case "byte":
		if miss {
			x = 101
		}
		e.WriteByte(byte(int8(x)))
	case "int":
		if miss {
			x = 32741
		}
		e.putUint(2, uint64(uint16(int16(x))))
	case "long":
		if miss {
			x = 2147483621
		}
		e.putUint(4, uint64(uint32(int32(x))))
	case "float":
		bits := math.Float32bits(float32(x))
		if miss {
			bits = 0x7f000000
		}
		e.putUint(4, uint64(bits))
	default:
		bits := math.Float64bits(x)
		if miss {
			bits = 0x7fe0000000000000
		}
		e.putUint(8, bits)
	}
}

// strlRef writes the 8-byte (v,o) reference held in the data section: 4+4
// bytes in 117, 2+6 bytes in 118.
func (e *encoder) strlRef(v, o int) {
	if e.version == 117 {
		e.putUint(4, uint64(v))
		e.putUint(4, uint64(o))
		return
	}
	e.putUint(2, uint64(v))
	buf := make([]byte, 8)
	e.bo.PutUint64(buf, uint64(o))
	if e.bo == binary.BigEndian {
		e.Write(buf[2:])
	} else {
		e.Write(buf[:6])
	}
}

func (e *encoder) labelTable(mp map[int32]string) []byte {
	codes := make([]int32, 0, len(mp))
	for c := range mp {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(a, b int) bool { return codes[a] < codes[b] })

	var txt bytes.Buffer
	offs := make([]uint32, len(codes))
	for i, c := range codes {
		offs[i] = uint32(txt.Len())
		txt.WriteString(mp[c])
		txt.WriteByte(0)
	}

	t := &encoder{bo: e.bo}
	t.putUint(4, uint64(len(codes)))
	t.putUint(4, uint64(txt.Len()))
	for _, o := range offs {
		t.putUint(4, uint64(o))
	}
	for _, c := range codes {
		t.putUint(4, uint64(uint32(c)))
	}
	t.Write(txt.Bytes())
	return t.Bytes()
}

func (e *encoder) putUint(width int, x uint64) {
	buf := make([]byte, width)
	switch width {
	case 1:
		buf[0] = byte(x)
	case 2:
		e.bo.PutUint16(buf, uint16(x))
	case 4:
		e.bo.PutUint32(buf, uint32(x))
	case 8:
		e.bo.PutUint64(buf, x)
	}
	e.Write(buf)
}

func (e *encoder) fixed(s string, width int) {
	writeFixed(&e.Buffer, s, width)
}

func writeFixed(b *bytes.Buffer, s string, width int) {
	buf := make([]byte, width)
	copy(buf, s)
	b.Write(buf)
}
