// Package render prints tables for human inspection as Markdown, HTML or
// CSV.
package render

import (
	"embed"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/google/safehtml/template"

	"github.com/KaramelBytes/surveyloom/internal/table"
)

//go:embed templates/*
var templateFS embed.FS

// Format names an output format.
type Format string

const (
	Markdown Format = "markdown"
	HTML     Format = "html"
	CSV      Format = "csv"
)

// ParseFormat reads a format name; "md" is accepted for Markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "markdown", "md", "":
		return Markdown, nil
	case "html":
		return HTML, nil
	case "csv":
		return CSV, nil
	}
	return "", fmt.Errorf("unknown output format %q (want markdown, html or csv)", s)
}

// Options controls rendering.
type Options struct {
	Title string
	// Precision is the number of decimals for non-integral numbers.
	Precision int
	// Notes are printed under the table (ignored by CSV).
	Notes []string
	// MissingText replaces missing cells; empty means "NA" (Markdown, HTML)
	// or an empty field (CSV).
	MissingText string
}

// Table writes t in format f.
func Table(w io.Writer, t *table.Table, f Format, opts Options) error {
	switch f {
	case Markdown:
		_, err := io.WriteString(w, MarkdownString(t, opts))
		return err
	case HTML:
		return WriteHTML(w, t, opts)
	case CSV:
		return WriteCSV(w, t, opts)
	}
	return fmt.Errorf("unknown output format %q", f)
}

// Cell formats one value.
func Cell(v table.Value, kind table.Kind, precision int) string {
	if !v.Valid {
		return ""
	}
	if kind == table.Categorical {
		return v.Str
	}
	return Number(v.Num, precision)
}

// Number prints x with at most precision decimals, without trailing zeros.
func Number(x float64, precision int) string {
	if math.Abs(x) < 1e15 && x == math.Trunc(x) {
		return strconv.FormatInt(int64(x), 10)
	}
	s := strconv.FormatFloat(x, 'f', precision, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	if s == "-0" {
		s = "0"
	}
	return s
}

func cells(t *table.Table, opts Options, missing string) [][]string {
	cols := t.Columns()
	out := make([][]string, t.NumRows())
	for i := range out {
		row := make([]string, len(cols))
		for j, c := range cols {
			v := c.At(i)
			if !v.Valid {
				row[j] = missing
				continue
			}
			row[j] = Cell(v, c.Kind(), opts.Precision)
		}
		out[i] = row
	}
	return out
}

// MarkdownString renders t as a titled pipe table.
func MarkdownString(t *table.Table, opts Options) string {
	missing := opts.MissingText
	if missing == "" {
		missing = "NA"
	}
	var b strings.Builder
	if opts.Title != "" {
		b.WriteString(fmt.Sprintf("[%s]\n", strings.ToUpper(opts.Title)))
	}
	names := t.Names()
	b.WriteString("| ")
	for i, n := range names {
		if i > 0 {
			b.WriteString(" | ")
		}
		b.WriteString(safeVal(n))
	}
	b.WriteString(" |\n|")
	for range names {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")
	for _, row := range cells(t, opts, missing) {
		b.WriteString("| ")
		for i, s := range row {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(safeVal(s))
		}
		b.WriteString(" |\n")
	}
	if len(opts.Notes) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, n := range opts.Notes {
			b.WriteString("- ")
			b.WriteString(n)
			b.WriteString("\n")
		}
	}
	return b.String()
}

type htmlCell struct {
	Text    string
	Missing bool
}

type htmlView struct {
	Title   string
	Headers []string
	Rows    [][]htmlCell
	Notes   []string
}

var tableTemplate = template.Must(template.New("table.html").ParseFS(template.TrustedFSFromEmbed(templateFS), "templates/table.html"))

// WriteHTML renders t as an HTML table fragment. All text is escaped.
func WriteHTML(w io.Writer, t *table.Table, opts Options) error {
	missing := opts.MissingText
	if missing == "" {
		missing = "NA"
	}
	vm := htmlView{Title: opts.Title, Headers: t.Names(), Notes: opts.Notes}
	cols := t.Columns()
	for i := 0; i < t.NumRows(); i++ {
		row := make([]htmlCell, len(cols))
		for j, c := range cols {
			v := c.At(i)
			if !v.Valid {
				row[j] = htmlCell{Text: missing, Missing: true}
				continue
			}
			row[j] = htmlCell{Text: Cell(v, c.Kind(), opts.Precision)}
		}
		vm.Rows = append(vm.Rows, row)
	}
	return tableTemplate.Execute(w, vm)
}

// WriteCSV writes t with a header row through a gota data frame.
func WriteCSV(w io.Writer, t *table.Table, opts Options) error {
	if t.NumCols() == 0 {
		return nil
	}
	rows := cells(t, opts, opts.MissingText)
	ss := make([]series.Series, t.NumCols())
	for j, name := range t.Names() {
		vals := make([]string, len(rows))
		for i, row := range rows {
			vals[i] = row[j]
		}
		ss[j] = series.New(vals, series.String, name)
	}
	df := dataframe.New(ss...)
	if df.Err != nil {
		return fmt.Errorf("build frame: %w", df.Err)
	}
	return df.WriteCSV(w)
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
