package table

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoColumn indicates a column name that the table does not have.
	ErrNoColumn = errors.New("no such column")
	// ErrDuplicateColumn indicates a column name clash.
	ErrDuplicateColumn = errors.New("duplicate column")
	// ErrLength indicates columns of unequal length.
	ErrLength = errors.New("column length mismatch")
	// ErrKind indicates an operation applied to the wrong kind of column.
	ErrKind = errors.New("wrong column kind")
)

// FormatError indicates an input file whose structure cannot be parsed.
type FormatError struct {
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("malformed dataset %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("malformed dataset: %v", e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// UnknownLabelError indicates a label that is not among a column's declared
// levels.
type UnknownLabelError struct {
	Column string
	Label  string
}

func (e *UnknownLabelError) Error() string {
	return fmt.Sprintf("column %q has no level %q", e.Column, e.Label)
}

// NonNumericLabelError indicates a label that cannot be read as a number
// during categorical-to-numeric conversion. Row is the first row carrying
// the label, or -1 if no row uses it.
type NonNumericLabelError struct {
	Column string
	Label  string
	Row    int
}

func (e *NonNumericLabelError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("column %q: label %q at row %d is not numeric (recode it first)", e.Column, e.Label, e.Row)
	}
	return fmt.Sprintf("column %q: declared label %q is not numeric (recode it first)", e.Column, e.Label)
}

// DuplicateKeyError indicates that more than one input row maps to the same
// (id, category) cell of a pivot.
type DuplicateKeyError struct {
	ID       []string
	Category string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate cell for id (%s) and category %q", strings.Join(e.ID, ", "), e.Category)
}

// MissingDataWarning is a non-fatal note that a metric had no values to
// work with in a group; the metric cell is left missing.
type MissingDataWarning struct {
	Group  string
	Metric string
	Reason string
}

func (w MissingDataWarning) String() string {
	return fmt.Sprintf("%s: %s is missing (%s)", w.Group, w.Metric, w.Reason)
}
