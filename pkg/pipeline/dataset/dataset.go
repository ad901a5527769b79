// Package dataset holds the tabular shape shared by every pipeline: an ordered header and an
// ordered sequence of rows keyed by column name.
package dataset

import (
	"github.com/shpitdev/product-data-enhancer/pkg/pipeline/core"
)

// Row maps column names to values. Rows are never mutated after construction; use With to
// derive a new row.
type Row struct {
	values map[string]string
}

// NewRow copies values into a new Row.
func NewRow(values map[string]string) Row {
	cp := make(map[string]string, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return Row{values: cp}
}

// Get returns the value for column, or "" when absent.
func (r Row) Get(column string) string {
	return r.values[column]
}

// Lookup returns the value for column and whether it is present.
func (r Row) Lookup(column string) (string, bool) {
	v, ok := r.values[column]
	return v, ok
}

// With returns a copy of r with values set, overwriting existing columns of the same name.
func (r Row) With(values map[string]string) Row {
	cp := make(map[string]string, len(r.values)+len(values))
	for k, v := range r.values {
		cp[k] = v
	}
	for k, v := range values {
		cp[k] = v
	}
	return Row{values: cp}
}

// Values returns a copy of the row's column -> value mapping.
func (r Row) Values() map[string]string {
	cp := make(map[string]string, len(r.values))
	for k, v := range r.values {
		cp[k] = v
	}
	return cp
}

// Dataset is an ordered header plus ordered rows. Every row carries every header column.
type Dataset struct {
	Columns []string
	Rows    []Row
}

// Len returns the number of rows.
func (d Dataset) Len() int {
	return len(d.Rows)
}

// HasColumn reports whether column is part of the header.
func (d Dataset) HasColumn(column string) bool {
	for _, c := range d.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// Column returns the values of column in row order.
func (d Dataset) Column(column string) []string {
	out := make([]string, len(d.Rows))
	for i, r := range d.Rows {
		out[i] = r.Get(column)
	}
	return out
}

// Require returns a *core.ValidationError naming every missing column, or nil.
func (d Dataset) Require(operation string, columns ...string) error {
	var missing []string
	for _, c := range columns {
		if !d.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &core.ValidationError{Operation: operation, Missing: missing}
}

// WithColumns returns columns followed by each name in added that is not already present.
func WithColumns(columns []string, added ...string) []string {
	out := make([]string, 0, len(columns)+len(added))
	out = append(out, columns...)
	seen := make(map[string]struct{}, len(out))
	for _, c := range out {
		seen[c] = struct{}{}
	}
	for _, c := range added {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
