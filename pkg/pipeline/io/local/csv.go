package local

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/shpitdev/product-data-enhancer/pkg/pipeline/dataset"
)

const utf8BOM = "\ufeff"

// ReadCSV reads a CSV with a header row into a Dataset.
//
// Header names are trimmed; empty or duplicate names are rejected. Rows shorter than the
// header are padded with empty values.
func ReadCSV(r io.Reader) (dataset.Dataset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return dataset.Dataset{}, fmt.Errorf("read header: empty input")
	}
	if err != nil {
		return dataset.Dataset{}, fmt.Errorf("read header: %w", err)
	}

	columns := make([]string, len(header))
	seen := make(map[string]struct{}, len(header))
	for i, col := range header {
		if i == 0 {
			col = strings.TrimPrefix(col, utf8BOM)
		}
		name := strings.TrimSpace(col)
		if name == "" {
			return dataset.Dataset{}, fmt.Errorf("header column %d is empty", i+1)
		}
		if _, dup := seen[name]; dup {
			return dataset.Dataset{}, fmt.Errorf("duplicate header column %q", name)
		}
		seen[name] = struct{}{}
		columns[i] = name
	}

	ds := dataset.Dataset{Columns: columns}
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return ds, nil
		}
		if err != nil {
			return dataset.Dataset{}, fmt.Errorf("read row: %w", err)
		}
		line++
		if len(rec) > len(columns) {
			return dataset.Dataset{}, fmt.Errorf("row %d has %d columns, header has %d", line, len(rec), len(columns))
		}

		values := make(map[string]string, len(columns))
		for i, col := range columns {
			if i < len(rec) {
				values[col] = rec[i]
			} else {
				values[col] = ""
			}
		}
		ds.Rows = append(ds.Rows, dataset.NewRow(values))
	}
}

// WriteCSV writes the header followed by one record per row, in order.
func WriteCSV(w io.Writer, ds dataset.Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ds.Columns); err != nil {
		return err
	}
	rec := make([]string, len(ds.Columns))
	for _, r := range ds.Rows {
		for i, col := range ds.Columns {
			rec[i] = r.Get(col)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
