package consumer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shpitdev/product-data-enhancer/pkg/pipeline/core"
	"github.com/shpitdev/product-data-enhancer/pkg/pipeline/dataset"
	"github.com/shpitdev/product-data-enhancer/pkg/pipeline/io/local"
	"github.com/shpitdev/product-data-enhancer/pkg/pipeline/redact"
	"github.com/shpitdev/product-data-enhancer/pkg/pipeline/schema"
	"github.com/shpitdev/product-data-enhancer/pkg/pipeline/worker"
)

// upper is a toy row processor built only from the public pipeline kit.
func upper(_ context.Context, row dataset.Row) (dataset.Row, error) {
	name := strings.TrimSpace(row.Get(schema.ColumnDishName))
	if name == "" {
		return row, errors.New("empty dish name")
	}
	return row.With(map[string]string{schema.ColumnLevel1Name: strings.ToUpper(name)}), nil
}

func TestPublicPackagesCompose(t *testing.T) {
	t.Parallel()

	ds, err := local.ReadCSV(strings.NewReader("dish_name\nveg piz\n\n"))
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if err := ds.Require("consumer", schema.Standardize.Required...); err != nil {
		t.Fatalf("Require failed: %v", err)
	}

	runner := core.ProcessFunc[dataset.Row, dataset.Row](upper)
	out, err := worker.ProcessAll(context.Background(), ds.Rows, runner.Process, worker.Options{})
	if err != nil {
		t.Fatalf("ProcessAll failed: %v", err)
	}

	enriched := dataset.Dataset{Columns: dataset.WithColumns(ds.Columns, schema.ColumnLevel1Name)}
	for _, r := range out {
		enriched.Rows = append(enriched.Rows, r.Output)
	}
	var buf bytes.Buffer
	if err := local.WriteCSV(&buf, enriched); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}
	if buf.String() != "dish_name,level1_standard_name\nveg piz,VEG PIZ\n" {
		t.Fatalf("unexpected output: %q", buf.String())
	}

	if got := redact.Secrets("Authorization: Bearer abc.def"); strings.Contains(got, "abc.def") {
		t.Fatalf("redact.Secrets leaked token: %q", got)
	}
}
