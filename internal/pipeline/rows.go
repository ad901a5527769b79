package pipeline

import (
	"context"
	"time"

	"github.com/shpitdev/product-data-enhancer/internal/enrich"
	"github.com/shpitdev/product-data-enhancer/pkg/pipeline/core"
	"github.com/shpitdev/product-data-enhancer/pkg/pipeline/dataset"
	"github.com/shpitdev/product-data-enhancer/pkg/pipeline/schema"
	"github.com/shpitdev/product-data-enhancer/pkg/pipeline/worker"
)

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// NameStandardizer is the per-row transform of the standardize pipeline.
type NameStandardizer interface {
	Standardize(ctx context.Context, dishName string) enrich.Standardization
}

// AttributeExtractor is the per-row transform of the extract pipeline.
type AttributeExtractor interface {
	Extract(ctx context.Context, description string) enrich.Extraction
}

type Options struct {
	// RequestTimeout bounds each row's completion call. <=0 uses the worker default.
	RequestTimeout time.Duration
	// RateLimitRPS paces completion calls. <=0 disables pacing.
	RateLimitRPS float64
	// OnProgress, when set, is called after every row.
	OnProgress func(Progress)
}

// Progress reports one finished row.
type Progress struct {
	Done    int
	Total   int
	Outcome Outcome
}

// Outcome records how one row was enriched. Err is nil for StatusOK rows.
type Outcome struct {
	Row    int
	Input  string
	Status string
	Err    error
}

// Result is the enriched dataset plus one Outcome per row, in row order.
type Result struct {
	Dataset  dataset.Dataset
	Outcomes []Outcome
}

// Counts returns the number of ok and degraded rows.
func (r Result) Counts() (okRows int, degradedRows int) {
	for _, o := range r.Outcomes {
		if o.Status == StatusOK {
			okRows++
			continue
		}
		degradedRows++
	}
	return okRows, degradedRows
}

// Degraded returns the outcomes of rows that fell back to default values.
func (r Result) Degraded() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status != StatusOK {
			out = append(out, o)
		}
	}
	return out
}

// Standardize appends level1_standard_name and level2_standard_name to every row.
//
// A dataset without dish_name is rejected with a *core.ValidationError before any row is
// processed. Row failures degrade that row only.
func Standardize(ctx context.Context, ds dataset.Dataset, s NameStandardizer, opts Options) (Result, error) {
	contract := schema.Standardize
	if err := ds.Require(string(contract.Operation), contract.Required...); err != nil {
		return Result{}, err
	}

	return mapRows(ctx, ds, contract, schema.ColumnDishName, opts, func(ctx context.Context, row dataset.Row) (dataset.Row, error) {
		res := s.Standardize(ctx, row.Get(schema.ColumnDishName))
		return row.With(map[string]string{
			schema.ColumnLevel1Name: res.Name,
			schema.ColumnLevel2Name: res.Category,
		}), res.Err
	})
}

// Extract adds cuisine, main_ingredients, cooking_method and dietary_labels to every row.
//
// A dataset without dish_name or description is rejected with a *core.ValidationError before
// any row is processed. Row failures leave that row's attribute columns empty.
func Extract(ctx context.Context, ds dataset.Dataset, e AttributeExtractor, opts Options) (Result, error) {
	contract := schema.Extract
	if err := ds.Require(string(contract.Operation), contract.Required...); err != nil {
		return Result{}, err
	}

	empty := make(map[string]string, len(contract.Added))
	for _, c := range contract.Added {
		empty[c] = ""
	}

	return mapRows(ctx, ds, contract, schema.ColumnDescription, opts, func(ctx context.Context, row dataset.Row) (dataset.Row, error) {
		base := row.With(empty)
		res := e.Extract(ctx, row.Get(schema.ColumnDescription))
		return base.With(res.Attributes.Columns()), res.Err
	})
}

func mapRows(
	ctx context.Context,
	ds dataset.Dataset,
	contract schema.Contract,
	inputColumn string,
	opts Options,
	transform core.ProcessFunc[dataset.Row, dataset.Row],
) (Result, error) {
	total := ds.Len()
	onResult := func(r worker.Result[dataset.Row, dataset.Row]) error {
		if opts.OnProgress != nil {
			opts.OnProgress(Progress{
				Done:    r.Index + 1,
				Total:   total,
				Outcome: outcomeOf(r, inputColumn),
			})
		}
		return nil
	}

	out, err := worker.ProcessAllWithCallback(ctx, ds.Rows, transform.Process, onResult, worker.Options{
		RequestTimeout: opts.RequestTimeout,
		RateLimitRPS:   opts.RateLimitRPS,
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Dataset: dataset.Dataset{
			Columns: dataset.WithColumns(ds.Columns, contract.Added...),
			Rows:    make([]dataset.Row, 0, len(out)),
		},
		Outcomes: make([]Outcome, 0, len(out)),
	}
	for _, item := range out {
		res.Dataset.Rows = append(res.Dataset.Rows, item.Output)
		res.Outcomes = append(res.Outcomes, outcomeOf(item, inputColumn))
	}
	return res, nil
}

func outcomeOf(r worker.Result[dataset.Row, dataset.Row], inputColumn string) Outcome {
	o := Outcome{
		Row:    r.Index,
		Input:  r.Input.Get(inputColumn),
		Status: StatusOK,
	}
	if r.Err != nil {
		o.Status = StatusDegraded
		o.Err = r.Err
	}
	return o
}
