package core

import "context"

// Processor maps one item (typically a dataset row) to its enriched counterpart.
//
// Implementations must not fail the whole run for a single item: a returned error marks that
// item as degraded and the output value is still used.
type Processor[In any, Out any] interface {
	Process(ctx context.Context, in In) (Out, error)
}

// ProcessFunc adapts a function to the Processor interface.
type ProcessFunc[In any, Out any] func(ctx context.Context, in In) (Out, error)

func (f ProcessFunc[In, Out]) Process(ctx context.Context, in In) (Out, error) {
	return f(ctx, in)
}
