package completion

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/shpitdev/product-data-enhancer/pkg/pipeline/redact"
)

// Traced logs timing and outcome of every call to the wrapped Completer.
type Traced struct {
	next   Completer
	logger *log.Logger
	runID  string

	mu    sync.Mutex
	calls int
}

func NewTraced(next Completer, logger *log.Logger, runID string) *Traced {
	return &Traced{next: next, logger: logger, runID: runID}
}

func (t *Traced) Complete(ctx context.Context, system, user string) (string, error) {
	call := t.nextCall()

	deadlineIn := "none"
	if d, ok := ctx.Deadline(); ok {
		deadlineIn = time.Until(d).Round(time.Millisecond).String()
	}
	t.logger.Printf(
		"run=%s completion request: call=%d systemChars=%d promptChars=%d deadlineIn=%s",
		t.runID,
		call,
		len(system),
		len(user),
		deadlineIn,
	)

	start := time.Now()
	out, err := t.next.Complete(ctx, system, user)
	elapsed := time.Since(start).Round(time.Millisecond)

	if err != nil {
		t.logger.Printf(
			"run=%s completion response: call=%d duration=%s status=error error=%q",
			t.runID,
			call,
			elapsed,
			redact.Secrets(err.Error()),
		)
		return out, err
	}
	t.logger.Printf(
		"run=%s completion response: call=%d duration=%s status=ok responseChars=%d",
		t.runID,
		call,
		elapsed,
		len(out),
	)
	return out, nil
}

func (t *Traced) nextCall() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	return t.calls
}
