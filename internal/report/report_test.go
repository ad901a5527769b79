package report_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shpitdev/product-data-enhancer/internal/pipeline"
	"github.com/shpitdev/product-data-enhancer/internal/report"
	"github.com/shpitdev/product-data-enhancer/pkg/pipeline/core"
)

func openJournal(t *testing.T) *report.Journal {
	t.Helper()
	j, err := report.Open(context.Background(), filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRecordRunAndDegraded(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	run := report.Run{
		ID:         report.NewRunID(),
		Operation:  "standardize",
		Provider:   "openai",
		Model:      "gpt-4o",
		Source:     "menu.csv",
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Second),
		Rows:       3,
		Degraded:   2,
	}
	outcomes := []pipeline.Outcome{
		{Row: 0, Input: "burge chicken", Status: pipeline.StatusOK},
		{Row: 1, Input: "broken", Status: pipeline.StatusDegraded, Err: &core.ServiceError{
			Provider:   "openai",
			StatusCode: 401,
			Message:    "bad key Bearer sk-abcdefghijklmnopqrstuvwx",
		}},
		{Row: 2, Input: "veg piz", Status: pipeline.StatusDegraded, Err: core.NewParseError("standardize", "Veg Pizza", errors.New("expected 2 tokens, got 1"))},
	}
	if err := j.RecordRun(ctx, run, outcomes); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	runs, err := j.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	got := runs[0]
	if got.ID != run.ID || got.Operation != "standardize" || got.Model != "gpt-4o" || got.Source != "menu.csv" {
		t.Fatalf("unexpected run: %#v", got)
	}
	if !got.StartedAt.Equal(run.StartedAt) || !got.FinishedAt.Equal(run.FinishedAt) {
		t.Fatalf("timestamps mismatch: %#v", got)
	}
	if got.Rows != 3 || got.Degraded != 2 {
		t.Fatalf("counts mismatch: rows=%d degraded=%d", got.Rows, got.Degraded)
	}

	degraded, err := j.Degraded(ctx, run.ID)
	if err != nil {
		t.Fatalf("Degraded: %v", err)
	}
	if len(degraded) != 2 {
		t.Fatalf("expected 2 degraded rows, got %d", len(degraded))
	}
	if degraded[0].Row != 1 || degraded[0].Input != "broken" || degraded[1].Row != 2 {
		t.Fatalf("unexpected degraded rows: %#v", degraded)
	}
	if strings.Contains(degraded[0].Error, "sk-abcdefghijklmnopqrstuvwx") {
		t.Fatalf("secret leaked into journal: %q", degraded[0].Error)
	}
	if !strings.Contains(degraded[0].Error, "status=401") {
		t.Fatalf("expected status in error text, got %q", degraded[0].Error)
	}
}

func TestListRunsNewestFirstWithLimit(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		id := report.NewRunID()
		ids = append(ids, id)
		start := base.Add(time.Duration(i) * time.Hour)
		if err := j.RecordRun(ctx, report.Run{
			ID:         id,
			Operation:  "extract",
			StartedAt:  start,
			FinishedAt: start.Add(time.Minute),
		}, nil); err != nil {
			t.Fatalf("RecordRun %d: %v", i, err)
		}
	}

	runs, err := j.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != ids[2] || runs[1].ID != ids[1] {
		t.Fatalf("unexpected order: %#v", runs)
	}
}

func TestRecordRunRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t)

	run := report.Run{ID: report.NewRunID(), Operation: "extract", StartedAt: time.Now(), FinishedAt: time.Now()}
	if err := j.RecordRun(ctx, run, nil); err != nil {
		t.Fatalf("first RecordRun: %v", err)
	}
	if err := j.RecordRun(ctx, run, nil); err == nil {
		t.Fatalf("expected duplicate run id to fail")
	}
}

func TestRecordRunRequiresID(t *testing.T) {
	j := openJournal(t)
	if err := j.RecordRun(context.Background(), report.Run{Operation: "extract"}, nil); err == nil {
		t.Fatalf("expected error for empty run id")
	}
}

func TestDegradedUnknownRun(t *testing.T) {
	j := openJournal(t)
	_, err := j.Degraded(context.Background(), "01NOPE")
	if !errors.Is(err, report.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")
	for i := 0; i < 2; i++ {
		j, err := report.Open(ctx, path)
		if err != nil {
			t.Fatalf("Open #%d: %v", i+1, err)
		}
		if err := j.Close(); err != nil {
			t.Fatalf("Close #%d: %v", i+1, err)
		}
	}
}

func TestNewRunIDIsMonotonic(t *testing.T) {
	prev := report.NewRunID()
	for i := 0; i < 100; i++ {
		next := report.NewRunID()
		if next <= prev {
			t.Fatalf("run ids not increasing: %s then %s", prev, next)
		}
		prev = next
	}
}

func TestRecordRunConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t)

	const writers = 16
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			now := time.Now()
			errs <- j.RecordRun(ctx, report.Run{
				ID:         report.NewRunID(),
				Operation:  "standardize",
				StartedAt:  now,
				FinishedAt: now,
				Rows:       1,
				Degraded:   1,
			}, []pipeline.Outcome{
				{Row: 0, Input: fmt.Sprintf("dish %d", i), Status: pipeline.StatusDegraded, Err: errors.New("boom")},
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent RecordRun: %v", err)
		}
	}

	runs, err := j.ListRuns(ctx, 100)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != writers {
		t.Fatalf("expected %d runs, got %d", writers, len(runs))
	}
	for _, r := range runs {
		rows, err := j.Degraded(ctx, r.ID)
		if err != nil || len(rows) != 1 {
			t.Fatalf("run %s: degraded=%v err=%v", r.ID, rows, err)
		}
	}
}
