package worker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Status is the result of one task.
type Status string

const (
	StatusDone    Status = "done"
	StatusCached  Status = "cached"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Outcome is the result of one per-segment task.
type Outcome struct {
	ID      int
	Status  Status
	Detail  string
	Err     error
	Elapsed time.Duration
}

// Task processes a single segment. Returning a non-nil error marks the
// outcome failed regardless of the status returned.
type Task struct {
	ID  int
	Run func(ctx context.Context) (Status, string, error)
}

// Summary collects outcomes keyed by segment id.
type Summary struct {
	mu       sync.Mutex
	outcomes map[int]Outcome
}

// NewSummary creates an empty Summary.
func NewSummary() *Summary {
	return &Summary{outcomes: make(map[int]Outcome)}
}

// Record stores o, replacing any earlier outcome for the same id.
func (s *Summary) Record(o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[o.ID] = o
}

// Get returns the outcome recorded for id.
func (s *Summary) Get(id int) (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.outcomes[id]
	return o, ok
}

// Outcomes returns every outcome in id order.
func (s *Summary) Outcomes() []Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Outcome, 0, len(s.outcomes))
	for _, o := range s.outcomes {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns how many tasks ended with st.
func (s *Summary) Count(st Status) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, o := range s.outcomes {
		if o.Status == st {
			n++
		}
	}
	return n
}

// Failed returns the ids of failed tasks in order.
func (s *Summary) Failed() []int {
	var ids []int
	for _, o := range s.Outcomes() {
		if o.Status == StatusFailed {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

// Err is non-nil when any task failed.
func (s *Summary) Err() error {
	failed := s.Failed()
	if len(failed) == 0 {
		return nil
	}
	parts := make([]string, len(failed))
	for i, id := range failed {
		parts[i] = fmt.Sprint(id)
	}
	return errors.Errorf("%d segment(s) failed: %s", len(failed), strings.Join(parts, ", "))
}

func (s *Summary) String() string {
	return fmt.Sprintf("%d done, %d cached, %d skipped, %d failed",
		s.Count(StatusDone), s.Count(StatusCached), s.Count(StatusSkipped), s.Count(StatusFailed))
}

// Run executes tasks with at most workers running at once. workers <= 1 runs
// them one by one in the given order. A failing task never stops its
// siblings; a cancelled ctx stops new tasks from starting and they are
// recorded as skipped.
func Run(ctx context.Context, workers int, tasks []Task) *Summary {
	sum := NewSummary()
	if workers < 1 {
		workers = 1
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for _, t := range tasks {
		t := t
		if ctx.Err() != nil {
			sum.Record(Outcome{ID: t.ID, Status: StatusSkipped, Detail: "cancelled", Err: ctx.Err()})
			continue
		}
		g.Go(func() error {
			sum.Record(runOne(ctx, t))
			return nil
		})
	}
	_ = g.Wait()
	return sum
}

func runOne(ctx context.Context, t Task) (o Outcome) {
	o.ID = t.ID
	if err := ctx.Err(); err != nil {
		o.Status, o.Detail, o.Err = StatusSkipped, "cancelled", err
		return o
	}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.Status, o.Err = StatusFailed, errors.Errorf("panic: %v", r)
		}
		o.Elapsed = time.Since(start)
	}()
	st, detail, err := t.Run(ctx)
	o.Status, o.Detail, o.Err = st, detail, err
	if err != nil {
		o.Status = StatusFailed
	}
	if o.Status == "" {
		o.Status = StatusDone
	}
	return o
}
