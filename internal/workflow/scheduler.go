// Package workflow runs the assessment pipelines over targets. Scheduler
// is the outer bounded pool, one pipeline per target, which records the
// fully processed targets in the state store. SubScans is the inner pool
// of a single target.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/algohub/algohub/internal/log"
	"github.com/algohub/algohub/internal/model"
	"github.com/algohub/algohub/internal/parallel"
	"github.com/algohub/algohub/internal/state"
	"github.com/google/uuid"
)

var (
	ErrPanic            = errors.New("pipeline panicked")
	ErrNothingCollected = errors.New("nothing collected")
)

// Pipeline processes a single target. A nil error means the target is done
// and must not be processed again. Best-effort steps are recorded in steps.
type Pipeline func(ctx context.Context, target string, steps *Steps) error

type Scheduler struct {
	Store    *state.Store
	Category model.Category
	Limit    int
}

type TargetResult struct {
	Target  string
	Err     error
	Steps   []Step
	Elapsed time.Duration
	Marked  bool
}

type Summary struct {
	RunID     string
	Category  model.Category
	Attempted int
	Succeeded int
	// Skipped targets were already scanned by a previous run
	Skipped []string
	// Results are in the completion order
	Results []TargetResult
}

func (s Summary) Failed() []TargetResult {
	var ret []TargetResult
	for _, r := range s.Results {
		if r.Err != nil {
			ret = append(ret, r)
		}
	}
	return ret
}

// Run executes p for every target not yet marked in the store, at most Limit
// at once. A failing pipeline neither stops nor delays the others, Run waits
// for all of them. The error is reserved for failures of the state store.
func (s Scheduler) Run(ctx context.Context, targets []string, p Pipeline) (Summary, error) {
	summary := Summary{
		RunID:    uuid.NewString(),
		Category: s.Category,
	}
	ctx = log.ContextAttrs(ctx,
		slog.String("run_id", summary.RunID),
		slog.String("category", s.Category.String()),
	)

	pending, done, err := s.Store.Filter(s.Category, dedupe(targets))
	if err != nil {
		return summary, err
	}
	summary.Skipped = done
	for _, t := range done {
		slog.InfoContext(ctx, "already scanned, skipping", "target", t)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "nothing to scan")
		return summary, nil
	}

	limit := min(max(s.Limit, 1), len(pending))
	slog.InfoContext(ctx, "scan started", "pending", len(pending), "workers", limit)

	var storeErrs []error
	m := parallel.NewMap(ctx, limit, func(ctx context.Context, target string) (TargetResult, error) {
		return s.process(ctx, target, p)
	})
	for res, err := range m.Iter(parallel.FromSlice(pending)) {
		if err != nil {
			storeErrs = append(storeErrs, err)
		}
		summary.Attempted++
		if res.Marked {
			summary.Succeeded++
		}
		summary.Results = append(summary.Results, res)
	}

	slog.InfoContext(ctx, "scan finished",
		"attempted", summary.Attempted,
		"succeeded", summary.Succeeded,
		"skipped", len(summary.Skipped),
	)
	return summary, errors.Join(storeErrs...)
}

func (s Scheduler) process(ctx context.Context, target string, p Pipeline) (TargetResult, error) {
	ctx = log.ContextAttrs(ctx, slog.String("target", target))
	res := runPipeline(ctx, target, p)

	switch {
	case res.Err != nil:
		slog.ErrorContext(ctx, "pipeline failed", "error", res.Err, "elapsed", res.Elapsed.String())
		return res, nil
	case ctx.Err() != nil:
		res.Err = ctx.Err()
		slog.WarnContext(ctx, "pipeline interrupted, not marked", "elapsed", res.Elapsed.String())
		return res, nil
	}

	if err := s.Store.MarkScanned(s.Category, target); err != nil {
		res.Err = err
		return res, fmt.Errorf("marking %s: %w", target, err)
	}
	res.Marked = true
	slog.InfoContext(ctx, "pipeline finished", "elapsed", res.Elapsed.String())
	return res, nil
}

func runPipeline(ctx context.Context, target string, p Pipeline) (res TargetResult) {
	started := time.Now()
	steps := &Steps{}
	res.Target = target
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("%w: %v", ErrPanic, r)
			slog.ErrorContext(ctx, "pipeline panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
		res.Steps = steps.List()
		res.Elapsed = time.Since(started)
	}()
	res.Err = p(ctx, target, steps)
	return res
}

func dedupe(targets []string) []string {
	seen := make(map[string]struct{}, len(targets))
	ret := make([]string, 0, len(targets))
	for _, t := range targets {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		ret = append(ret, t)
	}
	return ret
}

// Step is an outcome of one step of a pipeline
type Step struct {
	Name    string
	Err     error
	Skipped bool
	Elapsed time.Duration
}

// Steps collects the steps of a pipeline, it is safe for a concurrent use
type Steps struct {
	mx    sync.Mutex
	steps []Step
}

// Run executes fn as a step called name and records its outcome.
// The error is returned, so the caller decides if it is fatal.
func (s *Steps) Run(ctx context.Context, name string, fn func(context.Context) error) error {
	started := time.Now()
	err := fn(ctx)
	s.add(Step{Name: name, Err: err, Elapsed: time.Since(started)})
	if err != nil {
		slog.WarnContext(ctx, "step failed", "step", name, "error", err)
	}
	return err
}

// Skip records a step which did not run
func (s *Steps) Skip(ctx context.Context, name, reason string) {
	s.add(Step{Name: name, Skipped: true})
	slog.InfoContext(ctx, "step skipped", "step", name, "reason", reason)
}

func (s *Steps) add(step Step) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.steps = append(s.steps, step)
}

func (s *Steps) List() []Step {
	s.mx.Lock()
	defer s.mx.Unlock()
	return slices.Clone(s.steps)
}
