package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/algohub/algohub/internal/log"
	"github.com/algohub/algohub/internal/parallel"
)

// SubScan is an independent unit of work of a single target
type SubScan struct {
	Name string
	Run  func(ctx context.Context) error
}

type SubScanResult struct {
	Name    string
	Err     error
	Elapsed time.Duration
}

// SubScans runs the scans at most limit at once and waits for all of them.
// The results come in the completion order. A failing or panicking scan
// does not affect the others.
func SubScans(ctx context.Context, limit int, scans []SubScan) []SubScanResult {
	if len(scans) == 0 {
		return nil
	}
	limit = min(max(limit, 1), len(scans))

	ret := make([]SubScanResult, 0, len(scans))
	m := parallel.NewMap(ctx, limit, func(ctx context.Context, s SubScan) (SubScanResult, error) {
		return runSubScan(log.ContextAttrs(ctx, slog.String("subscan", s.Name)), s), nil
	})
	for res := range m.Iter(parallel.FromSlice(scans)) {
		ret = append(ret, res)
	}
	return ret
}

func runSubScan(ctx context.Context, s SubScan) (res SubScanResult) {
	started := time.Now()
	res.Name = s.Name
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("%w: %s: %v", ErrPanic, s.Name, r)
			slog.ErrorContext(ctx, "subscan panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
		res.Elapsed = time.Since(started)
		if res.Err != nil {
			slog.WarnContext(ctx, "subscan failed", "error", res.Err, "elapsed", res.Elapsed.String())
		} else {
			slog.InfoContext(ctx, "subscan finished", "elapsed", res.Elapsed.String())
		}
	}()
	res.Err = s.Run(ctx)
	return res
}
