package pprof

import (
	"context"
	"runtime/pprof"
)

// PhaseLabel is the profiler label key every phase runs under.
const PhaseLabel = "phase"

// Labeled runs fn with the phase label attached to ctx and to the calling
// goroutine. Goroutines fn starts inherit the label.
func Labeled(ctx context.Context, phase string, fn func(ctx context.Context) error) error {
	var err error
	pprof.Do(ctx, pprof.Labels(PhaseLabel, phase), func(ctx context.Context) {
		err = fn(ctx)
	})
	return err
}

// Phase returns the phase label carried by ctx.
func Phase(ctx context.Context) (string, bool) {
	return pprof.Label(ctx, PhaseLabel)
}
