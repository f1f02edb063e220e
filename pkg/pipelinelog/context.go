package pipelinelog

import "context"

type runKey struct{}

// WithRun attaches run to ctx so stages can record progress and artifacts
// without it being part of their signatures.
func WithRun(ctx context.Context, run *Run) context.Context {
	return context.WithValue(ctx, runKey{}, run)
}

// FromContext returns the run attached to ctx, or a run that records
// nothing.
func FromContext(ctx context.Context) *Run {
	if run, ok := ctx.Value(runKey{}).(*Run); ok && run != nil {
		return run
	}
	var l *Logger
	return l.For("", "")
}
