package jobmanager

import (
	"context"

	"github.com/UniQw/jobmanager-go/internal/hctx"
)

// RunInfo describes the attempt a job is executing.
type RunInfo struct {
	JobID      string
	FactoryKey string
	// Attempt is 1 for the first attempt.
	Attempt int
}

// RunInfoFrom returns the attempt metadata the manager attached to ctx.
// It reports false when ctx does not come from the manager, e.g. when a job's
// Run is called directly from a test.
func RunInfoFrom(ctx context.Context) (RunInfo, bool) {
	st, ok := hctx.From(ctx)
	if !ok || st == nil {
		return RunInfo{}, false
	}
	return RunInfo{JobID: st.JobID, FactoryKey: st.FactoryKey, Attempt: st.Attempt}, true
}
