package jobmanager

import (
	"context"
	"testing"

	"github.com/UniQw/jobmanager-go/internal/hctx"
	"github.com/stretchr/testify/require"
)

func TestRunInfo_NoState(t *testing.T) {
	_, ok := RunInfoFrom(context.Background())
	require.False(t, ok)
}

func TestRunInfo_WithState(t *testing.T) {
	ctx := hctx.WithState(context.Background(), hctx.New("id-9", "Key", 3))
	info, ok := RunInfoFrom(ctx)
	require.True(t, ok)
	require.Equal(t, RunInfo{JobID: "id-9", FactoryKey: "Key", Attempt: 3}, info)
}
