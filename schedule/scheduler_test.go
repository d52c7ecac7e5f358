package schedule_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/sales-engine/schedule"
)

func TestRunner_SingleRunCommits(t *testing.T) {
	r := schedule.NewRunner(2)
	defer r.Close()

	var processed atomic.Int64
	var committed atomic.Bool

	h := r.Run(context.Background(), 5,
		func(i int) { processed.Add(1) },
		func() { committed.Store(true) },
	)
	<-h.Done()

	assert.Equal(t, int64(5), processed.Load())
	assert.True(t, h.Committed())
	assert.True(t, committed.Load())
	assert.False(t, h.Cancelled())
}

func TestRunner_StaleRunFinishesButIsDiscarded(t *testing.T) {
	// GIVEN: Two runs submitted back to back (the second supersedes the
	//        first before it starts processing)
	// WHEN: Both traversals finish
	// THEN: The first completes its work but its completion is dropped;
	//       only the latest run commits

	r := schedule.NewRunner(1)
	defer r.Close()

	var firstWork, secondWork atomic.Int64

	// Hold the first traversal until the second run is submitted, so the
	// supersession is deterministic.
	release := make(chan struct{})
	h1 := r.Run(context.Background(), 3, func(i int) {
		if i == 0 {
			<-release
		}
		firstWork.Add(1)
	}, func() {
		t.Error("stale completion must not fire")
	})
	h2 := r.Run(context.Background(), 3, func(i int) { secondWork.Add(1) }, func() {})
	close(release)

	<-h1.Done()
	<-h2.Done()

	assert.Equal(t, int64(3), firstWork.Load(), "superseded run still finishes its traversal")
	assert.False(t, h1.Committed())
	assert.True(t, h2.Committed())
}

func TestRunner_JobsRunSerializedInSubmissionOrder(t *testing.T) {
	r := schedule.NewRunner(1)
	defer r.Close()

	var order []int
	h1 := r.Run(context.Background(), 2, func(i int) { order = append(order, 1) }, nil)
	h2 := r.Run(context.Background(), 2, func(i int) { order = append(order, 2) }, nil)

	<-h1.Done()
	<-h2.Done()

	// No interleaving: the worker goroutine runs one job at a time.
	assert.Equal(t, []int{1, 1, 2, 2}, order)
}

func TestRunner_ContextCancellationStopsBetweenBatches(t *testing.T) {
	r := schedule.NewRunner(1)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())

	var processed atomic.Int64
	h := r.Run(ctx, 1000, func(i int) {
		if i == 0 {
			cancel()
		}
		processed.Add(1)
	}, func() {
		t.Error("cancelled run must not commit")
	})
	<-h.Done()

	require.True(t, h.Cancelled())
	assert.Less(t, processed.Load(), int64(1000))
}

func TestRunner_GenerationIncreasesPerRun(t *testing.T) {
	r := schedule.NewRunner(1)
	defer r.Close()

	before := r.Generation()
	h := r.Run(context.Background(), 1, func(int) {}, nil)
	<-h.Done()

	assert.Equal(t, before+1, r.Generation())
	assert.True(t, h.Committed(), "sole run is the latest generation")
}
