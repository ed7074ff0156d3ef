package cmd

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestScheduledJobSkipsOverlappingRun(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	job := scheduledJob(cronLogger{logger: zerolog.Nop()}, func() {
		if runs.Add(1) == 1 {
			close(started)
			<-release
		}
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		job.Run()
	}()
	<-started

	job.Run()
	assert.Equal(t, int32(1), runs.Load(), "tick during an immediate run is skipped")

	close(release)
	wg.Wait()

	job.Run()
	assert.Equal(t, int32(2), runs.Load())
}

func TestScheduledJobRecoversPanic(t *testing.T) {
	t.Parallel()

	job := scheduledJob(cronLogger{logger: zerolog.Nop()}, func() { panic("boom") })

	assert.NotPanics(t, job.Run)
}
