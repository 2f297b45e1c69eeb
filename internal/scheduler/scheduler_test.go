package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semantica-dev/codectx/internal/indexer"
)

// fakeRunner records run requests and can simulate an active run.
type fakeRunner struct {
	mu           sync.Mutex
	fulls        int
	incrementals int
	busy         bool
	block        chan struct{} // When non-nil, RunFull blocks until closed
}

func (f *fakeRunner) RunFull(ctx context.Context) (*indexer.Result, error) {
	f.mu.Lock()
	if f.busy {
		f.mu.Unlock()
		return nil, indexer.ErrRunActive
	}
	f.fulls++
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	return &indexer.Result{Full: true}, nil
}

func (f *fakeRunner) StartFull(ctx context.Context, done func(*indexer.Result, error)) bool {
	f.mu.Lock()
	if f.busy {
		f.mu.Unlock()
		return false
	}
	f.fulls++
	block := f.block
	f.mu.Unlock()

	go func() {
		if block != nil {
			<-block
		}
		if done != nil {
			done(&indexer.Result{Full: true}, nil)
		}
	}()
	return true
}

func (f *fakeRunner) RunIncremental(ctx context.Context) (*indexer.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return nil, indexer.ErrRunActive
	}
	f.incrementals++
	return &indexer.Result{}, nil
}

func (f *fakeRunner) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fulls, f.incrementals
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestStartRunsFullIndexImmediately(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, WithInterval(time.Hour))

	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, func() bool {
		fulls, _ := runner.counts()
		return fulls == 1
	})
}

func TestTickerDrivesIncrementalRuns(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, WithInterval(10*time.Millisecond))

	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, func() bool {
		_, incs := runner.counts()
		return incs >= 2
	})
}

func TestTriggerFullAcceptsAndRuns(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, WithInterval(time.Hour))

	assert.True(t, s.TriggerFull(context.Background()))
	waitFor(t, func() bool {
		fulls, _ := runner.counts()
		return fulls == 1
	})
	s.Stop()
}

func TestBusyRunnerDropsTrigger(t *testing.T) {
	runner := &fakeRunner{busy: true}
	s := New(runner, WithInterval(time.Hour))

	// The refusal is synchronous: by the time TriggerFull returns false
	// the caller knows no run was started.
	assert.False(t, s.TriggerFull(context.Background()))
	s.Stop()

	fulls, incs := runner.counts()
	assert.Equal(t, 0, fulls)
	assert.Equal(t, 0, incs)
}

func TestRunDoneCallback(t *testing.T) {
	runner := &fakeRunner{}
	var mu sync.Mutex
	calls := 0
	s := New(runner, WithInterval(time.Hour), WithRunDone(func() {
		mu.Lock()
		calls++
		mu.Unlock()
	}))

	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	})
}

func TestStopWaitsForInFlightRun(t *testing.T) {
	block := make(chan struct{})
	runner := &fakeRunner{block: block}
	s := New(runner, WithInterval(time.Hour))

	s.Start(context.Background())
	waitFor(t, func() bool {
		fulls, _ := runner.counts()
		return fulls == 1
	})

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Stop returned while a run was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the run finished")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, WithInterval(time.Hour))

	ctx := context.Background()
	s.Start(ctx)
	s.Start(ctx)
	defer s.Stop()

	waitFor(t, func() bool {
		fulls, _ := runner.counts()
		return fulls >= 1
	})
	// A second Start must not spawn a second loop.
	time.Sleep(20 * time.Millisecond)
	fulls, _ := runner.counts()
	require.Equal(t, 1, fulls)
}
