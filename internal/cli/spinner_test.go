package cli

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeSink struct {
	mu     sync.Mutex
	ticks  []string
	clears int
}

func (f *fakeSink) Tick(frame string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks = append(f.ticks, frame)
}

func (f *fakeSink) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
}

func (f *fakeSink) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ticks), f.clears
}

func fastSpinner(ctx context.Context, sink frameSink) *Spinner {
	s := newSpinnerWithContext(ctx, "resolving", sink)
	s.interval = time.Millisecond
	return s
}

func waitForTicks(t *testing.T, sink *fakeSink, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ticks, _ := sink.counts(); ticks >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("spinner did not tick %d times", n)
}

func TestSpinnerTicksThroughSink(t *testing.T) {
	sink := &fakeSink{}
	s := fastSpinner(context.Background(), sink)
	s.Start()
	waitForTicks(t, sink, 3)
	s.Stop()

	sink.mu.Lock()
	first := sink.ticks[0]
	sink.mu.Unlock()
	if !strings.HasSuffix(first, " resolving") {
		t.Errorf("frame = %q, want message suffix", first)
	}
	if _, clears := sink.counts(); clears == 0 {
		t.Error("Stop did not clear the frame")
	}
}

func TestSpinnerStopIsIdempotent(t *testing.T) {
	sink := &fakeSink{}
	s := fastSpinner(context.Background(), sink)
	s.Start()
	s.Stop()
	_, first := sink.counts()
	s.Stop()
	s.Stop()
	if _, clears := sink.counts(); clears != first {
		t.Errorf("clears = %d after repeated Stop, want %d", clears, first)
	}
}

func TestSpinnerStopWithoutStart(t *testing.T) {
	sink := &fakeSink{}
	s := fastSpinner(context.Background(), sink)
	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on a spinner that never started")
	}
	s.Start()
	if ticks, _ := sink.counts(); ticks != 0 {
		t.Errorf("stopped spinner ticked %d times", ticks)
	}
}

func TestSpinnerWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sink := &fakeSink{}
	s := fastSpinner(ctx, sink)
	s.Start()
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, clears := sink.counts(); clears > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if !s.Cancelled() {
		t.Error("Spinner should be cancelled after context cancellation")
	}
	if _, clears := sink.counts(); clears == 0 {
		t.Error("cancelled spinner did not clear its frame")
	}
	s.Stop()
}
