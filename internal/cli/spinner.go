package cli

import (
	"context"
	"sync"
	"time"
)

// frameSink displays spinner frames. Console implements it.
type frameSink interface {
	Tick(frame string)
	Clear()
}

// Spinner animates a progress indicator through a frameSink until stopped
// or until its context is cancelled.
type Spinner struct {
	message  string
	sink     frameSink
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopped  chan struct{}
	frames   []string
	once     sync.Once
	start    sync.Once
}

// newSpinnerWithContext creates a spinner that stops when ctx is cancelled.
func newSpinnerWithContext(ctx context.Context, message string, sink frameSink) *Spinner {
	spinnerCtx, cancel := context.WithCancel(ctx)
	return &Spinner{
		message:  message,
		sink:     sink,
		interval: 80 * time.Millisecond,
		ctx:      spinnerCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		frames:   []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
	}
}

// Start begins the animation. Calling it more than once has no effect.
func (s *Spinner) Start() {
	s.start.Do(func() {
		go s.run()
	})
}

func (s *Spinner) run() {
	defer close(s.stopped)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	i := 0
	for {
		select {
		case <-s.ctx.Done():
			s.sink.Clear()
			return
		case <-s.done:
			return
		case <-ticker.C:
			frame := s.frames[i%len(s.frames)]
			s.sink.Tick(frame + " " + s.message)
			i++
		}
	}
}

// Stop halts the animation and clears the frame. It is idempotent and safe
// to call on a spinner that was never started.
func (s *Spinner) Stop() {
	s.once.Do(func() {
		s.start.Do(func() { close(s.stopped) })
		s.cancel()
		close(s.done)
		<-s.stopped
		s.sink.Clear()
	})
}

// Cancelled reports whether the spinner's context was cancelled.
func (s *Spinner) Cancelled() bool {
	return s.ctx.Err() != nil
}
