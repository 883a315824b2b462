package simulation

import (
	"context"
	"sync"
	"time"
)

// Stepper advances whatever is bound to the loop by one physics tick.
type Stepper interface {
	Step()
}

// StepperFunc adapts a plain function to the Stepper interface.
type StepperFunc func()

// Step calls f.
func (f StepperFunc) Step() { f() }

// Loop paces physics ticks against wall-clock time. One tick is one unit of physics
// time, so the rate only decides how fast shots play back to observers.
type Loop struct {
	interval time.Duration
	stepper  Stepper
	monitor  *TickMonitor

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLoop builds a loop ticking at targetHz. Non-positive rates fall back to 60Hz.
func NewLoop(targetHz float64, stepper Stepper, monitor *TickMonitor) *Loop {
	if targetHz <= 0 {
		targetHz = 60
	}
	if stepper == nil {
		stepper = StepperFunc(func() {})
	}
	interval := time.Duration(float64(time.Second) / targetHz)
	if interval <= 0 {
		interval = time.Second / 60
	}
	return &Loop{interval: interval, stepper: stepper, monitor: monitor}
}

// Start runs the loop in the background until ctx ends or Stop is called.
func (l *Loop) Start(ctx context.Context) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done != nil {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		l.Run(ctx)
	}(l.done)
}

// Run blocks, stepping at the configured interval until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	last := time.Now()
	var accumulator time.Duration
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			//1.- Catch up on missed ticks so playback speed stays constant under load.
			accumulator += now.Sub(last)
			last = now
			for accumulator >= l.interval {
				started := time.Now()
				l.stepper.Step()
				l.monitor.Observe(time.Since(started))
				accumulator -= l.interval
			}
		}
	}
}

// Stop cancels a loop started with Start and waits for it to exit.
func (l *Loop) Stop() {
	if l == nil {
		return
	}
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Interval returns the wall-clock time between ticks.
func (l *Loop) Interval() time.Duration {
	if l == nil {
		return 0
	}
	return l.interval
}
