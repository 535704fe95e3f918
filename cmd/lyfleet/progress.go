package main

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter displays a status line with elapsed time on a terminal.
//
// Usage:
//
//	p := NewProgressPrinter(os.Stderr, "Downloading history", "Connecting")
//	p.Start()
//	defer p.Stop()
//
// On anything but a terminal the printer stays silent.
type ProgressPrinter struct {
	w       io.Writer
	prefix  string
	phase   atomic.Value // string
	enabled bool

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewProgressPrinter creates a progress printer writing to w.
func NewProgressPrinter(w io.Writer, prefix, phase string) *ProgressPrinter {
	p := &ProgressPrinter{
		w:       w,
		prefix:  prefix,
		enabled: isTerminal(w),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	p.phase.Store(phase)
	return p
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressPrinter) Start() {
	p.startOnce.Do(func() {
		if !p.enabled {
			close(p.done)
			return
		}
		go p.loop()
	})
}

func (p *ProgressPrinter) loop() {
	defer close(p.done)

	start := time.Now()
	ticker := time.NewTicker(progressUpdateInterval)
	defer ticker.Stop()

	p.print(0)
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.print(int(time.Since(start).Seconds()))
		}
	}
}

// print displays a progress line with optional elapsed seconds
func (p *ProgressPrinter) print(seconds int) {
	phase := p.phase.Load().(string)
	if seconds > 0 {
		fmt.Fprintf(p.w, "\r%s (%s %ds)   ", p.prefix, phase, seconds)
	} else {
		fmt.Fprintf(p.w, "\r%s (%s...)   ", p.prefix, phase)
	}
}

// SetPhase updates the phase shown. Safe for concurrent use.
func (p *ProgressPrinter) SetPhase(phase string) {
	p.phase.Store(phase)
}

// Stop stops the progress display and clears the line. Safe to call more than once.
func (p *ProgressPrinter) Stop() {
	p.stopOnce.Do(func() {
		p.startOnce.Do(func() { close(p.done) })
		close(p.stop)
		<-p.done
		if p.enabled {
			fmt.Fprint(p.w, clearLineSequence)
		}
	})
}
