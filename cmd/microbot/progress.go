package main

import (
	"fmt"
	"sync/atomic"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// progressPrinter shows a single-line status with remaining (countdown) or
// elapsed time. Single-use: Start at most once, Stop exactly once.
type progressPrinter struct {
	prefix    string
	duration  time.Duration // 0 = count up
	startTime time.Time
	ticker    atomic.Pointer[time.Ticker]
	stopChan  chan struct{}
	done      chan struct{}
}

// newProgressPrinter counts up (shows elapsed time) when duration is zero,
// otherwise counts down from duration.
func newProgressPrinter(prefix string, duration time.Duration) *progressPrinter {
	return &progressPrinter{prefix: prefix, duration: duration}
}

// Start begins displaying progress updates in a background goroutine.
func (p *progressPrinter) Start() {
	p.stopChan = make(chan struct{})
	p.done = make(chan struct{})
	p.startTime = time.Now()
	ticker := time.NewTicker(progressUpdateInterval)
	p.ticker.Store(ticker)

	fmt.Printf("\r%s...   ", p.prefix)

	go func() {
		defer close(p.done)
		for {
			select {
			case <-p.stopChan:
				return
			case <-ticker.C:
				elapsed := time.Since(p.startTime)
				seconds := int(elapsed.Seconds())
				if p.duration > 0 {
					remaining := p.duration - elapsed
					if remaining < 0 {
						remaining = 0
					}
					seconds = int(remaining.Seconds() + 0.5)
				}
				fmt.Printf("\r%s... %ds   ", p.prefix, seconds)
			}
		}
	}()
}

// Stop halts the display and clears the line. Safe to call multiple times.
func (p *progressPrinter) Stop() {
	ticker := p.ticker.Swap(nil)
	if ticker == nil {
		return // already stopped
	}
	ticker.Stop()
	close(p.stopChan)
	<-p.done
	fmt.Print(clearLineSequence)
}
