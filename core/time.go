// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"time"
)

// NewTime creates a new time service
func NewTime(cfg TimeConfiguration) *Time {
	var interval time.Duration
	if cfg.FramesPerSecond == 0 {
		interval = time.Nanosecond
	} else {
		interval = time.Second / (time.Duration)(cfg.FramesPerSecond)
	}

	pollDelay := time.Duration(cfg.EventPollDelay) * time.Millisecond
	if pollDelay <= 0 {
		pollDelay = time.Millisecond
	}

	return &Time{
		fps:            cfg.FramesPerSecond,
		fpsTicker:      time.NewTicker(interval),
		eventPollDelay: cfg.EventPollDelay,
		eventTicker:    time.NewTicker(pollDelay),
	}
}

// Time contains all the time services and tickers
type Time struct {
	fps       int
	fpsTicker *time.Ticker

	eventPollDelay int
	eventTicker    *time.Ticker
}

// Fps gets the set frames per second
func (t *Time) Fps() int {
	return t.fps
}

// FpsTicker gets the initialized fps ticker
func (t *Time) FpsTicker() *time.Ticker {
	return t.fpsTicker
}

// EventTicker gets the initialized event ticker for the event loop
func (t *Time) EventTicker() *time.Ticker {
	return t.eventTicker
}

// Stop stops both tickers
func (t *Time) Stop() {
	t.fpsTicker.Stop()
	t.eventTicker.Stop()
}

// FrameTime is a snapshot of the animation clock.
type FrameTime struct {
	// Number counts frames since the clock started, it never wraps
	// around a frames-in-flight bound
	Number  uint64
	Elapsed time.Duration
	Delta   time.Duration
}

// Clock is a monotonic frame counter for animation and scene logic.
// It is unrelated to the frame slot the renderer records into.
type Clock struct {
	now   func() time.Time
	start time.Time
	last  time.Time
	count uint64
}

// NewClock starts a clock at the current time
func NewClock() *Clock {
	return newClock(time.Now)
}

func newClock(now func() time.Time) *Clock {
	t := now()
	return &Clock{now: now, start: t, last: t}
}

// Tick advances the clock by one frame
func (c *Clock) Tick() FrameTime {
	t := c.now()
	ft := FrameTime{
		Number:  c.count,
		Elapsed: t.Sub(c.start),
		Delta:   t.Sub(c.last),
	}
	c.count++
	c.last = t
	return ft
}
