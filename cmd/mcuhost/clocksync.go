package main

import "time"

// wallClockSync is a minimal mcu.ClockSync that assumes the MCU clock
// advances in lockstep with host wall-clock time from the moment of
// connection. Real clock drift estimation is the serial reader's job
// (out of scope here); this is only good enough to drive the CLI's
// comms-timeout and print-time pacing without a live byte-level
// transport wired up yet.
type wallClockSync struct {
	start     time.Time
	mcuFreq   float64
	lastClock uint64
	lastTime  time.Time
}

func newWallClockSync() *wallClockSync {
	now := time.Now()
	return &wallClockSync{start: now, mcuFreq: 0, lastTime: now}
}

func (w *wallClockSync) GetClock(eventtime time.Time) uint64 {
	clock := uint64(eventtime.Sub(w.start).Seconds() * w.freq())
	w.lastClock, w.lastTime = clock, eventtime
	return clock
}

func (w *wallClockSync) GetLastClock() (uint64, time.Time) {
	if w.lastTime.IsZero() {
		return w.GetClock(time.Now()), time.Now()
	}
	return w.lastClock, w.lastTime
}

func (w *wallClockSync) TranslateClock(clock32 uint32) uint64 {
	return uint64(clock32)
}

func (w *wallClockSync) freq() float64 {
	if w.mcuFreq == 0 {
		return 1
	}
	return w.mcuFreq
}
