package mcu

import "time"

// ClockSync is the narrow interface onto the byte-level serial
// reader's clock estimation: converting between host wall-clock time
// and the MCU's free-running tick counter. The reader/parser that
// actually estimates MCU clock drift from response timestamps is an
// external collaborator out of scope for this package; ClockSync is
// the seam it plugs into.
type ClockSync interface {
	// GetClock estimates the MCU clock tick corresponding to a host
	// wall-clock instant.
	GetClock(eventtime time.Time) uint64

	// GetLastClock returns the most recently observed MCU clock tick
	// and the host time it was observed at.
	GetLastClock() (clock uint64, clockTime time.Time)

	// TranslateClock expands a 32-bit wraparound clock value (as
	// received in a response) into the full 64-bit clock space.
	TranslateClock(clock32 uint32) uint64
}

// FileClockSync is a ClockSync for dry-run/file-output mode, where
// there is no real MCU to estimate drift against. It reports a
// constant clock of zero, matching klippy's file-output config
// negotiation (which never calls get_clock for real timing).
type FileClockSync struct{}

func (FileClockSync) GetClock(time.Time) uint64                { return 0 }
func (FileClockSync) GetLastClock() (uint64, time.Time)        { return 0, time.Time{} }
func (FileClockSync) TranslateClock(clock32 uint32) uint64     { return uint64(clock32) }

// PrintToMCUTime converts a planner print_time into the MCU's own
// mcu_time: print_time plus the epoch established by SetPrintStartTime.
func (m *MCU) PrintToMCUTime(printTime float64) float64 {
	return printTime + m.printStartTime
}

// SetPrintStartTime records the MCU-time epoch corresponding to
// print_time=0, estimated from the current clock at eventtime. In
// file-output mode without pacing this is a no-op, matching
// connect_file's dummy_set_print_start_time.
func (m *MCU) SetPrintStartTime(eventtime time.Time) {
	if m.fileoutput && !m.pace {
		return
	}
	estMCUTime := float64(m.clockSync.GetClock(eventtime)) / m.mcuFreq
	m.printStartTime = estMCUTime
}

// GetPrintBufferTime returns how far ahead of the MCU's current
// estimated time the given print_time sits. In file-output mode
// without pacing this returns a constant 0.250s, matching
// connect_file's dummy_get_print_buffer_time.
func (m *MCU) GetPrintBufferTime(eventtime time.Time, printTime float64) float64 {
	if m.fileoutput && !m.pace {
		return 0.250
	}
	if m.isShutdown {
		return 0
	}
	mcuTime := printTime + m.printStartTime
	estMCUTime := float64(m.clockSync.GetClock(eventtime)) / m.mcuFreq
	return mcuTime - estMCUTime
}

// GetMCUFreq returns the MCU's clock frequency in Hz, as reported by
// the CLOCK_FREQ dictionary constant.
func (m *MCU) GetMCUFreq() float64 {
	return m.mcuFreq
}

// GetLastClock returns the most recent observed clock tick and the
// host time it corresponds to.
func (m *MCU) GetLastClock() (uint64, time.Time) {
	return m.clockSync.GetLastClock()
}
