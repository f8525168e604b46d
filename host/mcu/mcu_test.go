package mcu

import (
	"testing"
	"time"

	"mcuhost/protocol"
)

// fakeClockSync is a ClockSync test double with a manually
// advanceable clock.
type fakeClockSync struct {
	clock uint64
	at    time.Time
}

func (f *fakeClockSync) GetClock(time.Time) uint64         { return f.clock }
func (f *fakeClockSync) GetLastClock() (uint64, time.Time) { return f.clock, f.at }
func (f *fakeClockSync) TranslateClock(clock32 uint32) uint64 {
	return uint64(clock32)
}

func testDictionary(t *testing.T) *protocol.Dictionary {
	t.Helper()
	data := []byte(`{
		"version": "test",
		"build_versions": "test",
		"config": {"CLOCK_FREQ": 1000000, "STATS_SUMSQ_BASE": 256, "ADC_MAX": 4095},
		"commands": {
			"get_config": 10,
			"emergency_stop": 11,
			"clear_shutdown": 12,
			"schedule_pwm_out oid=%c clock=%u value=%c": 13,
			"schedule_soft_pwm_out oid=%c clock=%u value=%c": 14,
			"schedule_digital_out oid=%c clock=%u value=%c": 15,
			"reset_step_clock oid=%c clock=%u": 16,
			"end_stop_home oid=%c clock=%u rest_ticks=%u pin_value=%c": 17,
			"end_stop_query oid=%c": 18,
			"query_analog_in oid=%c clock=%u sample_ticks=%u sample_count=%c rest_ticks=%u min_value=%u max_value=%u": 19
		},
		"responses": {
			"config is_config=%c crc=%u move_count=%hu": 100
		}
	}`)
	dict, err := protocol.ParseDictionary(data)
	if err != nil {
		t.Fatalf("ParseDictionary: %v", err)
	}
	return dict
}

// newTestMCU builds an MCU in fileoutput mode, bypassing real serial
// I/O, so SendCommand calls resolve template lookups but never
// transmit.
func newTestMCU(t *testing.T) *MCU {
	t.Helper()
	m := New(nil)
	if err := m.ConnectFile(testDictionary(t), false); err != nil {
		t.Fatalf("ConnectFile: %v", err)
	}
	return m
}
