package mcu

import "fmt"

// DigitalOut wraps a single scheduled digital output pin, mirroring
// klippy's MCU_digital_out.
type DigitalOut struct {
	mcu        *MCU
	oid        int
	invert     int
	mcuFreq    float64
	lastClock  uint64
	lastValue  *int
	cq         *CommandQueue
}

// CreateDigitalOut allocates an oid and emits config_digital_out.
// maxDuration is in seconds, matching the config's max_duration
// default of 2.0s.
func (m *MCU) CreateDigitalOut(pin string, maxDuration float64) (*DigitalOut, error) {
	oid := m.CreateOID()
	name, _, invert := ParsePinExtras(pin, false)
	maxDurationTicks := int64(maxDuration * m.mcuFreq)

	m.AddConfigCmd(fmt.Sprintf(
		"config_digital_out oid=%d pin=%s default_value=%d max_duration=%d",
		oid, name, invert, maxDurationTicks))

	return &DigitalOut{mcu: m, oid: oid, invert: invert, mcuFreq: m.mcuFreq, cq: m.AllocCommandQueue()}, nil
}

// SetDigital schedules the pin to value at mcu_time. The wire value
// is XORed with the pin's invert flag, and the send is gated
// minclock=last scheduled clock, reqclock=this one, on the pin's own
// command queue, matching MCU_digital_out.set_digital.
func (d *DigitalOut) SetDigital(mcuTime float64, value int) error {
	clock := uint64(mcuTime * d.mcuFreq)
	err := d.mcu.SendCommand("schedule_digital_out", map[string]interface{}{
		"oid":   d.oid,
		"clock": clock,
		"value": value ^ d.invert,
	}, d.lastClock, clock, d.cq)
	if err != nil {
		return err
	}
	d.lastClock = clock
	v := value
	d.lastValue = &v
	return nil
}

// GetLastSetting returns the last value scheduled, or nil if none
// has been set yet.
func (d *DigitalOut) GetLastSetting() *int {
	return d.lastValue
}

// SetPwm is a pin-compatible shim so a DigitalOut can stand in for a
// soft PWM output (used by create_pwm's negative-cycle-ticks branch):
// any value over 127 is treated as fully on.
func (d *DigitalOut) SetPwm(mcuTime float64, value int) error {
	dval := 0
	if value > 127 {
		dval = 1
	}
	return d.SetDigital(mcuTime, dval)
}
