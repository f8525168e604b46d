// Package fan implements a printer fan: a PWM output driven by
// print_time-scheduled speed commands, with an optional kick-start
// pulse to get the fan spinning reliably from a stop.
//
// This is illustrative rather than core to the control interface: it
// shows how a simple client builds on top of mcu.Pwm, the same way
// steppers and endstops do for motion and homing.
package fan

import (
	"fmt"

	"mcuhost/host/mcu"
)

// minTime is the minimum spacing klippy enforces between two
// scheduled PWM updates on a fan, matching fan.py's FAN_MIN_TIME.
const minTime = 0.1

// pwmOutput is the subset of mcu.Pwm / mcu.DigitalOut a fan drives:
// whichever channel type create_pwm's hard/soft dispatch picked.
type pwmOutput interface {
	SetPwm(mcuTime float64, value int) error
}

// PrinterFan drives a single fan's PWM channel, mirroring klippy's
// PrinterFan.
type PrinterFan struct {
	mcu *mcu.MCU
	out pwmOutput

	kickStartTime float64

	lastValue int
	lastTime  float64
}

// Config holds a fan's configuration-file parameters.
type Config struct {
	Pin string
	// HardPWM is the PWM cycle length in MCU clock ticks; zero
	// selects software PWM. Matches fan.py's hard_pwm, default 128.
	HardPWM int64
	// KickStartTime is how long to drive the fan at full speed when
	// starting from a stop. Zero disables the kick-start pulse.
	// Matches fan.py's kick_start_time, default 0.1.
	KickStartTime float64
}

// DefaultConfig returns fan.py's defaults (hard_pwm=128,
// kick_start_time=0.1).
func DefaultConfig(pin string) Config {
	return Config{Pin: pin, HardPWM: 128, KickStartTime: 0.1}
}

// NewPrinterFan creates the fan's PWM channel via the MCU's hard/soft
// create_pwm dispatch and returns a PrinterFan ready to receive
// SetSpeed calls, matching PrinterFan.build_config.
func NewPrinterFan(m *mcu.MCU, cfg Config) (*PrinterFan, error) {
	ch, err := m.CreatePwmOrDigitalOut(cfg.Pin, cfg.HardPWM, 0)
	if err != nil {
		return nil, err
	}
	out, ok := ch.(pwmOutput)
	if !ok {
		return nil, fmt.Errorf("fan channel %T does not support SetPwm", ch)
	}
	return &PrinterFan{mcu: m, out: out, kickStartTime: cfg.KickStartTime}, nil
}

// SetSpeed schedules the fan to value (0.0-1.0) at printTime,
// quantizing to an 8-bit PWM duty cycle and inserting a full-speed
// kick-start pulse on a 0-to-partial-speed transition, matching
// PrinterFan.set_speed exactly.
func (f *PrinterFan) SetSpeed(printTime, value float64) error {
	v := int(value*255.0 + 0.5)
	if v < 0 {
		v = 0
	}
	if v > 255 {
		v = 255
	}
	if v == f.lastValue {
		return nil
	}

	mcuTime := f.mcu.PrintToMCUTime(printTime)
	if min := f.lastTime + minTime; mcuTime < min {
		mcuTime = min
	}

	if v != 0 && v < 255 && f.lastValue == 0 && f.kickStartTime != 0 {
		if err := f.out.SetPwm(mcuTime, 255); err != nil {
			return err
		}
		mcuTime += f.kickStartTime
	}

	if err := f.out.SetPwm(mcuTime, v); err != nil {
		return err
	}
	f.lastTime = mcuTime
	f.lastValue = v
	return nil
}
