package mcu

import "fmt"

// Pwm wraps a scheduled PWM output, either hardware (a cycle-ticks
// based channel) or software (a fixed 0.1x mcu_freq soft-PWM cycle),
// mirroring klippy's MCU_pwm.
type Pwm struct {
	mcu       *MCU
	oid       int
	mcuFreq   float64
	lastClock uint64
	hard      bool
	cq        *CommandQueue
}

// CreatePwm allocates an oid and emits config_pwm_out (hard) or
// config_soft_pwm_out (soft) depending on hardPwm.
func (m *MCU) CreatePwm(pin string, cycleTicks int64, maxDuration float64, hardPwm bool) (*Pwm, error) {
	oid := m.CreateOID()
	maxDurationTicks := int64(maxDuration * m.mcuFreq)

	if hardPwm {
		m.AddConfigCmd(fmt.Sprintf(
			"config_pwm_out oid=%d pin=%s cycle_ticks=%d default_value=0 max_duration=%d",
			oid, pin, cycleTicks, maxDurationTicks))
	} else {
		m.AddConfigCmd(fmt.Sprintf(
			"config_soft_pwm_out oid=%d pin=%s cycle_ticks=%d default_value=0 max_duration=%d",
			oid, pin, cycleTicks, maxDurationTicks))
	}

	return &Pwm{mcu: m, oid: oid, mcuFreq: m.mcuFreq, hard: hardPwm, cq: m.AllocCommandQueue()}, nil
}

// SetPwm schedules value (0-255) at mcu_time. The send is gated
// minclock=last scheduled clock, reqclock=this one, on the channel's
// own command queue, matching MCU_pwm.set_pwm.
func (p *Pwm) SetPwm(mcuTime float64, value int) error {
	clock := uint64(mcuTime * p.mcuFreq)
	cmd := "schedule_pwm_out"
	if !p.hard {
		cmd = "schedule_soft_pwm_out"
	}
	if err := p.mcu.SendCommand(cmd, map[string]interface{}{
		"oid": p.oid, "clock": clock, "value": value,
	}, p.lastClock, clock, p.cq); err != nil {
		return err
	}
	p.lastClock = clock
	return nil
}

// PrintToMCUTime delegates to the owning MCU's clock conversion, so a
// caller holding only a Pwm can convert a print_time.
func (p *Pwm) PrintToMCUTime(printTime float64) float64 {
	return p.mcu.PrintToMCUTime(printTime)
}

// CreatePwmOrDigitalOut is the dispatcher klippy's MCU.create_pwm
// exposes as create_pwm(pin, hard_cycle_ticks, max_duration): any
// nonzero hardCycleTicks, negative values included, selects a
// hardware PWM channel with that cycle length; zero selects a
// software PWM channel at a fixed 0.1s-ish cycle (mcu_freq/10 ticks).
//
// The hardCycleTicks < 0 branch (which builds a DigitalOut) is
// unreachable: the truthy check above it already catches every
// nonzero value, positive or negative. Preserved as-is.
func (m *MCU) CreatePwmOrDigitalOut(pin string, hardCycleTicks int64, maxDuration float64) (interface{}, error) {
	if hardCycleTicks != 0 {
		return m.CreatePwm(pin, hardCycleTicks, maxDuration, true)
	}
	if hardCycleTicks < 0 {
		maxDurationTicks := int64(maxDuration * m.mcuFreq)
		return m.CreateDigitalOut(pin, float64(maxDurationTicks)/m.mcuFreq)
	}
	cycleTicks := int64(m.mcuFreq / 10.0)
	return m.CreatePwm(pin, cycleTicks, maxDuration, false)
}
