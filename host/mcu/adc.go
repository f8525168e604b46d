package mcu

import (
	"fmt"
	"math"
	"time"
)

// AdcCallback receives a sample read time (MCU time in seconds: the
// response's next_clock minus one report period) and a normalized
// value in [0,1].
type AdcCallback func(readTime, value float64)

// Adc wraps an analog input channel, mirroring klippy's MCU_adc.
type Adc struct {
	mcu     *MCU
	oid     int
	mcuFreq float64

	minSample    uint32
	maxSample    uint32
	sampleTicks  uint32
	sampleCount  uint8
	reportClock  uint64
	invMaxADC    float64
	callback     AdcCallback
	cq           *CommandQueue
}

// CreateAdc allocates an oid, emits config_analog_in, registers the
// init callback that arms the first query_analog_in, and registers
// the analog_in_state response handler.
func (m *MCU) CreateAdc(pin string) (*Adc, error) {
	oid := m.CreateOID()
	m.AddConfigCmd(fmt.Sprintf("config_analog_in oid=%d pin=%s", oid, pin))

	a := &Adc{
		mcu:         m,
		oid:         oid,
		mcuFreq:     m.mcuFreq,
		maxSample:   0xffff,
		sampleCount: 1,
		cq:          m.AllocCommandQueue(),
	}

	m.AddInitCallback(a.initCallback)
	m.RegisterResponse("analog_in_state", oid, func(fields map[string]interface{}, _ time.Time) {
		a.HandleAnalogInState(uint32(fieldUint(fields, "value")), m.clockSync.TranslateClock(uint32(fieldUint(fields, "next_clock"))))
	})

	return a, nil
}

// SetMinmax configures the sampling window and trigger range,
// matching MCU_adc.set_minmax: minval/maxval are fractions of the
// full-scale reading (nil defaults to 0 and 1 respectively).
func (a *Adc) SetMinmax(sampleTime time.Duration, sampleCount uint8, minval, maxval *float64) error {
	a.sampleTicks = uint32(sampleTime.Seconds() * a.mcuFreq)
	a.sampleCount = sampleCount

	minv, maxv := 0.0, 1.0
	if minval != nil {
		minv = *minval
	}
	if maxval != nil {
		maxv = *maxval
	}

	mcuADCMax, ok := a.mcu.dictionary.GetConstantFloat("ADC_MAX")
	if !ok {
		return newError("dictionary missing ADC_MAX constant")
	}

	maxADC := float64(sampleCount) * mcuADCMax
	a.minSample = uint32(minv * maxADC)
	a.maxSample = uint32(math.Min(0xffff, math.Ceil(maxv*maxADC)))
	a.invMaxADC = 1.0 / maxADC
	return nil
}

// initCallback arms the first query_analog_in request, staggering
// each ADC's initial query clock by oid so many ADCs configured at
// once don't all sample on the same tick. This offset (1.0 + oid *
// 0.01 seconds) is a heuristic inherited from the original firmware,
// not a invariant to preserve exactly.
func (a *Adc) initCallback() error {
	lastClock, _ := a.mcu.GetLastClock()
	clock := lastClock + uint64(a.mcuFreq*(1.0+float64(a.oid)*0.01))

	return a.mcu.SendCommand("query_analog_in", map[string]interface{}{
		"oid":          a.oid,
		"clock":        clock,
		"sample_ticks": a.sampleTicks,
		"sample_count": a.sampleCount,
		"rest_ticks":   a.reportClock,
		"min_value":    a.minSample,
		"max_value":    a.maxSample,
	}, 0, clock, a.cq)
}

// HandleAnalogInState processes an analog_in_state response,
// normalizing the raw value and computing the read time as next_clock
// minus the report period, in seconds, then invoking the registered
// callback.
func (a *Adc) HandleAnalogInState(value uint32, nextClock uint64) {
	lastValue := float64(value) * a.invMaxADC
	lastReadTime := float64(nextClock-a.reportClock) / a.mcuFreq
	if a.callback != nil {
		a.callback(lastReadTime, lastValue)
	}
}

// SetAdcCallback registers the handler invoked on each sample and the
// report period between readings (sent as rest_ticks, and subtracted
// from next_clock to date each reading).
func (a *Adc) SetAdcCallback(reportTime time.Duration, cb AdcCallback) {
	a.reportClock = uint64(reportTime.Seconds() * a.mcuFreq)
	a.callback = cb
}
