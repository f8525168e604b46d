package mcu

import (
	"fmt"
	"time"
)

// retryQuery is how often an active endstop query is resent while
// waiting for a trigger, matching MCU_endstop.RETRY_QUERY.
const retryQuery = 1000 * time.Millisecond

// Endstop wraps a single endstop pin's homing protocol: arming a
// trigger watch (home_start), finalizing it once the planner has
// queued the homing move (home_finalize), and blocking until the
// MCU reports the trigger or a timeout elapses (home_wait).
type Endstop struct {
	mcu     *MCU
	oid     int
	stepper *Stepper
	invert  int

	mcuFreq          float64
	retryQueryTicks  uint64

	homing           bool
	minQueryTime     time.Time
	nextQueryClock   uint64
	homeTimeoutClock uint64

	lastState lastEndstopState
	cq        *CommandQueue
}

type lastEndstopState struct {
	sentTime time.Time
	homing   bool
	pos      int64
	pin      int
	valid    bool
}

// CreateEndstop allocates an oid, emits config_end_stop, and
// registers the end_stop_state response handler, mirroring
// MCU_endstop.__init__.
func (m *MCU) CreateEndstop(pin string, stepper *Stepper) (*Endstop, error) {
	oid := m.CreateOID()
	name, pullup, invert := ParsePinExtras(pin, true)

	m.AddConfigCmd(fmt.Sprintf(
		"config_end_stop oid=%d pin=%s pull_up=%d stepper_oid=%d",
		oid, name, pullup, stepper.GetOID()))

	e := &Endstop{
		mcu:             m,
		oid:             oid,
		stepper:         stepper,
		invert:          invert,
		mcuFreq:         m.mcuFreq,
		retryQueryTicks: uint64(m.mcuFreq * retryQuery.Seconds()),
		cq:              m.AllocCommandQueue(),
	}
	m.RegisterResponse("end_stop_state", oid, func(fields map[string]interface{}, sentTime time.Time) {
		e.HandleEndStopState(sentTime, fieldUint(fields, "homing") != 0, int(fieldUint(fields, "pin")), int64(fieldUint(fields, "pos")))
	})
	return e, nil
}

// HandleEndStopState updates the endstop's cached state from a
// received end_stop_state response (homing, pin, pos, and the
// response's observed send time).
func (e *Endstop) HandleEndStopState(sentTime time.Time, homing bool, pin int, pos int64) {
	e.lastState = lastEndstopState{sentTime: sentTime, homing: homing, pos: pos, pin: pin, valid: true}
}

// HomeStart arms the endstop: the trigger-state is sent with
// pin_value = 1 XOR invert (the level the MCU should treat as
// "triggered"), and the stepper's step queue is told to abort any
// step at or past this clock.
func (e *Endstop) HomeStart(mcuTime, restTime float64) error {
	clock := uint64(mcuTime * e.mcuFreq)
	restTicks := uint64(restTime * e.mcuFreq)

	e.homing = true
	e.minQueryTime = time.Now()
	e.nextQueryClock = clock + e.retryQueryTicks

	pinValue := 1 ^ e.invert
	if err := e.mcu.SendCommand("end_stop_home", map[string]interface{}{
		"oid":        e.oid,
		"clock":      clock,
		"rest_ticks": restTicks,
		"pin_value":  pinValue,
	}, 0, clock, e.cq); err != nil {
		return err
	}

	e.stepper.NoteHomingStart(clock)
	return nil
}

// HomeFinalize tells the stepper its homing move is fully queued and
// records the clock beyond which a trigger is considered a timeout.
func (e *Endstop) HomeFinalize(mcuTime float64) {
	e.stepper.NoteHomingFinalized()
	e.homeTimeoutClock = uint64(mcuTime * e.mcuFreq)
}

// HomeWait blocks until the endstop triggers or the home timeout
// elapses, polling via checkBusy and the controller's reactor, and
// returns an error if the timeout fires first.
func (e *Endstop) HomeWait() error {
	eventtime := time.Now()
	for {
		busy, err := e.checkBusy(eventtime)
		if err != nil {
			return err
		}
		if !busy {
			return nil
		}
		eventtime = e.mcu.Pause(eventtime.Add(100 * time.Millisecond))
	}
}

// QueryEndstop arms a one-shot state query (not a homing wait).
func (e *Endstop) QueryEndstop(mcuTime float64) {
	clock := uint64(mcuTime * e.mcuFreq)
	e.homing = false
	e.minQueryTime = time.Now()
	e.nextQueryClock = clock
}

// QueryEndstopWait blocks until the query completes and returns the
// observed trigger state XORed with invert, matching
// query_endstop_wait.
func (e *Endstop) QueryEndstopWait() (bool, error) {
	eventtime := time.Now()
	for {
		busy, err := e.checkBusy(eventtime)
		if err != nil {
			return false, err
		}
		if !busy {
			break
		}
		eventtime = e.mcu.Pause(eventtime.Add(100 * time.Millisecond))
	}

	pin := e.invert
	if e.lastState.valid {
		pin = e.lastState.pin
	}
	return (pin^e.invert)&1 == 1, nil
}

// checkBusy decides whether to keep polling: it resends
// end_stop_query if the last observed clock has passed the retry
// window, finalizes the stepper's position once a non-homing state is
// seen, and raises a timeout error once the last observed clock
// passes home_timeout_clock while still homing.
func (e *Endstop) checkBusy(eventtime time.Time) (bool, error) {
	if e.mcu.IsFileoutput() {
		return false, nil
	}

	if e.lastState.valid && !e.lastState.sentTime.Before(e.minQueryTime) {
		if !e.homing {
			return false, nil
		}
		if !e.lastState.homing {
			pos := e.lastState.pos
			if e.stepper.GetInvertDir() {
				pos = -pos
			}
			e.stepper.SetMCUPosition(pos)
			e.homing = false
			return false, nil
		}
		lastClock := e.mcu.clockSync.GetClock(e.lastState.sentTime)
		if lastClock > e.homeTimeoutClock {
			_ = e.mcu.SendCommand("end_stop_home", map[string]interface{}{
				"oid": e.oid, "clock": 0, "rest_ticks": 0, "pin_value": 0,
			}, 0, 0, e.cq)
			return false, newError("timeout during endstop homing")
		}
	}

	if e.mcu.IsShutdown() {
		return false, newError("MCU is shutdown")
	}

	lastClock := e.mcu.clockSync.GetClock(eventtime)
	if lastClock >= e.nextQueryClock {
		e.nextQueryClock = lastClock + e.retryQueryTicks
		_ = e.mcu.SendCommand("end_stop_query", map[string]interface{}{"oid": e.oid}, 0, 0, e.cq)
	}

	return true, nil
}
