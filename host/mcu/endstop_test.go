package mcu

import (
	"testing"
	"time"
)

func newBareMCU(t *testing.T, clock *fakeClockSync) *MCU {
	t.Helper()
	return &MCU{
		mcuFreq:     1000000,
		clockSync:   clock,
		dictionary:  testDictionary(t),
		pinResolver: IdentityPinResolver{},
	}
}

func TestHomeStartArmsTriggerStateWithXOR(t *testing.T) {
	clock := &fakeClockSync{clock: 0, at: time.Now()}
	m := newBareMCU(t, clock)

	stepper, err := m.CreateStepper("PA0", "PA1", 0, 0.000025)
	if err != nil {
		t.Fatalf("CreateStepper: %v", err)
	}
	// invert=1 (a "!" pin): armed trigger level is 1 XOR 1 = 0.
	endstop, err := m.CreateEndstop("!PB0", stepper)
	if err != nil {
		t.Fatalf("CreateEndstop: %v", err)
	}
	if endstop.invert != 1 {
		t.Fatalf("invert = %d, want 1", endstop.invert)
	}

	// The bare MCU has no transport; file-output mode lets HomeStart's
	// end_stop_home send resolve without transmitting.
	m.fileoutput = true
	if err := endstop.HomeStart(1.0, 0.1); err != nil {
		t.Fatalf("HomeStart: %v", err)
	}
	if !endstop.homing {
		t.Error("HomeStart did not arm homing")
	}
}

func TestQueryEndstopWaitReturnsXORdState(t *testing.T) {
	clock := &fakeClockSync{clock: 2000000, at: time.Now()}
	m := newBareMCU(t, clock)

	stepper, err := m.CreateStepper("PA0", "PA1", 0, 0.000025)
	if err != nil {
		t.Fatalf("CreateStepper: %v", err)
	}
	endstop, err := m.CreateEndstop("PB0", stepper)
	if err != nil {
		t.Fatalf("CreateEndstop: %v", err)
	}

	endstop.QueryEndstop(1.0)
	sentTime := time.Now()
	// pin observed high (1), invert=0: triggered.
	endstop.HandleEndStopState(sentTime, false, 1, 0)

	triggered, err := endstop.QueryEndstopWait()
	if err != nil {
		t.Fatalf("QueryEndstopWait: %v", err)
	}
	if !triggered {
		t.Error("QueryEndstopWait() = false, want true (pin=1, invert=0)")
	}
}

func TestQueryEndstopWaitUntriggered(t *testing.T) {
	clock := &fakeClockSync{clock: 2000000, at: time.Now()}
	m := newBareMCU(t, clock)

	stepper, err := m.CreateStepper("PA0", "PA1", 0, 0.000025)
	if err != nil {
		t.Fatalf("CreateStepper: %v", err)
	}
	endstop, err := m.CreateEndstop("PB0", stepper)
	if err != nil {
		t.Fatalf("CreateEndstop: %v", err)
	}

	endstop.QueryEndstop(1.0)
	endstop.HandleEndStopState(time.Now(), false, 0, 0)

	triggered, err := endstop.QueryEndstopWait()
	if err != nil {
		t.Fatalf("QueryEndstopWait: %v", err)
	}
	if triggered {
		t.Error("QueryEndstopWait() = true, want false (pin=0, invert=0)")
	}
}

func TestCheckBusyFinalizesPositionOnTrigger(t *testing.T) {
	clock := &fakeClockSync{clock: 500000, at: time.Now()}
	m := newBareMCU(t, clock)

	stepper, err := m.CreateStepper("PA0", "PA1", 0, 0.000025)
	if err != nil {
		t.Fatalf("CreateStepper: %v", err)
	}
	endstop, err := m.CreateEndstop("PB0", stepper)
	if err != nil {
		t.Fatalf("CreateEndstop: %v", err)
	}

	// The bare MCU has no transport; file-output mode lets HomeStart's
	// end_stop_home send resolve without transmitting.
	m.fileoutput = true
	if err := endstop.HomeStart(0, 0); err != nil {
		t.Fatalf("HomeStart: %v", err)
	}
	endstop.HomeFinalize(10.0)
	// Back to live mode so checkBusy takes its real branches.
	m.fileoutput = false

	sentTime := time.Now()
	// homing=false in the response signals the MCU saw the endstop
	// trigger and stopped homing; pos is the position it reports.
	endstop.HandleEndStopState(sentTime, false, 1, 42)

	busy, err := endstop.checkBusy(sentTime)
	if err != nil {
		t.Fatalf("checkBusy: %v", err)
	}
	if busy {
		t.Error("checkBusy() = true, want false after finalize")
	}
	if got := stepper.GetMCUPosition(); got != 42 {
		t.Errorf("GetMCUPosition() = %d, want 42", got)
	}
}
