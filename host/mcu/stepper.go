package mcu

import (
	"fmt"

	"mcuhost/stepcompress"
)

// Stepper wraps one stepper motor's wire commands and its step
// queue, mirroring klippy's MCU_stepper.
type Stepper struct {
	mcu       *MCU
	oid       int
	invertDir bool
	mcuFreq   float64

	queue *stepcompress.StepQueue

	commandedPosition int64
	mcuPositionOffset int64
}

// CreateStepper allocates an oid, emits its config_stepper command,
// and registers its step queue with the controller's steppersync. The
// Stepper caches no command handles; commands are looked up by name
// when sent.
func (m *MCU) CreateStepper(stepPin, dirPin string, minStopInterval, maxError float64) (*Stepper, error) {
	oid := m.CreateOID()

	stepName, _, invertStep := ParsePinExtras(stepPin, false)
	dirName, _, invertDir := ParsePinExtras(dirPin, false)

	minStopTicks := int64(minStopInterval * m.mcuFreq)

	m.AddConfigCmd(fmt.Sprintf(
		"config_stepper oid=%d step_pin=%s dir_pin=%s min_stop_interval=%d invert_step=%d",
		oid, stepName, dirName, minStopTicks, invertStep))

	queue := stepcompress.NewStepQueue(oid, m.mcuFreq, maxError, invertDir != 0)
	m.RegisterStepper(queue)

	return &Stepper{
		mcu:       m,
		oid:       oid,
		invertDir: invertDir != 0,
		mcuFreq:   m.mcuFreq,
		queue:     queue,
	}, nil
}

// GetOID returns the stepper's dense object id.
func (s *Stepper) GetOID() int { return s.oid }

// GetInvertDir reports whether the stepper's direction pin is
// inverted.
func (s *Stepper) GetInvertDir() bool { return s.invertDir }

// SetPosition rebases the stepper's commanded position to pos,
// carrying the difference into the MCU-side position offset so the
// physical step count already sent is not disturbed.
func (s *Stepper) SetPosition(pos int64) {
	s.mcuPositionOffset += s.commandedPosition - pos
	s.commandedPosition = pos
}

// SetMCUPosition rebases the offset directly, used when a homing
// move reports the MCU's own idea of position.
func (s *Stepper) SetMCUPosition(pos int64) {
	s.mcuPositionOffset = pos - s.commandedPosition
}

// GetMCUPosition returns the position as tracked on the MCU side.
func (s *Stepper) GetMCUPosition() int64 {
	return s.commandedPosition + s.mcuPositionOffset
}

// NoteHomingStart arms the step queue's homing-abort clock.
func (s *Stepper) NoteHomingStart(homingClock uint64) {
	s.queue.SetHoming(homingClock)
}

// NoteHomingFinalized disarms the homing clock and resets the queue
// at clock zero, matching note_homing_finalized.
func (s *Stepper) NoteHomingFinalized() {
	s.queue.SetHoming(0)
	s.queue.Reset(0)
}

// Step appends a single step at mcu_time and updates the commanded
// position, matching MCU_stepper.step.
func (s *Stepper) Step(mcuTime float64, dir bool) {
	s.queue.PushStep(mcuTime, dir)
	if dir {
		s.commandedPosition++
	} else {
		s.commandedPosition--
	}
}

// StepSqrt pushes a constant-acceleration-from-rest run of steps.
func (s *Stepper) StepSqrt(mcuTime float64, steps int, stepOffset, sqrtOffset, factor float64) int {
	count := s.queue.PushStepSqrt(mcuTime, steps, stepOffset, sqrtOffset, factor)
	s.commandedPosition += int64(count)
	return count
}

// StepFactor pushes a constant-velocity run of steps.
func (s *Stepper) StepFactor(mcuTime float64, steps int, stepOffset, factor float64) int {
	count := s.queue.PushStepFactor(mcuTime, steps, stepOffset, factor)
	s.commandedPosition += int64(count)
	return count
}

// StepDeltaConst pushes a constant-velocity delta-kinematics segment.
func (s *Stepper) StepDeltaConst(mcuTime, invVelocity float64, p stepcompress.DeltaParams) int {
	count := s.queue.PushStepDeltaConst(mcuTime, invVelocity, p)
	s.commandedPosition += int64(count)
	return count
}

// StepDeltaAccel pushes an accelerating delta-kinematics segment.
func (s *Stepper) StepDeltaAccel(mcuTime, accelMultiplier float64, p stepcompress.DeltaParams) int {
	count := s.queue.PushStepDeltaAccel(mcuTime, accelMultiplier, p)
	s.commandedPosition += int64(count)
	return count
}

// GetErrors returns the stepper's step-queue error count.
func (s *Stepper) GetErrors() uint32 {
	return s.queue.GetErrors()
}

// ResetStepClock resets the step queue (see StepQueue.Reset) and
// queues a reset_step_clock command at the clock corresponding to
// mcu_time. The original dispatches this through the stepper's own
// chelper step-compress queue rather than mcu.send, so there is no
// per-object CommandQueue here; reqclock is passed for parity with
// the other sends, but without a CommandQueue the send path does not
// check it.
func (s *Stepper) ResetStepClock(mcuTime float64) error {
	clock := uint64(mcuTime * s.mcuFreq)
	s.queue.Reset(clock)
	return s.mcu.SendCommand("reset_step_clock", map[string]interface{}{
		"oid":   s.oid,
		"clock": clock,
	}, 0, clock, nil)
}
