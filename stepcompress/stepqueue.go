// Package stepcompress reimplements, in Go, the per-stepper pulse
// queue and multi-queue flush that Klipper's native chelper extension
// provides to the host: absolute step clocks are pushed in by the
// kinematic planner (directly, or via one of several closed-form
// pushers for constant/accelerating motion), compressed into
// queue_step(interval,count,add) triplets, and drained to the MCU in
// clock order subject to the MCU's finite move-slot budget.
package stepcompress

import (
	"math"
	"sort"
)

// Step is a single absolute step event: the MCU clock tick it occurs
// at, and the step direction (true = positive).
type Step struct {
	Clock uint64
	Dir   bool
}

// Move is a compressed run of steps with constant interval plus a
// linear interval adjustment, matching the wire shape of
// queue_step(oid, interval, count, add).
type Move struct {
	Interval uint32
	Count    uint16
	Add      int16
}

// StepQueue accumulates a single stepper's absolute step clocks and
// compresses them into queue_step triplets. One StepQueue exists per
// MCU_stepper, mirroring the native stepcompress_alloc object
// mcu.py's MCU_stepper keeps in self._stepqueue.
type StepQueue struct {
	oid        int
	mcuFreq    float64
	invertDir  bool
	maxError   int64

	pending    []Step
	homingClock uint64
	errors     uint32
	lastDir    bool
	haveLastDir bool
}

// NewStepQueue creates a step queue for one stepper.
func NewStepQueue(oid int, mcuFreq float64, maxError float64, invertDir bool) *StepQueue {
	return &StepQueue{
		oid:       oid,
		mcuFreq:   mcuFreq,
		invertDir: invertDir,
		maxError:  int64(maxError * mcuFreq),
	}
}

// Reset clears all pending steps and disarms the homing clock, in
// place of stepcompress_reset. Pending steps carry absolute clocks and
// the queue keeps no base clock, so clock is not stored.
func (q *StepQueue) Reset(clock uint64) {
	q.pending = q.pending[:0]
	q.homingClock = 0
}

// SetHoming arms (nonzero clock) or disarms (zero) the homing-abort
// clock: once armed, any step at or beyond this clock signals the
// step queue a homing move reached the clock the endstop triggered
// at, matching stepcompress_set_homing.
func (q *StepQueue) SetHoming(clock uint64) {
	q.homingClock = clock
}

// PushStep appends a single step at the given MCU time.
func (q *StepQueue) PushStep(mcuTime float64, dir bool) {
	clock := uint64(mcuTime * q.mcuFreq)
	q.push(clock, dir)
}

// PushStepSqrt generates `steps` steps along a sqrt-shaped velocity
// profile (constant acceleration from rest), matching
// stepcompress_push_sqrt's pre-scaling of sqrtOffset/factor by
// mcu_freq^2.
func (q *StepQueue) PushStepSqrt(mcuTime float64, steps int, stepOffset, sqrtOffset, factor float64) int {
	clock := mcuTime * q.mcuFreq
	mcuFreq2 := q.mcuFreq * q.mcuFreq
	scaledSqrtOffset := sqrtOffset * mcuFreq2
	scaledFactor := factor * mcuFreq2

	count := 0
	dir := steps >= 0
	n := steps
	if n < 0 {
		n = -n
	}
	for i := 0; i < n; i++ {
		pos := stepOffset + float64(i) + 1
		t := math.Sqrt(scaledSqrtOffset + scaledFactor*pos)
		q.push(uint64(clock+t), dir)
		count++
	}
	if !dir {
		count = -count
	}
	return count
}

// PushStepFactor generates `steps` steps at constant velocity,
// matching stepcompress_push_factor's pre-scaling of factor by
// mcu_freq.
func (q *StepQueue) PushStepFactor(mcuTime float64, steps int, stepOffset, factor float64) int {
	clock := mcuTime * q.mcuFreq
	scaledFactor := factor * q.mcuFreq

	count := 0
	dir := steps >= 0
	n := steps
	if n < 0 {
		n = -n
	}
	for i := 0; i < n; i++ {
		pos := stepOffset + float64(i) + 1
		q.push(uint64(clock+pos*scaledFactor), dir)
		count++
	}
	if !dir {
		count = -count
	}
	return count
}

// DeltaParams is the geometric context shared by the delta-kinematics
// pushers: the starting axis position, the closest XY approach, and
// the tower's "closest height" parameters used to convert a linear
// carriage distance into the stepper's own step clocks.
type DeltaParams struct {
	Dist           float64
	StartPos       float64
	StepDist       float64
	Height         float64
	ClosestXYDist  float64
	ClosestHeight2 float64
	MoveZR         float64
}

// PushStepDeltaConst generates delta-kinematics steps for a
// constant-velocity segment, matching stepcompress_push_delta_const's
// pre-scaling of invVelocity by mcu_freq.
func (q *StepQueue) PushStepDeltaConst(mcuTime float64, invVelocity float64, p DeltaParams) int {
	clock := mcuTime * q.mcuFreq
	scaledInvVelocity := invVelocity * q.mcuFreq
	return q.pushDelta(clock, scaledInvVelocity, 0, p)
}

// PushStepDeltaAccel generates delta-kinematics steps for an
// accelerating segment, matching stepcompress_push_delta_accel's
// pre-scaling of accelMultiplier by mcu_freq^2.
func (q *StepQueue) PushStepDeltaAccel(mcuTime float64, accelMultiplier float64, p DeltaParams) int {
	clock := mcuTime * q.mcuFreq
	mcuFreq2 := q.mcuFreq * q.mcuFreq
	scaledAccel := accelMultiplier * mcuFreq2
	return q.pushDelta(clock, 0, scaledAccel, p)
}

// pushDelta walks the carriage distance in unit steps, converting
// each step's linear position into a clock via the tower geometry,
// and a velocity (invVelocity) or acceleration (accelMultiplier) term.
func (q *StepQueue) pushDelta(clock, invVelocity, accelMultiplier float64, p DeltaParams) int {
	n := int(math.Abs(p.Dist / p.StepDist))
	dir := p.Dist >= 0
	count := 0

	for i := 1; i <= n; i++ {
		linearPos := p.StartPos + float64(i)*p.StepDist*sign(p.Dist)
		towerDist := math.Sqrt(p.ClosestHeight2 + (linearPos-p.ClosestXYDist)*(linearPos-p.ClosestXYDist))
		axisPos := p.Height - towerDist + p.MoveZR

		var t float64
		if accelMultiplier != 0 {
			t = math.Sqrt(math.Abs(axisPos) * accelMultiplier)
		} else {
			t = math.Abs(axisPos) * invVelocity
		}
		q.push(uint64(clock+t), dir)
		count++
	}

	if !dir {
		count = -count
	}
	return count
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

func (q *StepQueue) push(clock uint64, dir bool) {
	if q.homingClock != 0 && clock >= q.homingClock {
		q.errors++
		return
	}
	q.pending = append(q.pending, Step{Clock: clock, Dir: dir})
}

// GetErrors returns the number of steps this queue rejected for
// falling at or past the armed homing clock, in place of
// stepcompress_get_errors.
func (q *StepQueue) GetErrors() uint32 {
	return q.errors
}

// Flush compresses and returns every pending step up to (and
// including) targetClock as queue_step triplets, in clock order, and
// removes them from the queue.
func (q *StepQueue) Flush(targetClock uint64) []Move {
	return q.flushBudget(targetClock, 0)
}

// FlushBudget is Flush subject to an MCU move-slot budget: at most
// maxMoves queue_step triplets are returned; any ready steps beyond
// that budget are left pending rather than discarded, so a later
// Flush/FlushBudget call picks them up once move slots free up. This
// is what StepperSync.Flush calls so the moveCount budget it enforces
// across queues never drops a step, only defers it.
func (q *StepQueue) FlushBudget(targetClock uint64, maxMoves int) []Move {
	return q.flushBudget(targetClock, maxMoves)
}

func (q *StepQueue) flushBudget(targetClock uint64, maxMoves int) []Move {
	sort.Slice(q.pending, func(i, j int) bool { return q.pending[i].Clock < q.pending[j].Clock })

	cut := 0
	for cut < len(q.pending) && q.pending[cut].Clock <= targetClock {
		cut++
	}
	ready := q.pending[:cut]
	rest := q.pending[cut:]

	moves, consumed := compress(ready, maxMoves)

	leftover := append([]Step{}, ready[consumed:]...)
	q.pending = append(leftover, rest...)

	return moves
}

// compress turns a clock-ordered run of same-direction steps into
// minimal queue_step(interval,count,add) triplets: consecutive steps
// sharing the same interval delta extend the current move's count; a
// direction change or a changing second-difference starts a new move.
// If maxMoves is positive, compression stops once that many moves have
// been produced; consumed reports how many leading steps those moves
// account for, so the caller can requeue the remainder.
func compress(steps []Step, maxMoves int) (moves []Move, consumed int) {
	i := 0
	for i < len(steps) {
		if maxMoves > 0 && len(moves) >= maxMoves {
			break
		}

		dir := steps[i].Dir
		start := steps[i].Clock
		j := i + 1
		var interval uint32
		var add int16
		count := uint16(1)

		if j < len(steps) && steps[j].Dir == dir {
			interval = uint32(steps[j].Clock - start)
			count = 2
			prevInterval := interval
			k := j + 1
			for k < len(steps) && steps[k].Dir == dir {
				nextInterval := uint32(steps[k].Clock - steps[k-1].Clock)
				delta := int64(nextInterval) - int64(prevInterval)
				if count == 2 {
					add = int16(delta)
				} else if int64(add) != delta {
					break
				}
				prevInterval = nextInterval
				count++
				k++
			}
			j = k
		} else {
			j = i + 1
		}

		moves = append(moves, Move{Interval: interval, Count: count, Add: add})
		i = j
	}
	return moves, i
}

// Pending returns the number of steps not yet flushed, for tests and
// diagnostics.
func (q *StepQueue) Pending() int {
	return len(q.pending)
}
