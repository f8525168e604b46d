package stepcompress

import "testing"

func TestPushStepAndFlush(t *testing.T) {
	q := NewStepQueue(0, 1000000, 0.000025, false)

	q.PushStep(0.001, true)
	q.PushStep(0.002, true)
	q.PushStep(0.003, true)

	if q.Pending() != 3 {
		t.Fatalf("expected 3 pending steps, got %d", q.Pending())
	}

	moves := q.Flush(10000)
	if q.Pending() != 0 {
		t.Errorf("expected 0 pending after flush, got %d", q.Pending())
	}

	total := uint16(0)
	for _, m := range moves {
		total += m.Count
	}
	if total != 3 {
		t.Errorf("expected 3 total steps across moves, got %d", total)
	}
}

func TestFlushOnlyUpToTargetClock(t *testing.T) {
	q := NewStepQueue(0, 1000000, 0.000025, false)
	q.PushStep(0.001, true) // clock 1000
	q.PushStep(0.010, true) // clock 10000

	moves := q.Flush(5000)
	total := uint16(0)
	for _, m := range moves {
		total += m.Count
	}
	if total != 1 {
		t.Errorf("expected 1 step flushed before target clock, got %d", total)
	}
	if q.Pending() != 1 {
		t.Errorf("expected 1 step still pending, got %d", q.Pending())
	}
}

func TestSetHomingRejectsStepsPastClock(t *testing.T) {
	q := NewStepQueue(0, 1000000, 0.000025, false)
	q.SetHoming(5000)

	q.PushStep(0.001, true) // clock 1000, before homing clock: accepted
	q.PushStep(0.010, true) // clock 10000, past homing clock: rejected

	if q.Pending() != 1 {
		t.Errorf("expected 1 accepted step, got %d", q.Pending())
	}
	if q.GetErrors() != 1 {
		t.Errorf("expected 1 recorded error, got %d", q.GetErrors())
	}
}

func TestPushStepFactorConstantVelocity(t *testing.T) {
	q := NewStepQueue(0, 1000000, 0.000025, false)

	count := q.PushStepFactor(0, 10, 0, 0.001)
	if count != 10 {
		t.Errorf("expected 10 steps generated, got %d", count)
	}
	if q.Pending() != 10 {
		t.Errorf("expected 10 pending steps, got %d", q.Pending())
	}
}

func TestPushStepFactorNegativeDirection(t *testing.T) {
	q := NewStepQueue(0, 1000000, 0.000025, false)

	count := q.PushStepFactor(0, -5, 0, 0.001)
	if count != -5 {
		t.Errorf("expected -5 (negative direction), got %d", count)
	}
}

func TestCompressConstantIntervalProducesOneMove(t *testing.T) {
	steps := []Step{
		{Clock: 1000, Dir: true},
		{Clock: 2000, Dir: true},
		{Clock: 3000, Dir: true},
		{Clock: 4000, Dir: true},
	}
	moves, _ := compress(steps, 0)
	if len(moves) != 1 {
		t.Fatalf("expected a single compressed move for constant interval, got %d: %+v", len(moves), moves)
	}
	if moves[0].Count != 4 || moves[0].Add != 0 {
		t.Errorf("expected count=4 add=0, got %+v", moves[0])
	}
}

func TestCompressDirectionChangeSplitsMoves(t *testing.T) {
	steps := []Step{
		{Clock: 1000, Dir: true},
		{Clock: 2000, Dir: true},
		{Clock: 3000, Dir: false},
		{Clock: 4000, Dir: false},
	}
	moves, _ := compress(steps, 0)
	if len(moves) != 2 {
		t.Fatalf("expected 2 moves across a direction change, got %d", len(moves))
	}
}

func TestStepperSyncRespectsMoveCountBudget(t *testing.T) {
	a := NewStepQueue(0, 1000000, 0.000025, false)
	b := NewStepQueue(1, 1000000, 0.000025, false)

	for i := 1; i <= 5; i++ {
		a.PushStep(float64(i)*0.001, true)
		b.PushStep(float64(i)*0.001, true)
	}

	sync := NewStepperSync([]*StepQueue{a, b}, 1)
	result := sync.Flush(100000)

	slots := 0
	for _, moves := range result {
		slots += len(moves)
	}
	if slots > 1 {
		t.Errorf("expected at most 1 move slot consumed across queues, got %d", slots)
	}
	if _, ok := result[b]; ok {
		t.Errorf("expected b's moves to be deferred once a's single move exhausted the budget")
	}
	if b.Pending() != 5 {
		t.Errorf("expected b's 5 steps to remain pending after budget exhaustion, got %d", b.Pending())
	}

	result2 := sync.Flush(100000)
	if len(result2[b]) == 0 {
		t.Fatalf("expected b to flush on the next call once the budget freed up")
	}
	if b.Pending() != 0 {
		t.Errorf("expected b fully flushed on the deferred call, got %d pending", b.Pending())
	}
}

// TestFlushBudgetDefersExcessMoves proves that when a single queue's
// ready steps compress into more moves than the budget allows, the
// steps behind the excess moves are kept pending (not discarded) for
// the next FlushBudget call, per the MCU's move-slot-budget invariant.
func TestFlushBudgetDefersExcessMoves(t *testing.T) {
	q := NewStepQueue(0, 1000000, 0.000025, false)
	q.PushStep(0.001, true) // clock 1000
	q.PushStep(0.002, true) // clock 2000, interval 1000
	q.PushStep(0.004, true) // clock 4000, interval 2000 (add=1000)
	q.PushStep(0.009, true) // clock 9000, interval 5000 (add=3000, breaks the run)

	moves := q.FlushBudget(100000, 1)
	if len(moves) != 1 {
		t.Fatalf("expected exactly 1 move within budget, got %d: %+v", len(moves), moves)
	}
	if moves[0].Count != 3 {
		t.Errorf("expected the first move to cover the 3-step constant-accel run, got count=%d", moves[0].Count)
	}
	if q.Pending() != 1 {
		t.Fatalf("expected the 4th step to remain pending, got %d", q.Pending())
	}

	rest := q.FlushBudget(100000, 10)
	if len(rest) != 1 || rest[0].Count != 1 {
		t.Errorf("expected the deferred step to flush alone on the next call, got %+v", rest)
	}
	if q.Pending() != 0 {
		t.Errorf("expected queue drained after the deferred flush, got %d pending", q.Pending())
	}
}
