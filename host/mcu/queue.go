package mcu

import "sync"

// CommandQueue serializes the sends made by a single peripheral
// object and lets SendCommand detect a command whose reqclock has
// gone backwards relative to the last one queued on it, matching the
// ordering guarantee klippy's alloc_command_queue gives MCU_pwm,
// MCU_digital_out, MCU_endstop, and MCU_adc: commands queued on the
// same object never reach the MCU out of the order they were sent.
type CommandQueue struct {
	mu           sync.Mutex
	lastReqClock uint64
}

// AllocCommandQueue allocates a new command queue for a peripheral
// object, matching MCU.alloc_command_queue.
func (m *MCU) AllocCommandQueue() *CommandQueue {
	return &CommandQueue{}
}
