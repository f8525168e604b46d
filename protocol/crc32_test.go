package protocol

import "testing"

func TestConfigCRCDeterministic(t *testing.T) {
	lines := []string{
		"allocate_oids count=3",
		"config_stepper oid=0 step_pin=PA0 dir_pin=PA1 invert_step=0 step_pulse_ticks=0",
		"finalize_config crc=0",
	}

	a := ConfigCRC(lines)
	b := ConfigCRC(lines)
	if a != b {
		t.Errorf("ConfigCRC not deterministic: %d != %d", a, b)
	}
}

func TestConfigCRCSensitiveToOrder(t *testing.T) {
	a := ConfigCRC([]string{"line1", "line2"})
	b := ConfigCRC([]string{"line2", "line1"})
	if a == b {
		t.Error("ConfigCRC should differ when line order changes")
	}
}

func TestConfigCRCEmpty(t *testing.T) {
	if ConfigCRC(nil) != ConfigCRC([]string{}) {
		t.Error("nil and empty slices should produce identical CRC")
	}
}
