package mcu

import "testing"

func TestCreateAdcAllocatesOID(t *testing.T) {
	m := newTestMCU(t)
	a, err := m.CreateAdc("ADC0")
	if err != nil {
		t.Fatalf("CreateAdc: %v", err)
	}
	if a.oid != 0 {
		t.Errorf("oid = %d, want 0", a.oid)
	}
}

func TestSetMinmaxScalesAgainstADCMax(t *testing.T) {
	m := newTestMCU(t)
	a, err := m.CreateAdc("ADC0")
	if err != nil {
		t.Fatalf("CreateAdc: %v", err)
	}

	// dictionary's ADC_MAX is 4095, sampleCount 1: full range maps
	// directly onto [0, 4095].
	if err := a.SetMinmax(0, 1, nil, nil); err != nil {
		t.Fatalf("SetMinmax: %v", err)
	}
	if a.minSample != 0 {
		t.Errorf("minSample = %d, want 0", a.minSample)
	}
	if a.maxSample != 4095 {
		t.Errorf("maxSample = %d, want 4095", a.maxSample)
	}
}

func TestSetMinmaxClampsMaxSampleAt0xffff(t *testing.T) {
	m := newTestMCU(t)
	a, err := m.CreateAdc("ADC0")
	if err != nil {
		t.Fatalf("CreateAdc: %v", err)
	}

	// A large sample count pushes the raw scaled maximum well past
	// 0xffff; set_minmax must clamp it there.
	if err := a.SetMinmax(0, 32, nil, nil); err != nil {
		t.Fatalf("SetMinmax: %v", err)
	}
	if a.maxSample != 0xffff {
		t.Errorf("maxSample = %d, want 0xffff", a.maxSample)
	}
}

func TestHandleAnalogInStateNormalizesValue(t *testing.T) {
	m := newTestMCU(t)
	a, err := m.CreateAdc("ADC0")
	if err != nil {
		t.Fatalf("CreateAdc: %v", err)
	}
	if err := a.SetMinmax(0, 1, nil, nil); err != nil {
		t.Fatalf("SetMinmax: %v", err)
	}

	var gotTime, gotValue float64
	a.SetAdcCallback(0, func(readTime, value float64) {
		gotTime, gotValue = readTime, value
	})

	a.HandleAnalogInState(4095, uint64(1*1000000))
	if gotValue < 0.999 || gotValue > 1.001 {
		t.Errorf("value = %v, want ~1.0", gotValue)
	}
	if gotTime != 1.0 {
		t.Errorf("readTime = %v, want 1.0", gotTime)
	}
}
