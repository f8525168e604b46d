package mcu

import (
	"strings"
	"testing"
	"time"

	"mcuhost/host/reactor"
	"mcuhost/protocol"
)

func buildConfigDictionary(t *testing.T) *protocol.Dictionary {
	t.Helper()
	data := []byte(`{
		"version": "test",
		"build_versions": "test",
		"config": {"CLOCK_FREQ": 1000000, "STATS_SUMSQ_BASE": 256},
		"commands": {
			"get_config": 10,
			"emergency_stop": 11,
			"clear_shutdown": 12,
			"allocate_oids count=%u": 20,
			"config_stepper oid=%c step_pin=%s dir_pin=%s min_stop_interval=%u invert_step=%c": 21,
			"finalize_config crc=%u": 22
		},
		"responses": {
			"config is_config=%c crc=%u move_count=%hu": 100
		}
	}`)
	dict, err := protocol.ParseDictionary(data)
	if err != nil {
		t.Fatalf("ParseDictionary: %v", err)
	}
	return dict
}

func TestBuildConfigFileoutputNegotiatesAndConfiguresSteppers(t *testing.T) {
	m := New(nil)
	if err := m.ConnectFile(buildConfigDictionary(t), false); err != nil {
		t.Fatalf("ConnectFile: %v", err)
	}

	if _, err := m.CreateStepper("PA0", "PA1", 0, 0.000025); err != nil {
		t.Fatalf("CreateStepper: %v", err)
	}

	if err := m.BuildConfig(); err != nil {
		t.Fatalf("BuildConfig: %v", err)
	}

	cmds := m.ConfigCommands()
	if len(cmds) == 0 {
		t.Fatal("ConfigCommands() is empty")
	}
	if !strings.HasPrefix(cmds[0], "allocate_oids count=1") {
		t.Errorf("first config command = %q, want allocate_oids prefix", cmds[0])
	}
	last := cmds[len(cmds)-1]
	if !strings.HasPrefix(last, "finalize_config crc=") {
		t.Errorf("last config command = %q, want finalize_config prefix", last)
	}
}

func TestBuildConfigAppliesCustomLinesAndPinResolver(t *testing.T) {
	m := New(nil, WithCustomConfigLines([]string{"# a comment", "  ", "config_stepper oid=0 step_pin=x_step dir_pin=x_dir min_stop_interval=0 invert_step=0  # trailing"}),
		WithPinResolver(NewMapPinResolver(map[string]string{"x_step": "PA0", "x_dir": "PA1"})))
	if err := m.ConnectFile(buildConfigDictionary(t), false); err != nil {
		t.Fatalf("ConnectFile: %v", err)
	}

	if err := m.BuildConfig(); err != nil {
		t.Fatalf("BuildConfig: %v", err)
	}

	cmds := m.ConfigCommands()
	found := false
	for _, c := range cmds {
		if strings.Contains(c, "step_pin=PA0") && strings.Contains(c, "dir_pin=PA1") {
			found = true
		}
		if strings.Contains(c, "#") {
			t.Errorf("comment leaked into resolved config command: %q", c)
		}
	}
	if !found {
		t.Error("custom config line was not resolved through the pin map")
	}
}

func TestTimeoutHandlerNotifiesOnceCommTimeoutElapses(t *testing.T) {
	var notified []string
	m := New(nil, WithErrorNotifier(func(msg string) { notified = append(notified, msg) }))

	lastClockTime := time.Now()
	clockSync := &fakeClockSync{clock: 1000, at: lastClockTime}
	m.clockSync = clockSync

	next := m.timeoutHandler(lastClockTime.Add(CommTimeout / 2))
	if next == reactor.Never {
		t.Fatal("timeoutHandler disarmed before CommTimeout elapsed")
	}
	if len(notified) != 0 {
		t.Fatalf("notified before timeout elapsed: %v", notified)
	}

	next = m.timeoutHandler(lastClockTime.Add(CommTimeout + time.Millisecond))
	if next != reactor.Never {
		t.Errorf("expected timeoutHandler to disarm (reactor.Never) once past CommTimeout, got %v", next)
	}
	if len(notified) != 1 || notified[0] != "Lost communication with firmware" {
		t.Fatalf("expected a single \"Lost communication with firmware\" notification, got %v", notified)
	}
}

func TestDispatchResponseRoutesToRegisteredHandlersByOID(t *testing.T) {
	data := []byte(`{
		"version": "test",
		"build_versions": "test",
		"config": {"CLOCK_FREQ": 1000000, "STATS_SUMSQ_BASE": 256},
		"commands": {"get_config": 10, "emergency_stop": 11, "clear_shutdown": 12},
		"responses": {
			"config is_config=%c crc=%u move_count=%hu": 100,
			"widget_state oid=%c value=%u": 77
		}
	}`)
	dict, err := protocol.ParseDictionary(data)
	if err != nil {
		t.Fatalf("ParseDictionary: %v", err)
	}

	m := New(nil)
	if err := m.ConnectFile(dict, false); err != nil {
		t.Fatalf("ConnectFile: %v", err)
	}

	var filtered []uint64
	var all []uint64
	m.RegisterResponse("widget_state", 5, func(fields map[string]interface{}, _ time.Time) {
		filtered = append(filtered, fieldUint(fields, "value"))
	})
	m.RegisterResponse("widget_state", -1, func(fields map[string]interface{}, _ time.Time) {
		all = append(all, fieldUint(fields, "value"))
	})

	send := func(oid, value uint32) {
		out := protocol.NewScratchOutput()
		protocol.EncodeVLQUint(out, oid)
		protocol.EncodeVLQUint(out, value)
		payload := out.Result()
		if err := m.dispatchResponse(77, &payload); err != nil {
			t.Fatalf("dispatchResponse: %v", err)
		}
	}

	send(5, 111)
	send(6, 222)

	if len(filtered) != 1 || filtered[0] != 111 {
		t.Errorf("oid=5-filtered handler should only see oid 5's response, got %v", filtered)
	}
	if len(all) != 2 || all[0] != 111 || all[1] != 222 {
		t.Errorf("unfiltered handler should see every widget_state response, got %v", all)
	}
}

func TestHandleMCUStatsComputesAvgAndStddev(t *testing.T) {
	m := newTestMCU(t)
	m.HandleMCUStats(10, 5000, 2600000)
	if m.mcuTickAvg <= 0 {
		t.Errorf("mcuTickAvg = %v, want > 0", m.mcuTickAvg)
	}
	if m.mcuTickStddev <= 0 {
		t.Errorf("mcuTickStddev = %v, want > 0", m.mcuTickStddev)
	}
	if !strings.Contains(m.Stats(), "mcu_task_avg=") {
		t.Errorf("Stats() = %q, want mcu_task_avg prefix", m.Stats())
	}
}
