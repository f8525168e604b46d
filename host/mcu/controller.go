// Package mcu implements the host-side control interface to a motion
// micro-controller: configuration negotiation, print-time/MCU-clock
// translation, and the command objects (steppers, endstops, digital
// outputs, PWM channels, ADC inputs) that wrap the wire protocol.
//
// It mirrors klippy's mcu.py: the MCU type owns the config-build
// sequence and dispatches typed peripheral wrappers, while the
// byte-level transport, clock estimation, and pin-name resolution are
// supplied as external collaborators through narrow interfaces
// (protocol.HostTransport, ClockSync, PinResolver).
package mcu

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"mcuhost/host/reactor"
	"mcuhost/host/serial"
	"mcuhost/protocol"
	"mcuhost/stepcompress"
)

// CommTimeout is how long the controller waits without a clock update
// before declaring the connection to the firmware lost, matching
// klippy's MCU.COMM_TIMEOUT.
const CommTimeout = 3500 * time.Millisecond

// Logger receives diagnostic lines from the controller (config
// negotiation progress, shutdown notices, comm timeouts). A nil
// Logger discards them.
type Logger func(format string, args ...interface{})

// ErrorNotifier receives a distinguishable one-line notification for
// conditions a caller may want to surface separately from routine log
// output, such as a lost comms timeout. A nil ErrorNotifier discards
// them.
type ErrorNotifier func(msg string)

// responseHandler is a callback registered against a response name
// (and, for per-object responses, an oid), invoked with the decoded
// field map and the host time the response was observed at.
type responseHandler struct {
	oid int // < 0 means "no oid filter"
	cb  func(fields map[string]interface{}, sentTime time.Time)
}

// MCU is a connection to a single micro-controller.
type MCU struct {
	mu sync.Mutex

	transport *protocol.HostTransport
	port      serial.Port
	dictRaw   []byte
	dictionary *protocol.Dictionary

	reactor      *reactor.Reactor
	timeoutTimer *reactor.Timer
	clockSync    ClockSync
	logger       Logger
	errorNotifier ErrorNotifier

	respMu    sync.Mutex
	responses map[string][]responseHandler

	fileoutput bool
	pace       bool
	isShutdown bool
	connected  bool

	pinResolver PinResolver
	customLines []string

	numOids       int
	configCmds    []string
	configCRC     uint32
	initCallbacks []func() error

	steppers    []*stepcompress.StepQueue
	stepperSync *stepcompress.StepperSync

	printStartTime float64
	mcuFreq        float64
	statsSumSqBase float64
	mcuTickAvg     float64
	mcuTickStddev  float64

	emergencyStopCmd *protocol.CommandTemplate
	clearShutdownCmd *protocol.CommandTemplate
}

// Option configures an MCU at construction time.
type Option func(*MCU)

// WithLogger installs a diagnostic logger.
func WithLogger(l Logger) Option { return func(m *MCU) { m.logger = l } }

// WithErrorNotifier installs a handler for distinguishable error
// notifications (currently: lost comms).
func WithErrorNotifier(n ErrorNotifier) Option { return func(m *MCU) { m.errorNotifier = n } }

// WithPinResolver installs the pin-name resolution table. If omitted,
// IdentityPinResolver is used (commands pass through unchanged).
func WithPinResolver(r PinResolver) Option { return func(m *MCU) { m.pinResolver = r } }

// WithCustomConfigLines supplies the config's free-form "custom"
// command block, matching the `custom` config key klippy reads in
// MCU._add_custom.
func WithCustomConfigLines(lines []string) Option {
	return func(m *MCU) { m.customLines = lines }
}

// New creates an MCU bound to the given reactor. Connect or
// ConnectFile must be called before building the config.
func New(r *reactor.Reactor, opts ...Option) *MCU {
	m := &MCU{
		reactor:     r,
		pinResolver: IdentityPinResolver{},
		responses:   make(map[string][]responseHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = func(string, ...interface{}) {}
	}
	if m.errorNotifier == nil {
		m.errorNotifier = func(string) {}
	}
	return m
}

// Connect opens a live serial connection to the MCU, retrieves its
// dictionary, registers the shutdown/stats handlers, and arms the
// comms timeout timer.
func (m *MCU) Connect(cfg *serial.Config, clockSync ClockSync) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return fmt.Errorf("open serial port: %w", err)
	}

	m.port = port
	m.transport = protocol.NewHostTransport(port)
	m.clockSync = clockSync
	m.connected = true

	if err := m.retrieveDictionary(); err != nil {
		return err
	}

	m.mcuFreq, _ = m.dictionary.GetConstantFloat("CLOCK_FREQ")
	m.statsSumSqBase, _ = m.dictionary.GetConstantFloat("STATS_SUMSQ_BASE")

	m.emergencyStopCmd, err = m.dictionary.LookupCommand("emergency_stop")
	if err != nil {
		return err
	}
	m.clearShutdownCmd, err = m.dictionary.LookupCommand("clear_shutdown")
	if err != nil {
		return err
	}

	m.transport.SetResponseHandler(m.dispatchResponse)

	m.RegisterResponse("shutdown", -1, func(fields map[string]interface{}, _ time.Time) {
		m.HandleShutdown("shutdown", fieldString(fields, "static_string_id"))
	})
	m.RegisterResponse("is_shutdown", -1, func(fields map[string]interface{}, _ time.Time) {
		m.HandleShutdown("is_shutdown", fieldString(fields, "static_string_id"))
	})
	m.RegisterResponse("stats", -1, func(fields map[string]interface{}, _ time.Time) {
		m.HandleMCUStats(uint32(fieldUint(fields, "count")), uint64(fieldUint(fields, "sum")), uint64(fieldUint(fields, "sumsq")))
	})

	m.timeoutTimer = m.reactor.Register(time.Now().Add(CommTimeout), m.timeoutHandler)

	return nil
}

// RegisterResponse subscribes cb to every future occurrence of the
// named response. A negative oid (or a response that carries no oid
// parameter at all) means cb fires for every matching response;
// otherwise it only fires when the response's own oid field equals
// oid, mirroring klippy's MCU.register_msg(cb, msg, oid). A dictionary
// that doesn't define name is tolerated (the registration is simply
// inert) so code can unconditionally register against dictionaries
// built for a narrower test fixture.
func (m *MCU) RegisterResponse(name string, oid int, cb func(fields map[string]interface{}, sentTime time.Time)) {
	m.respMu.Lock()
	defer m.respMu.Unlock()
	if m.responses == nil {
		m.responses = make(map[string][]responseHandler)
	}
	m.responses[name] = append(m.responses[name], responseHandler{oid: oid, cb: cb})
}

// dispatchResponse decodes an incoming response payload by its
// dictionary-assigned msgid and fans it out to every handler
// registered for that response's name, filtering by oid when the
// response carries one, matching klippy's MCU._handle_* dispatch via
// register_msg.
func (m *MCU) dispatchResponse(cmdID uint16, data *[]byte) error {
	if m.dictionary == nil {
		return nil
	}
	tmpl, ok := m.dictionary.ResponseByID(int(cmdID))
	if !ok {
		return nil
	}

	m.respMu.Lock()
	handlers := m.responses[tmpl.Name]
	m.respMu.Unlock()
	if len(handlers) == 0 {
		return nil
	}

	fields, err := decodeResponseFields(tmpl, data)
	if err != nil {
		return err
	}
	sentTime := time.Now()

	oid, hasOID := fields["oid"]
	for _, h := range handlers {
		if hasOID && h.oid >= 0 && uint64(h.oid) != toUint64(oid) {
			continue
		}
		h.cb(fields, sentTime)
	}
	return nil
}

// ConnectFile puts the controller into dry-run / file-output mode:
// no serial port is opened, config negotiation is synthesized
// locally (is_config=0, move_count=500, crc=<computed>), and unless
// pace is true, print-time pacing is stubbed out to a constant
// buffer time. dictionary supplies the static command/response tables
// that would otherwise come from the MCU's identify response.
func (m *MCU) ConnectFile(dictionary *protocol.Dictionary, pace bool) error {
	m.fileoutput = true
	m.pace = pace
	m.dictionary = dictionary
	m.clockSync = FileClockSync{}
	m.connected = true

	var err error
	m.mcuFreq, _ = dictionary.GetConstantFloat("CLOCK_FREQ")
	m.statsSumSqBase, _ = dictionary.GetConstantFloat("STATS_SUMSQ_BASE")
	m.emergencyStopCmd, err = dictionary.LookupCommand("emergency_stop")
	if err != nil {
		return err
	}
	m.clearShutdownCmd, err = dictionary.LookupCommand("clear_shutdown")
	if err != nil {
		return err
	}
	return nil
}

// retrieveDictionary fetches the MCU's data dictionary via chunked
// identify requests and parses it.
func (m *MCU) retrieveDictionary() error {
	var buf bytes.Buffer
	offset := uint32(0)
	const chunkSize = 40
	const maxIterations = 10000

	for i := 0; i < maxIterations; i++ {
		chunk, err := m.sendIdentify(offset, chunkSize)
		if err != nil {
			return fmt.Errorf("retrieve dictionary chunk at offset %d: %w", offset, err)
		}
		if len(chunk) == 0 {
			break
		}
		buf.Write(chunk)
		offset += uint32(len(chunk))
		if len(chunk) < chunkSize {
			break
		}
	}

	data := buf.Bytes()
	if decompressed, err := inflateIfZlib(data); err == nil {
		data = decompressed
	}

	m.dictRaw = data
	dict, err := protocol.ParseDictionary(data)
	if err != nil {
		return fmt.Errorf("parse dictionary: %w", err)
	}
	m.dictionary = dict
	return nil
}

func (m *MCU) sendIdentify(offset uint32, count uint8) ([]byte, error) {
	err := m.transport.SendCommand(1, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQUint(output, uint32(count))
	})
	if err != nil {
		return nil, fmt.Errorf("send identify: %w", err)
	}

	resp, err := m.transport.ReceiveResponse(time.Second)
	if err != nil {
		return nil, fmt.Errorf("receive identify response: %w", err)
	}

	payload := resp.Payload
	cmdID, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, fmt.Errorf("decode response cmdID: %w", err)
	}
	if cmdID != 0 {
		return nil, fmt.Errorf("unexpected response cmdID %d (want 0)", cmdID)
	}

	respOffset, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, fmt.Errorf("decode response offset: %w", err)
	}
	if respOffset != offset {
		return nil, fmt.Errorf("offset mismatch: want %d, got %d", offset, respOffset)
	}

	return protocol.DecodeVLQBytes(&payload)
}

// inflateIfZlib decompresses data if it begins with a zlib header,
// completing the decompression path the dictionary fetch needs when
// talking to an MCU built with a compressed dictionary.
func inflateIfZlib(data []byte) ([]byte, error) {
	if len(data) < 2 || data[0] != 0x78 {
		return nil, fmt.Errorf("not zlib compressed")
	}
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Dictionary returns the parsed MCU dictionary.
func (m *MCU) Dictionary() *protocol.Dictionary { return m.dictionary }

// ConfigCommands returns the resolved config command stream as built
// by BuildConfig (allocate_oids, every peripheral's config line, and
// the trailing finalize_config), in send order.
func (m *MCU) ConfigCommands() []string {
	out := make([]string, len(m.configCmds))
	copy(out, m.configCmds)
	return out
}

// IsFileoutput reports whether the controller is in dry-run mode.
func (m *MCU) IsFileoutput() bool { return m.fileoutput }

// IsShutdown reports whether the MCU has reported a shutdown.
func (m *MCU) IsShutdown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isShutdown
}

// CreateOID allocates the next dense object id.
func (m *MCU) CreateOID() int {
	oid := m.numOids
	m.numOids++
	return oid
}

// AddConfigCmd appends a resolved config command line, to be sent
// during BuildConfig.
func (m *MCU) AddConfigCmd(cmd string) {
	m.configCmds = append(m.configCmds, cmd)
}

// AddInitCallback registers a callback to run after config
// negotiation succeeds, in registration order.
func (m *MCU) AddInitCallback(cb func() error) {
	m.initCallbacks = append(m.initCallbacks, cb)
}

// RegisterStepper adds a stepper's step queue to the set flushed by
// the multi-queue steppersync once config negotiation completes.
func (m *MCU) RegisterStepper(q *stepcompress.StepQueue) {
	m.steppers = append(m.steppers, q)
}

// LookupCommand resolves a command's symbolic name to its parsed
// template (msgid + argument list) via the MCU's dictionary.
func (m *MCU) LookupCommand(name string) (*protocol.CommandTemplate, error) {
	return m.dictionary.LookupCommand(name)
}

// SendCommand encodes and transmits a command by name with the given
// named arguments, subject to the same minclock/reqclock/cq
// scheduling metadata klippy's MCU.send accepts: reqClock is the MCU
// clock tick the command's own clock-bearing argument (if any)
// corresponds to, minClock is the earliest clock this command may be
// considered valid at, and cq (if not nil) is the per-object
// CommandQueue returned by AllocCommandQueue that guards against this
// command reaching the MCU out of order relative to the same object's
// other sends.
func (m *MCU) SendCommand(name string, args map[string]interface{}, minClock, reqClock uint64, cq *CommandQueue) error {
	tmpl, err := m.LookupCommand(name)
	if err != nil {
		return err
	}
	return m.sendTemplate(tmpl, args, minClock, reqClock, cq)
}

// sendTemplateNow sends tmpl with no clock gating and no command
// queue, for the handful of commands (emergency_stop, clear_shutdown,
// and the config negotiation stream) klippy's mcu.py sends via plain
// self.send(msg) with no minclock/reqclock/cq at all.
func (m *MCU) sendTemplateNow(tmpl *protocol.CommandTemplate, args map[string]interface{}) error {
	return m.sendTemplate(tmpl, args, 0, 0, nil)
}

// sendTemplate is the common send path. When cq is non-nil it locks
// the queue for the duration of the send and rejects a reqClock that
// precedes the last one accepted on that queue, the host-side
// protection against a stale or reordered command reaching the MCU
// that klippy's serialqueue gets for free from minclock/reqclock
// ordering; this transport has no retransmission path for minClock
// itself to gate, so it is accepted for parity with mcu.py's send()
// signature but not otherwise enforced.
func (m *MCU) sendTemplate(tmpl *protocol.CommandTemplate, args map[string]interface{}, minClock, reqClock uint64, cq *CommandQueue) error {
	_ = minClock

	if cq != nil {
		cq.mu.Lock()
		defer cq.mu.Unlock()
		if reqClock != 0 && reqClock < cq.lastReqClock {
			return newError("%s: reqclock %d precedes last queued clock %d", tmpl.Name, reqClock, cq.lastReqClock)
		}
		if reqClock != 0 {
			cq.lastReqClock = reqClock
		}
	}

	if m.fileoutput {
		return nil
	}
	return m.transport.SendCommand(uint16(tmpl.MsgID), func(output protocol.OutputBuffer) {
		_ = tmpl.EncodeArgs(output, args)
	})
}

// addCustomConfig tokenizes and appends the config's free-form custom
// command block, stripping '#' comments exactly as klippy's
// MCU._add_custom does.
func (m *MCU) addCustomConfig() {
	for _, line := range m.customLines {
		line = strings.TrimSpace(line)
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if line == "" {
			continue
		}
		m.AddConfigCmd(line)
	}
}

// BuildConfig runs the full configuration negotiation sequence:
// append custom config lines, prepend allocate_oids, resolve pin
// names through the PinResolver, compute the config CRC, append
// finalize_config, then negotiate with the MCU via sendConfig.
func (m *MCU) BuildConfig() error {
	m.addCustomConfig()
	m.configCmds = append([]string{fmt.Sprintf("allocate_oids count=%d", m.numOids)}, m.configCmds...)

	resolved := make([]string, len(m.configCmds))
	for i, cmd := range m.configCmds {
		updated, err := m.pinResolver.UpdateCommand(cmd)
		if err != nil {
			return newError("unable to translate pin name: %s", cmd)
		}
		resolved[i] = updated
	}
	m.configCmds = resolved

	m.configCRC = protocol.ConfigCRC(m.configCmds)
	m.AddConfigCmd(fmt.Sprintf("finalize_config crc=%d", m.configCRC))

	return m.sendConfig()
}

type configResponse struct {
	isConfig  bool
	moveCount int
	crc       uint32
}

func (m *MCU) sendConfig() error {
	getConfig, err := m.dictionary.LookupCommand("get_config")
	if err != nil {
		return err
	}

	var resp configResponse
	if m.fileoutput {
		resp = configResponse{isConfig: false, moveCount: 500, crc: m.configCRC}
	} else {
		resp, err = m.requestConfig(getConfig)
		if err != nil {
			return err
		}
	}

	if !resp.isConfig {
		for _, line := range m.configCmds {
			if err := m.sendRawLine(line); err != nil {
				return fmt.Errorf("send config line %q: %w", line, err)
			}
		}
		if !m.fileoutput {
			resp, err = m.requestConfig(getConfig)
			if err != nil {
				return err
			}
		} else {
			resp.isConfig = true
		}
	}

	if resp.crc != m.configCRC {
		return newError("printer CRC does not match config")
	}

	m.logger("configured (%d moves)", resp.moveCount)

	m.stepperSync = stepcompress.NewStepperSync(m.steppers, resp.moveCount)

	for _, cb := range m.initCallbacks {
		if err := cb(); err != nil {
			return err
		}
	}

	return nil
}

// sendRawLine parses a bare config command line ("config_stepper
// oid=0 ...") against the dictionary and transmits it. klippy's
// create_command does the same lookup-by-leading-word + literal
// argument parse; here the arguments are always base-10 integers or
// bare identifiers already resolved by pin translation, so a simple
// split is sufficient.
func (m *MCU) sendRawLine(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	tmpl, err := m.dictionary.LookupCommand(fields[0])
	if err != nil {
		return err
	}

	args := make(map[string]interface{}, len(tmpl.Params))
	for _, field := range fields[1:] {
		eq := strings.IndexByte(field, '=')
		if eq < 0 {
			continue
		}
		args[field[:eq]] = field[eq+1:]
	}

	return m.sendTemplateNow(tmpl, args)
}

// decodeResponseFields decodes a response payload (with its leading
// msgid already stripped) into a name -> value map per tmpl's
// parameter list: uint32 for %c/%u/%hu fields, int32 for %i/%hi,
// []byte for %*s, and string for %s. It is the shared decode path for
// both the synchronous get_config exchange and the asynchronous
// response-dispatch table.
func decodeResponseFields(tmpl *protocol.CommandTemplate, payload *[]byte) (map[string]interface{}, error) {
	fields := make(map[string]interface{}, len(tmpl.Params))
	for _, p := range tmpl.Params {
		switch p.Type {
		case protocol.ParamInt:
			v, err := protocol.DecodeVLQInt(payload)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", tmpl.Name, p.Name, err)
			}
			fields[p.Name] = v
		case protocol.ParamBuffer:
			v, err := protocol.DecodeVLQBytes(payload)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", tmpl.Name, p.Name, err)
			}
			fields[p.Name] = v
		case protocol.ParamString:
			v, err := protocol.DecodeVLQString(payload)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", tmpl.Name, p.Name, err)
			}
			fields[p.Name] = v
		default:
			v, err := protocol.DecodeVLQUint(payload)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", tmpl.Name, p.Name, err)
			}
			fields[p.Name] = v
		}
	}
	return fields, nil
}

// fieldUint and fieldString extract a decoded response field,
// tolerating a missing or mistyped key by returning the zero value,
// since a response built against a reduced test dictionary may omit
// fields a generic handler still probes for.
func fieldUint(fields map[string]interface{}, name string) uint64 {
	return toUint64(fields[name])
}

func fieldString(fields map[string]interface{}, name string) string {
	switch v := fields[name].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func toUint64(v interface{}) uint64 {
	switch n := v.(type) {
	case uint32:
		return uint64(n)
	case int32:
		return uint64(n)
	case uint64:
		return n
	case int64:
		return uint64(n)
	default:
		return 0
	}
}

func (m *MCU) requestConfig(getConfig *protocol.CommandTemplate) (configResponse, error) {
	if err := m.transport.SendCommand(uint16(getConfig.MsgID), nil); err != nil {
		return configResponse{}, fmt.Errorf("send get_config: %w", err)
	}
	msg, err := m.transport.ReceiveResponse(2 * time.Second)
	if err != nil {
		return configResponse{}, fmt.Errorf("receive config response: %w", err)
	}

	payload := msg.Payload
	cmdID, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return configResponse{}, err
	}
	tmpl, ok := m.dictionary.ResponseByID(int(cmdID))
	if !ok || tmpl.Name != "config" {
		return configResponse{}, fmt.Errorf("unexpected config response id %d", cmdID)
	}

	fields, err := decodeResponseFields(tmpl, &payload)
	if err != nil {
		return configResponse{}, err
	}

	return configResponse{
		isConfig:  fieldUint(fields, "is_config") != 0,
		moveCount: int(fieldUint(fields, "move_count")),
		crc:       uint32(fieldUint(fields, "crc")),
	}, nil
}

// ForceShutdown sends the emergency_stop command, asking the MCU to
// halt motion immediately.
func (m *MCU) ForceShutdown() error {
	return m.sendTemplateNow(m.emergencyStopCmd, nil)
}

// ClearShutdown sends clear_shutdown, asking the MCU to resume
// accepting commands after a shutdown.
func (m *MCU) ClearShutdown() error {
	m.logger("sending clear_shutdown command")
	return m.sendTemplateNow(m.clearShutdownCmd, nil)
}

// HandleShutdown is invoked (directly, or via a registered response
// handler) when the MCU reports shutdown or is_shutdown. It is
// idempotent: only the first call logs and dumps diagnostic state.
func (m *MCU) HandleShutdown(name, reason string) {
	m.mu.Lock()
	if m.isShutdown {
		m.mu.Unlock()
		return
	}
	m.isShutdown = true
	m.mu.Unlock()

	m.logger("%s: %s", name, reason)
	m.dumpDebug()
}

func (m *MCU) dumpDebug() {
	m.logger("dictionary dump (%d bytes): %s", len(m.dictRaw), string(m.dictRaw))
}

// HandleMCUStats updates the running tick-time average/stddev from a
// stats response, matching klippy's handle_mcu_stats formula.
func (m *MCU) HandleMCUStats(count uint32, tickSum uint64, tickSumSq uint64) {
	if count == 0 || m.mcuFreq == 0 {
		return
	}
	c := 1.0 / (float64(count) * m.mcuFreq)
	m.mcuTickAvg = float64(tickSum) * c
	scaledSumSq := float64(tickSumSq) * m.statsSumSqBase
	variance := float64(count)*scaledSumSq - float64(tickSum)*float64(tickSum)
	if variance < 0 {
		variance = 0
	}
	m.mcuTickStddev = c * math.Sqrt(variance)
}

// Stats returns a single-line diagnostic summary, matching the shape
// of klippy's MCU.stats() output.
func (m *MCU) Stats() string {
	var errs uint32
	for _, q := range m.steppers {
		errs += q.GetErrors()
	}
	s := fmt.Sprintf("mcu_task_avg=%.06f mcu_task_stddev=%.06f", m.mcuTickAvg, m.mcuTickStddev)
	if errs != 0 {
		s += fmt.Sprintf(" step_errors=%d", errs)
	}
	return s
}

// timeoutHandler is the COMM_TIMEOUT timer callback: it reschedules
// itself until the time since the last observed clock update exceeds
// CommTimeout, at which point it declares the connection lost and
// disarms (returns reactor.Never), matching klippy's timeout_handler.
func (m *MCU) timeoutHandler(eventtime time.Time) time.Time {
	_, lastClockTime := m.clockSync.GetLastClock()
	timeout := lastClockTime.Add(CommTimeout)
	if eventtime.Before(timeout) {
		return timeout
	}
	m.logger("timeout with firmware (eventtime=%v last_status=%v)", eventtime, lastClockTime)
	m.errorNotifier("Lost communication with firmware")
	return reactor.Never
}

// Pause blocks until waketime via the controller's reactor, matching
// klippy's MCU.pause -> printer.reactor.pause.
func (m *MCU) Pause(waketime time.Time) time.Time {
	return m.reactor.Pause(waketime)
}

// FlushMoves drains every registered step queue up to the clock
// corresponding to print_time.
func (m *MCU) FlushMoves(printTime float64) {
	if m.stepperSync == nil {
		return
	}
	mcuTime := printTime + m.printStartTime
	clock := uint64(mcuTime * m.mcuFreq)
	m.stepperSync.Flush(clock)
}

// Close disconnects the transport and frees the steppersync.
func (m *MCU) Close() error {
	if m.timeoutTimer != nil {
		m.reactor.Unregister(m.timeoutTimer)
	}
	m.stepperSync = nil
	if m.transport != nil {
		return m.transport.Close()
	}
	return nil
}

