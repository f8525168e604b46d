package protocol

import (
	"encoding/json"
	"fmt"
)

// Dictionary is the parsed data dictionary an MCU reports during
// identification: protocol version, build info, compile-time
// constants, and the command/response/enumeration tables used to
// resolve symbolic names to wire msgids.
type Dictionary struct {
	Version       string                       `json:"version"`
	BuildVersions string                       `json:"build_versions"`
	Config        map[string]json.RawMessage   `json:"config"`
	Commands      map[string]int               `json:"commands"`
	Responses     map[string]int               `json:"responses"`
	Enumerations  map[string]map[string]int    `json:"enumerations,omitempty"`

	commandTemplates  map[string]*CommandTemplate
	responseTemplates map[string]*CommandTemplate
}

// ParseDictionary unmarshals raw dictionary JSON and pre-parses every
// command and response format string into a CommandTemplate.
func ParseDictionary(data []byte) (*Dictionary, error) {
	dict := &Dictionary{}
	if err := json.Unmarshal(data, dict); err != nil {
		return nil, fmt.Errorf("parse dictionary: %w", err)
	}

	dict.commandTemplates = make(map[string]*CommandTemplate, len(dict.Commands))
	for format, msgid := range dict.Commands {
		tmpl, err := ParseFormat(format)
		if err != nil {
			return nil, fmt.Errorf("command %q: %w", format, err)
		}
		tmpl.MsgID = msgid
		dict.commandTemplates[tmpl.Name] = tmpl
	}

	dict.responseTemplates = make(map[string]*CommandTemplate, len(dict.Responses))
	for format, msgid := range dict.Responses {
		tmpl, err := ParseFormat(format)
		if err != nil {
			return nil, fmt.Errorf("response %q: %w", format, err)
		}
		tmpl.MsgID = msgid
		dict.responseTemplates[tmpl.Name] = tmpl
	}

	return dict, nil
}

// LookupCommand returns the parsed template for a command by its
// symbolic name (e.g. "queue_step"), as klippy's lookup_command does
// by matching on the leading word of the format string.
func (d *Dictionary) LookupCommand(name string) (*CommandTemplate, error) {
	tmpl, ok := d.commandTemplates[name]
	if !ok {
		return nil, fmt.Errorf("unknown command: %s", name)
	}
	return tmpl, nil
}

// LookupResponse returns the parsed template for a response by its
// symbolic name, and the msgid to register it under in the receive
// dispatcher.
func (d *Dictionary) LookupResponse(name string) (*CommandTemplate, error) {
	tmpl, ok := d.responseTemplates[name]
	if !ok {
		return nil, fmt.Errorf("unknown response: %s", name)
	}
	return tmpl, nil
}

// ResponseByID returns the parsed template for a response by its
// wire msgid, used when dispatching an incoming message.
func (d *Dictionary) ResponseByID(msgid int) (*CommandTemplate, bool) {
	for _, tmpl := range d.responseTemplates {
		if tmpl.MsgID == msgid {
			return tmpl, true
		}
	}
	return nil, false
}

// GetConstant returns a raw config/constant value as a string.
func (d *Dictionary) GetConstant(name string) (string, bool) {
	raw, ok := d.Config[name]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	return string(raw), true
}

// GetConstantFloat returns a config/constant value parsed as a
// float64, matching klippy's get_constant_float helper used for
// values like "CLOCK_FREQ".
func (d *Dictionary) GetConstantFloat(name string) (float64, bool) {
	raw, ok := d.Config[name]
	if !ok {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	return f, true
}

// Enumeration returns the value map for a named enumeration (e.g.
// "pin").
func (d *Dictionary) Enumeration(name string) (map[string]int, bool) {
	vals, ok := d.Enumerations[name]
	return vals, ok
}
