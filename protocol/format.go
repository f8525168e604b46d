package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// ParamType is the wire type of a single command-template parameter.
// Klipper's %c/%u/%i/%hu/%hi directives are wire-identical VLQ
// integers; the letter only documents the parameter's intended range
// and sign. %*s/%s carry buffer/string payloads.
type ParamType int

const (
	ParamUint ParamType = iota
	ParamInt
	ParamBuffer
	ParamString
)

// Param describes one named argument of a command template.
type Param struct {
	Name string
	Type ParamType
}

// CommandTemplate is a parsed command or response format string, e.g.
// "queue_step oid=%c interval=%u count=%hu add=%hi".
type CommandTemplate struct {
	Name   string
	Format string
	MsgID  int
	Params []Param
}

// ParseFormat parses a Klipper-style format string into a
// CommandTemplate with MsgID left at zero (callers fill it in from
// the dictionary's command/response id map).
func ParseFormat(format string) (*CommandTemplate, error) {
	fields := strings.Fields(format)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty command format")
	}

	tmpl := &CommandTemplate{
		Name:   fields[0],
		Format: format,
	}

	for _, field := range fields[1:] {
		eq := strings.IndexByte(field, '=')
		if eq < 0 {
			return nil, fmt.Errorf("malformed parameter %q in format %q", field, format)
		}
		name := field[:eq]
		directive := field[eq+1:]

		var ptype ParamType
		switch {
		case directive == "%c", directive == "%u", directive == "%hu":
			ptype = ParamUint
		case directive == "%i", directive == "%hi":
			ptype = ParamInt
		case directive == "%*s":
			ptype = ParamBuffer
		case directive == "%s":
			ptype = ParamString
		default:
			return nil, fmt.Errorf("unknown directive %q in format %q", directive, format)
		}

		tmpl.Params = append(tmpl.Params, Param{Name: name, Type: ptype})
	}

	return tmpl, nil
}

// Encode writes the command's msgid followed by its arguments, in
// declaration order, to output. args must supply a value for every
// named parameter in the template (numeric params as int64, buffer
// params as []byte, string params as string).
func (t *CommandTemplate) Encode(output OutputBuffer, args map[string]interface{}) error {
	EncodeVLQUint(output, uint32(t.MsgID))
	return t.EncodeArgs(output, args)
}

// EncodeArgs writes just the argument list, without the leading
// msgid. Used when a transport (such as HostTransport.SendCommand)
// already writes the msgid itself.
func (t *CommandTemplate) EncodeArgs(output OutputBuffer, args map[string]interface{}) error {
	for _, p := range t.Params {
		v, ok := args[p.Name]
		if !ok {
			return fmt.Errorf("%s: missing argument %q", t.Name, p.Name)
		}

		switch p.Type {
		case ParamUint:
			n, err := toInt64(v)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", t.Name, p.Name, err)
			}
			EncodeVLQUint(output, uint32(n))
		case ParamInt:
			n, err := toInt64(v)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", t.Name, p.Name, err)
			}
			EncodeVLQInt(output, int32(n))
		case ParamBuffer:
			b, ok := v.([]byte)
			if !ok {
				return fmt.Errorf("%s.%s: expected []byte argument", t.Name, p.Name)
			}
			EncodeVLQBytes(output, b)
		case ParamString:
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("%s.%s: expected string argument", t.Name, p.Name)
			}
			EncodeVLQString(output, s)
		}
	}

	return nil
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case uint:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}
