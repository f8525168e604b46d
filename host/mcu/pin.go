package mcu

import "strings"

// ParsePinExtras strips the leading '^' (pullup, only when canPullup)
// and '!' (invert) modifiers from a pin specification, returning the
// bare pin name and the two flags. It mirrors parse_pin_extras: '^'
// must come before '!' if both are present.
func ParsePinExtras(pin string, canPullup bool) (name string, pullup int, invert int) {
	if canPullup && strings.HasPrefix(pin, "^") {
		pullup = 1
		pin = strings.TrimSpace(pin[1:])
	}
	if strings.HasPrefix(pin, "!") {
		invert = 1
		pin = strings.TrimSpace(pin[1:])
	}
	return pin, pullup, invert
}

// PinResolver translates the symbolic pin names used in config
// commands into the names the connected MCU's dictionary actually
// recognizes. The pin-name mapping table itself (board layout, a
// pin_map override file) is an external collaborator; BuildConfig
// calls UpdateCommand on every accumulated config line and fails the
// build if a pin cannot be resolved, matching klippy's
// "Unable to translate pin name" config error.
type PinResolver interface {
	UpdateCommand(cmd string) (string, error)
}

// IdentityPinResolver passes every config command through unchanged.
// Useful for dry-run/testing when no board pin table is available.
type IdentityPinResolver struct{}

func (IdentityPinResolver) UpdateCommand(cmd string) (string, error) {
	return cmd, nil
}

// MapPinResolver resolves pin names through a fixed alias table, a
// minimal stand-in for the board-specific pin_map a full printer
// config would load.
type MapPinResolver struct {
	aliases map[string]string
}

// NewMapPinResolver builds a MapPinResolver from an alias table
// (alias name -> MCU pin name).
func NewMapPinResolver(aliases map[string]string) MapPinResolver {
	return MapPinResolver{aliases: aliases}
}

// UpdateCommand rewrites every "*pin=" token (pin=, step_pin=,
// dir_pin=, ...) in cmd whose value has an entry in the alias table,
// leaving unmapped pin values untouched.
func (r MapPinResolver) UpdateCommand(cmd string) (string, error) {
	fields := strings.Fields(cmd)
	for i, field := range fields {
		eq := strings.IndexByte(field, '=')
		if eq < 0 || !strings.HasSuffix(field[:eq], "pin") {
			continue
		}
		key, value := field[:eq], field[eq+1:]
		if mapped, ok := r.aliases[value]; ok {
			fields[i] = key + "=" + mapped
		}
	}
	return strings.Join(fields, " "), nil
}
