package protocol

import "strings"

// Modifiers is the bitmask of held modifier keys.
type Modifiers uint8

const (
	ModCtrl  Modifiers = 1 << 0
	ModShift Modifiers = 1 << 1
	ModAlt   Modifiers = 1 << 2
	ModWin   Modifiers = 1 << 3
)

// Has reports whether every bit in m2 is set.
func (m Modifiers) Has(m2 Modifiers) bool {
	return m&m2 == m2
}

// String renders modifiers as dash-separated letters, e.g. "C-S".
func (m Modifiers) String() string {
	var parts []string
	if m.Has(ModCtrl) {
		parts = append(parts, "C")
	}
	if m.Has(ModShift) {
		parts = append(parts, "S")
	}
	if m.Has(ModAlt) {
		parts = append(parts, "A")
	}
	if m.Has(ModWin) {
		parts = append(parts, "W")
	}
	return strings.Join(parts, "-")
}

// KeyInput is a key event as produced by the key-translation collaborator.
// Key is the logical key value (e.g. "a", "Enter"); Code is the physical
// key code (e.g. "KeyA").
type KeyInput struct {
	Modifiers Modifiers `json:"modifiers"`
	Key       string    `json:"key"`
	Code      string    `json:"code"`
}

// String renders the key the way keymaps spell it: the bare key when no
// modifier is held, otherwise "<mods-code>".
func (k KeyInput) String() string {
	if k.Modifiers == 0 {
		return k.Key
	}
	return "<" + k.Modifiers.String() + "-" + k.Code + ">"
}
