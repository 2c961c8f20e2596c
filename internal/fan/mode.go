package fan

import (
	"strings"

	"codeberg.org/mutker/deckfanctl/internal/errors"
)

// Mode selects which curves apply and whether the embedded controller
// runs its own fan loop.
type Mode int

const (
	ModeDefault Mode = iota
	ModeAssistedOS
	ModeMax
)

var modeNames = map[Mode]string{
	ModeDefault:    "default",
	ModeAssistedOS: "assisted",
	ModeMax:        "max",
}

// Modes returns every known mode in declaration order.
func Modes() []Mode {
	return []Mode{ModeDefault, ModeAssistedOS, ModeMax}
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}

	return "unknown"
}

// Valid reports whether m is one of the declared modes.
func (m Mode) Valid() bool {
	_, ok := modeNames[m]
	return ok
}

// Autonomous reports whether the embedded controller drives the fan on its own in this mode.
func (m Mode) Autonomous() bool {
	return m == ModeDefault
}

// ParseMode converts a configured mode name into a Mode.
func ParseMode(s string) (Mode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "assistedos", "steamos":
		return ModeAssistedOS, nil
	}
	for mode, n := range modeNames {
		if n == name {
			return mode, nil
		}
	}

	return ModeDefault, errors.New().WithData(errors.ErrInvalidMode, s)
}
