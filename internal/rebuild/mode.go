package rebuild

import "fmt"

// Mode selects how the document strategy orders and filters forms.
type Mode int

const (
	// Patched mimics the relational store: forms ordered by receipt time,
	// no-action forms and forms from other domains skipped.
	Patched Mode = iota

	// Default replays the document case's form list as stored.
	Default
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	switch m {
	case Patched:
		return "patched"
	case Default:
		return "default"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode parses a configuration name. The empty string means Patched.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "patched":
		return Patched, nil
	case "default":
		return Default, nil
	}
	return 0, fmt.Errorf("unknown rebuild mode %q (want \"patched\" or \"default\")", s)
}
