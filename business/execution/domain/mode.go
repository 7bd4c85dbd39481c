// Package domain contains the execution context's value types.
package domain

import (
	"fmt"
	"strings"
)

// Mode selects how an opportunity is settled.
type Mode int

const (
	ModeSimulated Mode = iota
	ModeLive
)

func (m Mode) String() string {
	if m == ModeLive {
		return "LIVE"
	}
	return "SIMULATED"
}

// ParseMode accepts SIMULATED or LIVE in any case. Anything else is an error.
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SIMULATED":
		return ModeSimulated, nil
	case "LIVE":
		return ModeLive, nil
	}
	return ModeSimulated, fmt.Errorf("unknown execution mode %q", s)
}
