package perf

import (
	"strings"

	"codeberg.org/nexustouch/perfd/internal/errors"
)

// Mode is the animation-richness tier applied to the UI. ModeAuto is a
// meta-state that hands the choice among the three tiers to the Controller.
type Mode uint8

const (
	ModeFull Mode = iota
	ModeReduced
	ModeMinimal
	ModeAuto
)

var modeNames = [...]string{
	ModeFull:    "full",
	ModeReduced: "reduced",
	ModeMinimal: "minimal",
	ModeAuto:    "auto",
}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "unknown"
}

// ParseMode parses a mode name, case-insensitively.
func ParseMode(s string) (Mode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range modeNames {
		if n == name {
			return Mode(i), nil
		}
	}
	return ModeFull, errors.New().WithData(errors.ErrInvalidMode, s)
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// IsTier reports whether m is one of the three operative tiers.
func (m Mode) IsTier() bool {
	return m <= ModeMinimal
}

// Below reports whether tier m is more degraded than tier o.
func (m Mode) Below(o Mode) bool {
	return m.IsTier() && o.IsTier() && m > o
}

func (m Mode) stepDown() Mode {
	if m >= ModeMinimal {
		return ModeMinimal
	}
	return m + 1
}

func (m Mode) stepUp() Mode {
	if m == ModeFull || !m.IsTier() {
		return ModeFull
	}
	return m - 1
}
