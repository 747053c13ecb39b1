// Package compound holds the market version tag and the contract ABIs of
// the Compound lending protocol.
package compound

import (
	"fmt"
	"strings"
)

// Version selects the market contract interface and snapshot algorithm.
type Version int

const (
	V2 Version = iota + 2
	V3
)

// ParseVersion accepts "v2" or "v3" (case-insensitive). An empty string
// selects V2.
func ParseVersion(s string) (Version, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "v2":
		return V2, nil
	case "v3":
		return V3, nil
	default:
		return 0, fmt.Errorf("unknown compound version %q (want v2 or v3)", s)
	}
}

func (v Version) String() string {
	switch v {
	case V2:
		return "v2"
	case V3:
		return "v3"
	default:
		return fmt.Sprintf("Version(%d)", int(v))
	}
}

// Label is the human-facing name used in startup logs.
func (v Version) Label() string {
	if v == V3 {
		return "V3 (Comet)"
	}
	return strings.ToUpper(v.String())
}

// Writable reports whether supply/withdraw are supported for the version.
func (v Version) Writable() bool { return v == V3 }
