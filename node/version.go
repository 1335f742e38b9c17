// Package node provides the network facade: Join/Leave lifecycle, a
// routing table with a periodic cleaner, inactivity reentry, and a
// subscription point for tunnel readiness.
package node

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a protocol version string of the form
// "major.minor.patch[-prerelease][+build]".
type Version struct {
	Major, Minor, Patch int
	Prerelease          string
	Build               string
}

// ParseVersion parses s into a Version. Malformed input yields an error.
func ParseVersion(s string) (Version, error) {
	var v Version
	core := s
	if i := strings.Index(core, "+"); i >= 0 {
		v.Build = core[i+1:]
		core = core[:i]
	}
	if i := strings.Index(core, "-"); i >= 0 {
		v.Prerelease = core[i+1:]
		core = core[:i]
	}
	parts := strings.SplitN(core, ".", 3)
	if len(parts) != 3 {
		return v, fmt.Errorf("node: malformed version %q", s)
	}
	var err error
	if v.Major, err = strconv.Atoi(parts[0]); err != nil {
		return v, fmt.Errorf("node: malformed major in %q: %w", s, err)
	}
	if v.Minor, err = strconv.Atoi(parts[1]); err != nil {
		return v, fmt.Errorf("node: malformed minor in %q: %w", s, err)
	}
	if v.Patch, err = strconv.Atoi(parts[2]); err != nil {
		return v, fmt.Errorf("node: malformed patch in %q: %w", s, err)
	}
	return v, nil
}

// Compatible reports whether a and b may interoperate: same major, same
// minor, same build tag, same prerelease tag. Patch may differ (§4.9
// Versioning).
func Compatible(a, b Version) bool {
	return a.Major == b.Major && a.Minor == b.Minor &&
		a.Build == b.Build && a.Prerelease == b.Prerelease
}
