package auth

import (
	"fmt"
	"strings"
)

// Role is a caller's standing in the fleet API.
//   - viewer reads dashboards, rankings and insights and may chat with the assistant
//   - operator also books and moves appointments, ingests telematics and exports reports
//   - admin also runs fleet-wide sweeps and recomputes
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// roleLadder lists roles from least to most privileged.
var roleLadder = []Role{RoleViewer, RoleOperator, RoleAdmin}

// Roles returns every role, least privileged first.
func Roles() []Role {
	return append([]Role(nil), roleLadder...)
}

// NormalizeRole maps a claim or flag value onto a known role, ignoring case and spacing.
func NormalizeRole(value string) (Role, bool) {
	candidate := Role(strings.ToLower(strings.TrimSpace(value)))
	if level(candidate) < 0 {
		return "", false
	}
	return candidate, true
}

// ParseRole is NormalizeRole with an error naming the accepted roles.
func ParseRole(value string) (Role, error) {
	role, ok := NormalizeRole(value)
	if !ok {
		names := make([]string, len(roleLadder))
		for i, r := range roleLadder {
			names[i] = string(r)
		}
		return "", fmt.Errorf("auth: unknown role %q (want one of %s)", value, strings.Join(names, ", "))
	}
	return role, nil
}

// RoleAtLeast reports whether role is at or above required on the ladder.
// Unknown roles satisfy nothing.
func RoleAtLeast(role Role, required Role) bool {
	have := level(role)
	return have >= 0 && have >= level(required)
}

func level(role Role) int {
	for i, r := range roleLadder {
		if r == role {
			return i
		}
	}
	return -1
}
