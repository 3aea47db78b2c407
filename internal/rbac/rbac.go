// Package rbac defines the closed role, capability, and visibility-level
// tables and the pure predicates over them. The tables are immutable
// constants; every check is a function of the tables alone and performs no
// I/O. Unknown roles and capabilities always deny.
package rbac

import "strings"

// Capability names a permitted operation class.
type Capability string

const (
	CapReadPublic          Capability = "READ_PUBLIC"
	CapReadLedgerFull      Capability = "READ_LEDGER_FULL"
	CapProposeHypothesis   Capability = "PROPOSE_HYPOTHESIS"
	CapProposeAura         Capability = "PROPOSE_AURA"
	CapWriteGraph          Capability = "WRITE_GRAPH"
	CapWriteContradictions Capability = "WRITE_CONTRADICTIONS"
	CapManageRoles         Capability = "MANAGE_ROLES"
	CapViewDebug           Capability = "VIEW_DEBUG"
)

// Known roles.
const (
	RoleGeneral   = "general"
	RolePro       = "pro"
	RoleScholars  = "scholars"
	RoleAnalytics = "analytics"
	RoleOps       = "ops"
)

var proCaps = []Capability{
	CapReadPublic,
	CapReadLedgerFull,
	CapProposeHypothesis,
	CapProposeAura,
}

// roleCapabilities is the role→capability grant table.
var roleCapabilities = map[string][]Capability{
	RoleGeneral:  {CapReadPublic},
	RolePro:      proCaps,
	RoleScholars: proCaps,
	RoleAnalytics: append(append([]Capability{}, proCaps...),
		CapWriteGraph, CapWriteContradictions),
	RoleOps: {CapReadPublic, CapReadLedgerFull, CapManageRoles, CapViewDebug},
}

// roleLevels is the role→visibility-level table.
var roleLevels = map[string]int{
	RoleGeneral:   0,
	RolePro:       1,
	RoleScholars:  1,
	RoleAnalytics: 2,
	RoleOps:       2,
}

// Normalize lowercases a role name for table lookup.
func Normalize(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

// KnownRole reports whether the role exists in the tables.
func KnownRole(role string) bool {
	_, ok := roleLevels[Normalize(role)]
	return ok
}

// HasCapability reports whether the role grants the capability. Role names
// match case-insensitively; unknown role or capability yields false.
func HasCapability(role string, capability Capability) bool {
	caps, ok := roleCapabilities[Normalize(role)]
	if !ok {
		return false
	}
	for _, c := range caps {
		if c == capability {
			return true
		}
	}
	return false
}

// AnyHasCapability reports whether any of the caller's roles grants the
// capability.
func AnyHasCapability(roles []string, capability Capability) bool {
	for _, r := range roles {
		if HasCapability(r, capability) {
			return true
		}
	}
	return false
}

// Level returns the visibility level for a role, 0 for unknown roles.
func Level(role string) int {
	return roleLevels[Normalize(role)]
}

// MaxLevel returns the highest visibility level across the caller's roles,
// defaulting to 0.
func MaxLevel(roles []string) int {
	max := 0
	for _, r := range roles {
		if l := Level(r); l > max {
			max = l
		}
	}
	return max
}

// EffectiveRole picks the role name applied to a response: the highest-level
// known role the caller holds, falling back to "general". Ties break on the
// first-listed role so the choice is deterministic.
func EffectiveRole(roles []string) string {
	best := RoleGeneral
	bestLevel := -1
	for _, r := range roles {
		n := Normalize(r)
		l, ok := roleLevels[n]
		if !ok {
			continue
		}
		if l > bestLevel {
			best = n
			bestLevel = l
		}
	}
	return best
}
