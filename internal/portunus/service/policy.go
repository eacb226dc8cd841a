package service

import (
	"sort"

	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/store"
)

// EffectiveAllow folds every rule row for one (group, door) key. Inactive
// rows are ignored, any active DENY wins, and otherwise at least one active
// ALLOW is required. Live decisions and controller sync both go through it.
func EffectiveAllow(rules []store.DoorRule) bool {
	allow := false
	for _, r := range rules {
		if !r.Active {
			continue
		}
		switch r.AccessType {
		case store.AccessDeny:
			return false
		case store.AccessAllow:
			allow = true
		}
	}
	return allow
}

// AllowedGroups returns, sorted, the groups whose rules on a door resolve to
// an effective allow. rules may span several groups.
func AllowedGroups(rules []store.DoorRule) []string {
	byGroup := make(map[string][]store.DoorRule)
	for _, r := range rules {
		byGroup[r.AccessGroupID] = append(byGroup[r.AccessGroupID], r)
	}

	var out []string
	for group, rs := range byGroup {
		if group != "" && EffectiveAllow(rs) {
			out = append(out, group)
		}
	}
	sort.Strings(out)
	return out
}
