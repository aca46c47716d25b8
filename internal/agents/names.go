package agents

import "hash/fnv"

// displayNames is the pool of log-friendly agent names. The list is fixed
// so a given run always maps an agent index to the same name.
var displayNames = []string{
	"Beacon", "Ledger", "Compass", "Quarry", "Harbor",
	"Summit", "Meridian", "Outpost", "Vista", "Anchor",
	"Lantern", "Prairie", "Citadel", "Drift", "Ember",
	"Fathom", "Garnet", "Helix", "Inlet", "Juniper",
}

// DisplayName returns a deterministic human-friendly name for an agent
// within one run: the same runID and index always produce the same name.
func DisplayName(runID string, index int) string {
	if len(displayNames) == 0 {
		return ""
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(runID))
	// Unsigned arithmetic: int(h.Sum32()) goes negative on 32-bit
	// platforms and a negative modulo would index out of range.
	slot := (h.Sum32() + uint32(index)) % uint32(len(displayNames))
	return displayNames[slot]
}
