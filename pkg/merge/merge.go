package merge

import (
	"sort"
	"strings"

	"boardsync/pkg/models"
)

// Separators for the combined views. The zone editor reuses the
// labeled separator for display; the boundary math never depends on
// it (see zone.go).
const (
	LabeledSeparator = "  |  "
	PlainSeparator   = "  "
)

// Active returns the contributions that count toward merged views:
// non-empty after trimming whitespace, ordered by join time ascending
// with actor ID as the tiebreak.
func Active(contribs []models.Contribution) []models.Contribution {
	out := make([]models.Contribution, 0, len(contribs))
	for _, c := range contribs {
		if strings.TrimSpace(c.Content) == "" {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].JoinedTS != out[j].JoinedTS {
			return out[i].JoinedTS < out[j].JoinedTS
		}
		return out[i].ActorID < out[j].ActorID
	})
	return out
}

// Labeled renders active contributions as "[name]: content" entries
// joined by the labeled separator.
func Labeled(contribs []models.Contribution) string {
	act := Active(contribs)
	parts := make([]string, 0, len(act))
	for _, c := range act {
		name := c.ActorName
		if name == "" {
			name = c.ActorID
		}
		parts = append(parts, "["+name+"]: "+c.Content)
	}
	return strings.Join(parts, LabeledSeparator)
}

// Plain renders active contributions as bare contents joined by the
// plain separator.
func Plain(contribs []models.Contribution) string {
	act := Active(contribs)
	parts := make([]string, 0, len(act))
	for _, c := range act {
		parts = append(parts, c.Content)
	}
	return strings.Join(parts, PlainSeparator)
}

// ContributorCount returns how many contributions pass the active
// filter.
func ContributorCount(contribs []models.Contribution) int {
	return len(Active(contribs))
}

// Others renders the plain view excluding the given actor, for the
// read-only suffix of the zone editor.
func Others(contribs []models.Contribution, selfID string) string {
	filtered := make([]models.Contribution, 0, len(contribs))
	for _, c := range contribs {
		if c.ActorID == selfID {
			continue
		}
		filtered = append(filtered, c)
	}
	return Plain(filtered)
}
