package merge

import "strings"

// Zone models the partitioned single-field editor: the local actor's
// content is an editable prefix, everyone else's merged content is a
// read-only suffix after the separator. Boundary checks work on the
// internal delimiter (a control character user text cannot contain)
// so a local value that happens to contain the display separator can
// never confuse the split.
const zoneDelimiter = "\x1f"

type Zone struct {
	Local  string
	Others string
}

// NewZone builds the zone state from the local actor's content and the
// pre-merged others suffix.
func NewZone(local, others string) Zone {
	return Zone{Local: local, Others: others}
}

// Display returns the text shown in the field.
func (z Zone) Display() string {
	if z.Others == "" {
		return z.Local
	}
	return z.Local + LabeledSeparator + z.Others
}

// internal returns the delimiter-separated form used for boundary math.
func (z Zone) internal() string {
	if z.Others == "" {
		return z.Local
	}
	return z.Local + zoneDelimiter + z.Others
}

// Boundary returns the cursor position of the end of the editable
// prefix, in runes.
func (z Zone) Boundary() int {
	return len([]rune(z.Local))
}

// ApplyEdit validates a proposed full-field value and cursor position
// against the zone. An edit is accepted only when it leaves the
// read-only suffix (separator included) intact and the resulting
// cursor stays inside the new editable prefix. On rejection the zone
// is unchanged and the returned cursor is pinned to the boundary so
// the caller can reset the field.
func (z Zone) ApplyEdit(proposed string, cursor int) (Zone, int, bool) {
	suffix := ""
	if z.Others != "" {
		suffix = LabeledSeparator + z.Others
	}
	if suffix != "" && !strings.HasSuffix(proposed, suffix) {
		// the edit touched the read-only region
		return z, z.Boundary(), false
	}
	newLocal := strings.TrimSuffix(proposed, suffix)
	if strings.Contains(newLocal, zoneDelimiter) {
		return z, z.Boundary(), false
	}
	next := Zone{Local: newLocal, Others: z.Others}
	if cursor < 0 || cursor > next.Boundary() {
		// resulting cursor fell at or past the others' segment
		return z, z.Boundary(), false
	}
	return next, cursor, true
}
