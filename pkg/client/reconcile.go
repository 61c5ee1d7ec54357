package client

// Reconcile folds a remote update into a resource's local state.
//
// Without an active dirty buffer the remote value simply replaces the
// displayed state. With a dirty buffer the remote value becomes the
// new base while the unsent local text is kept on screen, and the
// caret is re-derived with a diff-less heuristic: shift it by the
// rune-length delta between the old and new remote content, clamped
// into the local text. That keeps unsent keystrokes from being
// silently discarded and the caret from jumping somewhere unrelated.
func Reconcile(buf BufferState, hasBuffer bool, remote string) BufferState {
	if !hasBuffer || !buf.Dirty {
		n := len([]rune(remote))
		return BufferState{Text: remote, Cursor: n, Base: remote}
	}
	return BufferState{
		Text:   buf.Text,
		Cursor: clampCursor(ShiftCursor(buf.Cursor, buf.Base, remote), buf.Text),
		Base:   remote,
		Dirty:  true,
	}
}

// ShiftCursor moves cursor by the rune-length delta between oldText
// and newText, clamped to [0, len(newText)].
func ShiftCursor(cursor int, oldText, newText string) int {
	delta := len([]rune(newText)) - len([]rune(oldText))
	return clampCursor(cursor+delta, newText)
}

func clampCursor(cursor int, text string) int {
	if cursor < 0 {
		return 0
	}
	if n := len([]rune(text)); cursor > n {
		return n
	}
	return cursor
}
