package core

// undoLog records how to reverse each engine-side mutation of a transaction.
type undoLog struct {
	entries []func()
}

func (u *undoLog) snapshot() int {
	return len(u.entries)
}

func (u *undoLog) record(undo func()) {
	u.entries = append(u.entries, undo)
}

func (u *undoLog) revertTo(id int) {
	for i := len(u.entries) - 1; i >= id; i-- {
		u.entries[i]()
	}
	u.entries = u.entries[:id]
}

func (u *undoLog) reset() {
	u.entries = u.entries[:0]
}
