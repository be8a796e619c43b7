package domain

// OrderChange is one persisted order update produced by a reorder.
type OrderChange struct {
	ID    string `json:"id"`
	Order int    `json:"order"`
}

// Reorder moves the chapter moveID into the position currently held by
// targetID and renumbers every chapter densely from zero. The input is not
// modified. ok is false when the ids are equal or either is missing, in which
// case the input is returned untouched.
func Reorder(chapters []Chapter, moveID, targetID string) (out []Chapter, ok bool) {
	if moveID == targetID {
		return chapters, false
	}
	from, to := -1, -1
	for i, c := range chapters {
		switch c.ID {
		case moveID:
			from = i
		case targetID:
			to = i
		}
	}
	if from < 0 || to < 0 {
		return chapters, false
	}

	out = make([]Chapter, 0, len(chapters))
	out = append(out, chapters[:from]...)
	out = append(out, chapters[from+1:]...)
	// to indexes the list with the moved chapter already removed.
	out = append(out[:to], append([]Chapter{chapters[from]}, out[to:]...)...)
	return Renumber(out), true
}

// Renumber assigns order = index to every chapter, returning a new slice.
func Renumber(chapters []Chapter) []Chapter {
	out := make([]Chapter, len(chapters))
	for i, c := range chapters {
		c.Order = i
		out[i] = c
	}
	return out
}

// DiffOrder lists the chapters in after whose order differs from the same
// chapter in before. Chapters absent from before are always included.
func DiffOrder(before, after []Chapter) []OrderChange {
	previous := make(map[string]int, len(before))
	for _, c := range before {
		previous[c.ID] = c.Order
	}
	changes := make([]OrderChange, 0)
	for _, c := range after {
		if order, ok := previous[c.ID]; ok && order == c.Order {
			continue
		}
		changes = append(changes, OrderChange{ID: c.ID, Order: c.Order})
	}
	return changes
}

// IsDense reports whether the orders are exactly 0..n-1 in list position.
func IsDense(chapters []Chapter) bool {
	for i, c := range chapters {
		if c.Order != i {
			return false
		}
	}
	return true
}
