package leads

// Snapshot is a read-only copy of coordinator state. Mutating it has no
// effect on the coordinator.
type Snapshot struct {
	New       []Lead
	Completed []Lead
	Discarded []Lead
	Leads     []Lead

	// Selected is the id of the lead open in the detail view, or "".
	Selected string

	Filter    Filter
	Loading   bool
	LastError error
	Pending   int

	// Epoch is the id of the most recently started load.
	Epoch uint64
	// Revision increases on every state change; observers use it to drop
	// snapshots that arrive out of order.
	Revision uint64
}

// List returns the leads held in category c.
func (s Snapshot) List(c Category) []Lead {
	switch c {
	case CategoryCompleted:
		return s.Completed
	case CategoryDiscarded:
		return s.Discarded
	case CategoryLeads:
		return s.Leads
	default:
		return s.New
	}
}

// Counts returns per-category list sizes for tab badges.
func (s Snapshot) Counts() map[Category]int {
	return map[Category]int{
		CategoryNew:       len(s.New),
		CategoryCompleted: len(s.Completed),
		CategoryDiscarded: len(s.Discarded),
		CategoryLeads:     len(s.Leads),
	}
}

// SelectedLead returns the selected lead, if any.
func (s Snapshot) SelectedLead() (Lead, bool) {
	if s.Selected == "" {
		return Lead{}, false
	}
	for _, l := range s.New {
		if l.ID == s.Selected {
			return l, true
		}
	}
	return Lead{}, false
}

// SelectedIndex returns the position of the selected lead in New, or -1.
func (s Snapshot) SelectedIndex() int {
	return indexOf(s.New, s.Selected)
}

// Locate returns the category holding id.
func (s Snapshot) Locate(id string) (Category, bool) {
	for _, c := range Categories {
		if indexOf(s.List(c), id) >= 0 {
			return c, true
		}
	}
	return 0, false
}
