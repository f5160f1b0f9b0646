package bookmarks

import "time"

// CategoryStatus is one category in a Status report.
type CategoryStatus struct {
	ID        uint64 `json:"id"`
	Name      string `json:"name"`
	Visible   bool   `json:"visible"`
	Bookmarks int    `json:"bookmarks"`
	Tracks    int    `json:"tracks"`
	File      string `json:"file,omitempty"`
}

// Status is a point-in-time summary of the manager.
type Status struct {
	Categories          []CategoryStatus `json:"categories"`
	Marks               int              `json:"marks"`
	Tracks              int              `json:"tracks"`
	Loading             bool             `json:"loading"`
	PendingLoads        int              `json:"pendingLoads"`
	Lanes               map[string]int   `json:"lanes"`
	CloudEnabled        bool             `json:"cloudEnabled"`
	CloudPhase          string           `json:"cloudPhase"`
	LastSynchronization *time.Time       `json:"lastSynchronization,omitempty"`
}

// Status reports the current state of the manager.
func (m *Manager) Status() Status {
	m.checker.Check()
	s := Status{
		Categories:   make([]CategoryStatus, 0, m.store.CategoryCount()),
		Marks:        m.store.MarkCount(),
		Tracks:       m.store.TrackCount(),
		Loading:      m.IsLoading(),
		PendingLoads: m.loader.Pending(),
		Lanes:        m.disp.QueueLengths(),
		CloudEnabled: m.cloud.IsEnabled(),
		CloudPhase:   m.cloud.Phase().String(),
	}
	if at := m.cloud.LastSynchronization(); !at.IsZero() {
		s.LastSynchronization = &at
	}
	for _, id := range m.store.CategoryIDs() {
		c := m.store.MustCategory(id)
		s.Categories = append(s.Categories, CategoryStatus{
			ID:        uint64(id),
			Name:      c.Name(),
			Visible:   c.IsVisible(),
			Bookmarks: len(c.MarkIDs()),
			Tracks:    len(c.TrackIDs()),
			File:      c.FilePath(),
		})
	}
	return s
}
