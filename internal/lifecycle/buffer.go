package lifecycle

import (
	"github.com/spec-kit/install-dispatch/internal/domain"
)

// Visibility classifies a buffer entry relative to the viewing team.
type Visibility string

const (
	VisibilityInternal Visibility = "INTERNAL"
	VisibilityExternal Visibility = "EXTERNAL"
)

// BufferCounts aggregates the sizes of each view.
type BufferCounts struct {
	All      int `json:"all"`
	Internal int `json:"internal"`
	External int `json:"external"`
}

// BufferView is a point-in-time partition of the buffer for one team.
type BufferView struct {
	Viewer   string
	All      []domain.BufferEntry
	Internal []domain.BufferEntry
	External []domain.BufferEntry
	Counts   BufferCounts
}

// Classify reports whether entry came from the viewer's own team.
func Classify(entry domain.BufferEntry, viewerTeam string) Visibility {
	if entry.TransferredFrom.Team == viewerTeam {
		return VisibilityInternal
	}
	return VisibilityExternal
}

// Partition splits entries into internal and external views for viewerTeam.
// The result is rebuilt from scratch on every call.
func Partition(entries []domain.BufferEntry, viewerTeam string) BufferView {
	view := BufferView{
		Viewer:   viewerTeam,
		All:      make([]domain.BufferEntry, 0, len(entries)),
		Internal: []domain.BufferEntry{},
		External: []domain.BufferEntry{},
	}
	for _, entry := range entries {
		view.All = append(view.All, entry)
		if Classify(entry, viewerTeam) == VisibilityInternal {
			view.Internal = append(view.Internal, entry)
		} else {
			view.External = append(view.External, entry)
		}
	}
	view.Counts = BufferCounts{
		All:      len(view.All),
		Internal: len(view.Internal),
		External: len(view.External),
	}
	return view
}

// EntryFromOrder wraps a buffered order. The second result is false when the
// order is not in a buffer.
func EntryFromOrder(o domain.Order) (domain.BufferEntry, bool) {
	if !o.InBuffer() || o.TransferredFrom == nil {
		return domain.BufferEntry{}, false
	}
	return domain.BufferEntry{Order: o, TransferredFrom: *o.TransferredFrom}, true
}
