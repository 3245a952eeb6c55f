package session

import (
	"github.com/ivlev/desktopdoc/internal/capture"
	"github.com/ivlev/desktopdoc/internal/compositor"
	"github.com/ivlev/desktopdoc/internal/config"
	"github.com/ivlev/desktopdoc/internal/timeline"
)

// State is a point-in-time view of the session for controllers.
type State struct {
	Playing    bool              `json:"playing"`
	Progress   float64           `json:"progress"`
	Total      float64           `json:"total"`
	Crossfade  float64           `json:"crossfade"`
	Resolution config.Resolution `json:"resolution"`
	Title      string            `json:"title"`
	ShowTitle  bool              `json:"showTitle"`
	Accent     string            `json:"accent"`
	Recording  bool              `json:"recording"`
	Active     *ActiveClip       `json:"active,omitempty"`
	Entries    []EntryView       `json:"entries"`
}

type ActiveClip struct {
	Index     int     `json:"index"`
	EntryID   string  `json:"entryId"`
	LocalTime float64 `json:"localTime"`
	Fading    bool    `json:"fading"`
	Blend     float64 `json:"blend"`
}

// EntryView is an entry with its effective duration resolved.
type EntryView struct {
	timeline.Entry
	Effective float64 `json:"effective"`
	Dangling  bool    `json:"dangling"`
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Playing:    s.clock.Running(),
		Progress:   s.clock.Progress(),
		Total:      s.total(),
		Crossfade:  s.crossfade,
		Resolution: s.resolution,
		Title:      s.overlay.Title,
		ShowTitle:  s.overlay.ShowTitle,
		Accent:     s.accent,
		Recording:  s.capture.State() == capture.Recording,
	}

	for _, e := range s.timeline.Entries() {
		_, ok := s.resolver.Item(e.ItemID)
		st.Entries = append(st.Entries, EntryView{
			Entry:     e,
			Effective: timeline.EntryDuration(e, s.resolver),
			Dangling:  !ok,
		})
	}

	if a := s.timeline.ActiveAt(s.resolver, st.Progress); a.Found() {
		e, _ := s.timeline.Entry(a.Index)
		st.Active = &ActiveClip{
			Index:     a.Index,
			EntryID:   e.ID,
			LocalTime: a.LocalTime,
			Fading:    compositor.Fading(a, s.crossfade),
			Blend:     compositor.Blend(a.LocalTime, s.crossfade),
		}
	}
	return st
}
