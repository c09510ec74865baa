package models

import (
	"encoding/json"
	"sort"
)

// Track is one entry of a session playlist.
type Track struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Artist     string `json:"artist"`
	DurationMS int    `json:"duration_ms"`
	Order      int    `json:"order"`
	PreviewURL string `json:"preview_url,omitempty"`
}

// TrackList is a playlist ordered by the explicit Order field. The snapshot's
// CurrentTrackIndex indexes into it.
type TrackList struct {
	tracks []Track
}

// NewTrackList copies and stably sorts tracks by Order.
func NewTrackList(tracks []Track) TrackList {
	sorted := make([]Track, len(tracks))
	copy(sorted, tracks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order < sorted[j].Order
	})
	return TrackList{tracks: sorted}
}

// At returns the track at index.
func (l TrackList) At(index int) (Track, bool) {
	if index < 0 || index >= len(l.tracks) {
		return Track{}, false
	}
	return l.tracks[index], true
}

func (l TrackList) Len() int {
	return len(l.tracks)
}

// Tracks returns a copy of the ordered tracks.
func (l TrackList) Tracks() []Track {
	out := make([]Track, len(l.tracks))
	copy(out, l.tracks)
	return out
}

func (l TrackList) MarshalJSON() ([]byte, error) {
	if l.tracks == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.tracks)
}

func (l *TrackList) UnmarshalJSON(data []byte) error {
	var tracks []Track
	if err := json.Unmarshal(data, &tracks); err != nil {
		return err
	}
	*l = NewTrackList(tracks)
	return nil
}
