package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseSessionStatus(t *testing.T) {
	tests := []struct {
		in   string
		want SessionStatus
	}{
		{"lobby", SessionStatusLobby},
		{"WAITING", SessionStatusLobby},
		{"active", SessionStatusActive},
		{"in_progress", SessionStatusActive},
		{"Playing", SessionStatusActive},
		{"paused", SessionStatusPaused},
		{"ENDED", SessionStatusEnded},
		{"completed", SessionStatusEnded},
	}
	for _, tt := range tests {
		got, err := ParseSessionStatus(tt.in)
		if err != nil {
			t.Fatalf("ParseSessionStatus(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseSessionStatus(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}

	if _, err := ParseSessionStatus("bogus"); !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("expected ErrUnknownStatus, got %v", err)
	}
}

func TestSnapshotDecodeNormalisesStatus(t *testing.T) {
	raw := `{"id":"s1","status":"in_progress","current_track_index":2,"seconds_per_track":60,"invite_code":"ABCD","metadata":{"mode":"power_hour"}}`

	var snap SessionSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if snap.Status != SessionStatusActive {
		t.Fatalf("expected ACTIVE, got %s", snap.Status)
	}
	if snap.InviteCode != "ABCD" || snap.Metadata["mode"] != "power_hour" {
		t.Fatalf("admin fields not passed through: %+v", snap)
	}
	if err := snap.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestSnapshotValidate(t *testing.T) {
	tests := []struct {
		name string
		snap SessionSnapshot
	}{
		{"missing id", SessionSnapshot{Status: SessionStatusActive, SecondsPerTrack: 60}},
		{"bad index", SessionSnapshot{ID: "s", Status: SessionStatusActive, CurrentTrackIndex: -2, SecondsPerTrack: 60}},
		{"zero duration", SessionSnapshot{ID: "s", Status: SessionStatusLobby, CurrentTrackIndex: -1}},
		{"empty status", SessionSnapshot{ID: "s", SecondsPerTrack: 60}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.snap.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestTrackListOrdersByOrderField(t *testing.T) {
	var list TrackList
	raw := `[{"id":"c","order":3},{"id":"a","order":1},{"id":"b","order":2},{"id":"a2","order":1}]`
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := []string{"a", "a2", "b", "c"}
	if list.Len() != len(want) {
		t.Fatalf("expected %d tracks, got %d", len(want), list.Len())
	}
	for i, id := range want {
		tr, ok := list.At(i)
		if !ok || tr.ID != id {
			t.Fatalf("index %d: expected %s, got %+v", i, id, tr)
		}
	}
	if _, ok := list.At(-1); ok {
		t.Fatal("expected At(-1) to miss")
	}
	if _, ok := list.At(4); ok {
		t.Fatal("expected At(4) to miss")
	}
}
