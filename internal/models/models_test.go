package models

import (
	"encoding/json"
	"testing"
	"time"
)

func testStation() *Station {
	return &Station{
		ID:        "STN_A01_C01",
		Name:      "Metro Center",
		Codes:     []string{"A01", "C01"},
		Location:  Location{Lat: 38.898303, Lon: -77.028099},
		Routes:    []string{"BL", "OR", "RD", "SV"},
		Platforms: []string{"PF_A01_C", "PF_C01_C"},
	}
}

func TestStationEntryConvertToResponse(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entry := StationEntry{
		Station: testStation(),
		Trains: TrainsByDirection{
			North: []Arrival{
				{Route: "RD", Time: now.Add(5 * time.Minute), Minutes: 5},
				{Route: "RD", Time: now.Add(10 * time.Minute), Minutes: 10},
			},
		},
	}

	response := entry.ConvertToResponse()

	if response.ID != "STN_A01_C01" {
		t.Errorf("Expected ID STN_A01_C01, got %s", response.ID)
	}
	if response.Name != "Metro Center" {
		t.Errorf("Expected Name Metro Center, got %s", response.Name)
	}
	if response.Location[0] != 38.898303 || response.Location[1] != -77.028099 {
		t.Errorf("Location mismatch: got %v", response.Location)
	}
	if len(response.N) != 2 {
		t.Errorf("Expected 2 northbound trains, got %d", len(response.N))
	}
	// Empty directions must serialize as [] rather than null
	if response.S == nil {
		t.Error("Expected empty southbound slice, got nil")
	}

	b, err := json.Marshal(response)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if _, ok := decoded["S"].([]any); !ok {
		t.Errorf("Expected S to be a JSON array, got %v", decoded["S"])
	}
}

func TestDirectionFromID(t *testing.T) {
	zero, one := uint32(0), uint32(1)
	tests := []struct {
		name     string
		id       *uint32
		expected Direction
	}{
		{"direction 0", &zero, North},
		{"direction 1", &one, South},
		{"missing", nil, South},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DirectionFromID(tt.id); got != tt.expected {
				t.Errorf("DirectionFromID() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestRouteCode(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"RED", "RD"},
		{"Red Line", "RD"},
		{"ORANGE", "OR"},
		{"silver", "SV"},
		{"BLUE", "BL"},
		{"Yellow", "YL"},
		{"GREEN", "GR"},
		{"RD", "RD"},
		{"unknown", "UNKNOWN"},
		{" bl ", "BL"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := RouteCode(tt.input); got != tt.expected {
				t.Errorf("RouteCode(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSnapshotEntryAndUpdated(t *testing.T) {
	empty := NewSnapshot(time.Time{}, nil, nil, nil, BuildStats{})
	if empty.Updated() != nil {
		t.Error("Expected nil Updated for a never-built snapshot")
	}
	if _, ok := empty.Entry("STN_A01_C01"); ok {
		t.Error("Expected no entry in empty snapshot")
	}

	now := time.Now()
	snap := NewSnapshot(now, []StationEntry{{Station: testStation()}}, nil, nil, BuildStats{})
	if snap.Updated() == nil || !snap.Updated().Equal(now) {
		t.Errorf("Expected Updated %v, got %v", now, snap.Updated())
	}
	if _, ok := snap.Entry("STN_A01_C01"); !ok {
		t.Error("Expected entry for STN_A01_C01")
	}

	payload := NewStationsPayload(snap)
	if len(payload.Data) != 1 || payload.Data[0].ID != "STN_A01_C01" {
		t.Errorf("Unexpected payload data: %+v", payload.Data)
	}
}
