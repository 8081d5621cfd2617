package models

import (
	"strings"
	"time"
)

// Location represents a geographic coordinate
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Direction is the two-valued classification arrivals are grouped under
type Direction string

const (
	North Direction = "N"
	South Direction = "S"
)

// DirectionFromID maps a GTFS direction_id onto N/S.
// Direction 0 is northbound; anything else, including a missing id, is southbound.
func DirectionFromID(id *uint32) Direction {
	if id != nil && *id == 0 {
		return North
	}
	return South
}

// Station is a parent station from the static directory
type Station struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Codes     []string `json:"codes"`
	Location  Location `json:"location"`
	Routes    []string `json:"routes"`
	Platforms []string `json:"platforms"`
}

// HasRoute reports whether the station is configured for route
func (s *Station) HasRoute(route string) bool {
	for _, r := range s.Routes {
		if r == route {
			return true
		}
	}
	return false
}

// Arrival represents a predicted train arrival at a station
type Arrival struct {
	Route   string    `json:"route"`
	TripID  string    `json:"trip_id,omitempty"`
	Time    time.Time `json:"time"`
	Minutes float64   `json:"minutes"`
}

// TrainsByDirection groups arrivals by direction
type TrainsByDirection struct {
	North []Arrival `json:"N"`
	South []Arrival `json:"S"`
}

// Len returns the number of arrivals in both directions
func (t TrainsByDirection) Len() int {
	return len(t.North) + len(t.South)
}

// StationEntry is one station's view inside a snapshot
type StationEntry struct {
	Station *Station
	Trains  TrainsByDirection
}

// StationResponse is the API response format for a station
type StationResponse struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Codes    []string   `json:"codes"`
	Location [2]float64 `json:"location"`
	Routes   []string   `json:"routes"`
	N        []Arrival  `json:"N"`
	S        []Arrival  `json:"S"`
}

// ConvertToResponse converts a StationEntry to StationResponse format
func (e StationEntry) ConvertToResponse() StationResponse {
	n, s := e.Trains.North, e.Trains.South
	if n == nil {
		n = []Arrival{}
	}
	if s == nil {
		s = []Arrival{}
	}
	return StationResponse{
		ID:       e.Station.ID,
		Name:     e.Station.Name,
		Codes:    e.Station.Codes,
		Location: [2]float64{e.Station.Location.Lat, e.Station.Location.Lon},
		Routes:   e.Station.Routes,
		N:        n,
		S:        s,
	}
}

// Vehicle is a train position from the vehicle positions feed
type Vehicle struct {
	ID     string   `json:"id"`
	Route  string   `json:"route,omitempty"`
	Lat    *float64 `json:"lat,omitempty"`
	Lon    *float64 `json:"lon,omitempty"`
	StopID string   `json:"stop_id,omitempty"`
	Status string   `json:"status,omitempty"`
}

// Alert represents a service alert
type Alert struct {
	ID            string       `json:"id"`
	Header        string       `json:"header"`
	Description   string       `json:"description"`
	Routes        []string     `json:"routes"`
	Stations      []string     `json:"stations"`
	ActivePeriods []TimePeriod `json:"active_periods"`
}

// TimePeriod represents a time range
type TimePeriod struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// BuildStats counts what happened to feed records while building a snapshot
type BuildStats struct {
	Records       int      `json:"records"`
	Arrivals      int      `json:"arrivals"`
	Unresolved    int      `json:"unresolved"`
	UnresolvedIDs []string `json:"unresolved_ids,omitempty"`
	OutOfWindow   int      `json:"out_of_window"`
	Duplicates    int      `json:"duplicates"`
	Truncated     int      `json:"truncated"`
}

// Snapshot is the fully built view of every station at one point in time.
// It is never modified after construction.
type Snapshot struct {
	BuiltAt  time.Time
	Entries  []StationEntry
	Vehicles []Vehicle
	Alerts   []Alert
	Stats    BuildStats

	index map[string]int
}

// NewSnapshot builds a snapshot; entries must already be sorted by station id
func NewSnapshot(builtAt time.Time, entries []StationEntry, vehicles []Vehicle, alerts []Alert, stats BuildStats) *Snapshot {
	index := make(map[string]int, len(entries))
	for i, e := range entries {
		index[e.Station.ID] = i
	}
	return &Snapshot{
		BuiltAt:  builtAt,
		Entries:  entries,
		Vehicles: vehicles,
		Alerts:   alerts,
		Stats:    stats,
		index:    index,
	}
}

// Entry returns the entry for a canonical station id
func (s *Snapshot) Entry(stationID string) (StationEntry, bool) {
	i, ok := s.index[stationID]
	if !ok {
		return StationEntry{}, false
	}
	return s.Entries[i], true
}

// Updated returns the build time, or nil if the snapshot was never built
func (s *Snapshot) Updated() *time.Time {
	if s.BuiltAt.IsZero() {
		return nil
	}
	t := s.BuiltAt
	return &t
}

// StationsPayload is the all-stations message shared by the API and the websocket push
type StationsPayload struct {
	Data    []StationResponse `json:"data"`
	Updated *time.Time        `json:"updated"`
}

// NewStationsPayload converts every snapshot entry to response format
func NewStationsPayload(s *Snapshot) StationsPayload {
	data := make([]StationResponse, len(s.Entries))
	for i, e := range s.Entries {
		data[i] = e.ConvertToResponse()
	}
	return StationsPayload{Data: data, Updated: s.Updated()}
}

var routeCodes = []struct {
	name string
	code string
}{
	{"red", "RD"},
	{"orange", "OR"},
	{"silver", "SV"},
	{"blue", "BL"},
	{"yellow", "YL"},
	{"green", "GR"},
}

// RouteCode simplifies a line name such as "RED" or "Red Line" to its two letter code.
// Unknown names are returned upper-cased.
func RouteCode(name string) string {
	name = strings.TrimSpace(name)
	lower := strings.ToLower(name)
	for _, rc := range routeCodes {
		if strings.Contains(lower, rc.name) {
			return rc.code
		}
	}
	return strings.ToUpper(name)
}
