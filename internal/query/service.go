// Package query answers read requests from the current snapshot and the
// station directory. Nothing in here performs I/O.
package query

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jusunglee/wmata-go/internal/feed"
	"github.com/jusunglee/wmata-go/internal/models"
)

var (
	// ErrNotFound is returned for unknown stations and routes
	ErrNotFound = errors.New("not found")
	// ErrInvalidParameter is returned for out of range query parameters
	ErrInvalidParameter = errors.New("invalid parameter")
)

// MaxRadiusKM bounds by-location searches
const MaxRadiusKM = 50.0

const sampleSize = 5

// Directory is the read side of the station directory
type Directory interface {
	Resolve(id string) (*models.Station, error)
	Stations() []*models.Station
	ByRoute(route string) []*models.Station
}

// Snapshots provides the current snapshot
type Snapshots interface {
	Get() *models.Snapshot
}

// StatusSource reports the refresh loop status
type StatusSource interface {
	Status() feed.Status
}

// SubscriberCounter reports the number of realtime subscribers
type SubscriberCounter interface {
	Count() int
}

// NearbyStation is a station response with its distance from the query point
type NearbyStation struct {
	models.StationResponse
	DistanceKM float64 `json:"distance_km"`
}

// RouteStations lists the stations of one route
type RouteStations struct {
	Route    string                   `json:"route"`
	Stations []models.StationResponse `json:"data"`
}

// StationCount is one row of the station listing
type StationCount struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Trains int    `json:"trains"`
}

// StationList is every configured station with its current train count
type StationList struct {
	Data            []StationCount `json:"data"`
	TotalConfigured int            `json:"total_stations_configured"`
	TotalWithTrains int            `json:"total_stations_with_trains"`
}

// DebugInfo summarizes the state of the service
type DebugInfo struct {
	StationsConfigured int               `json:"stations_configured"`
	StationsWithTrains int               `json:"stations_with_trains"`
	SampleConfigured   []string          `json:"sample_configured_ids"`
	SampleLive         []string          `json:"sample_live_ids"`
	Vehicles           int               `json:"vehicles"`
	Alerts             int               `json:"alerts"`
	Subscribers        int               `json:"subscribers"`
	LastBuild          models.BuildStats `json:"last_build"`
	Refresh            *feed.Status      `json:"refresh,omitempty"`
}

// Service answers queries. status and subscribers may be nil.
type Service struct {
	snapshots   Snapshots
	dir         Directory
	status      StatusSource
	subscribers SubscriberCounter
}

// NewService creates a query service
func NewService(snapshots Snapshots, dir Directory, status StatusSource, subscribers SubscriberCounter) *Service {
	return &Service{
		snapshots:   snapshots,
		dir:         dir,
		status:      status,
		subscribers: subscribers,
	}
}

// ByID returns the entry of the station an id resolves to. A configured station
// without live arrivals yields empty direction lists.
func (s *Service) ByID(id string) (models.StationResponse, *time.Time, error) {
	snap := s.snapshots.Get()
	st, err := s.dir.Resolve(id)
	if err != nil {
		return models.StationResponse{}, snap.Updated(), fmt.Errorf("station %q: %w", id, ErrNotFound)
	}
	return entryFor(snap, st).ConvertToResponse(), snap.Updated(), nil
}

// ByLocation returns every configured station within radiusKM of the point,
// nearest first
func (s *Service) ByLocation(lat, lon, radiusKM float64) ([]NearbyStation, *time.Time, error) {
	snap := s.snapshots.Get()
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return nil, snap.Updated(), fmt.Errorf("lat %v out of range: %w", lat, ErrInvalidParameter)
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return nil, snap.Updated(), fmt.Errorf("lon %v out of range: %w", lon, ErrInvalidParameter)
	}
	if math.IsNaN(radiusKM) || radiusKM <= 0 || radiusKM > MaxRadiusKM {
		return nil, snap.Updated(), fmt.Errorf("radius must be in (0, %v] km: %w", MaxRadiusKM, ErrInvalidParameter)
	}

	type candidate struct {
		st   *models.Station
		dist float64
	}
	var candidates []candidate
	for _, st := range s.dir.Stations() {
		d := distance(lat, lon, st.Location.Lat, st.Location.Lon)
		if d <= radiusKM {
			candidates = append(candidates, candidate{st: st, dist: d})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].st.ID < candidates[j].st.ID
	})

	result := make([]NearbyStation, len(candidates))
	for i, c := range candidates {
		result[i] = NearbyStation{
			StationResponse: entryFor(snap, c.st).ConvertToResponse(),
			DistanceKM:      math.Round(c.dist*100) / 100,
		}
	}
	return result, snap.Updated(), nil
}

// ByRoute returns the stations configured for a route together with stations
// that currently have arrivals on it. Arrivals of other routes are filtered out.
func (s *Service) ByRoute(route string) (RouteStations, *time.Time, error) {
	snap := s.snapshots.Get()
	code := models.RouteCode(route)

	seen := make(map[string]bool)
	var stations []*models.Station
	for _, st := range s.dir.ByRoute(code) {
		seen[st.ID] = true
		stations = append(stations, st)
	}
	for _, e := range snap.Entries {
		if seen[e.Station.ID] || !hasArrivalOn(e.Trains, code) {
			continue
		}
		seen[e.Station.ID] = true
		stations = append(stations, e.Station)
	}
	if len(stations) == 0 {
		return RouteStations{}, snap.Updated(), fmt.Errorf("route %q: %w", route, ErrNotFound)
	}

	sort.Slice(stations, func(i, j int) bool {
		if stations[i].Name != stations[j].Name {
			return stations[i].Name < stations[j].Name
		}
		return stations[i].ID < stations[j].ID
	})

	data := make([]models.StationResponse, len(stations))
	for i, st := range stations {
		entry := entryFor(snap, st)
		entry.Trains = models.TrainsByDirection{
			North: filterRoute(entry.Trains.North, code),
			South: filterRoute(entry.Trains.South, code),
		}
		data[i] = entry.ConvertToResponse()
	}
	return RouteStations{Route: code, Stations: data}, snap.Updated(), nil
}

// Routes returns the route codes with at least one live arrival
func (s *Service) Routes() ([]string, *time.Time) {
	snap := s.snapshots.Get()
	set := make(map[string]bool)
	for _, e := range snap.Entries {
		for _, a := range e.Trains.North {
			set[a.Route] = true
		}
		for _, a := range e.Trains.South {
			set[a.Route] = true
		}
	}
	routes := make([]string, 0, len(set))
	for r := range set {
		routes = append(routes, r)
	}
	sort.Strings(routes)
	return routes, snap.Updated()
}

// Stations lists every configured station with its current number of trains
func (s *Service) Stations() (StationList, *time.Time) {
	snap := s.snapshots.Get()
	all := s.dir.Stations()

	list := StationList{
		Data:            make([]StationCount, len(all)),
		TotalConfigured: len(all),
	}
	for i, st := range all {
		n := 0
		if e, ok := snap.Entry(st.ID); ok {
			n = e.Trains.Len()
		}
		if n > 0 {
			list.TotalWithTrains++
		}
		list.Data[i] = StationCount{ID: st.ID, Name: st.Name, Trains: n}
	}
	return list, snap.Updated()
}

// Vehicles returns the train positions of the current snapshot
func (s *Service) Vehicles() ([]models.Vehicle, *time.Time) {
	snap := s.snapshots.Get()
	if snap.Vehicles == nil {
		return []models.Vehicle{}, snap.Updated()
	}
	return snap.Vehicles, snap.Updated()
}

// Alerts returns the service alerts of the current snapshot
func (s *Service) Alerts() ([]models.Alert, *time.Time) {
	snap := s.snapshots.Get()
	if snap.Alerts == nil {
		return []models.Alert{}, snap.Updated()
	}
	return snap.Alerts, snap.Updated()
}

// Debug reports counts and samples useful when stop ids stop resolving
func (s *Service) Debug() (DebugInfo, *time.Time) {
	snap := s.snapshots.Get()
	all := s.dir.Stations()

	info := DebugInfo{
		StationsConfigured: len(all),
		StationsWithTrains: len(snap.Entries),
		SampleConfigured:   make([]string, 0, sampleSize),
		SampleLive:         make([]string, 0, sampleSize),
		Vehicles:           len(snap.Vehicles),
		Alerts:             len(snap.Alerts),
		LastBuild:          snap.Stats,
	}
	for i := 0; i < len(all) && i < sampleSize; i++ {
		info.SampleConfigured = append(info.SampleConfigured, all[i].ID)
	}
	for i := 0; i < len(snap.Entries) && i < sampleSize; i++ {
		info.SampleLive = append(info.SampleLive, snap.Entries[i].Station.ID)
	}
	if s.subscribers != nil {
		info.Subscribers = s.subscribers.Count()
	}
	if s.status != nil {
		st := s.status.Status()
		info.Refresh = &st
	}
	return info, snap.Updated()
}

// entryFor returns the snapshot entry of a station, or an entry with empty lists
func entryFor(snap *models.Snapshot, st *models.Station) models.StationEntry {
	if e, ok := snap.Entry(st.ID); ok {
		return e
	}
	return models.StationEntry{
		Station: st,
		Trains:  models.TrainsByDirection{North: []models.Arrival{}, South: []models.Arrival{}},
	}
}

func hasArrivalOn(t models.TrainsByDirection, route string) bool {
	for _, a := range t.North {
		if a.Route == route {
			return true
		}
	}
	for _, a := range t.South {
		if a.Route == route {
			return true
		}
	}
	return false
}

func filterRoute(arrivals []models.Arrival, route string) []models.Arrival {
	out := make([]models.Arrival, 0, len(arrivals))
	for _, a := range arrivals {
		if a.Route == route {
			out = append(out, a)
		}
	}
	return out
}

// distance calculates the distance between two points using the Haversine formula
func distance(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371 // Earth's radius in kilometers

	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return R * c
}
