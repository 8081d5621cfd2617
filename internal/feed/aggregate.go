package feed

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/jusunglee/wmata-go/internal/models"
)

// Resolver maps any stop id spelling to its parent station
type Resolver interface {
	Resolve(id string) (*models.Station, error)
}

// Options bounds what ends up in a snapshot
type Options struct {
	MaxTrains  int
	MaxMinutes float64
}

type arrivalKey struct {
	station   string
	direction models.Direction
	trip      string
	route     string
	unix      int64
}

// Aggregate builds a snapshot from decoded records as seen at now.
// The result depends only on its arguments.
func Aggregate(records *Records, dir Resolver, now time.Time, opts Options) (*models.Snapshot, error) {
	if records == nil {
		return nil, errors.New("aggregate: no records")
	}
	if opts.MaxTrains <= 0 {
		return nil, errors.New("aggregate: max trains must be positive")
	}
	if opts.MaxMinutes < 0 {
		return nil, errors.New("aggregate: max minutes must not be negative")
	}

	stats := models.BuildStats{Records: len(records.Arrivals)}
	stationsByID := make(map[string]*models.Station)
	best := make(map[arrivalKey]models.Arrival)
	unresolved := make(map[string]bool)

	for _, rec := range records.Arrivals {
		st, err := dir.Resolve(rec.StopID)
		if err != nil {
			stats.Unresolved++
			unresolved[rec.StopID] = true
			continue
		}

		minutes := rec.Time.Sub(now).Minutes()
		if minutes < 0 || minutes > opts.MaxMinutes {
			stats.OutOfWindow++
			continue
		}

		arrival := models.Arrival{
			Route:   models.RouteCode(rec.RouteID),
			TripID:  rec.TripID,
			Time:    rec.Time,
			Minutes: math.Round(minutes*10) / 10,
		}

		// A trip is counted once per station and direction, even when the feed
		// lists it at several platforms of the same station.
		key := arrivalKey{station: st.ID, direction: models.DirectionFromID(rec.DirectionID), trip: rec.TripID}
		if rec.TripID == "" {
			key.route = arrival.Route
			key.unix = rec.Time.Unix()
		}
		if prev, dup := best[key]; dup {
			stats.Duplicates++
			if !arrivalLess(arrival, prev) {
				continue
			}
		}
		best[key] = arrival
		stationsByID[st.ID] = st
	}

	trains := make(map[string]*models.TrainsByDirection, len(stationsByID))
	for key, arrival := range best {
		t, ok := trains[key.station]
		if !ok {
			t = &models.TrainsByDirection{}
			trains[key.station] = t
		}
		if key.direction == models.North {
			t.North = append(t.North, arrival)
		} else {
			t.South = append(t.South, arrival)
		}
	}

	entries := make([]models.StationEntry, 0, len(trains))
	for id, t := range trains {
		var cut int
		t.North, cut = sortAndLimit(t.North, opts.MaxTrains)
		stats.Truncated += cut
		t.South, cut = sortAndLimit(t.South, opts.MaxTrains)
		stats.Truncated += cut
		stats.Arrivals += t.Len()
		entries = append(entries, models.StationEntry{Station: stationsByID[id], Trains: *t})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Station.ID < entries[j].Station.ID
	})

	stats.UnresolvedIDs = sortedSet(unresolved)

	return models.NewSnapshot(
		now,
		entries,
		buildVehicles(records.Vehicles),
		buildAlerts(records.Alerts, dir),
		stats,
	), nil
}

// sortAndLimit orders arrivals by time and keeps the first limit of them
func sortAndLimit(arrivals []models.Arrival, limit int) ([]models.Arrival, int) {
	if arrivals == nil {
		return []models.Arrival{}, 0
	}
	sort.Slice(arrivals, func(i, j int) bool {
		return arrivalLess(arrivals[i], arrivals[j])
	})
	if len(arrivals) <= limit {
		return arrivals, 0
	}
	return arrivals[:limit], len(arrivals) - limit
}

func arrivalLess(a, b models.Arrival) bool {
	if !a.Time.Equal(b.Time) {
		return a.Time.Before(b.Time)
	}
	if a.Route != b.Route {
		return a.Route < b.Route
	}
	return a.TripID < b.TripID
}

func buildVehicles(records []VehicleRecord) []models.Vehicle {
	vehicles := make([]models.Vehicle, 0, len(records))
	for _, rec := range records {
		v := models.Vehicle{
			ID:     rec.ID,
			StopID: rec.StopID,
			Status: rec.Status,
			Lat:    rec.Lat,
			Lon:    rec.Lon,
		}
		if rec.RouteID != "" {
			v.Route = models.RouteCode(rec.RouteID)
		}
		vehicles = append(vehicles, v)
	}
	sort.SliceStable(vehicles, func(i, j int) bool {
		return vehicles[i].ID < vehicles[j].ID
	})
	return vehicles
}

// buildAlerts normalizes route codes and maps informed stops to station ids.
// Stops that do not resolve are left out.
func buildAlerts(records []AlertRecord, dir Resolver) []models.Alert {
	alerts := make([]models.Alert, 0, len(records))
	for _, rec := range records {
		routes := make(map[string]bool)
		for _, r := range rec.RouteIDs {
			routes[models.RouteCode(r)] = true
		}
		stations := make(map[string]bool)
		for _, s := range rec.StopIDs {
			if st, err := dir.Resolve(s); err == nil {
				stations[st.ID] = true
			}
		}
		periods := rec.Periods
		if periods == nil {
			periods = []models.TimePeriod{}
		}
		alerts = append(alerts, models.Alert{
			ID:            rec.ID,
			Header:        rec.Header,
			Description:   rec.Description,
			Routes:        sortedSet(routes),
			Stations:      sortedSet(stations),
			ActivePeriods: periods,
		})
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].ID < alerts[j].ID
	})
	return alerts
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
