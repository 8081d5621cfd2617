package query

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jusunglee/wmata-go/internal/feed"
	"github.com/jusunglee/wmata-go/internal/stations"
	"github.com/jusunglee/wmata-go/internal/store"
)

var now = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

type fixedCount int

func (c fixedCount) Count() int { return int(c) }

func newTestDirectory(t *testing.T) *stations.Directory {
	t.Helper()
	dir, err := stations.New(map[string]stations.Record{
		"STN_B03":     {Name: "Union Station", Lat: 38.897723, Lon: -77.006745, Routes: []string{"RD"}, Platforms: []string{"PF_B03_1"}},
		"STN_B02":     {Name: "Judiciary Square", Lat: 38.896084, Lon: -77.016643, Routes: []string{"RD"}},
		"STN_A01_C01": {Name: "Metro Center", Lat: 38.898303, Lon: -77.028099, Routes: []string{"RD", "OR", "SV", "BL"}},
		"STN_D05":     {Name: "Capitol South", Lat: 38.884968, Lon: -77.005137, Routes: []string{"OR", "SV", "BL"}},
	})
	require.NoError(t, err)
	return dir
}

func arrival(stop, trip, route string, direction uint32, minutes int) feed.ArrivalRecord {
	return feed.ArrivalRecord{
		TripID:      trip,
		RouteID:     route,
		StopID:      stop,
		DirectionID: &direction,
		Time:        now.Add(time.Duration(minutes) * time.Minute),
	}
}

func newTestService(t *testing.T, built bool) *Service {
	t.Helper()
	dir := newTestDirectory(t)
	s := store.NewStore()
	if built {
		records := &feed.Records{Arrivals: []feed.ArrivalRecord{
			arrival("PF_B03_1", "T1", "RED", 0, 3),
			arrival("A01", "T2", "RED", 1, 6),
			arrival("C01", "T3", "ORANGE", 0, 2),
			arrival("D05", "T4", "GREEN", 1, 4),
		}}
		snap, err := feed.Aggregate(records, dir, now, feed.Options{MaxTrains: 10, MaxMinutes: 30})
		require.NoError(t, err)
		s.Set(snap)
	}
	return NewService(s, dir, nil, fixedCount(2))
}

func TestByID(t *testing.T) {
	svc := newTestService(t, true)

	for _, id := range []string{"STN_A01_C01", "A01", "c01"} {
		resp, updated, err := svc.ByID(id)
		require.NoError(t, err, id)
		assert.Equal(t, "STN_A01_C01", resp.ID)
		assert.Len(t, resp.N, 1)
		assert.Len(t, resp.S, 1)
		require.NotNil(t, updated)
		assert.Equal(t, now, *updated)
	}

	// Configured but no arrivals
	resp, _, err := svc.ByID("B02")
	require.NoError(t, err)
	assert.Equal(t, "STN_B02", resp.ID)
	assert.NotNil(t, resp.N)
	assert.Empty(t, resp.N)
	assert.Empty(t, resp.S)

	_, _, err = svc.ByID("Z99")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestByIDBeforeFirstRefresh(t *testing.T) {
	svc := newTestService(t, false)
	resp, updated, err := svc.ByID("B03")
	require.NoError(t, err)
	assert.Nil(t, updated)
	assert.Empty(t, resp.N)

	body, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"N":[]`)
}

func TestByLocation(t *testing.T) {
	svc := newTestService(t, true)

	nearby, _, err := svc.ByLocation(38.8977, -77.0063, 1)
	require.NoError(t, err)
	require.Len(t, nearby, 2)
	assert.Equal(t, "STN_B03", nearby[0].ID)
	assert.Equal(t, "STN_B02", nearby[1].ID)
	assert.Less(t, nearby[0].DistanceKM, 0.1)
	assert.InDelta(t, 0.9, nearby[1].DistanceKM, 0.05)
	assert.Len(t, nearby[0].N, 1)

	wide, _, err := svc.ByLocation(38.8977, -77.0063, 5)
	require.NoError(t, err)
	assert.Len(t, wide, 4)
	for i := 1; i < len(wide); i++ {
		assert.LessOrEqual(t, wide[i-1].DistanceKM, wide[i].DistanceKM)
	}

	none, _, err := svc.ByLocation(0, 0, 1)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestByLocationInvalid(t *testing.T) {
	svc := newTestService(t, true)
	tests := []struct {
		name             string
		lat, lon, radius float64
	}{
		{"lat too large", 91, 0, 1},
		{"lon too small", 0, -181, 1},
		{"zero radius", 38.9, -77, 0},
		{"negative radius", 38.9, -77, -1},
		{"radius too large", 38.9, -77, 50.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.ByLocation(tt.lat, tt.lon, tt.radius)
			assert.ErrorIs(t, err, ErrInvalidParameter)
		})
	}
}

func TestByRoute(t *testing.T) {
	svc := newTestService(t, true)

	red, _, err := svc.ByRoute("red")
	require.NoError(t, err)
	assert.Equal(t, "RD", red.Route)
	require.Len(t, red.Stations, 3)
	assert.Equal(t, "Judiciary Square", red.Stations[0].Name)
	assert.Equal(t, "Metro Center", red.Stations[1].Name)
	assert.Equal(t, "Union Station", red.Stations[2].Name)

	// The orange arrival at Metro Center is filtered out of the red listing
	assert.Empty(t, red.Stations[1].N)
	require.Len(t, red.Stations[1].S, 1)
	assert.Equal(t, "RD", red.Stations[1].S[0].Route)

	// Live on a route no station is configured for
	green, _, err := svc.ByRoute("GR")
	require.NoError(t, err)
	require.Len(t, green.Stations, 1)
	assert.Equal(t, "STN_D05", green.Stations[0].ID)

	// Configured without live arrivals
	silver, _, err := svc.ByRoute("SV")
	require.NoError(t, err)
	assert.Len(t, silver.Stations, 2)

	_, _, err = svc.ByRoute("PURPLE")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRoutes(t *testing.T) {
	routes, updated := newTestService(t, true).Routes()
	assert.Equal(t, []string{"GR", "OR", "RD"}, routes)
	assert.NotNil(t, updated)

	routes, updated = newTestService(t, false).Routes()
	assert.Empty(t, routes)
	assert.NotNil(t, routes)
	assert.Nil(t, updated)
}

func TestStations(t *testing.T) {
	list, _ := newTestService(t, true).Stations()
	assert.Equal(t, 4, list.TotalConfigured)
	assert.Equal(t, 3, list.TotalWithTrains)
	require.Len(t, list.Data, 4)
	assert.Equal(t, StationCount{ID: "STN_A01_C01", Name: "Metro Center", Trains: 2}, list.Data[0])
	assert.Equal(t, StationCount{ID: "STN_B02", Name: "Judiciary Square", Trains: 0}, list.Data[1])
}

func TestVehiclesAndAlertsNeverNull(t *testing.T) {
	svc := newTestService(t, false)
	vehicles, _ := svc.Vehicles()
	alerts, _ := svc.Alerts()
	assert.NotNil(t, vehicles)
	assert.NotNil(t, alerts)
}

func TestDebug(t *testing.T) {
	info, _ := newTestService(t, true).Debug()
	assert.Equal(t, 4, info.StationsConfigured)
	assert.Equal(t, 3, info.StationsWithTrains)
	assert.Equal(t, []string{"STN_A01_C01", "STN_B02", "STN_B03", "STN_D05"}, info.SampleConfigured)
	assert.Equal(t, []string{"STN_A01_C01", "STN_B03", "STN_D05"}, info.SampleLive)
	assert.Equal(t, 2, info.Subscribers)
	assert.Equal(t, 4, info.LastBuild.Arrivals)
	assert.Nil(t, info.Refresh)
}

func TestDistance(t *testing.T) {
	// Union Station to Metro Center
	d := distance(38.897723, -77.006745, 38.898303, -77.028099)
	assert.InDelta(t, 1.85, d, 0.05)
	assert.Equal(t, 0.0, distance(38.9, -77, 38.9, -77))
}
