package wmata

import (
	"log/slog"
	"time"

	"github.com/jusunglee/wmata-go/internal/feed"
	"github.com/jusunglee/wmata-go/internal/models"
	"github.com/jusunglee/wmata-go/internal/query"
)

// Client defines the interface for accessing WMATA rail data.
// Every read returns the build time of the snapshot it was answered from,
// nil until the first successful refresh.
type Client interface {
	StationByID(id string) (models.StationResponse, *time.Time, error)
	StationsByLocation(lat, lon, radiusKM float64) ([]query.NearbyStation, *time.Time, error)
	StationsByRoute(route string) (query.RouteStations, *time.Time, error)

	Routes() ([]string, *time.Time)
	Stations() (query.StationList, *time.Time)

	Vehicles() ([]models.Vehicle, *time.Time)
	ServiceAlerts() ([]models.Alert, *time.Time)

	Debug() (query.DebugInfo, *time.Time)

	// Snapshot returns the current snapshot as a whole
	Snapshot() *models.Snapshot
	GetLastUpdate() time.Time
}

// Config holds configuration for the WMATA client
// APIKey required for accessing WMATA's GTFS-RT feeds
type Config struct {
	APIKey         string
	UpdateInterval time.Duration
	FetchTimeout   time.Duration
	StationsFile   string
	MaxTrains      int
	MaxMinutes     float64
	Feeds          feed.URLs
	Logger         *slog.Logger
}

// DefaultConfig returns default configuration
// 60-second update interval balances freshness with API rate limits
func DefaultConfig() Config {
	return Config{
		UpdateInterval: 60 * time.Second,
		FetchTimeout:   10 * time.Second,
		StationsFile:   "stations.json",
		MaxTrains:      10,
		MaxMinutes:     30,
		Feeds:          feed.DefaultURLs(),
	}
}
