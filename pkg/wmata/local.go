package wmata

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jusunglee/wmata-go/internal/feed"
	"github.com/jusunglee/wmata-go/internal/hub"
	"github.com/jusunglee/wmata-go/internal/models"
	"github.com/jusunglee/wmata-go/internal/query"
	"github.com/jusunglee/wmata-go/internal/stations"
	"github.com/jusunglee/wmata-go/internal/store"
)

// LocalClient implements the Client interface for local usage
// Manages in-memory data store and background feed updates
type LocalClient struct {
	store       *store.Store
	hub         *hub.Hub
	feedManager *feed.Manager
	service     *query.Service
	logger      *slog.Logger
}

// NewLocal creates a new local WMATA client
// Loads the station directory and starts background feed updates
func NewLocal(config Config) (*LocalClient, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dir, err := stations.Load(config.StationsFile)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded station directory", "path", config.StationsFile, "stations", dir.Len(), "routes", dir.Routes())

	s := store.NewStore()
	h := hub.New(logger.With("component", "hub"))
	fetcher := feed.NewFetcher(config.APIKey, config.Feeds, config.FetchTimeout)
	opts := feed.Options{MaxTrains: config.MaxTrains, MaxMinutes: config.MaxMinutes}

	fm := feed.NewManager(fetcher, dir, s, h, config.UpdateInterval, opts, logger.With("component", "feed"))
	fm.Start()

	return &LocalClient{
		store:       s,
		hub:         h,
		feedManager: fm,
		service:     query.NewService(s, dir, fm, h),
		logger:      logger,
	}, nil
}

// Close gracefully shuts down the local client
// Must be called to stop background goroutines and prevent leaks
func (c *LocalClient) Close() {
	c.feedManager.Stop()
	c.hub.Close()
}

// Hub returns the broadcast hub realtime subscribers register with
func (c *LocalClient) Hub() *hub.Hub {
	return c.hub
}

// WaitForUpdate blocks until the first snapshot has been built or ctx is done
func (c *LocalClient) WaitForUpdate(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for c.GetLastUpdate().IsZero() {
		select {
		case <-ctx.Done():
			st := c.feedManager.Status()
			if st.LastError != "" {
				return fmt.Errorf("no data yet: %s", st.LastError)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (c *LocalClient) StationByID(id string) (models.StationResponse, *time.Time, error) {
	return c.service.ByID(id)
}

func (c *LocalClient) StationsByLocation(lat, lon, radiusKM float64) ([]query.NearbyStation, *time.Time, error) {
	return c.service.ByLocation(lat, lon, radiusKM)
}

func (c *LocalClient) StationsByRoute(route string) (query.RouteStations, *time.Time, error) {
	return c.service.ByRoute(route)
}

func (c *LocalClient) Routes() ([]string, *time.Time) {
	return c.service.Routes()
}

func (c *LocalClient) Stations() (query.StationList, *time.Time) {
	return c.service.Stations()
}

func (c *LocalClient) Vehicles() ([]models.Vehicle, *time.Time) {
	return c.service.Vehicles()
}

func (c *LocalClient) ServiceAlerts() ([]models.Alert, *time.Time) {
	return c.service.Alerts()
}

func (c *LocalClient) Debug() (query.DebugInfo, *time.Time) {
	return c.service.Debug()
}

func (c *LocalClient) Snapshot() *models.Snapshot {
	return c.store.Get()
}

func (c *LocalClient) GetLastUpdate() time.Time {
	return c.store.GetLastUpdate()
}
