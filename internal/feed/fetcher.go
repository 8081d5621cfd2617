package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/proto"
)

// WMATA rail GTFS-RT endpoints
const (
	TripUpdatesURL      = "https://api.wmata.com/gtfs/rail-gtfsrt-tripupdates.pb"
	VehiclePositionsURL = "https://api.wmata.com/gtfs/rail-gtfsrt-vehiclepositions.pb"
	AlertsURL           = "https://api.wmata.com/gtfs/rail-gtfsrt-alerts.pb"
)

// ErrorKind classifies a fetch failure
type ErrorKind int

const (
	KindNetwork ErrorKind = iota
	KindTimeout
	KindDecode
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// FetchError is returned for every failed feed download or decode
type FetchError struct {
	Kind       ErrorKind
	Feed       string
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s feed: %s error: HTTP %d from %s", e.Feed, e.Kind, e.StatusCode, e.URL)
	}
	return fmt.Sprintf("%s feed: %s error: %v", e.Feed, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// URLs lists the feeds to download. Only TripUpdates is required.
type URLs struct {
	TripUpdates      string
	VehiclePositions string
	Alerts           string
}

// DefaultURLs returns the WMATA rail endpoints
func DefaultURLs() URLs {
	return URLs{
		TripUpdates:      TripUpdatesURL,
		VehiclePositions: VehiclePositionsURL,
		Alerts:           AlertsURL,
	}
}

// Fetcher downloads and decodes the realtime feeds
type Fetcher struct {
	apiKey     string
	urls       URLs
	timeout    time.Duration
	maxRetries uint64
	httpClient *http.Client
}

// NewFetcher creates a fetcher; timeout bounds one whole Fetch call including retries
func NewFetcher(apiKey string, urls URLs, timeout time.Duration) *Fetcher {
	return &Fetcher{
		apiKey:     apiKey,
		urls:       urls,
		timeout:    timeout,
		maxRetries: 2,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Fetch downloads every configured feed concurrently. If any of them fails the
// whole fetch fails, so callers never see a mix of fresh and missing feeds.
func (f *Fetcher) Fetch(ctx context.Context) (*Records, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var tu, vp, alerts *gtfs.FeedMessage
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		tu, err = f.fetchFeed(gctx, "trip_updates", f.urls.TripUpdates)
		return err
	})
	if f.urls.VehiclePositions != "" {
		g.Go(func() (err error) {
			vp, err = f.fetchFeed(gctx, "vehicle_positions", f.urls.VehiclePositions)
			return err
		})
	}
	if f.urls.Alerts != "" {
		g.Go(func() (err error) {
			alerts, err = f.fetchFeed(gctx, "alerts", f.urls.Alerts)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := &Records{
		FeedTimestamp: feedTimestamp(tu),
		Arrivals:      decodeTripUpdates(tu),
	}
	if vp != nil {
		records.Vehicles = decodeVehicles(vp)
	}
	if alerts != nil {
		records.Alerts = decodeAlerts(alerts)
	}
	return records, nil
}

func (f *Fetcher) fetchFeed(ctx context.Context, name, url string) (*gtfs.FeedMessage, error) {
	if url == "" {
		return nil, &FetchError{Kind: KindNetwork, Feed: name, Err: errors.New("no URL configured")}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	body, err := backoff.RetryWithData(func() ([]byte, error) {
		return f.download(ctx, name, url)
	}, backoff.WithContext(backoff.WithMaxRetries(b, f.maxRetries), ctx))
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return nil, fe
		}
		return nil, classify(ctx, name, url, err)
	}

	feed := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, feed); err != nil {
		return nil, &FetchError{Kind: KindDecode, Feed: name, URL: url, Err: err}
	}
	return feed, nil
}

// download performs one GET. Client errors are permanent; transport errors and
// server errors may be retried.
func (f *Fetcher) download(ctx context.Context, name, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(&FetchError{Kind: KindNetwork, Feed: name, URL: url, Err: err})
	}
	req.Header.Set("api_key", f.apiKey)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		fe := classify(ctx, name, url, err)
		if fe.Kind == KindTimeout || ctx.Err() != nil {
			return nil, backoff.Permanent(fe)
		}
		return nil, fe
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		fe := &FetchError{
			Kind:       KindNetwork,
			Feed:       name,
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("HTTP %d", resp.StatusCode),
		}
		if resp.StatusCode >= 500 {
			return nil, fe
		}
		return nil, backoff.Permanent(fe)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(ctx, name, url, err)
	}
	return body, nil
}

func classify(ctx context.Context, name, url string, err error) *FetchError {
	kind := KindNetwork
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	}
	return &FetchError{Kind: kind, Feed: name, URL: url, Err: err}
}
