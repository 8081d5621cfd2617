// Package static builds the station directory from WMATA's static GTFS feed.
//
// It is kept apart from package stations because the GTFS library it uses
// registers the same realtime protobuf types as the realtime feed bindings.
package static

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/jamespfennell/gtfs"

	"github.com/jusunglee/wmata-go/internal/models"
	"github.com/jusunglee/wmata-go/internal/stations"
)

// StaticGTFSURL is WMATA's rail GTFS static feed
const StaticGTFSURL = "https://api.wmata.com/gtfs/rail-gtfs-static.zip"

// DownloadStatic fetches and parses a GTFS static zip
func DownloadStatic(ctx context.Context, client *http.Client, url, apiKey string) (*gtfs.Static, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		req.Header.Set("api_key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return ParseStatic(data)
}

// ParseStatic parses GTFS static zip content
func ParseStatic(data []byte) (*gtfs.Static, error) {
	static, err := gtfs.ParseStatic(data, gtfs.ParseStaticOptions{})
	if err != nil {
		return nil, fmt.Errorf("parse GTFS static: %w", err)
	}
	return static, nil
}

// Generate builds stations file records from a parsed static feed.
// Only root stops are kept; every boarding point below a root becomes one of its
// platforms and the routes of trips stopping there become its routes.
func Generate(static *gtfs.Static) map[string]stations.Record {
	records := make(map[string]stations.Record)
	routeSets := make(map[string]map[string]bool)
	platformSets := make(map[string]map[string]bool)

	for i := range static.Stops {
		stop := &static.Stops[i]
		if stop.Parent != nil {
			continue
		}
		if stop.Latitude == nil || stop.Longitude == nil {
			continue
		}
		records[stop.Id] = stations.Record{
			Name:  stop.Name,
			Codes: stations.CodesFromID(stop.Id),
			Lat:   *stop.Latitude,
			Lon:   *stop.Longitude,
		}
		routeSets[stop.Id] = map[string]bool{}
		platformSets[stop.Id] = map[string]bool{}
	}

	for i := range static.Trips {
		trip := &static.Trips[i]
		if trip.Route == nil {
			continue
		}
		code := routeCode(trip.Route)
		for _, st := range trip.StopTimes {
			if st.Stop == nil {
				continue
			}
			root := st.Stop.Root()
			if _, ok := records[root.Id]; !ok {
				continue
			}
			routeSets[root.Id][code] = true
			if root != st.Stop {
				platformSets[root.Id][st.Stop.Id] = true
			}
		}
	}

	for id, rec := range records {
		rec.Routes = sortedKeys(routeSets[id])
		rec.Platforms = sortedKeys(platformSets[id])
		records[id] = rec
	}
	return records
}

func routeCode(route *gtfs.Route) string {
	for _, name := range []string{route.ShortName, route.LongName, route.Id} {
		if name != "" {
			return models.RouteCode(name)
		}
	}
	return "UNKNOWN"
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
