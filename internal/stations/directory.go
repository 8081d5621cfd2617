// Package stations holds the static station directory: the parent stations of
// the rail network and the short codes and platform ids that resolve to them.
package stations

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/jusunglee/wmata-go/internal/models"
)

// ErrStationNotFound is returned by Resolve for ids that match nothing
var ErrStationNotFound = errors.New("station not found")

var shortCodeRe = regexp.MustCompile(`^[A-Za-z0-9]{2,3}$`)

// LoadError means the directory source could not be turned into a usable directory.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load station directory %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Record is one entry of the stations file, keyed by canonical id
type Record struct {
	Name      string   `json:"name"`
	Codes     []string `json:"codes,omitempty"`
	Lat       float64  `json:"lat"`
	Lon       float64  `json:"lon"`
	Routes    []string `json:"routes"`
	Platforms []string `json:"platforms,omitempty"`
}

// Directory resolves canonical ids, short codes and platform ids to stations.
// It is read-only after construction.
type Directory struct {
	stations  []*models.Station
	canonical map[string]*models.Station
	codes     map[string]*models.Station
	platforms map[string]*models.Station
	byRoute   map[string][]*models.Station
}

// Load reads a stations file
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	var records map[string]Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	dir, err := New(records)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return dir, nil
}

// New builds a directory from records keyed by canonical station id
func New(records map[string]Record) (*Directory, error) {
	if len(records) == 0 {
		return nil, errors.New("no stations")
	}

	d := &Directory{
		stations:  make([]*models.Station, 0, len(records)),
		canonical: make(map[string]*models.Station, len(records)),
		codes:     make(map[string]*models.Station),
		platforms: make(map[string]*models.Station),
		byRoute:   make(map[string][]*models.Station),
	}

	for id, rec := range records {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, errors.New("station with empty id")
		}
		key := strings.ToUpper(id)
		if _, dup := d.canonical[key]; dup {
			return nil, fmt.Errorf("duplicate station id %s", id)
		}

		codes := rec.Codes
		if len(codes) == 0 {
			codes = CodesFromID(id)
		}

		st := &models.Station{
			ID:        id,
			Name:      rec.Name,
			Codes:     normalize(codes),
			Location:  models.Location{Lat: rec.Lat, Lon: rec.Lon},
			Routes:    normalize(rec.Routes),
			Platforms: normalize(rec.Platforms),
		}
		if st.Name == "" {
			st.Name = id
		}
		d.canonical[key] = st
		d.stations = append(d.stations, st)
	}

	// Second pass so that codes and platforms can be checked against every canonical id
	for _, st := range d.stations {
		for _, code := range st.Codes {
			if !shortCodeRe.MatchString(code) {
				return nil, fmt.Errorf("station %s: invalid short code %q", st.ID, code)
			}
			if other, dup := d.codes[code]; dup {
				return nil, fmt.Errorf("short code %s claimed by %s and %s", code, other.ID, st.ID)
			}
			d.codes[code] = st
		}
		for _, pf := range st.Platforms {
			if other, dup := d.platforms[pf]; dup {
				return nil, fmt.Errorf("platform %s claimed by %s and %s", pf, other.ID, st.ID)
			}
			d.platforms[pf] = st
		}
		for _, route := range st.Routes {
			d.byRoute[route] = append(d.byRoute[route], st)
		}
	}

	sort.Slice(d.stations, func(i, j int) bool {
		return d.stations[i].ID < d.stations[j].ID
	})
	for route := range d.byRoute {
		sortByName(d.byRoute[route])
	}

	return d, nil
}

// Resolve finds the station for a canonical id, short code or platform id.
// Canonical ids take precedence, then short codes, then platforms.
func (d *Directory) Resolve(id string) (*models.Station, error) {
	key := strings.ToUpper(strings.TrimSpace(id))
	if st, ok := d.canonical[key]; ok {
		return st, nil
	}
	if st, ok := d.codes[key]; ok {
		return st, nil
	}
	if st, ok := d.platforms[key]; ok {
		return st, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrStationNotFound, id)
}

// Stations returns every station sorted by id
func (d *Directory) Stations() []*models.Station {
	result := make([]*models.Station, len(d.stations))
	copy(result, d.stations)
	return result
}

// ByRoute returns the stations configured for a route, sorted by name
func (d *Directory) ByRoute(route string) []*models.Station {
	stations := d.byRoute[strings.ToUpper(route)]
	result := make([]*models.Station, len(stations))
	copy(result, stations)
	return result
}

// Routes returns every configured route code
func (d *Directory) Routes() []string {
	routes := make([]string, 0, len(d.byRoute))
	for route := range d.byRoute {
		routes = append(routes, route)
	}
	sort.Strings(routes)
	return routes
}

// Len returns the number of stations
func (d *Directory) Len() int {
	return len(d.stations)
}

// CodesFromID derives short codes from a canonical id.
// "STN_A01_C01" yields A01 and C01; a bare two or three character id is its own code.
func CodesFromID(id string) []string {
	if shortCodeRe.MatchString(id) {
		return []string{strings.ToUpper(id)}
	}
	var codes []string
	parts := strings.Split(id, "_")
	for _, part := range parts[1:] {
		if shortCodeRe.MatchString(part) {
			codes = append(codes, strings.ToUpper(part))
		}
	}
	return codes
}

func normalize(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToUpper(strings.TrimSpace(v))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func sortByName(stations []*models.Station) {
	sort.Slice(stations, func(i, j int) bool {
		if stations[i].Name != stations[j].Name {
			return stations[i].Name < stations[j].Name
		}
		return stations[i].ID < stations[j].ID
	})
}
