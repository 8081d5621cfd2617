package feed

import (
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"

	"github.com/jusunglee/wmata-go/internal/models"
)

// ArrivalRecord is one stop time update of one trip
type ArrivalRecord struct {
	TripID      string
	RouteID     string
	StopID      string
	DirectionID *uint32
	Time        time.Time
}

// VehicleRecord is one entity of the vehicle positions feed
type VehicleRecord struct {
	ID      string
	TripID  string
	RouteID string
	StopID  string
	Status  string
	Lat     *float64
	Lon     *float64
}

// AlertRecord is one entity of the alerts feed
type AlertRecord struct {
	ID          string
	Header      string
	Description string
	RouteIDs    []string
	StopIDs     []string
	Periods     []models.TimePeriod
}

// Records is the decoded content of one fetch
type Records struct {
	FeedTimestamp time.Time
	Arrivals      []ArrivalRecord
	Vehicles      []VehicleRecord
	Alerts        []AlertRecord
}

func feedTimestamp(fm *gtfs.FeedMessage) time.Time {
	if ts := fm.GetHeader().GetTimestamp(); ts > 0 {
		return time.Unix(int64(ts), 0).UTC()
	}
	return time.Time{}
}

// decodeTripUpdates flattens trip updates into arrival records.
// The arrival time is preferred over the departure time; updates with neither are skipped.
func decodeTripUpdates(fm *gtfs.FeedMessage) []ArrivalRecord {
	var records []ArrivalRecord
	for _, entity := range fm.GetEntity() {
		tu := entity.GetTripUpdate()
		if tu == nil {
			continue
		}

		trip := tu.GetTrip()
		routeID := trip.GetRouteId()
		if routeID == "" {
			routeID = "UNKNOWN"
		}
		var direction *uint32
		if trip != nil && trip.DirectionId != nil {
			d := *trip.DirectionId
			direction = &d
		}

		for _, stu := range tu.GetStopTimeUpdate() {
			stopID := stu.GetStopId()
			if stopID == "" {
				continue
			}

			var ts int64
			if arr := stu.GetArrival(); arr != nil && arr.Time != nil {
				ts = arr.GetTime()
			} else if dep := stu.GetDeparture(); dep != nil && dep.Time != nil {
				ts = dep.GetTime()
			} else {
				continue
			}

			records = append(records, ArrivalRecord{
				TripID:      trip.GetTripId(),
				RouteID:     routeID,
				StopID:      stopID,
				DirectionID: direction,
				Time:        time.Unix(ts, 0).UTC(),
			})
		}
	}
	return records
}

func decodeVehicles(fm *gtfs.FeedMessage) []VehicleRecord {
	var records []VehicleRecord
	for _, entity := range fm.GetEntity() {
		v := entity.GetVehicle()
		if v == nil {
			continue
		}

		rec := VehicleRecord{
			ID:      entity.GetId(),
			TripID:  v.GetTrip().GetTripId(),
			RouteID: v.GetTrip().GetRouteId(),
			StopID:  v.GetStopId(),
		}
		if rec.ID == "" {
			rec.ID = v.GetVehicle().GetId()
		}
		if pos := v.GetPosition(); pos != nil {
			lat := float64(pos.GetLatitude())
			lon := float64(pos.GetLongitude())
			rec.Lat, rec.Lon = &lat, &lon
		}
		if v.CurrentStatus != nil {
			rec.Status = v.GetCurrentStatus().String()
		}
		records = append(records, rec)
	}
	return records
}

func decodeAlerts(fm *gtfs.FeedMessage) []AlertRecord {
	var records []AlertRecord
	for _, entity := range fm.GetEntity() {
		a := entity.GetAlert()
		if a == nil {
			continue
		}

		rec := AlertRecord{
			ID:          entity.GetId(),
			Header:      translatedText(a.GetHeaderText()),
			Description: translatedText(a.GetDescriptionText()),
		}
		for _, sel := range a.GetInformedEntity() {
			if r := sel.GetRouteId(); r != "" {
				rec.RouteIDs = append(rec.RouteIDs, r)
			}
			if s := sel.GetStopId(); s != "" {
				rec.StopIDs = append(rec.StopIDs, s)
			}
		}
		for _, tr := range a.GetActivePeriod() {
			var period models.TimePeriod
			if tr.Start != nil {
				start := time.Unix(int64(tr.GetStart()), 0).UTC()
				period.Start = &start
			}
			if tr.End != nil {
				end := time.Unix(int64(tr.GetEnd()), 0).UTC()
				period.End = &end
			}
			rec.Periods = append(rec.Periods, period)
		}
		records = append(records, rec)
	}
	return records
}

// translatedText picks the English translation, falling back to the first one
func translatedText(ts *gtfs.TranslatedString) string {
	translations := ts.GetTranslation()
	for _, tr := range translations {
		if lang := tr.GetLanguage(); lang == "en" || lang == "" {
			return tr.GetText()
		}
	}
	if len(translations) > 0 {
		return translations[0].GetText()
	}
	return ""
}
