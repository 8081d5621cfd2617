package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jusunglee/wmata-go/internal/models"
)

func makeSnapshot(builtAt time.Time, n int) *models.Snapshot {
	entries := make([]models.StationEntry, n)
	for i := range entries {
		entries[i] = models.StationEntry{
			Station: &models.Station{ID: fmt.Sprintf("STN_%03d", i), Name: "Station"},
			Trains: models.TrainsByDirection{
				North: []models.Arrival{{Route: "RD", Time: builtAt.Add(time.Minute), Minutes: float64(n)}},
			},
		}
	}
	return models.NewSnapshot(builtAt, entries, nil, nil, models.BuildStats{Arrivals: n})
}

func TestStore(t *testing.T) {
	s := NewStore()

	t.Run("EmptyBeforeFirstSet", func(t *testing.T) {
		snap := s.Get()
		if snap == nil {
			t.Fatal("Expected non-nil snapshot")
		}
		if len(snap.Entries) != 0 {
			t.Errorf("Expected 0 entries, got %d", len(snap.Entries))
		}
		if !s.GetLastUpdate().IsZero() {
			t.Errorf("Expected zero last update, got %v", s.GetLastUpdate())
		}
	})

	t.Run("SetReplaces", func(t *testing.T) {
		now := time.Now()
		snap := makeSnapshot(now, 3)
		s.Set(snap)

		if s.Get() != snap {
			t.Error("Expected Get to return the snapshot just set")
		}
		if !s.GetLastUpdate().Equal(now) {
			t.Errorf("Expected last update %v, got %v", now, s.GetLastUpdate())
		}
	})

	t.Run("SetNilIgnored", func(t *testing.T) {
		before := s.Get()
		s.Set(nil)
		if s.Get() != before {
			t.Error("Set(nil) must keep the current snapshot")
		}
	})
}

// Each snapshot's entry count equals the Arrivals stat and every entry's Minutes,
// so a reader can detect a mix of two snapshots.
func TestStoreConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	s := NewStore()
	s.Set(makeSnapshot(time.Now(), 1))

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			s.Set(makeSnapshot(time.Now(), 1+i%7))
		}
		close(stop)
	}()

	errs := make(chan error, 8)
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := s.Get()
				n := len(snap.Entries)
				if snap.Stats.Arrivals != n {
					errs <- fmt.Errorf("stats say %d arrivals, snapshot has %d entries", snap.Stats.Arrivals, n)
					return
				}
				for _, e := range snap.Entries {
					if e.Trains.North[0].Minutes != float64(n) {
						errs <- fmt.Errorf("entry from a different snapshot: %v vs %d", e.Trains.North[0].Minutes, n)
						return
					}
				}
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
