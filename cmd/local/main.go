package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/jusunglee/wmata-go/internal/models"
	"github.com/jusunglee/wmata-go/pkg/wmata"
)

func main() {
	var (
		apiKey       = flag.String("api-key", "", "WMATA API key")
		stationsFile = flag.String("stations-file", "stations.json", "Stations JSON file")
		lat          = flag.Float64("lat", 38.8977, "Latitude")
		lon          = flag.Float64("lon", -77.0063, "Longitude")
		radius       = flag.Float64("radius", 1, "Search radius in km")
		route        = flag.String("route", "", "Route to query")
		id           = flag.String("id", "", "Station id, short code or platform id to query")
		wait         = flag.Duration("wait", 30*time.Second, "How long to wait for the first refresh")
	)
	flag.Parse()

	_ = godotenv.Load()

	// Fallback to environment variable if API key not provided via flag
	if *apiKey == "" {
		*apiKey = os.Getenv("WMATA_API_KEY")
	}
	if *apiKey == "" {
		slog.Error("WMATA API key required (use -api-key flag or WMATA_API_KEY env var)")
		os.Exit(1)
	}

	config := wmata.DefaultConfig()
	config.APIKey = *apiKey
	config.StationsFile = *stationsFile
	config.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	client, err := wmata.NewLocal(config)
	if err != nil {
		slog.Error("Failed to create WMATA client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	fmt.Println("Waiting for initial data...")
	ctx, cancel := context.WithTimeout(context.Background(), *wait)
	defer cancel()
	if err := client.WaitForUpdate(ctx); err != nil {
		slog.Error("No realtime data", "error", err)
		os.Exit(1)
	}

	switch {
	case *id != "":
		station, _, err := client.StationByID(*id)
		if err != nil {
			slog.Error("Failed to get station", "id", *id, "error", err)
			os.Exit(1)
		}
		printStation(station)

	case *route != "":
		result, _, err := client.StationsByRoute(*route)
		if err != nil {
			slog.Error("Failed to get stations for route", "route", *route, "error", err)
			os.Exit(1)
		}

		fmt.Printf("\nStations on route %s:\n", result.Route)
		for _, station := range result.Stations {
			fmt.Printf("- %s (%s) N:%d S:%d\n", station.Name, station.ID, len(station.N), len(station.S))
		}

	default:
		stations, _, err := client.StationsByLocation(*lat, *lon, *radius)
		if err != nil {
			slog.Error("Failed to get stations", "error", err)
			os.Exit(1)
		}

		fmt.Printf("\nStations within %.1fkm of (%.4f, %.4f):\n", *radius, *lat, *lon)
		for _, station := range stations {
			fmt.Printf("\n%.2fkm", station.DistanceKM)
			printStation(station.StationResponse)
		}
	}

	fmt.Printf("\nLast real-time update: %s\n", client.GetLastUpdate().Local().Format("3:04 PM"))
}

func printStation(station models.StationResponse) {
	fmt.Printf("\n%s (%s)\n", station.Name, station.ID)
	fmt.Printf("  Routes: %v\n", station.Routes)
	printArrivals("Northbound", station.N)
	printArrivals("Southbound", station.S)
}

func printArrivals(label string, arrivals []models.Arrival) {
	if len(arrivals) == 0 {
		return
	}
	fmt.Printf("  %s:\n", label)
	for _, train := range arrivals[:min(3, len(arrivals))] {
		fmt.Printf("    %s - %.1f min (%s)\n", train.Route, train.Minutes, train.Time.Local().Format("3:04 PM"))
	}
}
