package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jamespfennell/gtfs"
	"github.com/joho/godotenv"

	"github.com/jusunglee/wmata-go/internal/stations"
	"github.com/jusunglee/wmata-go/internal/stations/static"
)

func main() {
	var (
		apiKey = flag.String("api-key", "", "WMATA API key")
		url    = flag.String("url", static.StaticGTFSURL, "Static GTFS zip URL")
		input  = flag.String("input", "", "Read the static GTFS zip from a local file instead of downloading it")
		output = flag.String("output", "stations.json", "Where to write the station directory")
	)
	flag.Parse()

	_ = godotenv.Load()
	if *apiKey == "" {
		*apiKey = os.Getenv("WMATA_API_KEY")
	}

	feed, err := loadStatic(*input, *url, *apiKey)
	if err != nil {
		slog.Error("Failed to load static GTFS", "error", err)
		os.Exit(1)
	}

	records := static.Generate(feed)
	if len(records) == 0 {
		slog.Error("No parent stations with coordinates found")
		os.Exit(1)
	}

	if err := stations.WriteFile(*output, records); err != nil {
		slog.Error("Failed to write stations file", "path", *output, "error", err)
		os.Exit(1)
	}

	routes := make(map[string]int)
	for _, rec := range records {
		for _, r := range rec.Routes {
			routes[r]++
		}
	}
	slog.Info("Wrote station directory", "path", *output, "stations", len(records), "routes", routes)
}

func loadStatic(input, url, apiKey string) (*gtfs.Static, error) {
	if input != "" {
		data, err := os.ReadFile(input)
		if err != nil {
			return nil, err
		}
		return static.ParseStatic(data)
	}

	slog.Info("Downloading static GTFS", "url", url)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	return static.DownloadStatic(ctx, &http.Client{}, url, apiKey)
}
