package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/jusunglee/wmata-go/internal/hub"
	"github.com/jusunglee/wmata-go/internal/models"
	"github.com/jusunglee/wmata-go/internal/query"
	"github.com/jusunglee/wmata-go/pkg/wmata"
)

// DefaultRadiusKM is used by /by-location when no radius is given
const DefaultRadiusKM = 0.5

const notFoundHint = "Check /stations or /debug for available station ids"

// Broadcaster is the part of the hub the websocket endpoint needs
type Broadcaster interface {
	Subscribe(conn hub.Conn, current *models.Snapshot) (*hub.Subscriber, error)
	Unsubscribe(s *hub.Subscriber)
}

// Handler handles HTTP requests
type Handler struct {
	client   wmata.Client
	hub      Broadcaster
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new HTTP handler. Without a hub /ws is not served.
func NewHandler(client wmata.Client, hub Broadcaster, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		client: client,
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  4096,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
	}
}

// RegisterRoutes registers all routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/", h.handleIndex).Methods("GET")
	r.HandleFunc("/by-id/{id}", h.handleByID).Methods("GET")
	r.HandleFunc("/by-location", h.handleByLocation).Methods("GET")
	r.HandleFunc("/by-route/{route}", h.handleByRoute).Methods("GET")
	r.HandleFunc("/routes", h.handleRoutes).Methods("GET")
	r.HandleFunc("/stations", h.handleStations).Methods("GET")
	r.HandleFunc("/vehicles", h.handleVehicles).Methods("GET")
	r.HandleFunc("/alerts", h.handleAlerts).Methods("GET")
	r.HandleFunc("/debug", h.handleDebug).Methods("GET")
	if h.hub != nil {
		r.HandleFunc("/ws", h.handleWebSocket).Methods("GET")
	}
}

// Response wraps API responses
type Response struct {
	Data    interface{} `json:"data"`
	Updated *time.Time  `json:"updated"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

// StationResponse is a single station with the snapshot time
type StationResponse struct {
	models.StationResponse
	Updated *time.Time `json:"updated"`
}

// RouteResponse lists the stations of one route
type RouteResponse struct {
	Route   string                   `json:"route"`
	Data    []models.StationResponse `json:"data"`
	Updated *time.Time               `json:"updated"`
}

// RoutesResponse lists the live routes
type RoutesResponse struct {
	Routes  []string   `json:"routes"`
	Updated *time.Time `json:"updated"`
}

// StationsResponse lists configured stations with train counts
type StationsResponse struct {
	query.StationList
	Updated *time.Time `json:"updated"`
}

// DebugResponse carries diagnostic counters
type DebugResponse struct {
	query.DebugInfo
	Updated *time.Time `json:"updated"`
}

// Endpoint describes one route of the API
type Endpoint struct {
	Path        string `json:"path"`
	Description string `json:"description"`
	Example     string `json:"example"`
}

// IndexResponse is returned by /
type IndexResponse struct {
	Title     string      `json:"title"`
	Readme    string      `json:"readme"`
	Endpoints []Endpoint  `json:"endpoints"`
	Status    IndexStatus `json:"status"`
}

// IndexStatus is the short status block of the index
type IndexStatus struct {
	Updated            *time.Time `json:"updated"`
	StationsWithTrains int        `json:"stations_with_trains"`
	Vehicles           int        `json:"vehicles"`
}

var endpoints = []Endpoint{
	{"/by-id/{id}", "Train arrivals for a station by canonical id, short code or platform id", "/by-id/A01"},
	{"/by-location?lat={lat}&lon={lon}&radius={km}", "Stations near a location, 0.5km radius by default", "/by-location?lat=38.8977&lon=-77.0063"},
	{"/by-route/{route}", "Stations served by a route", "/by-route/RD"},
	{"/routes", "Routes with live arrivals", "/routes"},
	{"/stations", "Every configured station and its current train count", "/stations"},
	{"/vehicles", "Train positions", "/vehicles"},
	{"/alerts", "Service alerts", "/alerts"},
	{"/debug", "Debug info about cached data", "/debug"},
	{"/ws", "WebSocket stream of all stations, pushed after every refresh", "ws://localhost:5000/ws"},
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := h.client.Snapshot()
	response := IndexResponse{
		Title:     "wmata-go",
		Readme:    "Real-time train data for the Washington Metro",
		Endpoints: endpoints,
		Status: IndexStatus{
			Updated:            snap.Updated(),
			StationsWithTrains: len(snap.Entries),
			Vehicles:           len(snap.Vehicles),
		},
	}
	h.writeJSON(w, response)
}

func (h *Handler) handleByID(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	station, updated, err := h.client.StationByID(id)
	if err != nil {
		if errors.Is(err, query.ErrNotFound) {
			h.logger.Warn("station not found", "id", id)
			h.writeErrorHint(w, "Station not found", notFoundHint, http.StatusNotFound)
			return
		}
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, StationResponse{StationResponse: station, Updated: updated})
}

func (h *Handler) handleByLocation(w http.ResponseWriter, r *http.Request) {
	latStr := r.URL.Query().Get("lat")
	lonStr := r.URL.Query().Get("lon")

	if latStr == "" || lonStr == "" {
		h.writeError(w, "Missing lat/lon parameter", http.StatusBadRequest)
		return
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		h.writeError(w, "Invalid lat parameter", http.StatusBadRequest)
		return
	}

	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		h.writeError(w, "Invalid lon parameter", http.StatusBadRequest)
		return
	}

	radius := DefaultRadiusKM
	if radiusStr := r.URL.Query().Get("radius"); radiusStr != "" {
		radius, err = strconv.ParseFloat(radiusStr, 64)
		if err != nil {
			h.writeError(w, "Invalid radius parameter", http.StatusBadRequest)
			return
		}
	}

	stations, updated, err := h.client.StationsByLocation(lat, lon, radius)
	if err != nil {
		if errors.Is(err, query.ErrInvalidParameter) {
			h.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if stations == nil {
		stations = []query.NearbyStation{}
	}

	h.writeJSON(w, Response{Data: stations, Updated: updated})
}

func (h *Handler) handleByRoute(w http.ResponseWriter, r *http.Request) {
	route := mux.Vars(r)["route"]

	result, updated, err := h.client.StationsByRoute(route)
	if err != nil {
		if errors.Is(err, query.ErrNotFound) {
			h.writeErrorHint(w, "Route not found", "Check /routes for routes with live arrivals", http.StatusNotFound)
			return
		}
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, RouteResponse{Route: result.Route, Data: result.Stations, Updated: updated})
}

func (h *Handler) handleRoutes(w http.ResponseWriter, r *http.Request) {
	routes, updated := h.client.Routes()
	h.writeJSON(w, RoutesResponse{Routes: routes, Updated: updated})
}

func (h *Handler) handleStations(w http.ResponseWriter, r *http.Request) {
	list, updated := h.client.Stations()
	h.writeJSON(w, StationsResponse{StationList: list, Updated: updated})
}

func (h *Handler) handleVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, updated := h.client.Vehicles()
	h.writeJSON(w, Response{Data: vehicles, Updated: updated})
}

func (h *Handler) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, updated := h.client.ServiceAlerts()
	h.writeJSON(w, Response{Data: alerts, Updated: updated})
}

func (h *Handler) handleDebug(w http.ResponseWriter, r *http.Request) {
	info, updated := h.client.Debug()
	h.writeJSON(w, DebugResponse{DebugInfo: info, Updated: updated})
}

func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		h.writeError(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (h *Handler) writeError(w http.ResponseWriter, message string, status int) {
	h.writeErrorHint(w, message, "", status)
}

func (h *Handler) writeErrorHint(w http.ResponseWriter, message, hint string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: message, Hint: hint})
}
