// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/tazhate/familycal/internal/api/handlers"
	"github.com/tazhate/familycal/internal/api/middleware"
	"github.com/tazhate/familycal/internal/service"
	"github.com/tazhate/familycal/internal/websocket"
)

// NewRouter creates and configures the HTTP router with all API routes.
// hub may be nil; change notifications are then not sent.
func NewRouter(db handlers.Pinger, series *service.SeriesService, cal *service.CalendarService, hub *websocket.Hub) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.Logging)
	r.Use(middleware.ErrorRecovery)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", handlers.HealthCheck(db)).Methods(http.MethodGet)

	// Family views
	api.HandleFunc("/families/{family}/occurrences", handlers.ListOccurrences(series)).Methods(http.MethodGet)
	api.HandleFunc("/families/{family}/series", handlers.ListSeries(series)).Methods(http.MethodGet)
	api.HandleFunc("/families/{family}/calendar.ics", handlers.CalendarFeed(series, cal)).Methods(http.MethodGet)
	api.HandleFunc("/families/{family}/sync", handlers.SyncFamily(cal, hub)).Methods(http.MethodPost)

	// Series
	api.HandleFunc("/series", handlers.CreateSeries(series, cal, hub)).Methods(http.MethodPost)
	api.HandleFunc("/series/{id}", handlers.UpdateSeries(series, cal, hub)).Methods(http.MethodPatch)
	api.HandleFunc("/series/{id}", handlers.DeleteSeries(series, cal, hub)).Methods(http.MethodDelete)

	// One-off events
	api.HandleFunc("/events", handlers.CreateEvent(series, hub)).Methods(http.MethodPost)

	if hub != nil {
		api.HandleFunc("/ws", handlers.Changes(hub)).Methods(http.MethodGet)
	}

	// Occurrences by composite id
	api.HandleFunc("/occurrences/{id}", handlers.GetOccurrence(series)).Methods(http.MethodGet)
	api.HandleFunc("/occurrences/{id}", handlers.UpdateOccurrence(series, cal, hub)).Methods(http.MethodPatch)
	api.HandleFunc("/occurrences/{id}", handlers.DeleteOccurrence(series, cal, hub)).Methods(http.MethodDelete)

	return r
}
