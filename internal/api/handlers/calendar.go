package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/tazhate/familycal/internal/api/middleware"
	"github.com/tazhate/familycal/internal/service"
	ws "github.com/tazhate/familycal/internal/websocket"
)

// CalendarFeed serves the family's resolved occurrences as text/calendar.
func CalendarFeed(svc *service.SeriesService, cal *service.CalendarService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from, to, ok := window(w, r, svc.Timezone())
		if !ok {
			return
		}

		data, err := cal.FeedICS(r.Context(), mux.Vars(r)["family"], from, to)
		if err != nil {
			middleware.WriteDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Write(data)
	}
}

// SyncFamily publishes every series of a family to CalDAV.
func SyncFamily(cal *service.CalendarService, hub *ws.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !cal.IsConfigured() {
			middleware.WriteError(w, http.StatusConflict, middleware.ErrConflict, "CalDAV is not configured")
			return
		}

		family := mux.Vars(r)["family"]
		res, err := cal.SyncFamily(r.Context(), family)
		if err != nil {
			middleware.WriteDomainError(w, err)
			return
		}
		hub.Publish(ws.NewMessage(ws.TypeSyncCompleted, ws.SyncPayload{
			FamilyID:  family,
			Published: res.Published,
			Errors:    res.Errors,
		}))
		writeJSON(w, http.StatusOK, map[string]any{
			"published": res.Published,
			"errors":    res.Errors,
		})
	}
}
