package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/tazhate/familycal/internal/api/middleware"
	"github.com/tazhate/familycal/internal/log"
	"github.com/tazhate/familycal/internal/service"
	ws "github.com/tazhate/familycal/internal/websocket"
)

// ListSeries returns the recurring series of a family.
func ListSeries(svc *service.SeriesService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parents, err := svc.ListSeries(r.Context(), mux.Vars(r)["family"])
		if err != nil {
			middleware.WriteDomainError(w, err)
			return
		}

		resp := make([]SeriesResponse, 0, len(parents))
		for _, p := range parents {
			resp = append(resp, toSeriesResponse(p))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// CreateSeries creates a recurring series.
func CreateSeries(svc *service.SeriesService, cal *service.CalendarService, hub *ws.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EventRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		if req.Rule == nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "rule is required")
			return
		}

		parent, err := svc.CreateSeries(r.Context(), req.template(), req.Rule, req.Members, req.DriverID)
		if err != nil {
			middleware.WriteDomainError(w, err)
			return
		}
		republish(r.Context(), cal, parent.ID)
		notify(hub, ws.TypeSeriesChanged, parent.ID, "", "created")

		writeJSON(w, http.StatusCreated, toSeriesResponse(parent))
	}
}

// CreateEvent creates a one-off event.
func CreateEvent(svc *service.SeriesService, hub *ws.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EventRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		if req.Rule != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "use /api/series for recurring events")
			return
		}

		e, err := svc.CreateSingle(r.Context(), req.template(), req.Members, req.DriverID)
		if err != nil {
			middleware.WriteDomainError(w, err)
			return
		}
		notify(hub, ws.TypeSeriesChanged, e.ID, "", "created")

		writeJSON(w, http.StatusCreated, toSeriesResponse(e))
	}
}

// UpdateSeries edits every occurrence of a series that has not been
// customized individually.
func UpdateSeries(svc *service.SeriesService, cal *service.CalendarService, hub *ws.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PatchRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		id := mux.Vars(r)["id"]
		if err := svc.EditSeries(r.Context(), id, req.changes(), req.assignments()); err != nil {
			middleware.WriteDomainError(w, err)
			return
		}
		republish(r.Context(), cal, id)
		notify(hub, ws.TypeSeriesChanged, id, "", "updated")

		w.WriteHeader(http.StatusNoContent)
	}
}

// DeleteSeries removes a series with all its exceptions and derived events.
func DeleteSeries(svc *service.SeriesService, cal *service.CalendarService, hub *ws.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := svc.DeleteSeries(r.Context(), id); err != nil {
			middleware.WriteDomainError(w, err)
			return
		}

		if cal != nil {
			if err := cal.UnpublishSeries(r.Context(), id); err != nil {
				log.Error("unpublish series", err, "series", id)
			}
		}
		notify(hub, ws.TypeSeriesChanged, id, "", "deleted")

		w.WriteHeader(http.StatusNoContent)
	}
}

// republish mirrors a changed series to CalDAV. The local change already
// succeeded, so a failure is only logged.
func republish(ctx context.Context, cal *service.CalendarService, id string) {
	if cal == nil || !cal.IsConfigured() {
		return
	}
	if err := cal.PublishSeries(ctx, id); err != nil {
		log.Error("publish series", err, "series", id)
	}
}

func notify(hub *ws.Hub, t ws.MessageType, seriesID, date, action string) {
	hub.Publish(ws.NewMessage(t, ws.ChangePayload{SeriesID: seriesID, Date: date, Action: action}))
}
