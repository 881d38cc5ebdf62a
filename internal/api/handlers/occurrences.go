package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/tazhate/familycal/internal/api/middleware"
	"github.com/tazhate/familycal/internal/domain"
	"github.com/tazhate/familycal/internal/service"
	ws "github.com/tazhate/familycal/internal/websocket"
)

// maxWindowDays caps the range a single listing request may resolve.
const maxWindowDays = 366

// window reads the inclusive from/to dates of a listing request. Missing
// values default to the current week.
func window(w http.ResponseWriter, r *http.Request, loc *time.Location) (time.Time, time.Time, bool) {
	today := domain.DateOf(time.Now().In(loc))
	from, to := domain.WeekStart(today), domain.WeekStart(today).AddDays(6)

	q := r.URL.Query()
	if s := q.Get("from"); s != "" {
		d, err := domain.ParseDate(s)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "from must be YYYY-MM-DD")
			return time.Time{}, time.Time{}, false
		}
		from = d
	}
	if s := q.Get("to"); s != "" {
		d, err := domain.ParseDate(s)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "to must be YYYY-MM-DD")
			return time.Time{}, time.Time{}, false
		}
		to = d
	}

	if from.AddDays(maxWindowDays).Before(to) {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "window is longer than a year")
		return time.Time{}, time.Time{}, false
	}
	return from.In(loc), to.In(loc), true
}

// ListOccurrences returns the resolved occurrences of a family.
func ListOccurrences(svc *service.SeriesService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from, to, ok := window(w, r, svc.Timezone())
		if !ok {
			return
		}

		occs, err := svc.ResolveOccurrences(r.Context(), mux.Vars(r)["family"], from, to)
		if err != nil {
			middleware.WriteDomainError(w, err)
			return
		}

		resp := make([]OccurrenceResponse, 0, len(occs))
		for _, occ := range occs {
			resp = append(resp, toOccurrenceResponse(occ))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func instanceID(w http.ResponseWriter, r *http.Request) (domain.InstanceID, bool) {
	id, ok := domain.ParseInstanceID(mux.Vars(r)["id"])
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "Invalid occurrence id")
	}
	return id, ok
}

// GetOccurrence returns one occurrence by composite id.
func GetOccurrence(svc *service.SeriesService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := instanceID(w, r)
		if !ok {
			return
		}

		occ, err := svc.GetOccurrence(r.Context(), id)
		if err != nil {
			middleware.WriteDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toOccurrenceResponse(occ))
	}
}

// UpdateOccurrence edits one occurrence. A bare id edits the event it names.
func UpdateOccurrence(svc *service.SeriesService, cal *service.CalendarService, hub *ws.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := instanceID(w, r)
		if !ok {
			return
		}
		var req PatchRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		var err error
		if id.HasDate() {
			err = svc.EditInstance(r.Context(), id.ParentID, id.Date, req.changes(), req.assignments())
		} else {
			err = svc.EditSeries(r.Context(), id.ParentID, req.changes(), req.assignments())
		}
		if err != nil {
			middleware.WriteDomainError(w, err)
			return
		}
		if id.HasDate() {
			republish(r.Context(), cal, id.ParentID)
			notify(hub, ws.TypeOccurrenceChanged, id.ParentID, id.Date.String(), "updated")
		} else {
			notify(hub, ws.TypeSeriesChanged, id.ParentID, "", "updated")
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// DeleteOccurrence hides one occurrence. A bare id deletes the event it names.
func DeleteOccurrence(svc *service.SeriesService, cal *service.CalendarService, hub *ws.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := instanceID(w, r)
		if !ok {
			return
		}

		var err error
		if id.HasDate() {
			err = svc.DeleteInstance(r.Context(), id.ParentID, id.Date)
		} else {
			err = svc.DeleteSeries(r.Context(), id.ParentID)
		}
		if err != nil {
			middleware.WriteDomainError(w, err)
			return
		}
		if id.HasDate() {
			republish(r.Context(), cal, id.ParentID)
			notify(hub, ws.TypeOccurrenceChanged, id.ParentID, id.Date.String(), "deleted")
		} else {
			notify(hub, ws.TypeSeriesChanged, id.ParentID, "", "deleted")
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
