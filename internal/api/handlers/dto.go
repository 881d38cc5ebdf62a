// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tazhate/familycal/internal/api/middleware"
	"github.com/tazhate/familycal/internal/domain"
)

var validate = validator.New()

// EventRequest is the body of POST /api/series and POST /api/events.
type EventRequest struct {
	FamilyID    string                 `json:"familyId" validate:"required,max=64"`
	CreatedBy   string                 `json:"createdBy" validate:"max=64"`
	Title       string                 `json:"title" validate:"required,max=200"`
	Description string                 `json:"description" validate:"max=2000"`
	Location    string                 `json:"location" validate:"max=200"`
	Start       time.Time              `json:"start"`
	End         time.Time              `json:"end"`
	Rule        *domain.RecurrenceRule `json:"rule"`
	Members     []string               `json:"members" validate:"dive,required"`
	DriverID    string                 `json:"driverId" validate:"max=64"`
}

func (r *EventRequest) template() *domain.Event {
	return &domain.Event{
		FamilyID:    r.FamilyID,
		CreatedBy:   r.CreatedBy,
		Title:       r.Title,
		Description: r.Description,
		Location:    r.Location,
		Start:       r.Start,
		End:         r.End,
	}
}

// PatchRequest is the body of PATCH on a series or an occurrence. Absent
// fields are left unchanged. The assigned members are replaced only when
// "members" is present.
type PatchRequest struct {
	Title       *string                    `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string                    `json:"description" validate:"omitempty,max=2000"`
	Location    *string                    `json:"location" validate:"omitempty,max=200"`
	Start       *time.Time                 `json:"start"`
	End         *time.Time                 `json:"end"`
	Settings    *domain.AdditionalSettings `json:"additionalSettings"`
	Members     *[]string                  `json:"members" validate:"omitempty,dive,required"`
	DriverID    string                     `json:"driverId" validate:"max=64"`
}

func (r *PatchRequest) changes() domain.EventChanges {
	return domain.EventChanges{
		Title:       r.Title,
		Description: r.Description,
		Location:    r.Location,
		Start:       r.Start,
		End:         r.End,
		Settings:    r.Settings,
	}
}

func (r *PatchRequest) assignments() *domain.AssignmentSet {
	if r.Members == nil {
		return nil
	}
	return &domain.AssignmentSet{Members: *r.Members, DriverID: r.DriverID}
}

// DerivedResponse is an arrival or drive event in API responses.
type DerivedResponse struct {
	ID    string    `json:"id"`
	Kind  string    `json:"kind"`
	Title string    `json:"title"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// OccurrenceResponse represents a resolved occurrence in API responses.
type OccurrenceResponse struct {
	ID          string                    `json:"id"`
	Kind        string                    `json:"kind"`
	SeriesID    string                    `json:"seriesId,omitempty"`
	Date        domain.Date               `json:"date"`
	FamilyID    string                    `json:"familyId"`
	Title       string                    `json:"title"`
	Description string                    `json:"description,omitempty"`
	Location    string                    `json:"location,omitempty"`
	Start       time.Time                 `json:"start"`
	End         time.Time                 `json:"end"`
	Members     []string                  `json:"members"`
	DriverID    string                    `json:"driverId,omitempty"`
	Settings    domain.AdditionalSettings `json:"additionalSettings"`
	Derived     []DerivedResponse         `json:"derived"`
}

func toOccurrenceResponse(occ *domain.Occurrence) OccurrenceResponse {
	resp := OccurrenceResponse{
		ID:          occ.ID.String(),
		Kind:        string(occ.Kind),
		Date:        occ.Date(),
		FamilyID:    occ.FamilyID,
		Title:       occ.Title,
		Description: occ.Description,
		Location:    occ.Location,
		Start:       occ.Start,
		End:         occ.End,
		Members:     occ.MemberIDs(),
		DriverID:    occ.DriverID(),
		Settings:    occ.Settings,
		Derived:     []DerivedResponse{},
	}
	if occ.ID.HasDate() {
		resp.SeriesID = occ.ID.ParentID
	}
	for _, d := range occ.Derived {
		resp.Derived = append(resp.Derived, DerivedResponse{
			ID:    d.ID,
			Kind:  string(d.DerivedKind),
			Title: d.Title,
			Start: d.Start,
			End:   d.End,
		})
	}
	return resp
}

// SeriesResponse represents a recurring parent or one-off event.
type SeriesResponse struct {
	ID          string                 `json:"id"`
	FamilyID    string                 `json:"familyId"`
	Title       string                 `json:"title"`
	Description string                 `json:"description,omitempty"`
	Location    string                 `json:"location,omitempty"`
	Start       time.Time              `json:"start"`
	End         time.Time              `json:"end"`
	Rule        *domain.RecurrenceRule `json:"rule,omitempty"`
}

func toSeriesResponse(e *domain.Event) SeriesResponse {
	return SeriesResponse{
		ID:          e.ID,
		FamilyID:    e.FamilyID,
		Title:       e.Title,
		Description: e.Description,
		Location:    e.Location,
		Start:       e.Start,
		End:         e.End,
		Rule:        e.Rule,
	}
}

// decodeAndValidate reads a JSON body into dst and runs the struct
// validations. It writes the error response itself and returns false on
// failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, de.Msg)
			return false
		}
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+": "+fe.Tag())
			}
			middleware.WriteErrorWithDetails(w, http.StatusBadRequest, middleware.ErrValidation,
				"Invalid fields: "+strings.Join(fields, ", "), fields)
			return false
		}
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
