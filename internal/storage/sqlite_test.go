package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tazhate/familycal/internal/domain"
	"github.com/tazhate/familycal/internal/service"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	s, err := New(filepath.Join(t.TempDir(), "test.db"), loc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newParent(t *testing.T, s *Storage) *domain.Event {
	t.Helper()
	start := time.Date(2024, time.January, 1, 9, 0, 0, 0, s.loc)
	arrival := domain.ClockTime{Hour: 8, Minute: 45}
	e := &domain.Event{
		ID:                uuid.NewString(),
		FamilyID:          "family-1",
		CreatedBy:         "mom",
		IsRecurringParent: true,
		Rule: &domain.RecurrenceRule{
			Frequency: domain.FrequencyWeekly,
			Interval:  1,
			Days:      []time.Weekday{time.Monday},
			Settings:  domain.AdditionalSettings{ArrivalTime: &arrival, DriveMinutes: 20},
		},
		Title: "Practice",
		Start: start,
		End:   start.Add(time.Hour),
	}
	if err := s.CreateEvent(context.Background(), e); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	return e
}

func TestEventRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	parent := newParent(t, s)

	got, err := s.GetEvent(ctx, parent.ID)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if got == nil {
		t.Fatal("GetEvent returned nil")
	}
	if !got.Start.Equal(parent.Start) || got.Start.Location() != s.loc {
		t.Fatalf("start = %v, want %v in %s", got.Start, parent.Start, s.loc)
	}
	if got.Rule == nil || got.Rule.Frequency != domain.FrequencyWeekly || !got.Rule.HasDay(time.Monday) {
		t.Fatalf("rule not restored: %+v", got.Rule)
	}
	if got.Rule.Settings.DriveMinutes != 20 || got.Rule.Settings.ArrivalTime == nil {
		t.Fatalf("settings not restored: %+v", got.Rule.Settings)
	}

	missing, err := s.GetEvent(ctx, uuid.NewString())
	if err != nil || missing != nil {
		t.Fatalf("GetEvent(missing) = %v, %v; want nil, nil", missing, err)
	}
}

func TestInsertExceptionIsUniquePerDate(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	parent := newParent(t, s)
	date := domain.Date{Year: 2024, Month: time.January, Day: 8}

	mk := func(title string) *domain.Event {
		start := date.At(parent.Start)
		return &domain.Event{
			ID:            uuid.NewString(),
			FamilyID:      parent.FamilyID,
			ParentEventID: parent.ID,
			InstanceDate:  date,
			Title:         title,
			Start:         start,
			End:           start.Add(time.Hour),
		}
	}

	created, err := s.InsertException(ctx, mk("First"))
	if err != nil || !created {
		t.Fatalf("first insert = %v, %v; want true, nil", created, err)
	}
	created, err = s.InsertException(ctx, mk("Second"))
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if created {
		t.Fatal("second exception for the same date was created")
	}

	ex, err := s.GetException(ctx, parent.ID, date)
	if err != nil || ex == nil {
		t.Fatalf("GetException = %v, %v", ex, err)
	}
	if ex.Title != "First" || !ex.IsException || ex.InstanceDate != date {
		t.Fatalf("unexpected exception %+v", ex)
	}

	list, err := s.ListExceptions(ctx, parent.ID, date.AddDays(-1), date.AddDays(1))
	if err != nil || len(list) != 1 {
		t.Fatalf("ListExceptions = %d, %v; want 1", len(list), err)
	}
}

func TestExceptionSettingsOverrideRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	parent := newParent(t, s)

	tests := []struct {
		name     string
		day      int
		settings *domain.AdditionalSettings
	}{
		{"inherit", 8, nil},
		{"cleared", 15, &domain.AdditionalSettings{}},
		{"override", 22, &domain.AdditionalSettings{DriveMinutes: 40}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			date := domain.Date{Year: 2024, Month: time.January, Day: tt.day}
			start := date.At(parent.Start)
			ex := &domain.Event{
				ID:            uuid.NewString(),
				FamilyID:      parent.FamilyID,
				ParentEventID: parent.ID,
				InstanceDate:  date,
				Settings:      tt.settings,
				Title:         "Practice",
				Start:         start,
				End:           start.Add(time.Hour),
			}
			if _, err := s.InsertException(ctx, ex); err != nil {
				t.Fatalf("InsertException: %v", err)
			}

			got, err := s.GetException(ctx, parent.ID, date)
			if err != nil || got == nil {
				t.Fatalf("GetException = %v, %v", got, err)
			}
			if (got.Settings == nil) != (tt.settings == nil) {
				t.Fatalf("settings = %+v, want %+v", got.Settings, tt.settings)
			}
			if tt.settings != nil && !got.Settings.Equal(*tt.settings) {
				t.Fatalf("settings = %+v, want %+v", *got.Settings, *tt.settings)
			}
		})
	}
}

func TestDerivedEventsUniquePerKind(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	parent := newParent(t, s)
	date := domain.Date{Year: 2024, Month: time.January, Day: 15}

	mk := func(kind domain.DerivedKind) *domain.Event {
		start := date.At(parent.Start)
		return &domain.Event{
			ID:            uuid.NewString(),
			FamilyID:      parent.FamilyID,
			ParentEventID: parent.ID,
			InstanceDate:  date,
			DerivedKind:   kind,
			Title:         string(kind),
			Start:         start.Add(-30 * time.Minute),
			End:           start,
		}
	}

	for i, tc := range []struct {
		kind domain.DerivedKind
		want bool
	}{
		{domain.DerivedArrival, true},
		{domain.DerivedDrive, true},
		{domain.DerivedArrival, false},
	} {
		created, err := s.InsertDerivedEvent(ctx, mk(tc.kind))
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		if created != tc.want {
			t.Fatalf("insert %d (%s) created = %v, want %v", i, tc.kind, created, tc.want)
		}
	}

	if err := s.SetDerivedDeleted(ctx, parent.ID, date, true); err != nil {
		t.Fatalf("SetDerivedDeleted: %v", err)
	}
	list, err := s.ListDerivedEvents(ctx, parent.ID, date)
	if err != nil || len(list) != 2 {
		t.Fatalf("ListDerivedEvents = %d, %v; want 2", len(list), err)
	}
	for _, e := range list {
		if !e.IsDeleted {
			t.Fatalf("derived %s not flagged deleted", e.DerivedKind)
		}
	}

	if err := s.DeleteDerivedEvents(ctx, parent.ID, date); err != nil {
		t.Fatalf("DeleteDerivedEvents: %v", err)
	}
	list, _ = s.ListDerivedEvents(ctx, parent.ID, date)
	if len(list) != 0 {
		t.Fatalf("derived events left after delete: %d", len(list))
	}
}

func TestInTxRollsBack(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	parent := newParent(t, s)
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx service.Store) error {
		if err := tx.ReplaceAssignments(ctx, parent.ID, domain.BuildAssignments(parent.ID, []string{"kid"}, "dad")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx error = %v, want boom", err)
	}

	got, err := s.ListAssignments(ctx, parent.ID)
	if err != nil {
		t.Fatalf("ListAssignments: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("assignments survived rollback: %+v", got)
	}
}

func TestAssignmentsCascadeOnDelete(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	parent := newParent(t, s)

	if err := s.ReplaceAssignments(ctx, parent.ID, domain.BuildAssignments(parent.ID, []string{"kid", "mom"}, "dad")); err != nil {
		t.Fatalf("ReplaceAssignments: %v", err)
	}
	got, _ := s.ListAssignments(ctx, parent.ID)
	if len(got) != 3 || domain.DriverOf(got) != "dad" {
		t.Fatalf("unexpected assignments %+v", got)
	}

	if err := s.DeleteEvent(ctx, parent.ID); err != nil {
		t.Fatalf("DeleteEvent: %v", err)
	}
	got, _ = s.ListAssignments(ctx, parent.ID)
	if len(got) != 0 {
		t.Fatalf("assignments left after delete: %+v", got)
	}
}

func TestListSingleEventsExcludesSeriesRecords(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	parent := newParent(t, s)

	start := time.Date(2024, time.January, 10, 15, 0, 0, 0, s.loc)
	single := &domain.Event{
		ID:       uuid.NewString(),
		FamilyID: parent.FamilyID,
		Title:    "Dentist",
		Start:    start,
		End:      start.Add(30 * time.Minute),
	}
	if err := s.CreateEvent(ctx, single); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	got, err := s.ListSingleEvents(ctx, parent.FamilyID,
		time.Date(2024, time.January, 1, 0, 0, 0, 0, s.loc),
		time.Date(2024, time.February, 1, 0, 0, 0, 0, s.loc))
	if err != nil {
		t.Fatalf("ListSingleEvents: %v", err)
	}
	if len(got) != 1 || got[0].ID != single.ID {
		t.Fatalf("ListSingleEvents = %+v, want only the dentist", got)
	}
}

func TestReopenRerunsMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	first, err := New(path, time.UTC)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	parent := newParent(t, first)
	first.Close()

	second, err := New(path, time.UTC)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	got, err := second.GetEvent(context.Background(), parent.ID)
	if err != nil || got == nil {
		t.Fatalf("GetEvent after reopen = %v, %v", got, err)
	}
}
