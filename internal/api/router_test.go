package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tazhate/familycal/internal/api"
	"github.com/tazhate/familycal/internal/api/handlers"
	"github.com/tazhate/familycal/internal/api/middleware"
	"github.com/tazhate/familycal/internal/service"
	"github.com/tazhate/familycal/internal/storage"
	"github.com/tazhate/familycal/internal/websocket"

	gws "github.com/gorilla/websocket"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv, _ := newServerWithHub(t)
	return srv
}

func newServerWithHub(t *testing.T) (*httptest.Server, *websocket.Hub) {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "api.db"), time.UTC)
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	series := service.NewSeriesService(store, time.UTC, 1000)
	cal := service.NewCalendarService(store, series, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := websocket.NewHub()
	go hub.Run(ctx)

	srv := httptest.NewServer(api.NewRouter(store, series, cal, hub))
	t.Cleanup(srv.Close)
	return srv, hub
}

func do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		var e middleware.ErrorResponse
		json.NewDecoder(resp.Body).Decode(&e)
		t.Fatalf("%s %s = %d (%+v), want %d", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, e, want)
	}
}

func createPractice(t *testing.T, srv *httptest.Server) handlers.SeriesResponse {
	t.Helper()
	resp := do(t, http.MethodPost, srv.URL+"/api/series", map[string]any{
		"familyId": "fam",
		"title":    "Practice",
		"start":    "2024-01-01T17:00:00Z",
		"end":      "2024-01-01T18:30:00Z",
		"members":  []string{"kid"},
		"rule": map[string]any{
			"type":     "weekly",
			"days":     []string{"monday"},
			"endCount": 10,
		},
	})
	expectStatus(t, resp, http.StatusCreated)

	var s handlers.SeriesResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		t.Fatalf("decode series: %v", err)
	}
	return s
}

func listOccurrences(t *testing.T, srv *httptest.Server) []handlers.OccurrenceResponse {
	t.Helper()
	resp := do(t, http.MethodGet, srv.URL+"/api/families/fam/occurrences?from=2024-01-01&to=2024-03-31", nil)
	expectStatus(t, resp, http.StatusOK)

	var occs []handlers.OccurrenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&occs); err != nil {
		t.Fatalf("decode occurrences: %v", err)
	}
	return occs
}

func TestHealth(t *testing.T) {
	srv := newServer(t)
	resp := do(t, http.MethodGet, srv.URL+"/api/health", nil)
	expectStatus(t, resp, http.StatusOK)
}

func TestSeriesLifecycle(t *testing.T) {
	srv := newServer(t)
	series := createPractice(t, srv)

	occs := listOccurrences(t, srv)
	if len(occs) != 10 {
		t.Fatalf("got %d occurrences, want 10", len(occs))
	}
	second := occs[1]
	if second.ID != series.ID+"-2024-01-08" || second.SeriesID != series.ID || second.Kind != "virtual" {
		t.Fatalf("second occurrence = %+v", second)
	}

	resp := do(t, http.MethodPatch, srv.URL+"/api/occurrences/"+second.ID, map[string]any{"title": "Final"})
	expectStatus(t, resp, http.StatusNoContent)

	resp = do(t, http.MethodGet, srv.URL+"/api/occurrences/"+second.ID, nil)
	expectStatus(t, resp, http.StatusOK)
	var got handlers.OccurrenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode occurrence: %v", err)
	}
	if got.Title != "Final" || got.Kind != "exception" {
		t.Fatalf("edited occurrence = %+v", got)
	}

	third := occs[2]
	resp = do(t, http.MethodDelete, srv.URL+"/api/occurrences/"+third.ID, nil)
	expectStatus(t, resp, http.StatusNoContent)
	resp = do(t, http.MethodGet, srv.URL+"/api/occurrences/"+third.ID, nil)
	expectStatus(t, resp, http.StatusNotFound)

	if occs := listOccurrences(t, srv); len(occs) != 9 {
		t.Fatalf("got %d occurrences after delete, want 9", len(occs))
	}

	resp = do(t, http.MethodPatch, srv.URL+"/api/series/"+series.ID, map[string]any{"location": "Pool"})
	expectStatus(t, resp, http.StatusNoContent)
	for _, occ := range listOccurrences(t, srv) {
		if occ.Location != "Pool" && occ.ID != second.ID {
			t.Fatalf("occurrence %s location = %q, want Pool", occ.ID, occ.Location)
		}
	}

	resp = do(t, http.MethodDelete, srv.URL+"/api/series/"+series.ID, nil)
	expectStatus(t, resp, http.StatusNoContent)
	if occs := listOccurrences(t, srv); len(occs) != 0 {
		t.Fatalf("got %d occurrences after series delete, want 0", len(occs))
	}
}

func TestValidationErrors(t *testing.T) {
	srv := newServer(t)
	series := createPractice(t, srv)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"malformed id", http.MethodGet, "/api/occurrences/not-an-id", nil, http.StatusBadRequest},
		{"unknown series", http.MethodPatch, "/api/series/3f2b8c1e-9a4d-4e6f-8b7a-1c2d3e4f5a6b", map[string]any{"title": "x"}, http.StatusNotFound},
		{"date off the rule", http.MethodDelete, "/api/occurrences/" + series.ID + "-2024-01-09", nil, http.StatusBadRequest},
		{"missing title", http.MethodPost, "/api/series", map[string]any{
			"familyId": "fam", "start": "2024-01-01T17:00:00Z", "end": "2024-01-01T18:00:00Z",
			"rule": map[string]any{"type": "daily"},
		}, http.StatusBadRequest},
		{"zero interval", http.MethodPost, "/api/series", map[string]any{
			"familyId": "fam", "title": "x", "start": "2024-01-01T17:00:00Z", "end": "2024-01-01T18:00:00Z",
			"rule": map[string]any{"type": "daily", "interval": 0},
		}, http.StatusBadRequest},
		{"unknown weekday", http.MethodPost, "/api/series", map[string]any{
			"familyId": "fam", "title": "x", "start": "2024-01-01T17:00:00Z", "end": "2024-01-01T18:00:00Z",
			"rule": map[string]any{"type": "weekly", "days": []string{"funday"}},
		}, http.StatusBadRequest},
		{"bad window", http.MethodGet, "/api/families/fam/occurrences?from=2024-13-01", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, tt.method, srv.URL+tt.path, tt.body)
			expectStatus(t, resp, tt.want)
		})
	}
}

func TestCalendarFeed(t *testing.T) {
	srv := newServer(t)
	createPractice(t, srv)

	resp := do(t, http.MethodGet, srv.URL+"/api/families/fam/calendar.ics?from=2024-01-01&to=2024-01-31", nil)
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Fatalf("Content-Type = %q", ct)
	}

	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if n := strings.Count(buf.String(), "BEGIN:VEVENT"); n != 5 {
		t.Fatalf("feed has %d events, want the 5 January Mondays", n)
	}
}

func TestSyncWithoutCalDAV(t *testing.T) {
	srv := newServer(t)
	resp := do(t, http.MethodPost, srv.URL+"/api/families/fam/sync", nil)
	expectStatus(t, resp, http.StatusConflict)
}

func TestChangeNotifications(t *testing.T) {
	srv, hub := newServerWithHub(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws?family=fam"
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	series := createPractice(t, srv)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type    string                  `json:"type"`
		Payload websocket.ChangePayload `json:"payload"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read notification: %v", err)
	}
	if msg.Type != string(websocket.TypeSeriesChanged) || msg.Payload.SeriesID != series.ID || msg.Payload.Action != "created" {
		t.Fatalf("notification = %+v", msg)
	}

	resp := do(t, http.MethodDelete, srv.URL+"/api/occurrences/"+series.ID+"-2024-01-08", nil)
	expectStatus(t, resp, http.StatusNoContent)

	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read notification: %v", err)
	}
	if msg.Type != string(websocket.TypeOccurrenceChanged) || msg.Payload.Date != "2024-01-08" || msg.Payload.Action != "deleted" {
		t.Fatalf("notification = %+v", msg)
	}
}
