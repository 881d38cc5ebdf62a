package caldav

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
)

const (
	// Apple iCloud CalDAV endpoint
	DefaultiCloudURL = "https://caldav.icloud.com"
)

// Client publishes series to a CalDAV calendar
type Client struct {
	baseURL      string
	username     string
	password     string
	calendarPath string

	mu     sync.Mutex
	client *caldav.Client
}

// NewClient creates a new CalDAV client
func NewClient(baseURL, username, password string) *Client {
	if baseURL == "" {
		baseURL = DefaultiCloudURL
	}
	return &Client{
		baseURL:  baseURL,
		username: username,
		password: password,
	}
}

// IsConfigured returns true if the client has credentials and a calendar
func (c *Client) IsConfigured() bool {
	return c.username != "" && c.password != "" && c.calendarPath != ""
}

// SetCalendarPath sets the calendar collection series are written to
func (c *Client) SetCalendarPath(path string) {
	c.calendarPath = path
}

// connect establishes connection to CalDAV server
func (c *Client) connect() (*caldav.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	httpClient := &http.Client{
		Transport: &basicAuthTransport{
			username: c.username,
			password: c.password,
		},
		Timeout: 30 * time.Second,
	}

	client, err := caldav.NewClient(httpClient, c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to CalDAV: %w", err)
	}

	c.client = client
	return client, nil
}

// basicAuthTransport adds Basic Auth to HTTP requests
type basicAuthTransport struct {
	username string
	password string
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.username, t.password)
	return http.DefaultTransport.RoundTrip(req)
}

// DiscoverCalendars returns all calendars for the user
func (c *Client) DiscoverCalendars(ctx context.Context) ([]Calendar, error) {
	client, err := c.connect()
	if err != nil {
		return nil, err
	}

	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("find principal: %w", err)
	}

	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("find home set: %w", err)
	}

	cals, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("find calendars: %w", err)
	}

	var result []Calendar
	for _, cal := range cals {
		result = append(result, Calendar{
			Path:        cal.Path,
			DisplayName: cal.Name,
		})
	}

	return result, nil
}

// PutCalendar writes a calendar object under uid. PUT replaces, so the same
// call creates and updates.
func (c *Client) PutCalendar(ctx context.Context, uid string, cal *ical.Calendar) error {
	client, err := c.connect()
	if err != nil {
		return err
	}
	if c.calendarPath == "" {
		return fmt.Errorf("calendar path not specified")
	}

	if _, err := client.PutCalendarObject(ctx, c.objectPath(uid), cal); err != nil {
		return fmt.Errorf("put calendar object: %w", err)
	}
	return nil
}

// DeleteCalendar removes the calendar object stored under uid
func (c *Client) DeleteCalendar(ctx context.Context, uid string) error {
	client, err := c.connect()
	if err != nil {
		return err
	}
	if c.calendarPath == "" {
		return fmt.Errorf("calendar path not specified")
	}

	if err := client.RemoveAll(ctx, c.objectPath(uid)); err != nil {
		return fmt.Errorf("delete calendar object: %w", err)
	}
	return nil
}

// GetObjects returns the objects with a VEVENT overlapping from..to
func (c *Client) GetObjects(ctx context.Context, from, to time.Time) ([]Object, error) {
	client, err := c.connect()
	if err != nil {
		return nil, err
	}
	if c.calendarPath == "" {
		return nil, fmt.Errorf("calendar path not specified")
	}

	query := &caldav.CalendarQuery{
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{
				{
					Name:  "VEVENT",
					Start: from,
					End:   to,
				},
			},
		},
	}

	objects, err := client.QueryCalendar(ctx, c.calendarPath, query)
	if err != nil {
		return nil, fmt.Errorf("query calendar: %w", err)
	}

	var result []Object
	for _, obj := range objects {
		o, err := parseCalendarObject(&obj)
		if err != nil {
			continue // Skip invalid objects
		}
		result = append(result, o)
	}
	return result, nil
}

func (c *Client) objectPath(uid string) string {
	path := c.calendarPath
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	return path + uid + ".ics"
}

// parseCalendarObject reads the master VEVENT and counts the overrides
func parseCalendarObject(obj *caldav.CalendarObject) (Object, error) {
	o := Object{Path: obj.Path, ETag: obj.ETag}

	if obj.Data == nil {
		return o, fmt.Errorf("no data in calendar object")
	}

	for _, comp := range obj.Data.Children {
		if comp.Name != ical.CompEvent {
			continue
		}
		if comp.Props.Get(ical.PropRecurrenceID) != nil {
			o.Overrides++
			continue
		}

		if prop := comp.Props.Get(ical.PropUID); prop != nil {
			o.UID = prop.Value
		}
		if prop := comp.Props.Get(ical.PropSummary); prop != nil {
			o.Summary = prop.Value
		}
		if prop := comp.Props.Get(ical.PropRecurrenceRule); prop != nil {
			o.RRule = prop.Value
		}
		if prop := comp.Props.Get(ical.PropDateTimeStart); prop != nil {
			if t, err := prop.DateTime(time.UTC); err == nil {
				o.Start = t
			}
		}
		o.ExDates = len(comp.Props.Values(ical.PropExceptionDates))
	}

	if o.UID == "" {
		return o, fmt.Errorf("calendar object has no master event")
	}
	return o, nil
}

// SerializeCalendar converts calendar to string (for debugging)
func SerializeCalendar(cal *ical.Calendar) string {
	var buf bytes.Buffer
	enc := ical.NewEncoder(&buf)
	_ = enc.Encode(cal)
	return buf.String()
}
