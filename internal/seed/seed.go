// Package seed loads YAML fixtures of family series and creates them
// through the series service.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tazhate/familycal/internal/domain"
	"gopkg.in/yaml.v3"
)

const startLayout = "2006-01-02 15:04"

// File is the top-level fixture document.
type File struct {
	Family string  `yaml:"family"`
	Series []Entry `yaml:"series"`
	Events []Entry `yaml:"events"`
}

// Entry describes one series (with rule) or one-off event (without).
type Entry struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Location    string `yaml:"location"`
	CreatedBy   string `yaml:"created_by"`

	// Start is local wall time "YYYY-MM-DD HH:MM" in the service timezone.
	Start    string         `yaml:"start"`
	Duration time.Duration  `yaml:"duration"`
	Members  []string       `yaml:"members"`
	Driver   string         `yaml:"driver"`
	Rule     map[string]any `yaml:"rule"`
}

type Creator interface {
	CreateSeries(ctx context.Context, template *domain.Event, rule *domain.RecurrenceRule, members []string, driverID string) (*domain.Event, error)
	CreateSingle(ctx context.Context, template *domain.Event, members []string, driverID string) (*domain.Event, error)
}

// Load reads and parses a fixture file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	if f.Family == "" {
		return nil, fmt.Errorf("parse fixtures: family is required")
	}
	return &f, nil
}

// Apply creates every entry of f. It stops at the first failure and reports
// how many entries were created before it.
func Apply(ctx context.Context, svc Creator, f *File, loc *time.Location) (int, error) {
	created := 0
	for i, e := range f.Series {
		tmpl, err := e.template(f.Family, loc)
		if err != nil {
			return created, fmt.Errorf("series %d (%s): %w", i, e.Title, err)
		}
		rule, err := e.rule()
		if err != nil {
			return created, fmt.Errorf("series %d (%s): %w", i, e.Title, err)
		}
		if rule == nil {
			return created, fmt.Errorf("series %d (%s): rule is required", i, e.Title)
		}
		if _, err := svc.CreateSeries(ctx, tmpl, rule, e.Members, e.Driver); err != nil {
			return created, fmt.Errorf("series %d (%s): %w", i, e.Title, err)
		}
		created++
	}

	for i, e := range f.Events {
		tmpl, err := e.template(f.Family, loc)
		if err != nil {
			return created, fmt.Errorf("event %d (%s): %w", i, e.Title, err)
		}
		if _, err := svc.CreateSingle(ctx, tmpl, e.Members, e.Driver); err != nil {
			return created, fmt.Errorf("event %d (%s): %w", i, e.Title, err)
		}
		created++
	}
	return created, nil
}

func (e Entry) template(family string, loc *time.Location) (*domain.Event, error) {
	start, err := time.ParseInLocation(startLayout, e.Start, loc)
	if err != nil {
		return nil, fmt.Errorf("start must be %q: %w", startLayout, err)
	}
	if e.Duration <= 0 {
		return nil, fmt.Errorf("duration must be positive")
	}
	return &domain.Event{
		FamilyID:    family,
		CreatedBy:   e.CreatedBy,
		Title:       e.Title,
		Description: e.Description,
		Location:    e.Location,
		Start:       start,
		End:         start.Add(e.Duration),
	}, nil
}

// rule converts the YAML mapping through the JSON rule document so fixtures
// accept exactly what the API accepts.
func (e Entry) rule() (*domain.RecurrenceRule, error) {
	if e.Rule == nil {
		return nil, nil
	}
	raw, err := json.Marshal(e.Rule)
	if err != nil {
		return nil, fmt.Errorf("encode rule: %w", err)
	}
	var r domain.RecurrenceRule
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode rule: %w", err)
	}
	return &r, nil
}
