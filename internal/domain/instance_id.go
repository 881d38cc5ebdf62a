package domain

import (
	"strings"

	"github.com/google/uuid"
)

const (
	idDelimiter = "-"
	uuidGroups  = 5
)

// InstanceID names one occurrence of a series: the parent event id plus the
// occurrence date. A zero Date means the id refers to the event itself.
type InstanceID struct {
	ParentID string
	Date     Date
}

func NewInstanceID(parentID string, date Date) InstanceID {
	return InstanceID{ParentID: parentID, Date: date}
}

// String encodes the id as "<uuid>-<YYYY-MM-DD>", or the bare uuid when no
// date is set.
func (id InstanceID) String() string {
	if id.Date.IsZero() {
		return id.ParentID
	}
	return id.ParentID + idDelimiter + id.Date.String()
}

func (id InstanceID) HasDate() bool {
	return !id.Date.IsZero()
}

// ParseInstanceID decodes a composite id. A string with exactly five groups is
// a bare event id. With more groups the first five are the event id and the
// remainder is the ISO date. Anything else is rejected.
func ParseInstanceID(s string) (InstanceID, bool) {
	parts := strings.Split(s, idDelimiter)
	if len(parts) < uuidGroups {
		return InstanceID{}, false
	}

	parentID := strings.Join(parts[:uuidGroups], idDelimiter)
	if _, err := uuid.Parse(parentID); err != nil {
		return InstanceID{}, false
	}
	if len(parts) == uuidGroups {
		return InstanceID{ParentID: parentID}, true
	}

	date, err := ParseDate(strings.Join(parts[uuidGroups:], idDelimiter))
	if err != nil {
		return InstanceID{}, false
	}
	return InstanceID{ParentID: parentID, Date: date}, true
}

func (id InstanceID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *InstanceID) UnmarshalText(b []byte) error {
	parsed, ok := ParseInstanceID(string(b))
	if !ok {
		return Validation("instance_id.parse", "malformed occurrence id")
	}
	*id = parsed
	return nil
}
