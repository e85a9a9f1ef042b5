package database

import (
	"encoding/json"
	"strings"
	"time"
)

// DateLayout is the text form of an interview date, as stored in the
// interview_date column.
const DateLayout = "2006-01-02"

// Date is a calendar day without a time-of-day component. It marshals to
// and from "YYYY-MM-DD".
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar day in t's location.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// dateTimeLayouts are the longer ISO forms ParseDate also accepts. The
// time of day is dropped.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
}

// ParseDate parses "YYYY-MM-DD", or a full RFC 3339 / "YYYY-MM-DDTHH:MM:SS"
// timestamp whose calendar day is kept. Anything else is an error.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(DateLayout, s)
	if err == nil {
		return Date{t}, nil
	}
	for _, layout := range dateTimeLayouts {
		if dt, derr := time.Parse(layout, s); derr == nil {
			return NewDate(dt), nil
		}
	}
	return Date{}, err
}

// String returns "YYYY-MM-DD", or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
