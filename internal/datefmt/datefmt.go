package datefmt

import (
	"fmt"
	"time"
)

// Post date layouts
const (
	// FullDate is the long form, e.g. "Friday, October 11, 2024"
	FullDate = "Monday, January 2, 2006"

	// ShortDateTime is the compact feed form, e.g. "10/11/24, 3:04 PM"
	ShortDateTime = "1/2/06, 3:04 PM"
)

// Formatter renders post timestamps in a fixed time zone
type Formatter struct {
	loc *time.Location
}

// New creates a formatter for the named IANA time zone
func New(timezone string) (*Formatter, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load time zone %q: %w", timezone, err)
	}
	return &Formatter{loc: loc}, nil
}

// UTC returns a formatter that renders in UTC
func UTC() *Formatter {
	return &Formatter{loc: time.UTC}
}

// Full formats t in the long date style. Zero times render as "".
func (f *Formatter) Full(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(f.loc).Format(FullDate)
}

// Short formats t as a short date and time. Zero times render as "".
func (f *Formatter) Short(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(f.loc).Format(ShortDateTime)
}
