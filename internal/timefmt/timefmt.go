// Package timefmt converts UTC wire timestamps into a fixed local timezone's
// display form for chart labeling.
package timefmt

import (
	"fmt"
	"time"
)

const (
	// WireFormat is the UTC timestamp format ThingSpeak uses in feed entries.
	WireFormat = "2006-01-02T15:04:05Z"
	// DisplayFormat is the local-time form used for chart axis labels.
	DisplayFormat = "2006-01-02 15:04:05"
)

// Converter reformats UTC wire timestamps into a fixed location's local time.
type Converter struct {
	loc *time.Location
}

// NewConverter creates a converter for the named IANA timezone.
func NewConverter(timezone string) (*Converter, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", timezone, err)
	}
	return &Converter{loc: loc}, nil
}

// Localize converts each UTC wire timestamp into the converter's local display
// string. The output has the same length and order as the input. Any entry
// that does not match WireFormat fails the whole conversion; no partial result
// is returned.
func (c *Converter) Localize(timestamps []string) ([]string, error) {
	out := make([]string, 0, len(timestamps))
	for i, ts := range timestamps {
		t, err := time.Parse(WireFormat, ts)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp %q at index %d: %w", ts, i, err)
		}
		out = append(out, t.In(c.loc).Format(DisplayFormat))
	}
	return out, nil
}
