package scrubber

import (
	"time"
)

// TimestampLayout is the wire format of a record's capture time
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// Source identifies the endpoint a Record was built from
type Source string

// Known sources, in the order a cycle pulls them
const (
	SourceCountyOutage Source = "county_outage"
	SourceStormRestore Source = "storm_restore"
	SourceGreenTickets Source = "green_tickets"
)

// Measurement names written to the sink
const (
	MeasurementCountyOutage = "fpl_county_outage"
	MeasurementTotalService = "total_service"
	MeasurementStormRestore = "storm_feed_restore"
	MeasurementGreenTickets = "green_tickets"
)

// Record represents a single time-series point
type Record struct {
	Source      Source
	Measurement string
	Tags        map[string]string
	Time        time.Time
	Fields      map[string]interface{}
}

// Timestamp returns the record time in TimestampLayout
func (r Record) Timestamp() string {
	return FormatTimestamp(r.Time)
}

// FormatTimestamp renders t as UTC with microsecond precision and a trailing Z
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// CaptureTime returns the shared timestamp for a batch captured at now
func CaptureTime(now time.Time) time.Time {
	return now.UTC().Truncate(time.Microsecond)
}
