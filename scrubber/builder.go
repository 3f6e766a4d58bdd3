package scrubber

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"
)

// ErrMissingOutages is returned when a response has no "outages" list
var ErrMissingOutages = errors.New("Builder: response has no outages list")

// BuildFunc turns a raw 200 response body into the records of one batch
type BuildFunc func(body []byte, ts time.Time) ([]Record, error)

// CountyItem is one entry of the county outage feed. Counts arrive as
// strings with thousands separators.
type CountyItem struct {
	CountyName      *string `json:"County Name"`
	CustomersOut    *string `json:"Customers Out"`
	CustomersServed *string `json:"Customers Served"`
}

// PointItem is one entry of the storm restoration and green ticket feeds
type PointItem struct {
	Lat               *float64 `json:"lat"`
	Lng               *float64 `json:"lng"`
	CustomersAffected *float64 `json:"customersAffected"`
}

type countyCounts struct {
	name   string
	out    float64
	served float64
}

type serviceTotals struct {
	outages     float64
	withService float64
}

func (t serviceTotals) add(c countyCounts) serviceTotals {
	return serviceTotals{
		outages:     t.outages + c.out,
		withService: t.withService + (c.served - c.out),
	}
}

// DecodeCountyOutages decodes a county outage response and builds its batch
func DecodeCountyOutages(body []byte, ts time.Time) ([]Record, error) {
	var resp struct {
		Outages *[]CountyItem `json:"outages"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("Builder: %w", err)
	}
	if resp.Outages == nil {
		return nil, ErrMissingOutages
	}

	return BuildCountyOutages(*resp.Outages, ts)
}

// DecodeStormRestore decodes a storm restoration response and builds its batch
func DecodeStormRestore(body []byte, ts time.Time) ([]Record, error) {
	items, err := decodePoints(body)
	if err != nil {
		return nil, err
	}

	return BuildStormRestore(items, ts)
}

// DecodeGreenTickets decodes a green ticket response and builds its batch
func DecodeGreenTickets(body []byte, ts time.Time) ([]Record, error) {
	items, err := decodePoints(body)
	if err != nil {
		return nil, err
	}

	return BuildGreenTickets(items, ts)
}

func decodePoints(body []byte) ([]PointItem, error) {
	var resp struct {
		Outages *[]PointItem `json:"outages"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("Builder: %w", err)
	}
	if resp.Outages == nil {
		return nil, ErrMissingOutages
	}

	return *resp.Outages, nil
}

// BuildCountyOutages returns one record per county followed by a single
// total_service record summing the whole batch. Any invalid item fails the
// batch. A county serving zero customers gets no percent_with_service field.
func BuildCountyOutages(items []CountyItem, ts time.Time) ([]Record, error) {
	counts := make([]countyCounts, 0, len(items))
	for i, item := range items {
		c, err := item.validate()
		if err != nil {
			return nil, fmt.Errorf("Builder: county item %d: %w", i, err)
		}
		counts = append(counts, c)
	}

	records := make([]Record, 0, len(counts)+1)
	totals := serviceTotals{}
	for _, c := range counts {
		totals = totals.add(c)

		fields := map[string]interface{}{
			"customers_out":    c.out,
			"customers_served": c.served,
		}
		if c.served != 0 {
			fields["percent_with_service"] = (c.served - c.out) / c.served * 100
		}

		records = append(records, Record{
			Source:      SourceCountyOutage,
			Measurement: MeasurementCountyOutage,
			Tags:        map[string]string{"county_name": c.name},
			Time:        ts,
			Fields:      fields,
		})
	}

	records = append(records, Record{
		Source:      SourceCountyOutage,
		Measurement: MeasurementTotalService,
		Tags:        map[string]string{},
		Time:        ts,
		Fields: map[string]interface{}{
			"total_outages":      totals.outages,
			"total_with_service": totals.withService,
		},
	})

	return records, nil
}

// BuildStormRestore returns one indexed record per point with coordinates
// rounded to six decimal places
func BuildStormRestore(items []PointItem, ts time.Time) ([]Record, error) {
	return buildPoints(items, ts, SourceStormRestore, MeasurementStormRestore, roundCoordinate)
}

// BuildGreenTickets returns one indexed record per point, coordinates as received
func BuildGreenTickets(items []PointItem, ts time.Time) ([]Record, error) {
	return buildPoints(items, ts, SourceGreenTickets, MeasurementGreenTickets, nil)
}

func buildPoints(items []PointItem, ts time.Time, source Source, measurement string, round func(float64) float64) ([]Record, error) {
	records := make([]Record, 0, len(items))
	for i, item := range items {
		if err := item.validate(); err != nil {
			return nil, fmt.Errorf("Builder: %s item %d: %w", source, i, err)
		}

		lat, lng := *item.Lat, *item.Lng
		if round != nil {
			lat, lng = round(lat), round(lng)
		}

		records = append(records, Record{
			Source:      source,
			Measurement: measurement,
			Tags:        map[string]string{"index": strconv.Itoa(i)},
			Time:        ts,
			Fields: map[string]interface{}{
				"lat":            lat,
				"lng":            lng,
				"num_of_outages": int64(*item.CustomersAffected),
			},
		})
	}

	return records, nil
}

func (item CountyItem) validate() (countyCounts, error) {
	if item.CountyName == nil {
		return countyCounts{}, errors.New(`missing "County Name"`)
	}
	if item.CustomersOut == nil {
		return countyCounts{}, errors.New(`missing "Customers Out"`)
	}
	if item.CustomersServed == nil {
		return countyCounts{}, errors.New(`missing "Customers Served"`)
	}

	out, err := parseCount(*item.CustomersOut)
	if err != nil {
		return countyCounts{}, fmt.Errorf(`"Customers Out": %w`, err)
	}
	served, err := parseCount(*item.CustomersServed)
	if err != nil {
		return countyCounts{}, fmt.Errorf(`"Customers Served": %w`, err)
	}

	return countyCounts{name: *item.CountyName, out: out, served: served}, nil
}

func (item PointItem) validate() error {
	switch {
	case item.Lat == nil:
		return errors.New(`missing "lat"`)
	case item.Lng == nil:
		return errors.New(`missing "lng"`)
	case item.CustomersAffected == nil:
		return errors.New(`missing "customersAffected"`)
	}

	return nil
}

// parseCount parses counts such as "1,234"
func parseCount(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", ""), 64)
}

func roundCoordinate(v float64) float64 {
	r, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 6, 64), 64)
	return r
}
