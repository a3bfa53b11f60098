// Package analytics implements the on-box statistical models used by the
// data science node: isolation forest anomaly detection, health index
// remaining-useful-life estimation, and VAR multivariate forecasting.
package analytics

import (
	"sort"
	"time"
)

// timeLayout matches the storage layer's timestamp rendering.
const timeLayout = "2006-01-02 15:04:05"

// Reading is one sensor sample for a machine.
type Reading struct {
	MachineID   string
	Timestamp   time.Time
	Vibration   float64
	Temperature float64
	Pressure    float64
}

// Result is the outcome of one analysis, ready for the event stream.
type Result struct {
	Answer    string
	ChartData []map[string]any
	ChartType string
}

// FromRows converts normalized storage rows into readings, sorted by
// timestamp ascending. Missing sensor fields default to zero.
func FromRows(rows []map[string]any) []Reading {
	readings := make([]Reading, 0, len(rows))
	for _, row := range rows {
		r := Reading{
			MachineID:   stringField(row, "machine_id"),
			Vibration:   floatField(row, "vibration"),
			Temperature: floatField(row, "temperature"),
			Pressure:    floatField(row, "pressure"),
		}
		if ts, ok := parseTimestamp(row["timestamp"]); ok {
			r.Timestamp = ts
		}
		readings = append(readings, r)
	}
	return Sorted(readings)
}

// Sorted orders readings by timestamp ascending, in place.
func Sorted(readings []Reading) []Reading {
	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].Timestamp.Before(readings[j].Timestamp)
	})
	return readings
}

func stringField(row map[string]any, key string) string {
	if s, ok := row[key].(string); ok {
		return s
	}
	return ""
}

func floatField(row map[string]any, key string) float64 {
	switch v := row[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func parseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if ts, err := time.Parse(timeLayout, t); err == nil {
			return ts, true
		}
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func (r Reading) features() []float64 {
	return []float64{r.Vibration, r.Temperature, r.Pressure}
}

func (r Reading) chartRow(extra map[string]any) map[string]any {
	row := map[string]any{
		"machine_id":  r.MachineID,
		"timestamp":   r.Timestamp.Format(timeLayout),
		"vibration":   r.Vibration,
		"temperature": r.Temperature,
		"pressure":    r.Pressure,
	}
	for k, v := range extra {
		row[k] = v
	}
	return row
}
