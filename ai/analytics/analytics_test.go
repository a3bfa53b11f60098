package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeReadings(n int, gen func(i int) (vib, temp, press float64)) []Reading {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	readings := make([]Reading, n)
	for i := 0; i < n; i++ {
		vib, temp, press := gen(i)
		readings[i] = Reading{
			MachineID:   "CNC-001",
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
			Vibration:   vib,
			Temperature: temp,
			Pressure:    press,
		}
	}
	return readings
}

func TestFromRowsParsesAndSorts(t *testing.T) {
	rows := []map[string]any{
		{"machine_id": "CNC-002", "timestamp": "2026-08-01 10:05:00", "vibration": 2.5, "temperature": 60.0, "pressure": 5.0},
		{"machine_id": "CNC-002", "timestamp": "2026-08-01 10:01:00", "vibration": 1.5, "temperature": 55.0},
	}

	readings := FromRows(rows)
	require.Len(t, readings, 2)
	assert.True(t, readings[0].Timestamp.Before(readings[1].Timestamp))
	assert.Equal(t, 1.5, readings[0].Vibration)
	assert.Equal(t, 0.0, readings[0].Pressure, "missing field defaults to zero")
	assert.Equal(t, 5.0, readings[1].Pressure)
	assert.Equal(t, "CNC-002", readings[0].MachineID)
}

func TestTrendSlope(t *testing.T) {
	tests := []struct {
		name string
		y    []float64
		want float64
	}{
		{"decreasing", []float64{10, 8, 6, 4, 2}, -2},
		{"increasing", []float64{1, 2, 3, 4}, 1},
		{"flat", []float64{5, 5, 5}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, trendSlope(tt.y), 1e-9)
		})
	}
}

func TestSolveLinearSystem(t *testing.T) {
	// 2x + y = 5, x + 3y = 10 -> x = 1, y = 3.
	a := [][]float64{{2, 1}, {1, 3}}
	y := []float64{5, 10}

	b, err := solveLinearSystem(a, y)
	require.NoError(t, err)
	assert.InDelta(t, 1, b[0], 1e-9)
	assert.InDelta(t, 3, b[1], 1e-9)
}

func TestSolveLinearSystemSingular(t *testing.T) {
	a := [][]float64{{1, 2}, {2, 4}}
	y := []float64{3, 6}

	_, err := solveLinearSystem(a, y)
	assert.Error(t, err)
}

func TestPredictRULDegrading(t *testing.T) {
	// Vibration climbs steadily so the health index falls by 0.5 per minute.
	readings := makeReadings(100, func(i int) (float64, float64, float64) {
		return float64(i), 50, 5
	})

	res := PredictRUL(readings, "CNC-001")
	assert.Contains(t, res.Answer, "RUL Prediction for CNC-001")
	assert.Contains(t, res.Answer, "days")
	assert.NotContains(t, res.Answer, "Stable")
	assert.Nil(t, res.ChartData)
}

func TestPredictRULStable(t *testing.T) {
	readings := makeReadings(100, func(i int) (float64, float64, float64) {
		return 10, 50, 5
	})

	res := PredictRUL(readings, "CNC-001")
	assert.Contains(t, res.Answer, "Stable (Infinite)")
}

func TestDetectAnomaliesFlagsOutliers(t *testing.T) {
	// A tight cluster with one extreme point far outside it.
	readings := makeReadings(100, func(i int) (float64, float64, float64) {
		if i == 42 {
			return 500, 900, 200
		}
		return 10 + math.Sin(float64(i)), 50 + math.Cos(float64(i)), 5
	})

	res := DetectAnomalies(readings, "CNC-001")
	require.Len(t, res.ChartData, 100)
	assert.Equal(t, "scatter_anomaly", res.ChartType)
	assert.Equal(t, -1, res.ChartData[42]["anomaly"], "the extreme point is flagged")

	flagged := 0
	for _, row := range res.ChartData {
		if row["anomaly"] == -1 {
			flagged++
		}
	}
	assert.Equal(t, 5, flagged, "contamination keeps the flag count at 5%")
}

func TestDetectAnomaliesDeterministic(t *testing.T) {
	readings := makeReadings(60, func(i int) (float64, float64, float64) {
		return math.Sin(float64(i)), math.Cos(float64(i) / 2), float64(i % 7)
	})

	first := DetectAnomalies(readings, "CNC-001")
	second := DetectAnomalies(readings, "CNC-001")
	assert.Equal(t, first.ChartData, second.ChartData)
}

func TestForecastShape(t *testing.T) {
	readings := makeReadings(200, func(i int) (float64, float64, float64) {
		x := float64(i)
		return 10 + math.Sin(x/5), 50 + math.Cos(x/9), 5 + math.Sin(x/13)
	})

	res := Forecast(readings, "CNC-001")
	require.Equal(t, "forecast", res.ChartType)
	require.Len(t, res.ChartData, forecastHistory+forecastSteps)

	history, forecast := 0, 0
	for _, row := range res.ChartData {
		switch row["type"] {
		case "history":
			history++
		case "forecast":
			forecast++
		}
	}
	assert.Equal(t, forecastHistory, history)
	assert.Equal(t, forecastSteps, forecast)

	// Forecast timestamps continue one minute past the last observation.
	firstForecast := res.ChartData[forecastHistory]
	assert.Equal(t, "2026-08-01 13:20:00", firstForecast["timestamp"])
}

func TestForecastNeedsEnoughData(t *testing.T) {
	readings := makeReadings(5, func(i int) (float64, float64, float64) {
		return float64(i), 50, 5
	})

	res := Forecast(readings, "CNC-009")
	assert.Contains(t, res.Answer, "Not enough data")
	assert.Empty(t, res.ChartData)
}
