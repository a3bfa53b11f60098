package agent

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/ttpunch/AgentProject/ai/analytics"
	"github.com/ttpunch/AgentProject/ai/llm"
	"github.com/ttpunch/AgentProject/ai/metrics"
)

// machineIDPattern is the fleet's machine identifier format.
var machineIDPattern = regexp.MustCompile(`(?i)(CNC-\d{3})`)

// vibrationThreshold is the critical vibration level for the trend
// predictor.
const vibrationThreshold = 100.0

const forecastReportPrompt = `You are an expert predictive maintenance analyst.
Analyze the following data for machine %s and provide a report.

Data Analysis:
- Current Vibration: %.2f
- Average Vibration: %.2f
- Max Vibration: %.2f
- Trend Slope: %.4f (%s)
- Anomalies Detected (last 100 points): %d
- Critical Threshold: %.1f

Prediction:
- Estimated RUL: %s
- Predicted Failure Date: %s

User Question: %s

Task:
1. Summarize the current status.
2. Explain the RUL prediction clearly.
3. Mention any anomalies if present.
4. Provide a recommendation (e.g., "Schedule maintenance" or "Monitor closely").

Keep the tone professional and concise. Use Markdown for formatting.`

// extractMachineID pulls the machine identifier out of the question text.
func extractMachineID(question string) string {
	return strings.ToUpper(machineIDPattern.FindString(question))
}

// fetchRecentReadings loads the most recent window of sensor samples for a
// machine, oldest first.
func (e *Engine) fetchRecentReadings(ctx context.Context, machineID string, limit int) ([]analytics.Reading, error) {
	pipeline := []map[string]any{
		{"$match": map[string]any{"machine_id": machineID}},
		{"$sort": map[string]any{"timestamp": -1}},
		{"$limit": limit},
		{"$sort": map[string]any{"timestamp": 1}},
	}
	rows, err := e.docs.Aggregate(ctx, sensorCollection, pipeline)
	if err != nil {
		return nil, err
	}
	return analytics.FromRows(rows), nil
}

// runForecast is the vibration trend predictor: z-score anomaly counting
// plus a linear extrapolation of vibration against the critical threshold,
// written up by the generator. Terminal; failures become answer text.
func (e *Engine) runForecast(ctx context.Context, st *State) {
	machineID := extractMachineID(st.Question)
	if machineID == "" {
		st.setFinalAnswer("I need a valid Machine ID (e.g., CNC-001) to make a prediction.")
		return
	}

	readings, err := e.fetchRecentReadings(ctx, machineID, 100)
	if err != nil {
		metrics.NodeErrors.WithLabelValues("forecast").Inc()
		st.setFinalAnswer(fmt.Sprintf("Error generating prediction: %v", err))
		return
	}
	if len(readings) == 0 {
		st.setFinalAnswer(fmt.Sprintf("No data found for %s to generate a prediction.", machineID))
		return
	}

	report := vibrationTrend(readings)
	prompt := fmt.Sprintf(forecastReportPrompt,
		machineID,
		report.current, report.average, report.max,
		report.slope, report.trendLabel(),
		report.anomalies, vibrationThreshold,
		report.rul, report.failureDate,
		st.Question)

	answer, err := e.chat(ctx, st, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		metrics.NodeErrors.WithLabelValues("forecast").Inc()
		st.setFinalAnswer(fmt.Sprintf("Error generating prediction: %v", err))
		return
	}
	st.setFinalAnswer(answer)
}

type trendReport struct {
	current, average, max float64
	slope                 float64
	anomalies             int
	rul                   string
	failureDate           string
}

func (r trendReport) trendLabel() string {
	if r.slope > 0 {
		return "Increasing"
	}
	return "Stable/Decreasing"
}

// vibrationTrend computes the statistics feeding the forecast report:
// mean/max/deviation of vibration, z-score outliers, and a least-squares
// projection of minutes until the critical threshold.
func vibrationTrend(readings []analytics.Reading) trendReport {
	n := len(readings)
	start := readings[0].Timestamp

	minutes := make([]float64, n)
	vibration := make([]float64, n)
	var sum float64
	maxV := math.Inf(-1)
	for i, r := range readings {
		minutes[i] = r.Timestamp.Sub(start).Minutes()
		vibration[i] = r.Vibration
		sum += r.Vibration
		if r.Vibration > maxV {
			maxV = r.Vibration
		}
	}
	avg := sum / float64(n)

	var variance float64
	for _, v := range vibration {
		variance += (v - avg) * (v - avg)
	}
	stdDev := math.Sqrt(variance / float64(n))

	anomalies := 0
	if stdDev > 0 {
		for _, v := range vibration {
			if math.Abs((v-avg)/stdDev) > 2 {
				anomalies++
			}
		}
	}

	slope, intercept := linearFit(minutes, vibration)

	report := trendReport{
		current:     vibration[n-1],
		average:     avg,
		max:         maxV,
		slope:       slope,
		anomalies:   anomalies,
		rul:         "Infinite (Stable)",
		failureDate: "N/A",
	}
	if slope > 0 {
		minutesToFailure := (vibrationThreshold - intercept) / slope
		remaining := minutesToFailure - minutes[n-1]
		if remaining < 0 {
			report.rul = "0 (Already Exceeded)"
		} else {
			report.rul = fmt.Sprintf("%.1f days", remaining/(24*60))
			report.failureDate = start.Add(time.Duration(minutesToFailure * float64(time.Minute))).Format("2006-01-02 15:04")
		}
	}
	return report
}

// linearFit returns the slope and intercept of y ~ x.
func linearFit(x, y []float64) (slope, intercept float64) {
	n := float64(len(x))
	var sumX, sumY, sumXY, sumXX float64
	for i := range x {
		sumX += x[i]
		sumY += y[i]
		sumXY += x[i] * y[i]
		sumXX += x[i] * x[i]
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}
