// Package report produces the fleet-level maintenance summary shown on the
// dashboard. It is a heuristic scorer over the current machine and anomaly
// counts, not a generation call.
package report

import (
	"fmt"
	"math/rand"
	"time"
)

// RiskLevel grades the overall fleet state.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskModerate RiskLevel = "MODERATE"
	RiskCritical RiskLevel = "CRITICAL"
)

// Anomaly is a currently flagged machine reading.
type Anomaly struct {
	MachineID string  `json:"machine_id"`
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Timestamp string  `json:"timestamp"`
}

// Report is the generated maintenance summary.
type Report struct {
	Timestamp       string    `json:"timestamp"`
	RiskLevel       RiskLevel `json:"risk_level"`
	RiskScore       int       `json:"risk_score"`
	Summary         string    `json:"summary"`
	Insights        []string  `json:"insights"`
	Recommendations []string  `json:"recommendations"`
}

var summaries = map[RiskLevel]string{
	RiskLow:      "System is operating within optimal parameters. Routine monitoring is recommended.",
	RiskModerate: "Minor irregularities detected. Scheduled maintenance is advised for affected units.",
	RiskCritical: "Urgent attention required. Multiple anomalies detected indicating potential system failure.",
}

// Generate grades the fleet from its machine count and active anomalies.
func Generate(machineCount int, anomalies []Anomaly) Report {
	level, score := grade(len(anomalies))

	insights := []string{
		fmt.Sprintf("System Health Score: %d/100", score),
		fmt.Sprintf("Active Anomalies: %d", len(anomalies)),
	}
	if len(anomalies) > 0 {
		insights = append(insights, fmt.Sprintf("Primary Concern: Machine %s", anomalies[0].MachineID))
	} else {
		insights = append(insights, "No immediate concerns identified.")
	}

	var recommendations []string
	switch level {
	case RiskLow:
		recommendations = []string{
			"Continue standard operating procedures.",
			"Review sensor calibration next month.",
		}
	case RiskModerate:
		recommendations = []string{
			"Inspect vibration sensors on flagged machines.",
			"Check lubrication levels.",
		}
	default:
		primary := "Unknown"
		if len(anomalies) > 0 {
			primary = anomalies[0].MachineID
		}
		recommendations = []string{
			fmt.Sprintf("IMMEDIATE STOP: Inspect Machine %s", primary),
			"Full diagnostic scan required.",
			"Alert maintenance team.",
		}
	}

	return Report{
		Timestamp:       time.Now().Format(time.RFC3339),
		RiskLevel:       level,
		RiskScore:       score,
		Summary:         summaries[level],
		Insights:        insights,
		Recommendations: recommendations,
	}
}

func grade(anomalyCount int) (RiskLevel, int) {
	switch {
	case anomalyCount == 0:
		return RiskLow, 90 + rand.Intn(10)
	case anomalyCount < 3:
		return RiskModerate, 70 + rand.Intn(20)
	default:
		return RiskCritical, 40 + rand.Intn(30)
	}
}
