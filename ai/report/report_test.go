package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateGrades(t *testing.T) {
	tests := []struct {
		name      string
		anomalies []Anomaly
		level     RiskLevel
		minScore  int
		maxScore  int
	}{
		{"no anomalies", nil, RiskLow, 90, 99},
		{"few anomalies", []Anomaly{{MachineID: "CNC-003"}}, RiskModerate, 70, 89},
		{"many anomalies", make([]Anomaly, 5), RiskCritical, 40, 69},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Generate(10, tt.anomalies)
			assert.Equal(t, tt.level, r.RiskLevel)
			assert.GreaterOrEqual(t, r.RiskScore, tt.minScore)
			assert.LessOrEqual(t, r.RiskScore, tt.maxScore)
			assert.NotEmpty(t, r.Summary)
			assert.Len(t, r.Insights, 3)
			assert.NotEmpty(t, r.Recommendations)
		})
	}
}

func TestGenerateNamesPrimaryConcern(t *testing.T) {
	r := Generate(10, []Anomaly{{MachineID: "CNC-007"}, {MachineID: "CNC-002"}})
	assert.Contains(t, r.Insights[2], "CNC-007")
}

func TestCriticalRecommendsStop(t *testing.T) {
	r := Generate(10, make([]Anomaly, 4))
	assert.Contains(t, r.Recommendations[0], "IMMEDIATE STOP")
}
