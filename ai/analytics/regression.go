package analytics

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

const (
	rulTrendWindow = 50
	// Samples arrive at one-minute intervals.
	stepsPerDay = 60 * 24
)

// PredictRUL estimates the remaining useful life of a machine from a
// synthetic health index derived from vibration and temperature. The index
// runs from 100 (healthy) to 0 (failed); the current value is predicted by
// a linear model fit on all but the latest sample, and the degradation rate
// is the slope over the most recent samples.
func PredictRUL(readings []Reading, machineID string) Result {
	if len(readings) < 3 {
		return Result{Answer: fmt.Sprintf("Not enough data for %s to estimate remaining useful life.", machineID)}
	}

	health := make([]float64, len(readings))
	for i, r := range readings {
		health[i] = 100 - (r.Vibration*0.5 + r.Temperature*0.2)
	}

	// Fit health ~ features on all but the last sample, predict the last.
	n := len(readings) - 1
	x := make([][]float64, n)
	for i := 0; i < n; i++ {
		x[i] = readings[i].features()
	}
	currentHealth := health[len(health)-1]
	if coeffs, err := fitLinear(x, health[:n]); err == nil {
		currentHealth = predictLinear(coeffs, readings[len(readings)-1].features())
	}

	window := rulTrendWindow
	if window > len(health) {
		window = len(health)
	}
	recent := health[len(health)-window:]
	slope := trendSlope(recent)

	var rulMsg string
	if slope >= 0 {
		rulMsg = "Stable (Infinite)"
	} else {
		stepsToFailure := (0 - currentHealth) / slope
		days := stepsToFailure / stepsPerDay
		rulMsg = fmt.Sprintf("%.1f days", days)
	}

	answer := fmt.Sprintf(
		"**RUL Prediction for %s**\n\n"+
			"- **Model**: Linear Health Index Estimation\n"+
			"- **Current Health Index**: %.1f / 100\n"+
			"- **Degradation Trend**: %.4f health points/min\n"+
			"- **Estimated RUL**: **%s**",
		machineID, currentHealth, slope, rulMsg)

	return Result{Answer: answer}
}

// trendSlope fits y = a + b*i over the series and returns b.
func trendSlope(y []float64) float64 {
	n := float64(len(y))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range y {
		xi := float64(i)
		sumX += xi
		sumY += v
		sumXY += xi * v
		sumXX += xi * xi
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// fitLinear solves an ordinary least squares fit with an intercept term,
// returning [intercept, coefficients...].
func fitLinear(x [][]float64, y []float64) ([]float64, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, errors.New("mismatched observation counts")
	}
	dims := len(x[0]) + 1

	// Normal equations: (X'X) b = X'y with a leading intercept column.
	xtx := make([][]float64, dims)
	for i := range xtx {
		xtx[i] = make([]float64, dims)
	}
	xty := make([]float64, dims)
	for k, row := range x {
		full := append([]float64{1}, row...)
		for i := 0; i < dims; i++ {
			xty[i] += full[i] * y[k]
			for j := 0; j < dims; j++ {
				xtx[i][j] += full[i] * full[j]
			}
		}
	}
	return solveLinearSystem(xtx, xty)
}

func predictLinear(coeffs, features []float64) float64 {
	v := coeffs[0]
	for i, f := range features {
		v += coeffs[i+1] * f
	}
	return v
}

// solveLinearSystem solves Ab = y by Gaussian elimination with partial
// pivoting. A and y are modified in place.
func solveLinearSystem(a [][]float64, y []float64) ([]float64, error) {
	n := len(a)
	for col := 0; col < n; col++ {
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, errors.New("singular system")
		}
		a[col], a[pivot] = a[pivot], a[col]
		y[col], y[pivot] = y[pivot], y[col]

		for row := col + 1; row < n; row++ {
			factor := a[row][col] / a[col][col]
			for k := col; k < n; k++ {
				a[row][k] -= factor * a[col][k]
			}
			y[row] -= factor * y[col]
		}
	}

	b := make([]float64, n)
	for row := n - 1; row >= 0; row-- {
		sum := y[row]
		for k := row + 1; k < n; k++ {
			sum -= a[row][k] * b[k]
		}
		b[row] = sum / a[row][row]
	}
	return b, nil
}
