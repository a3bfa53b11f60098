package analytics

import (
	"fmt"
	"time"
)

const (
	varLagOrder       = 5
	forecastSteps     = 60
	forecastHistory   = 60
	forecastStepEvery = time.Minute
)

// Forecast fits a vector autoregression over vibration, temperature and
// pressure and projects the next hour at one-minute resolution. The chart
// data carries the recent history alongside the projection, each row tagged
// with its segment.
func Forecast(readings []Reading, machineID string) Result {
	dims := 3
	minSamples := varLagOrder + varLagOrder*dims + 1
	if len(readings) < minSamples {
		return Result{Answer: fmt.Sprintf("Not enough data for %s to fit a forecast model (need at least %d samples).", machineID, minSamples)}
	}

	series := make([][]float64, len(readings))
	for i, r := range readings {
		series[i] = r.features()
	}

	coeffs, err := fitVAR(series, varLagOrder)
	if err != nil {
		return Result{Answer: fmt.Sprintf("Forecast model failed for %s: %v", machineID, err)}
	}
	forecast := forecastVAR(series, coeffs, varLagOrder, forecastSteps)

	lastTime := readings[len(readings)-1].Timestamp
	historyStart := len(readings) - forecastHistory
	if historyStart < 0 {
		historyStart = 0
	}

	chartData := make([]map[string]any, 0, forecastHistory+forecastSteps)
	for _, r := range readings[historyStart:] {
		chartData = append(chartData, r.chartRow(map[string]any{"type": "history"}))
	}
	for i, point := range forecast {
		ts := lastTime.Add(time.Duration(i+1) * forecastStepEvery)
		chartData = append(chartData, map[string]any{
			"machine_id":  machineID,
			"timestamp":   ts.Format(timeLayout),
			"vibration":   point[0],
			"temperature": point[1],
			"pressure":    point[2],
			"type":        "forecast",
		})
	}

	answer := fmt.Sprintf(
		"**1-Hour Forecast for %s**\n\n"+
			"- **Model**: Vector Autoregression (VAR)\n"+
			"- **Variables**: Vibration, Temperature, Pressure\n"+
			"- **Horizon**: %d minutes\n\n"+
			"The chart shows the predicted trends.",
		machineID, forecastSteps)

	return Result{Answer: answer, ChartData: chartData, ChartType: "forecast"}
}

// fitVAR estimates one OLS equation per variable, each regressed on the
// stacked lags of every variable. The returned matrix holds
// [intercept, lag coefficients...] per equation.
func fitVAR(series [][]float64, lag int) ([][]float64, error) {
	dims := len(series[0])
	n := len(series) - lag

	x := make([][]float64, n)
	for t := 0; t < n; t++ {
		row := make([]float64, 0, lag*dims)
		for l := 1; l <= lag; l++ {
			row = append(row, series[lag+t-l]...)
		}
		x[t] = row
	}

	coeffs := make([][]float64, dims)
	for d := 0; d < dims; d++ {
		y := make([]float64, n)
		for t := 0; t < n; t++ {
			y[t] = series[lag+t][d]
		}
		fit, err := fitLinear(x, y)
		if err != nil {
			return nil, err
		}
		coeffs[d] = fit
	}
	return coeffs, nil
}

// forecastVAR rolls the fitted model forward, feeding each prediction back
// in as the newest lag.
func forecastVAR(series [][]float64, coeffs [][]float64, lag, steps int) [][]float64 {
	dims := len(coeffs)
	window := make([][]float64, lag)
	copy(window, series[len(series)-lag:])

	out := make([][]float64, steps)
	for s := 0; s < steps; s++ {
		features := make([]float64, 0, lag*dims)
		for l := 1; l <= lag; l++ {
			features = append(features, window[lag-l]...)
		}
		next := make([]float64, dims)
		for d := 0; d < dims; d++ {
			next[d] = predictLinear(coeffs[d], features)
		}
		out[s] = next
		window = append(window[1:], next)
	}
	return out
}
