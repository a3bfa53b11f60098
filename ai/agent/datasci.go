package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ttpunch/AgentProject/ai/analytics"
	"github.com/ttpunch/AgentProject/ai/llm"
	"github.com/ttpunch/AgentProject/ai/metrics"
)

// analyticsFetchLimit bounds the sample window per backend for the
// statistical models.
const analyticsFetchLimit = 500

const engineRouterPrompt = `Classify the user's request into one of these engines:
1. BATCH: If the user mentions "Big Data", "Batch", "Cluster", or requests heavy aggregation like "monthly stats", "yearly average", "count all".
2. REALTIME: For standard requests like "Anomaly Detection", "RUL", "Forecast", "Real-time", "Predict", "Outliers".

Chat History:
%s

Question: %s

Return ONLY the engine name: BATCH or REALTIME.`

const analysisTypePrompt = `Classify the user's request into one of these categories:
1. ANOMALY: Questions about "anomalies", "outliers", "weird behavior", "unusual".
2. RUL: Questions about "remaining useful life", "how long until failure", "RUL", "time to breakdown".
3. FORECAST: Questions about "future values", "predict temperature", "what will happen next", "forecast".

Chat History:
%s

Question: %s

Return ONLY the category name.`

const batchSQLPrompt = `You are a SQL expert. Write a SQL query to answer the user's question based on the schema below.

Table: sensor_data
Columns: timestamp (timestamp), machine_id (text), vibration (double precision), temperature (double precision), pressure (double precision)

Chat History:
%s

Question: %s

Rules:
- Return ONLY the SQL query. No markdown, no explanations.
- Use standard SQL syntax.
- If the question is vague, select the top 10 records.`

// runAnalytics executes the advanced analytics route. An inner sub-router
// first decides between the batch aggregation path and the real-time model
// path; the decision is local to this node and invisible to the outer
// classifier. Terminal; every failure becomes answer text.
func (e *Engine) runAnalytics(ctx context.Context, st *State, emit func(Event)) {
	engine, err := e.classifyEngine(ctx, st)
	if err != nil {
		metrics.NodeErrors.WithLabelValues("analytics").Inc()
		st.setFinalAnswer(fmt.Sprintf("Error running analysis: %v", err))
		return
	}

	if engine == "BATCH" {
		emit(statusEvent("Running Batch Aggregation..."))
		e.runBatchAnalysis(ctx, st)
		return
	}
	emit(statusEvent("Running Advanced Analytics..."))
	e.runRealtimeAnalysis(ctx, st)
}

// classifyEngine is the inner batch-vs-realtime decision.
func (e *Engine) classifyEngine(ctx context.Context, st *State) (string, error) {
	prompt := fmt.Sprintf(engineRouterPrompt, formatHistory(st.ChatHistory), st.Question)
	decision, err := e.chat(ctx, st, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		return "", err
	}
	if strings.Contains(strings.ToUpper(decision), "BATCH") {
		return "BATCH", nil
	}
	return "REALTIME", nil
}

// runRealtimeAnalysis picks one of the three statistical models and runs
// it over the machine's recent readings.
func (e *Engine) runRealtimeAnalysis(ctx context.Context, st *State) {
	machineID := extractMachineID(st.Question)
	if machineID == "" {
		st.setFinalAnswer("I need a specific Machine ID (e.g., CNC-001) to perform this analysis.")
		return
	}

	prompt := fmt.Sprintf(analysisTypePrompt, formatHistory(st.ChatHistory), st.Question)
	rawType, err := e.chat(ctx, st, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		metrics.NodeErrors.WithLabelValues("analytics").Inc()
		st.setFinalAnswer(fmt.Sprintf("Error running analysis: %v", err))
		return
	}
	analysisType := strings.ToUpper(strings.TrimSpace(rawType))

	readings := e.fetchCombinedReadings(ctx, machineID)
	if len(readings) == 0 {
		st.setFinalAnswer(fmt.Sprintf("No data found for %s.", machineID))
		return
	}

	var result analytics.Result
	switch {
	case strings.Contains(analysisType, "ANOMALY"):
		result = analytics.DetectAnomalies(readings, machineID)
	case strings.Contains(analysisType, "RUL"):
		result = analytics.PredictRUL(readings, machineID)
	case strings.Contains(analysisType, "FORECAST"):
		result = analytics.Forecast(readings, machineID)
	default:
		st.setFinalAnswer("I'm not sure which advanced analysis to run. I can do Anomaly Detection, RUL Prediction, or Forecasting.")
		return
	}

	st.ChartData = result.ChartData
	st.ChartType = result.ChartType
	st.setFinalAnswer(result.Answer)
}

// fetchCombinedReadings merges the recent sample windows of both stores.
// A failure on either side is tolerated; the other source still serves.
func (e *Engine) fetchCombinedReadings(ctx context.Context, machineID string) []analytics.Reading {
	var rows []map[string]any

	mongoReadings, err := e.fetchRecentReadings(ctx, machineID, analyticsFetchLimit)
	if err != nil {
		slog.Warn("document store fetch failed", "machine", machineID, "error", err)
		mongoReadings = nil
	}

	query := fmt.Sprintf(
		"SELECT * FROM sensor_data WHERE machine_id = '%s' ORDER BY timestamp DESC LIMIT %d",
		machineID, analyticsFetchLimit)
	table, err := e.db.FetchQuery(ctx, query)
	if err != nil {
		slog.Warn("structured store fetch failed", "machine", machineID, "error", err)
	} else {
		rows = table.Rows
	}

	combined := append(mongoReadings, analytics.FromRows(rows)...)
	return analytics.Sorted(combined)
}

// runBatchAnalysis answers heavy aggregation questions by generating SQL
// over the consolidated sensor_data table and rendering the result.
func (e *Engine) runBatchAnalysis(ctx context.Context, st *State) {
	prompt := fmt.Sprintf(batchSQLPrompt, formatHistory(st.ChatHistory), st.Question)
	raw, err := e.chat(ctx, st, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		metrics.NodeErrors.WithLabelValues("analytics").Inc()
		st.setFinalAnswer(fmt.Sprintf("Batch analysis failed: %v", err))
		return
	}
	query := sanitizeQuery(raw)
	st.GeneratedQuery = query

	table, err := e.db.FetchQuery(ctx, query)
	if err != nil {
		metrics.NodeErrors.WithLabelValues("analytics").Inc()
		st.setFinalAnswer(fmt.Sprintf("Batch analysis failed: %v", err))
		return
	}

	st.ChartData, st.ChartType = chartFromTable(table.Columns, table.Rows)
	st.setFinalAnswer(fmt.Sprintf(
		"**Batch Aggregation Report**\n\n- **Executed Query**: `%s`\n\n### Results\n%s",
		query, table.Markdown()))
}

// chartFromTable guesses a chart type from the result shape: time plus
// numbers draws a line, bare numbers draw bars.
func chartFromTable(columns []string, rows []map[string]any) ([]map[string]any, string) {
	if len(rows) == 0 {
		return nil, ""
	}

	hasTimestamp := false
	hasNumeric := false
	for _, col := range columns {
		lower := strings.ToLower(col)
		if strings.Contains(lower, "timestamp") || strings.Contains(lower, "date") {
			hasTimestamp = true
		}
	}
	for _, v := range rows[0] {
		switch v.(type) {
		case float64, float32, int, int32, int64:
			hasNumeric = true
		}
	}

	if !hasNumeric {
		return rows, ""
	}
	if hasTimestamp {
		return rows, "line"
	}
	return rows, "bar"
}
