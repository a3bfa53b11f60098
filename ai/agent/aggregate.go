package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ttpunch/AgentProject/ai/llm"
	"github.com/ttpunch/AgentProject/ai/metrics"
	"github.com/ttpunch/AgentProject/connectors/base"
	"github.com/ttpunch/AgentProject/connectors/mongodb"
)

// sensorCollection is the time-series collection the aggregation node
// queries.
const sensorCollection = "sensor_logs"

const aggregatePrompt = `You are an expert MongoDB Data Analyst.

User Question: %s

Collection: 'sensor_logs'
Fields: timestamp, machine_id, vibration, temperature, pressure

Task: Generate a MongoDB aggregation pipeline to answer the question.
- Return ONLY the raw JSON list for the pipeline.
- Example: [{"$match": ...}, {"$sort": ...}]`

const aggregateRepairPrompt = `You are an expert MongoDB Data Analyst. Your previous pipeline failed.

User Question: %s

Previous Error: %s

Collection: 'sensor_logs'
Fields: timestamp, machine_id, vibration, temperature, pressure

Task: Correct the MongoDB aggregation pipeline.
- Ensure correct JSON syntax.
- Ensure operators like $sort, $match, $limit are used correctly.
- Return ONLY the raw JSON list for the pipeline.`

// runAggregate generates an aggregation pipeline, executes it and
// normalizes the rows so identifiers and timestamps leave this node as
// strings. Failure semantics mirror the structured node.
func (e *Engine) runAggregate(ctx context.Context, st *State) error {
	var prompt string
	if st.Error != "" && st.RetryCount > 0 {
		prompt = fmt.Sprintf(aggregateRepairPrompt, st.Question, st.Error)
	} else {
		prompt = fmt.Sprintf(aggregatePrompt, st.Question)
	}

	raw, err := e.chat(ctx, st, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		return err
	}
	content := extractFencedJSON(raw)
	st.GeneratedQuery = content

	var pipeline []map[string]any
	if err := json.Unmarshal([]byte(content), &pipeline); err != nil {
		metrics.NodeErrors.WithLabelValues("aggregate").Inc()
		st.Error = fmt.Sprintf("invalid pipeline JSON: %v", err)
		st.RetryCount++
		return nil
	}

	rows, err := e.docs.Aggregate(ctx, sensorCollection, pipeline)
	if err != nil {
		metrics.NodeErrors.WithLabelValues("aggregate").Inc()
		st.Error = err.Error()
		st.RetryCount++
		return nil
	}

	normalized := mongodb.NormalizeRows(rows)
	st.ChartData = normalized
	st.ResultPayload = base.FromMaps(normalized).String()
	st.Error = ""
	return nil
}

// extractFencedJSON peels a markdown code fence off a generated response,
// returning the inner payload. Unfenced content passes through trimmed.
func extractFencedJSON(content string) string {
	content = strings.TrimSpace(content)
	if idx := strings.Index(content, "```json"); idx >= 0 {
		content = content[idx+len("```json"):]
		if end := strings.Index(content, "```"); end >= 0 {
			content = content[:end]
		}
		return strings.TrimSpace(content)
	}
	if idx := strings.Index(content, "```"); idx >= 0 {
		content = content[idx+len("```"):]
		if end := strings.Index(content, "```"); end >= 0 {
			content = content[:end]
		}
		return strings.TrimSpace(content)
	}
	return content
}
