package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/ttpunch/AgentProject/ai/llm"
	"github.com/ttpunch/AgentProject/ai/metrics"
)

const structuredPrompt = `You are an expert SQL Data Analyst.

Database Schema:
%s

User Question: %s

Instructions:
1. Use ONLY the tables and columns defined in the Schema above.
2. Pay close attention to data types (e.g., don't compare strings to numbers).
3. If the user asks for "machines", use the 'machines' table.
4. If the user asks for sensor data, check if it's in 'cotmac_iiot' or other tables.
5. DO NOT include comments (starting with --) in the SQL.
6. DO NOT end the query with a trailing comma.
7. Return ONLY the raw SQL query. No markdown, no explanations.`

const structuredRepairPrompt = `You are an expert SQL Data Analyst. Your previous query failed.

Database Schema:
%s

User Question: %s

Previous Query: %s
Error Message: %s

CRITICAL INSTRUCTIONS:
1. Analyze the Error Message. It tells you exactly what went wrong.
2. If the error is "syntax error at end of input", it means you likely left a trailing comma or the query is incomplete. REMOVE trailing commas.
3. If the error mentions a missing function (like ROUND with certain types), check data types and cast if necessary (e.g., ::numeric).
4. If the error mentions a missing column, check the Schema again.
5. DO NOT include comments (starting with --) in the SQL.
6. Generate a CORRECTED SQL query that resolves the error.

Return ONLY the corrected raw SQL query. No markdown, no explanations, no comments.`

// runStructured generates a SQL query, sanitizes it and executes it. On an
// execution failure the error and failing query stay on the state as
// repair context for the next attempt; the retry decision belongs to the
// engine. Only a generation provider failure is returned as a hard error.
func (e *Engine) runStructured(ctx context.Context, st *State) error {
	var prompt string
	if st.Error != "" && st.GeneratedQuery != "" {
		prompt = fmt.Sprintf(structuredRepairPrompt, st.SchemaContext, st.Question, st.GeneratedQuery, st.Error)
	} else {
		prompt = fmt.Sprintf(structuredPrompt, st.SchemaContext, st.Question)
	}

	raw, err := e.chat(ctx, st, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		return err
	}
	query := sanitizeQuery(raw)
	st.GeneratedQuery = query

	table, err := e.db.FetchQuery(ctx, query)
	if err != nil {
		metrics.NodeErrors.WithLabelValues("structured").Inc()
		st.Error = err.Error()
		st.RetryCount++
		return nil
	}

	st.ResultPayload = table.String()
	st.Error = ""
	return nil
}

// sanitizeQuery strips markdown fences and comment lines from generated
// SQL, flattens it to one line and drops a single trailing comma. Running
// it on already-clean input is a no-op.
func sanitizeQuery(raw string) string {
	q := strings.ReplaceAll(raw, "```sql", "")
	q = strings.ReplaceAll(q, "```", "")

	var kept []string
	for _, line := range strings.Split(q, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		kept = append(kept, line)
	}
	q = strings.TrimSpace(strings.Join(kept, " "))
	q = strings.TrimSuffix(q, ",")
	return q
}
