package agent

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/ttpunch/AgentProject/ai/llm"
)

// routerContext describes the system's backends to the classifier without
// loading any live schema.
const routerContext = `You are a smart database router for a CNC Machine Predictive Maintenance System.

System Capabilities:
1. Postgres Database ('POSTGRES'):
   - Contains structured data about machines, production logs, and sensor readings.
   - I have access to the full schema including table names and columns.
   - Use this for questions about "how many", "list", "status of", "average", "max/min" on structured data.

2. MongoDB ('MONGO'):
   - Contains collection 'sensor_logs' with fields: timestamp, machine_id, vibration, temperature, pressure.
   - Stores high-frequency time-series sensor data and logs.

3. General Chat ('CHAT'):
   - Handles greetings, jokes, personal questions, and clarifications.

4. Knowledge Base ('RAG'):
   - Contains maintenance manuals and troubleshooting guides.
   - Handles "how to", "fix", "repair", "replace", "manual", "guide" questions.

5. MCP Tools ('MCP'):
   - External tools provided by MCP servers (e.g., Filesystem).
   - Use this if the user asks to perform an action outside the database (e.g., "list files", "read file").`

const routerRules = `Task: Decide where to route the question.

Rules:
1. Return 'POSTGRES' if the question is about:
   - Machines (list, status, metadata, models)
   - Static information
   - Counting machines
   - "List them" or "Show me" referring to machines in history.
   - Any mention of "cotmac_iiot" table.
   - Explicit mention of "Postgres" or "PostgreSQL".

2. Return 'MONGO' if the question is about:
   - Sensor data (vibration, temperature, pressure)
   - Time-series logs
   - "Highest vibration", "Average temperature"
   - Explicit mention of "Mongo" or "MongoDB".

3. Return 'RAG' if the question is about:
   - How to fix/repair/replace something
   - Troubleshooting specific issues (overheating, fault)
   - "What does the manual say?"
   - "What is in the uploaded file?"
   - "Summarize the document"
   - Procedures
   - Any question about "vectors" or "embeddings"

4. Return 'FORECAST' if the question is about:
   - Future predictions ("When will it fail?", "RUL")
   - "Remaining life", "How long until breakdown"
   - "Predict"

5. Return 'CHAT' if the question is:
   - General greeting ("Hi", "Hello")
   - Personal questions ("Who are you?", "What is your name?")
   - Jokes or small talk
   - Clarifications not related to data

6. Return 'DATA_SCIENCE' if the question is about:
   - "Anomaly detection", "Outliers", "Weird behavior"
   - "RUL", "Remaining Useful Life", "Time to failure"
   - "Forecast", "Predict future", "What will happen next"
   - "Correlation", "FFT", "Frequency analysis"

7. Return 'MCP' if the question requires external tools (filesystem, etc.).

Output ONLY one word: POSTGRES, MONGO, RAG, FORECAST, CHAT, DATA_SCIENCE, or MCP.`

// classify maps the question onto a route. A decision outside the known
// set degrades to CHAT; this step itself never retries.
func (e *Engine) classify(ctx context.Context, st *State) (Route, error) {
	prompt := fmt.Sprintf("%s\n\nChat History:\n%s\n\nCurrent Question: %s\n\n%s",
		routerContext, formatHistory(st.ChatHistory), st.Question, routerRules)

	decision, err := e.chat(ctx, st, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		return RouteChat, errors.Wrap(err, "routing failed")
	}
	return ParseRoute(decision), nil
}
