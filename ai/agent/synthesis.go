package agent

import (
	"context"
	"fmt"

	"github.com/ttpunch/AgentProject/ai/llm"
)

const synthesisPrompt = `You are a data analyst.
Question: %s
Chat History: %s
Data:
%s

Provide a concise natural language answer based on the data.
Use Markdown formatting to make the answer easy to read.
- Use **bold** for key values or machine names.
- Use lists for multiple items.
- Use tables if presenting multiple rows of data.`

// runSynthesis renders the query result into a natural-language answer.
// If the error is still set after retry exhaustion it is surfaced verbatim
// with no further repair; chart data passes through unchanged either way.
func (e *Engine) runSynthesis(ctx context.Context, st *State) error {
	if st.Error != "" {
		st.setFinalAnswer(fmt.Sprintf("I encountered an error while querying the database: %s", st.Error))
		return nil
	}

	answer, err := e.chat(ctx, st, []llm.Message{{
		Role:    llm.RoleUser,
		Content: fmt.Sprintf(synthesisPrompt, st.Question, formatHistory(st.ChatHistory), st.ResultPayload),
	}})
	if err != nil {
		return err
	}
	st.setFinalAnswer(answer)
	return nil
}
