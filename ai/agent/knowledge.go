package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/ttpunch/AgentProject/ai/llm"
	"github.com/ttpunch/AgentProject/ai/metrics"
)

const knowledgePrompt = `You are a technical support assistant. Use the following manual context to answer the question.

Manual Context:
%s

Question: %s

Answer concisely based ONLY on the manual.`

// knowledgeTopK is how many passages are retrieved per question.
const knowledgeTopK = 4

// runKnowledge retrieves the most relevant manual passages and answers
// from them alone. Terminal: every internal failure becomes answer text.
func (e *Engine) runKnowledge(ctx context.Context, st *State) {
	if e.knowledge == nil {
		st.setFinalAnswer("The knowledge base is not configured.")
		return
	}

	chunks, err := e.knowledge.Query(ctx, st.Question, knowledgeTopK)
	if err != nil {
		metrics.NodeErrors.WithLabelValues("knowledge").Inc()
		st.setFinalAnswer(fmt.Sprintf("Error retrieving manual: %v", err))
		return
	}

	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Content
	}
	prompt := fmt.Sprintf(knowledgePrompt, strings.Join(parts, "\n\n"), st.Question)

	answer, err := e.chat(ctx, st, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		metrics.NodeErrors.WithLabelValues("knowledge").Inc()
		st.setFinalAnswer(fmt.Sprintf("Error retrieving manual: %v", err))
		return
	}
	st.setFinalAnswer(answer)
}
