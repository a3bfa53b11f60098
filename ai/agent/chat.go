package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/ttpunch/AgentProject/ai/llm"
)

// capabilityKeywords flag a question as an inquiry about what the system
// can do, answered from the live tool inventory instead of free chat.
var capabilityKeywords = []string{"mcp", "tool", "capability", "capabilities", "what can you do"}

const chatPrompt = `You are a helpful assistant for a CNC Predictive Maintenance System.
Chat History: %s
User said: %s`

// runChat is the conversational fallback. It never fails: any internal
// error is itself surfaced as the answer text.
func (e *Engine) runChat(ctx context.Context, st *State) {
	lower := strings.ToLower(st.Question)
	for _, kw := range capabilityKeywords {
		if strings.Contains(lower, kw) {
			st.setFinalAnswer(e.describeCapabilities(ctx))
			return
		}
	}

	answer, err := e.chat(ctx, st, []llm.Message{{
		Role:    llm.RoleUser,
		Content: fmt.Sprintf(chatPrompt, formatHistory(st.ChatHistory), st.Question),
	}})
	if err != nil {
		st.setFinalAnswer(fmt.Sprintf("I'm having trouble responding right now: %v", err))
		return
	}
	st.setFinalAnswer(answer)
}

// describeCapabilities renders the connected tool servers and their tools
// as a structured summary.
func (e *Engine) describeCapabilities(ctx context.Context) string {
	if e.tools == nil {
		return "No MCP servers are currently connected."
	}
	tools := e.tools.ListAllTools(ctx)
	if len(tools) == 0 {
		return "No MCP servers are currently connected."
	}

	byServer := map[string][]string{}
	var order []string
	for _, t := range tools {
		if _, seen := byServer[t.ServerName]; !seen {
			order = append(order, t.ServerName)
		}
		byServer[t.ServerName] = append(byServer[t.ServerName],
			fmt.Sprintf("- **%s** - %s", t.Name, t.Description))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Connected MCP Servers: %d**\n\n", len(order))
	for _, server := range order {
		fmt.Fprintf(&b, "### %s Server\n", titleCase(server))
		fmt.Fprintf(&b, "**Tools available: %d**\n\n", len(byServer[server]))
		b.WriteString(strings.Join(byServer[server], "\n"))
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
