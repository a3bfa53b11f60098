package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ttpunch/AgentProject/ai/llm"
	"github.com/ttpunch/AgentProject/ai/metrics"
	"github.com/ttpunch/AgentProject/plugin/mcp"
)

const toolSelectionPrompt = `You are an agent with access to the following external tools:
%s

IMPORTANT PATH INFORMATION:
- The user's Desktop is mounted at: /mnt/desktop
- When the user asks about "desktop" or "my desktop", use the path: /mnt/desktop
- Do NOT use paths like /root/Desktop or ~/Desktop

User Question: %s

Task: Select the best tool to answer the question and provide the arguments.

CRITICAL: The "server_name" in your response MUST EXACTLY MATCH the server name shown in parentheses above.
For example, if you see "- list_directory (Server: filesystem)", then server_name must be "filesystem".

Output JSON format:
{
    "tool_name": "exact tool name from the list above",
    "server_name": "exact server name from the list above",
    "arguments": { "arg1": "value1", ... }
}`

const toolFormatPrompt = `The user asked: %s

Tool executed: %s
Raw result:
%s

Task: Format this result in a user-friendly way.
- Use markdown formatting
- Make lists readable with bullet points or numbered lists
- Keep it concise and clear
- Don't include technical details about the tool execution`

// toolSelection is the structured object the generator must produce to
// pick a tool.
type toolSelection struct {
	ToolName   string         `json:"tool_name"`
	ServerName string         `json:"server_name"`
	Arguments  map[string]any `json:"arguments"`
}

// runTool enumerates the available external tools, has the generator pick
// one, validates the pick against the enumeration, invokes it and formats
// the output. Terminal: every failure becomes answer text.
func (e *Engine) runTool(ctx context.Context, st *State) {
	if e.tools == nil {
		st.setFinalAnswer("No external tool servers are configured.")
		return
	}

	tools := e.tools.ListAllTools(ctx)
	if len(tools) == 0 {
		st.setFinalAnswer("No external tools are currently available.")
		return
	}

	var desc strings.Builder
	for _, t := range tools {
		fmt.Fprintf(&desc, "- %s (Server: %s): %s\n", t.Name, t.ServerName, t.Description)
	}

	prompt := fmt.Sprintf(toolSelectionPrompt, desc.String(), st.Question)
	raw, err := e.chat(ctx, st, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		e.failTool(st, err)
		return
	}

	var selection toolSelection
	if err := json.Unmarshal([]byte(extractFencedJSON(raw)), &selection); err != nil {
		e.failTool(st, fmt.Errorf("invalid tool selection: %w", err))
		return
	}
	if !toolExists(tools, selection) {
		e.failTool(st, fmt.Errorf("selected tool %s on server %s does not exist", selection.ToolName, selection.ServerName))
		return
	}

	result, err := e.tools.CallTool(ctx, selection.ServerName, selection.ToolName, selection.Arguments)
	if err != nil {
		e.failTool(st, err)
		return
	}

	formatted, err := e.chat(ctx, st, []llm.Message{{
		Role:    llm.RoleUser,
		Content: fmt.Sprintf(toolFormatPrompt, st.Question, selection.ToolName, result),
	}})
	if err != nil {
		// The tool already ran; fall back to its raw output.
		st.setFinalAnswer(result)
		return
	}
	st.ResultPayload = result
	st.setFinalAnswer(formatted)
}

func (e *Engine) failTool(st *State, err error) {
	metrics.NodeErrors.WithLabelValues("tool").Inc()
	st.setFinalAnswer(fmt.Sprintf("Error executing MCP tool: %v", err))
}

// toolExists requires an exact match on both the tool and server name.
func toolExists(tools []mcp.Tool, selection toolSelection) bool {
	for _, t := range tools {
		if t.Name == selection.ToolName && t.ServerName == selection.ServerName {
			return true
		}
	}
	return false
}
