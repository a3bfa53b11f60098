// Package agent implements the request orchestration engine: a question is
// classified onto a route, executed by the route's backend node with
// bounded retry for query generation failures, and rendered into a final
// answer, with progress streamed to the caller as it happens.
package agent

import (
	"strings"

	"github.com/ttpunch/AgentProject/ai/llm"
)

// Route is the backend category selected for a request.
type Route string

const (
	// RouteStructured answers from the relational store via generated SQL.
	RouteStructured Route = "POSTGRES"
	// RouteAggregate answers from the document store via a generated
	// aggregation pipeline.
	RouteAggregate Route = "MONGO"
	// RouteKnowledge answers from the vector knowledge base.
	RouteKnowledge Route = "RAG"
	// RouteForecast runs the vibration trend predictor.
	RouteForecast Route = "FORECAST"
	// RouteAnalytics runs the advanced statistical models.
	RouteAnalytics Route = "DATA_SCIENCE"
	// RouteTool invokes an external tool server.
	RouteTool Route = "MCP"
	// RouteChat is the conversational fallback.
	RouteChat Route = "CHAT"
)

// knownRoutes is the closed set a classifier decision must land in.
var knownRoutes = map[Route]bool{
	RouteStructured: true,
	RouteAggregate:  true,
	RouteKnowledge:  true,
	RouteForecast:   true,
	RouteAnalytics:  true,
	RouteTool:       true,
	RouteChat:       true,
}

// ParseRoute normalizes a raw classifier decision. Anything outside the
// known set degrades to CHAT so a drifting classifier can never fail a
// request outright.
func ParseRoute(raw string) Route {
	r := Route(strings.ToUpper(strings.TrimSpace(raw)))
	if knownRoutes[r] {
		return r
	}
	return RouteChat
}

// maxRetries is the retry ceiling for query generation failures.
const maxRetries = 3

// State is the mutable record threaded through one request's lifecycle.
// Each request owns its own instance; nothing here is shared.
type State struct {
	Question    string
	ChatHistory []llm.Message
	Provider    string

	Route          Route
	SchemaContext  string
	GeneratedQuery string
	ResultPayload  string
	ChartData      []map[string]any
	ChartType      string

	// Error is set by a node on failure and cleared on success; its
	// presence is the sole retry trigger.
	Error      string
	RetryCount int

	FinalAnswer string
	answered    bool
}

// setFinalAnswer records the terminal answer. Exactly one write is allowed
// per request; later writes are ignored.
func (s *State) setFinalAnswer(answer string) {
	if s.answered {
		return
	}
	s.answered = true
	s.FinalAnswer = answer
}

// Answered reports whether a terminal answer has been written.
func (s *State) Answered() bool {
	return s.answered
}

// formatHistory renders the chat history for prompt interpolation.
func formatHistory(history []llm.Message) string {
	if len(history) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, m := range history {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
