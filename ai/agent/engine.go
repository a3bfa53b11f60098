package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ttpunch/AgentProject/ai/llm"
	"github.com/ttpunch/AgentProject/ai/metrics"
	"github.com/ttpunch/AgentProject/ai/rag"
	"github.com/ttpunch/AgentProject/connectors/base"
	"github.com/ttpunch/AgentProject/plugin/mcp"
)

// Providers resolves the text generation backend for a request.
type Providers interface {
	Get(provider string) llm.Service
}

// StructuredStore is the relational backend consumed by the SQL node.
type StructuredStore interface {
	FetchQuery(ctx context.Context, query string) (*base.Table, error)
	IntrospectSchema(ctx context.Context) (string, error)
}

// DocumentStore is the time-series document backend consumed by the
// aggregation and analytics nodes.
type DocumentStore interface {
	Aggregate(ctx context.Context, collection string, pipeline any) ([]map[string]any, error)
}

// KnowledgeBase serves similarity search over indexed documents.
type KnowledgeBase interface {
	Query(ctx context.Context, question string, k int) ([]rag.Chunk, error)
}

// ToolRegistry exposes external tool servers.
type ToolRegistry interface {
	ListAllTools(ctx context.Context) []mcp.Tool
	CallTool(ctx context.Context, serverName, toolName string, arguments map[string]any) (string, error)
}

// Request is one question to answer.
type Request struct {
	Question string
	History  []llm.Message
	Provider string
	// SessionID scopes transcript persistence; the engine carries it but
	// does not interpret it.
	SessionID string
}

// Engine executes requests across the backend nodes. All collaborators are
// safe for concurrent use; the engine itself holds no per-request state.
type Engine struct {
	providers Providers
	db        StructuredStore
	docs      DocumentStore
	knowledge KnowledgeBase
	tools     ToolRegistry
}

// New creates an Engine. The knowledge base and tool registry may be nil;
// their routes then answer with a descriptive error.
func New(providers Providers, db StructuredStore, docs DocumentStore, knowledge KnowledgeBase, tools ToolRegistry) *Engine {
	return &Engine{
		providers: providers,
		db:        db,
		docs:      docs,
		knowledge: knowledge,
		tools:     tools,
	}
}

// Run executes a request to completion and returns the final state.
func (e *Engine) Run(ctx context.Context, req Request) (*State, error) {
	st := newState(req)
	if err := e.execute(ctx, st, func(Event) {}); err != nil {
		return nil, err
	}
	return st, nil
}

// streamBuffer bounds the event channel so a slow consumer applies
// backpressure to the producing request.
const streamBuffer = 16

// Stream executes a request and emits progress events as they happen. The
// returned channel closes when the request finishes; cancelling ctx stops
// backend work promptly and abandons the stream.
func (e *Engine) Stream(ctx context.Context, req Request) <-chan Event {
	ch := make(chan Event, streamBuffer)

	go func() {
		defer close(ch)
		metrics.ActiveStreams.Inc()
		defer metrics.ActiveStreams.Dec()

		emit := func(ev Event) {
			select {
			case ch <- ev:
			case <-ctx.Done():
			}
		}

		emit(statusEvent("Starting Agent..."))
		st := newState(req)
		if err := e.execute(ctx, st, emit); err != nil {
			slog.Error("agent request failed", "error", err, "session", req.SessionID)
			emit(Event{Type: EventError, Content: err.Error()})
		}
	}()
	return ch
}

func newState(req Request) *State {
	return &State{
		Question:    req.Question,
		ChatHistory: req.History,
		Provider:    req.Provider,
	}
}

// execute drives one request through classification, the routed node, the
// retry policy and synthesis. Node-level failures become answer text; only
// engine-level failures (a dead generation provider mid-pipeline) surface
// as an error.
func (e *Engine) execute(ctx context.Context, st *State, emit func(Event)) error {
	startTime := time.Now()

	emit(statusEvent("Routing Question..."))
	route, err := e.classify(ctx, st)
	if err != nil {
		return err
	}
	st.Route = route
	metrics.RequestsTotal.WithLabelValues(string(route)).Inc()
	slog.Info("question routed", "route", route, "question", st.Question)

	switch route {
	case RouteChat:
		e.runChat(ctx, st)
	case RouteKnowledge:
		emit(statusEvent("Consulting Knowledge Base..."))
		e.runKnowledge(ctx, st)
	case RouteForecast:
		emit(statusEvent("Calculating Prediction..."))
		e.runForecast(ctx, st)
	case RouteAnalytics:
		emit(statusEvent("Routing Data Science Task..."))
		e.runAnalytics(ctx, st, emit)
	case RouteTool:
		emit(statusEvent("Consulting MCP Tools..."))
		e.runTool(ctx, st)
	case RouteStructured, RouteAggregate:
		if err := e.runQueryPipeline(ctx, st, emit); err != nil {
			return err
		}
	}

	metrics.RequestDuration.WithLabelValues(string(route)).Observe(time.Since(startTime).Seconds())
	emit(answerEvent(st))
	return nil
}

// runQueryPipeline handles the two retryable routes: schema load, the
// generate-execute-repair loop, then synthesis.
func (e *Engine) runQueryPipeline(ctx context.Context, st *State, emit func(Event)) error {
	emit(statusEvent("Loading Database Schema..."))
	st.SchemaContext = e.loadSchemaContext(ctx)

	for {
		var err error
		switch st.Route {
		case RouteStructured:
			emit(statusEvent("Querying Postgres Database..."))
			err = e.runStructured(ctx, st)
		default:
			emit(statusEvent("Querying MongoDB..."))
			err = e.runAggregate(ctx, st)
		}
		if err != nil {
			return err
		}

		if st.Error != "" && st.RetryCount < maxRetries {
			metrics.RetriesTotal.WithLabelValues(string(st.Route)).Inc()
			if st.Route == RouteStructured {
				emit(logEvent(fmt.Sprintf("SQL Error: %s. Retrying...", st.Error)))
			} else {
				emit(logEvent(fmt.Sprintf("Pipeline Error: %s. Retrying...", st.Error)))
			}
			continue
		}
		break
	}

	if st.Error == "" && st.Route == RouteStructured {
		emit(logEvent(fmt.Sprintf("SQL: %s", st.GeneratedQuery)))
	}

	emit(statusEvent("Analyzing Data..."))
	return e.runSynthesis(ctx, st)
}

// chat resolves the provider and performs one generation call.
func (e *Engine) chat(ctx context.Context, st *State, messages []llm.Message) (string, error) {
	return e.providers.Get(st.Provider).Chat(ctx, messages)
}
