package agent

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ttpunch/AgentProject/ai/llm"
	"github.com/ttpunch/AgentProject/ai/rag"
	"github.com/ttpunch/AgentProject/connectors/base"
	"github.com/ttpunch/AgentProject/plugin/mcp"
)

// scriptedLLM returns canned responses in order, acting as every provider.
type scriptedLLM struct {
	responses []string
	calls     int
}

func (s *scriptedLLM) Chat(_ context.Context, _ []llm.Message) (string, error) {
	if s.calls >= len(s.responses) {
		return "", errors.New("no scripted response left")
	}
	resp := s.responses[s.calls]
	s.calls++
	return resp, nil
}

func (s *scriptedLLM) Get(string) llm.Service { return s }

type fakeDB struct {
	queries    []string
	fetch      func(query string) (*base.Table, error)
	introspect string
}

func (f *fakeDB) FetchQuery(_ context.Context, query string) (*base.Table, error) {
	f.queries = append(f.queries, query)
	return f.fetch(query)
}

func (f *fakeDB) IntrospectSchema(context.Context) (string, error) {
	if f.introspect == "" {
		return "Postgres Schema:\n\nTable: machines\n  - machine_id (text)", nil
	}
	return f.introspect, nil
}

type fakeDocs struct {
	calls     int
	aggregate func(pipeline any) ([]map[string]any, error)
}

func (f *fakeDocs) Aggregate(_ context.Context, _ string, pipeline any) ([]map[string]any, error) {
	f.calls++
	return f.aggregate(pipeline)
}

type fakeKB struct {
	chunks []rag.Chunk
}

func (f *fakeKB) Query(context.Context, string, int) ([]rag.Chunk, error) {
	return f.chunks, nil
}

type fakeTools struct {
	tools  []mcp.Tool
	called []string
	result string
}

func (f *fakeTools) ListAllTools(context.Context) []mcp.Tool { return f.tools }

func (f *fakeTools) CallTool(_ context.Context, server, tool string, _ map[string]any) (string, error) {
	f.called = append(f.called, server+"/"+tool)
	return f.result, nil
}

func machinesTable() *base.Table {
	return &base.Table{
		Columns: []string{"machine_id", "model"},
		Rows: []map[string]any{
			{"machine_id": "CNC-001", "model": "VMC-850"},
			{"machine_id": "CNC-002", "model": "VMC-850"},
		},
	}
}

func collectEvents(ch <-chan Event) []Event {
	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestParseRouteCoercesUnknownToChat(t *testing.T) {
	tests := []struct {
		raw  string
		want Route
	}{
		{"POSTGRES", RouteStructured},
		{" mongo \n", RouteAggregate},
		{"rag", RouteKnowledge},
		{"DATA_SCIENCE", RouteAnalytics},
		{"MCP", RouteTool},
		{"FORECAST", RouteForecast},
		{"CHAT", RouteChat},
		{"BANANA", RouteChat},
		{"", RouteChat},
		{"POSTGRES or MONGO", RouteChat},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRoute(tt.raw))
		})
	}
}

func TestSanitizeQuery(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"fenced with comments",
			"```sql\n-- list machines\nSELECT *\nFROM machines\n```",
			"SELECT * FROM machines",
		},
		{
			"trailing comma",
			"SELECT machine_id,",
			"SELECT machine_id",
		},
		{
			"clean passthrough",
			"SELECT count(*) FROM machines",
			"SELECT count(*) FROM machines",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeQuery(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, sanitizeQuery(got), "sanitization is idempotent")
		})
	}
}

func TestFinalAnswerWrittenOnce(t *testing.T) {
	st := &State{}
	st.setFinalAnswer("first")
	st.setFinalAnswer("second")
	assert.Equal(t, "first", st.FinalAnswer)
	assert.True(t, st.Answered())
}

func TestUnknownClassificationFallsBackToChat(t *testing.T) {
	gen := &scriptedLLM{responses: []string{"SOMETHING ELSE", "Hello! How can I help?"}}
	e := New(gen, &fakeDB{}, &fakeDocs{}, nil, nil)

	st, err := e.Run(context.Background(), Request{Question: "hi"})
	require.NoError(t, err)
	assert.Equal(t, RouteChat, st.Route)
	assert.Equal(t, "Hello! How can I help?", st.FinalAnswer)
}

func TestStructuredHappyPathStreamOrdering(t *testing.T) {
	gen := &scriptedLLM{responses: []string{
		"POSTGRES",
		"SELECT machine_id, model FROM machines",
		"There are **2 machines**: CNC-001 and CNC-002.",
	}}
	db := &fakeDB{fetch: func(string) (*base.Table, error) { return machinesTable(), nil }}
	e := New(gen, db, &fakeDocs{}, nil, nil)

	events := collectEvents(e.Stream(context.Background(), Request{Question: "List all machines"}))

	want := []Event{
		statusEvent("Starting Agent..."),
		statusEvent("Routing Question..."),
		statusEvent("Loading Database Schema..."),
		statusEvent("Querying Postgres Database..."),
		logEvent("SQL: SELECT machine_id, model FROM machines"),
		statusEvent("Analyzing Data..."),
	}
	require.GreaterOrEqual(t, len(events), len(want)+1)
	assert.Equal(t, want, events[:len(want)])

	last := events[len(events)-1]
	assert.Equal(t, EventAnswer, last.Type)
	assert.Contains(t, last.Content, "2 machines")
}

func TestStructuredRetriesThenSucceeds(t *testing.T) {
	gen := &scriptedLLM{responses: []string{
		"POSTGRES",
		"SELECT bad1",
		"SELECT bad2",
		"SELECT machine_id, model FROM machines",
		"Here is the list.",
	}}
	db := &fakeDB{fetch: func(query string) (*base.Table, error) {
		if query == "SELECT bad1" || query == "SELECT bad2" {
			return nil, errors.New(`column "bad" does not exist`)
		}
		return machinesTable(), nil
	}}
	e := New(gen, db, &fakeDocs{}, nil, nil)

	st, err := e.Run(context.Background(), Request{Question: "List all machines"})
	require.NoError(t, err)
	assert.Equal(t, 2, st.RetryCount, "two failures before the success")
	assert.Empty(t, st.Error)
	assert.Equal(t, "Here is the list.", st.FinalAnswer)
	assert.Len(t, db.queries, 3)
}

func TestStructuredRetryStreamEvents(t *testing.T) {
	gen := &scriptedLLM{responses: []string{
		"POSTGRES",
		"SELECT bad1",
		"SELECT bad2",
		"SELECT machine_id, model FROM machines",
		"Here is the list.",
	}}
	db := &fakeDB{fetch: func(query string) (*base.Table, error) {
		if query == "SELECT bad1" || query == "SELECT bad2" {
			return nil, errors.New("syntax error")
		}
		return machinesTable(), nil
	}}
	e := New(gen, db, &fakeDocs{}, nil, nil)

	events := collectEvents(e.Stream(context.Background(), Request{Question: "List all machines"}))

	var logs []string
	answers := 0
	for _, ev := range events {
		switch ev.Type {
		case EventLog:
			logs = append(logs, ev.Content)
		case EventAnswer:
			answers++
		}
	}
	require.Len(t, logs, 3)
	assert.Contains(t, logs[0], "Retrying")
	assert.Contains(t, logs[1], "Retrying")
	assert.Equal(t, "SQL: SELECT machine_id, model FROM machines", logs[2])
	assert.Equal(t, 1, answers)
}

func TestStructuredRetryExhaustionSurfacesError(t *testing.T) {
	gen := &scriptedLLM{responses: []string{
		"POSTGRES",
		"SELECT bad", "SELECT bad", "SELECT bad",
	}}
	db := &fakeDB{fetch: func(string) (*base.Table, error) {
		return nil, errors.New(`relation "nope" does not exist`)
	}}
	e := New(gen, db, &fakeDocs{}, nil, nil)

	st, err := e.Run(context.Background(), Request{Question: "List all machines"})
	require.NoError(t, err)
	assert.Equal(t, 3, st.RetryCount)
	assert.Equal(t, `I encountered an error while querying the database: relation "nope" does not exist`, st.FinalAnswer)
	assert.NotEmpty(t, st.GeneratedQuery, "failing query stays on the state")
	assert.Len(t, db.queries, 3)
}

func TestAggregateNormalizesChartTimestamps(t *testing.T) {
	gen := &scriptedLLM{responses: []string{
		"MONGO",
		`[{"$sort": {"timestamp": -1}}, {"$limit": 2}]`,
		"The latest readings are shown below.",
	}}
	docs := &fakeDocs{aggregate: func(any) ([]map[string]any, error) {
		return []map[string]any{
			{"machine_id": "CNC-001", "timestamp": time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC), "vibration": 3.2},
		}, nil
	}}
	e := New(gen, &fakeDB{}, docs, nil, nil)

	st, err := e.Run(context.Background(), Request{Question: "show highest vibration"})
	require.NoError(t, err)
	require.Len(t, st.ChartData, 1)
	assert.Equal(t, "2026-08-01 10:00:00", st.ChartData[0]["timestamp"])
	assert.Equal(t, "The latest readings are shown below.", st.FinalAnswer)
}

func TestAggregateInvalidPipelineKeepsQueryWithError(t *testing.T) {
	gen := &scriptedLLM{responses: []string{
		"MONGO",
		"this is not json",
		`[{"$limit": 1}]`,
		"done",
	}}
	docs := &fakeDocs{aggregate: func(any) ([]map[string]any, error) {
		return []map[string]any{{"machine_id": "CNC-001"}}, nil
	}}
	e := New(gen, &fakeDB{}, docs, nil, nil)

	st, err := e.Run(context.Background(), Request{Question: "average temperature"})
	require.NoError(t, err)
	assert.Equal(t, 1, st.RetryCount, "one repair attempt for the bad pipeline")
	assert.Empty(t, st.Error)
	assert.Equal(t, `[{"$limit": 1}]`, st.GeneratedQuery)
}

func TestAnalyticsWithoutMachineIDMakesNoBackendCalls(t *testing.T) {
	gen := &scriptedLLM{responses: []string{
		"DATA_SCIENCE",
		"REALTIME",
	}}
	db := &fakeDB{fetch: func(string) (*base.Table, error) {
		t.Fatal("structured store must not be called")
		return nil, nil
	}}
	docs := &fakeDocs{aggregate: func(any) ([]map[string]any, error) {
		t.Fatal("document store must not be called")
		return nil, nil
	}}
	e := New(gen, db, docs, nil, nil)

	st, err := e.Run(context.Background(), Request{Question: "run anomaly detection"})
	require.NoError(t, err)
	assert.Contains(t, st.FinalAnswer, "Machine ID")
	assert.Empty(t, db.queries)
	assert.Zero(t, docs.calls)
}

func TestForecastWithoutMachineID(t *testing.T) {
	gen := &scriptedLLM{responses: []string{"FORECAST"}}
	docs := &fakeDocs{aggregate: func(any) ([]map[string]any, error) {
		t.Fatal("document store must not be called")
		return nil, nil
	}}
	e := New(gen, &fakeDB{}, docs, nil, nil)

	st, err := e.Run(context.Background(), Request{Question: "when will it fail?"})
	require.NoError(t, err)
	assert.Contains(t, st.FinalAnswer, "Machine ID")
	assert.Zero(t, docs.calls)
}

func TestExtractMachineID(t *testing.T) {
	assert.Equal(t, "CNC-007", extractMachineID("check cnc-007 for outliers"))
	assert.Equal(t, "CNC-123", extractMachineID("is CNC-123 healthy?"))
	assert.Equal(t, "", extractMachineID("check the lathe"))
	assert.Equal(t, "", extractMachineID("CNC-12 is short"))
}

func TestKnowledgeNodeIsTerminal(t *testing.T) {
	gen := &scriptedLLM{responses: []string{
		"RAG",
		"Tighten the spindle bolts to 40 Nm.",
	}}
	kb := &fakeKB{chunks: []rag.Chunk{{Source: "manual.txt", Content: "Spindle bolts: 40 Nm torque."}}}
	e := New(gen, &fakeDB{}, &fakeDocs{}, kb, nil)

	st, err := e.Run(context.Background(), Request{Question: "how do I fix the spindle?"})
	require.NoError(t, err)
	assert.Equal(t, RouteKnowledge, st.Route)
	assert.Equal(t, "Tighten the spindle bolts to 40 Nm.", st.FinalAnswer)
	assert.Zero(t, st.RetryCount)
}

func TestToolSelectionValidatesExactMatch(t *testing.T) {
	gen := &scriptedLLM{responses: []string{
		"MCP",
		`{"tool_name": "list_directory", "server_name": "wrong_server", "arguments": {"path": "/mnt/desktop"}}`,
	}}
	tools := &fakeTools{tools: []mcp.Tool{{Name: "list_directory", ServerName: "filesystem"}}}
	e := New(gen, &fakeDB{}, &fakeDocs{}, nil, tools)

	st, err := e.Run(context.Background(), Request{Question: "list files on my desktop"})
	require.NoError(t, err)
	assert.Contains(t, st.FinalAnswer, "does not exist")
	assert.Empty(t, tools.called, "mismatched selection is never invoked")
}

func TestToolInvocationHappyPath(t *testing.T) {
	gen := &scriptedLLM{responses: []string{
		"MCP",
		`{"tool_name": "list_directory", "server_name": "filesystem", "arguments": {"path": "/mnt/desktop"}}`,
		"Your desktop contains:\n- notes.txt",
	}}
	tools := &fakeTools{
		tools:  []mcp.Tool{{Name: "list_directory", ServerName: "filesystem", Description: "List a directory"}},
		result: "notes.txt",
	}
	e := New(gen, &fakeDB{}, &fakeDocs{}, nil, tools)

	st, err := e.Run(context.Background(), Request{Question: "list files on my desktop"})
	require.NoError(t, err)
	assert.Equal(t, []string{"filesystem/list_directory"}, tools.called)
	assert.Contains(t, st.FinalAnswer, "notes.txt")
}

func TestChatCapabilityInquiryListsTools(t *testing.T) {
	gen := &scriptedLLM{responses: []string{"CHAT"}}
	tools := &fakeTools{tools: []mcp.Tool{
		{Name: "list_directory", ServerName: "filesystem", Description: "List a directory"},
		{Name: "read_file", ServerName: "filesystem", Description: "Read a file"},
	}}
	e := New(gen, &fakeDB{}, &fakeDocs{}, nil, tools)

	st, err := e.Run(context.Background(), Request{Question: "what can you do?"})
	require.NoError(t, err)
	assert.Contains(t, st.FinalAnswer, "Connected MCP Servers: 1")
	assert.Contains(t, st.FinalAnswer, "list_directory")
	assert.Contains(t, st.FinalAnswer, "read_file")
}

func TestStreamCancellationStopsWork(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := &scriptedLLM{responses: []string{"CHAT", "hello"}}
	e := New(gen, &fakeDB{}, &fakeDocs{}, nil, nil)

	ch := e.Stream(ctx, Request{Question: "hi"})
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream did not close after cancellation")
		}
	}
}
