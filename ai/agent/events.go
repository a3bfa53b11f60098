package agent

// EventType labels one entry of the progress stream.
type EventType string

const (
	// EventStatus announces which step is about to run.
	EventStatus EventType = "status"
	// EventLog carries intermediate detail such as the generated query or
	// a retryable error.
	EventLog EventType = "log"
	// EventAnswer carries the final answer, optionally with chart data.
	EventAnswer EventType = "answer"
	// EventError reports an unrecoverable engine failure.
	EventError EventType = "error"
)

// Event is one newline-delimited JSON record of the progress stream.
type Event struct {
	Type      EventType        `json:"type"`
	Content   string           `json:"content"`
	ChartData []map[string]any `json:"chart_data,omitempty"`
	ChartType string           `json:"chart_type,omitempty"`
}

func statusEvent(content string) Event {
	return Event{Type: EventStatus, Content: content}
}

func logEvent(content string) Event {
	return Event{Type: EventLog, Content: content}
}

// answerEvent builds the terminal event for a finished state, carrying the
// chart payload through unchanged.
func answerEvent(st *State) Event {
	return Event{
		Type:      EventAnswer,
		Content:   st.FinalAnswer,
		ChartData: st.ChartData,
		ChartType: st.ChartType,
	}
}
