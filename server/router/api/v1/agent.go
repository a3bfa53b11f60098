package v1

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/ttpunch/AgentProject/ai/agent"
	"github.com/ttpunch/AgentProject/ai/llm"
)

type questionRequest struct {
	Question    string        `json:"question"`
	ChatHistory []llm.Message `json:"chat_history"`
	LLMProvider string        `json:"llm_provider"`
	ThreadID    string        `json:"thread_id"`
}

type chatResponse struct {
	Answer    string           `json:"answer"`
	ChartData []map[string]any `json:"chart_data,omitempty"`
	ChartType string           `json:"chart_type,omitempty"`
}

// userLimiter rate-limits agent requests per account.
type userLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newUserLimiter() *userLimiter {
	return &userLimiter{limiters: map[string]*rate.Limiter{}}
}

// allow grants up to one request per second with a burst of five.
func (l *userLimiter) allow(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(1), 5)
		l.limiters[userID] = lim
	}
	return lim.Allow()
}

func (s *APIV1Service) agentRequest(c echo.Context) (*questionRequest, *echo.HTTPError) {
	var req questionRequest
	if err := c.Bind(&req); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Question == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "question is required")
	}
	if !s.agentLimiter.allow(currentUser(c).ID.Hex()) {
		return nil, echo.NewHTTPError(http.StatusTooManyRequests, "too many requests, slow down")
	}
	return &req, nil
}

// AgentChat answers a question in one shot.
func (s *APIV1Service) AgentChat(c echo.Context) error {
	req, httpErr := s.agentRequest(c)
	if httpErr != nil {
		return httpErr
	}
	ctx := c.Request().Context()
	user := currentUser(c)

	st, err := s.Engine.Run(ctx, agent.Request{
		Question:  req.Question,
		History:   req.ChatHistory,
		Provider:  req.LLMProvider,
		SessionID: req.ThreadID,
	})
	if err != nil {
		slog.Error("agent chat failed", "user", user.Username, "error", err)
		return c.JSON(http.StatusOK, chatResponse{
			Answer: "I'm sorry, I encountered an internal error while processing your request.",
		})
	}

	s.persistTurn(c, user.ID.Hex(), req.Question, st.FinalAnswer)
	return c.JSON(http.StatusOK, chatResponse{
		Answer:    st.FinalAnswer,
		ChartData: st.ChartData,
		ChartType: st.ChartType,
	})
}

// AgentStream answers a question as a newline-delimited JSON event stream.
// Closing the connection cancels the in-flight request.
func (s *APIV1Service) AgentStream(c echo.Context) error {
	req, httpErr := s.agentRequest(c)
	if httpErr != nil {
		return httpErr
	}
	ctx := c.Request().Context()
	user := currentUser(c)

	if err := s.streamSemaphore.Acquire(ctx, 1); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "too many open streams")
	}
	defer s.streamSemaphore.Release(1)

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "application/x-ndjson")
	resp.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(resp)

	var finalAnswer string
	for ev := range s.Engine.Stream(ctx, agent.Request{
		Question:  req.Question,
		History:   req.ChatHistory,
		Provider:  req.LLMProvider,
		SessionID: req.ThreadID,
	}) {
		if ev.Type == agent.EventAnswer {
			finalAnswer = ev.Content
		}
		if err := enc.Encode(ev); err != nil {
			// Client went away; ctx cancellation stops the engine.
			return nil
		}
		resp.Flush()
	}

	if finalAnswer != "" {
		s.persistTurn(c, user.ID.Hex(), req.Question, finalAnswer)
	}
	return nil
}

// persistTurn writes both sides of one exchange to the transcript store.
func (s *APIV1Service) persistTurn(c echo.Context, userID, question, answer string) {
	ctx := c.Request().Context()
	if err := s.Store.SaveMessage(ctx, userID, "user", question, nil); err != nil {
		slog.Warn("failed to persist user message", "error", err)
	}
	if err := s.Store.SaveMessage(ctx, userID, "assistant", answer, nil); err != nil {
		slog.Warn("failed to persist assistant message", "error", err)
	}
}

// GetHistory returns the caller's transcript, oldest first.
func (s *APIV1Service) GetHistory(c echo.Context) error {
	limit, _ := strconv.ParseInt(c.QueryParam("limit"), 10, 64)
	messages, err := s.Store.GetHistory(c.Request().Context(), currentUser(c).ID.Hex(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load history")
	}
	return c.JSON(http.StatusOK, messages)
}

// ClearHistory deletes the caller's transcript.
func (s *APIV1Service) ClearHistory(c echo.Context) error {
	deleted, err := s.Store.ClearHistory(c.Request().Context(), currentUser(c).ID.Hex())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to clear history")
	}
	return c.JSON(http.StatusOK, map[string]any{"deleted": deleted})
}
