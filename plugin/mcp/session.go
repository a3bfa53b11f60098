package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	protocolVersion = "2024-11-05"
	clientName      = "agentd"

	scannerInitialBufSize = 64 * 1024
	scannerMaxBufSize     = 4 * 1024 * 1024

	callTimeout = 60 * time.Second
)

// Tool is one callable tool as advertised by a server.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
	ServerName  string         `json:"server_name"`
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	ID     *int64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// session is one live stdio connection to a tool server.
type session struct {
	name   string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	reader *bufio.Scanner

	mu     sync.Mutex
	nextID int64
}

// newSession launches the server process and performs the protocol
// handshake.
func newSession(ctx context.Context, name string, cfg ServerConfig) (*session, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = os.Environ()
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "stdout pipe")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "failed to start server %s", name)
	}

	reader := bufio.NewScanner(stdout)
	buf := make([]byte, 0, scannerInitialBufSize)
	reader.Buffer(buf, scannerMaxBufSize)

	s := &session{name: name, cmd: cmd, stdin: stdin, reader: reader}
	if err := s.initialize(ctx); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *session) initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": clientName, "version": "1.0"},
	}
	if _, err := s.call(ctx, "initialize", params); err != nil {
		return errors.Wrapf(err, "initialize handshake with %s failed", s.name)
	}
	return s.notify("notifications/initialized", nil)
}

// call sends one request and blocks for the matching response. Requests on
// a session are serialized; stdio servers answer in order.
func (s *session) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	req := rpcRequest{JSONRPC: "2.0", ID: &id, Method: method, Params: params}
	if err := s.send(req); err != nil {
		return nil, err
	}

	type outcome struct {
		result json.RawMessage
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		for s.reader.Scan() {
			line := s.reader.Bytes()
			if len(line) == 0 {
				continue
			}
			var resp rpcResponse
			if err := json.Unmarshal(line, &resp); err != nil {
				continue
			}
			// Skip server-initiated notifications.
			if resp.ID == nil || *resp.ID != id {
				continue
			}
			if resp.Error != nil {
				ch <- outcome{err: errors.Errorf("%s: %s (code %d)", method, resp.Error.Message, resp.Error.Code)}
				return
			}
			ch <- outcome{result: resp.Result}
			return
		}
		err := s.reader.Err()
		if err == nil {
			err = io.EOF
		}
		ch <- outcome{err: errors.Wrapf(err, "server %s closed its output", s.name)}
	}()

	select {
	case out := <-ch:
		return out.result, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(callTimeout):
		return nil, errors.Errorf("%s call to %s timed out", method, s.name)
	}
}

func (s *session) notify(method string, params any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.send(rpcRequest{JSONRPC: "2.0", Method: method, Params: params})
}

func (s *session) send(req rpcRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "failed to encode request")
	}
	data = append(data, '\n')
	if _, err := s.stdin.Write(data); err != nil {
		return errors.Wrapf(err, "failed to write to server %s", s.name)
	}
	return nil
}

func (s *session) listTools(ctx context.Context) ([]Tool, error) {
	result, err := s.call(ctx, "tools/list", map[string]any{})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Tools []Tool `json:"tools"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, errors.Wrapf(err, "invalid tools/list response from %s", s.name)
	}
	for i := range payload.Tools {
		payload.Tools[i].ServerName = s.name
	}
	return payload.Tools, nil
}

func (s *session) callTool(ctx context.Context, name string, arguments map[string]any) (string, error) {
	if arguments == nil {
		arguments = map[string]any{}
	}
	result, err := s.call(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": arguments,
	})
	if err != nil {
		return "", err
	}
	return extractText(result)
}

// extractText flattens the content blocks of a tools/call result into the
// concatenated text parts.
func extractText(result json.RawMessage) (string, error) {
	var payload struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return "", errors.Wrap(err, "invalid tools/call response")
	}

	text := ""
	for _, block := range payload.Content {
		if block.Type != "text" {
			continue
		}
		if text != "" {
			text += "\n"
		}
		text += block.Text
	}
	if payload.IsError {
		return "", errors.Errorf("tool reported an error: %s", text)
	}
	return text, nil
}

func (s *session) close() {
	s.stdin.Close()
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.cmd.Wait()
}
