package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// foundryClient implements Client against the agents REST surface of an AI
// project endpoint.
type foundryClient struct {
	endpoint         string
	apiKey           string
	apiVersion       string
	client           *http.Client
	maxResponseBytes int64
}

// FoundryOptions configures the agents service client.
type FoundryOptions struct {
	APIVersion       string
	Timeout          time.Duration
	MaxResponseBytes int64
}

// NewFoundry creates an agents service Client.
func NewFoundry(endpoint, apiKey string, opts FoundryOptions) Client {
	if opts.APIVersion == "" {
		opts.APIVersion = "2025-05-01"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxResponseBytes <= 0 {
		opts.MaxResponseBytes = 4 * 1024 * 1024
	}
	return &foundryClient{
		endpoint:         strings.TrimSuffix(endpoint, "/"),
		apiKey:           apiKey,
		apiVersion:       opts.APIVersion,
		maxResponseBytes: opts.MaxResponseBytes,
		client: &http.Client{
			Timeout: opts.Timeout,
		},
	}
}

type wireAgentRequest struct {
	Model        string     `json:"model"`
	Name         string     `json:"name,omitempty"`
	Instructions string     `json:"instructions,omitempty"`
	Tools        []wireTool `json:"tools,omitempty"`
}

type wireTool struct {
	Type          string             `json:"type"`
	BingGrounding *wireBingGrounding `json:"bing_grounding,omitempty"`
}

type wireBingGrounding struct {
	Connections []wireConnection `json:"connections,omitempty"`
}

type wireConnection struct {
	ConnectionID string `json:"connection_id"`
}

type wireID struct {
	ID string `json:"id"`
}

type wireThread struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at"`
}

type wireMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRunRequest struct {
	AssistantID string `json:"assistant_id"`
}

type wireRun struct {
	ID        string `json:"id"`
	ThreadID  string `json:"thread_id"`
	Status    string `json:"status"`
	LastError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error"`
}

type wireMessageList struct {
	Data []wireMessage `json:"data"`
}

type wireMessage struct {
	ID      string               `json:"id"`
	Role    string               `json:"role"`
	Content []wireMessageContent `json:"content"`
}

type wireMessageContent struct {
	Type string `json:"type"`
	Text *struct {
		Value       string           `json:"value"`
		Annotations []wireAnnotation `json:"annotations"`
	} `json:"text"`
}

type wireAnnotation struct {
	Type        string `json:"type"`
	Text        string `json:"text"`
	StartIndex  *int   `json:"start_index"`
	EndIndex    *int   `json:"end_index"`
	URLCitation *struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	} `json:"url_citation"`
}

type wireErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *foundryClient) CreateAgent(ctx context.Context, spec AgentSpec) (string, error) {
	req := wireAgentRequest{
		Model:        spec.Model,
		Name:         spec.Name,
		Instructions: spec.Instructions,
	}
	if spec.EnableGrounding {
		tool := wireTool{Type: "bing_grounding"}
		if spec.BingConnectionID != "" {
			tool.BingGrounding = &wireBingGrounding{
				Connections: []wireConnection{{ConnectionID: spec.BingConnectionID}},
			}
		}
		req.Tools = []wireTool{tool}
	}

	var resp wireID
	if err := c.do(ctx, http.MethodPost, "/assistants", req, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", &ServiceError{Message: "create agent returned no id"}
	}
	return resp.ID, nil
}

func (c *foundryClient) GetAgent(ctx context.Context, agentID string) error {
	var resp wireID
	return c.do(ctx, http.MethodGet, "/assistants/"+agentID, nil, &resp)
}

func (c *foundryClient) CreateThread(ctx context.Context) (*Thread, error) {
	var resp wireThread
	if err := c.do(ctx, http.MethodPost, "/threads", struct{}{}, &resp); err != nil {
		return nil, err
	}
	return threadFromWire(resp), nil
}

func (c *foundryClient) GetThread(ctx context.Context, threadID string) (*Thread, error) {
	var resp wireThread
	if err := c.do(ctx, http.MethodGet, "/threads/"+threadID, nil, &resp); err != nil {
		return nil, err
	}
	return threadFromWire(resp), nil
}

func (c *foundryClient) CreateMessage(ctx context.Context, threadID, role, content string) (string, error) {
	req := wireMessageRequest{Role: role, Content: content}
	var resp wireID
	if err := c.do(ctx, http.MethodPost, "/threads/"+threadID+"/messages", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *foundryClient) CreateRun(ctx context.Context, threadID, agentID string) (*Run, error) {
	req := wireRunRequest{AssistantID: agentID}
	var resp wireRun
	if err := c.do(ctx, http.MethodPost, "/threads/"+threadID+"/runs", req, &resp); err != nil {
		return nil, err
	}
	return runFromWire(threadID, resp), nil
}

func (c *foundryClient) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	var resp wireRun
	if err := c.do(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+runID, nil, &resp); err != nil {
		return nil, err
	}
	return runFromWire(threadID, resp), nil
}

func (c *foundryClient) ListMessages(ctx context.Context, threadID string, limit int) ([]Message, error) {
	path := fmt.Sprintf("/threads/%s/messages", threadID)
	if limit > 0 {
		path = fmt.Sprintf("%s?order=desc&limit=%d", path, limit)
	}
	var resp wireMessageList
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	out := make([]Message, 0, len(resp.Data))
	for _, m := range resp.Data {
		out = append(out, messageFromWire(m))
	}
	return out, nil
}

func (c *foundryClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal agents request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	url := fmt.Sprintf("%s%s%sapi-version=%s", c.endpoint, path, sep, c.apiVersion)

	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create agents request: %w", err)
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return &ServiceError{Message: fmt.Sprintf("call agents service: %v", err)}
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, c.maxResponseBytes+1)
	respBody, err := io.ReadAll(limited)
	if err != nil {
		return &ServiceError{Status: resp.StatusCode, Message: fmt.Sprintf("read agents response: %v", err)}
	}
	if int64(len(respBody)) > c.maxResponseBytes {
		return &ServiceError{Status: resp.StatusCode, Message: fmt.Sprintf("agents response exceeded limit (%d bytes)", c.maxResponseBytes)}
	}

	if resp.StatusCode >= 400 {
		var errBody wireErrorBody
		_ = json.Unmarshal(respBody, &errBody)
		message := errBody.Error.Message
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return &ServiceError{Status: resp.StatusCode, Code: errBody.Error.Code, Message: message}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &ServiceError{Status: resp.StatusCode, Message: fmt.Sprintf("decode agents response: %v", err)}
		}
	}
	return nil
}

func threadFromWire(w wireThread) *Thread {
	t := &Thread{ID: w.ID}
	if w.CreatedAt > 0 {
		t.CreatedAt = time.Unix(w.CreatedAt, 0)
	}
	return t
}

func runFromWire(threadID string, w wireRun) *Run {
	run := &Run{ID: w.ID, ThreadID: w.ThreadID, Status: w.Status}
	if run.ThreadID == "" {
		run.ThreadID = threadID
	}
	if w.LastError != nil {
		run.LastError = &RunError{Code: w.LastError.Code, Message: w.LastError.Message}
	}
	return run
}

func messageFromWire(w wireMessage) Message {
	msg := Message{ID: w.ID, Role: w.Role}
	for _, c := range w.Content {
		mc := MessageContent{Type: c.Type}
		if c.Text != nil {
			text := &MessageText{Value: c.Text.Value}
			for _, a := range c.Text.Annotations {
				ann := MessageAnnotation{
					Type:       a.Type,
					Text:       a.Text,
					StartIndex: -1,
					EndIndex:   -1,
				}
				if a.StartIndex != nil {
					ann.StartIndex = *a.StartIndex
				}
				if a.EndIndex != nil {
					ann.EndIndex = *a.EndIndex
				}
				if a.URLCitation != nil {
					ann.URLCitation = &URLCitation{URL: a.URLCitation.URL, Title: a.URLCitation.Title}
				}
				text.Annotations = append(text.Annotations, ann)
			}
			mc.Text = text
		}
		msg.Content = append(msg.Content, mc)
	}
	return msg
}
