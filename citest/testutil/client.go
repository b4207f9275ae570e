package testutil

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TestClient is the HTTP helper the suites drive the server with
type TestClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewTestClient builds a client against baseURL
func NewTestClient(baseURL string) *TestClient {
	return &TestClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// RequestOption mutates an outgoing request
type RequestOption func(*http.Request)

// WithHeader sets one request header
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

// WithQuery adds query parameters
func WithQuery(params map[string]string) RequestOption {
	return func(r *http.Request) {
		q := r.URL.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		r.URL.RawQuery = q.Encode()
	}
}

// Response wraps HTTP response with helpers
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// JSON unmarshals response body into v
func (r *Response) JSON(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// String returns response body as string
func (r *Response) String() string {
	return string(r.Body)
}

// IsSuccess returns true if status code is 2xx
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (c *TestClient) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, opts...)
}

// Post performs HTTP POST request with JSON body
func (c *TestClient) Post(ctx context.Context, path string, body interface{}, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, body, opts...)
}

// Patch performs HTTP PATCH request with JSON body
func (c *TestClient) Patch(ctx context.Context, path string, body interface{}, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodPatch, path, body, opts...)
}

// Delete performs HTTP DELETE request
func (c *TestClient) Delete(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodDelete, path, nil, opts...)
}

// do performs the actual HTTP request
func (c *TestClient) do(ctx context.Context, method, path string, body interface{}, opts ...RequestOption) (*Response, error) {
	fullURL := c.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}, nil
}

// StreamingResponse represents a chunked streaming response
type StreamingResponse struct {
	StatusCode int
	Headers    http.Header
	reader     *bufio.Reader
	body       io.ReadCloser
}

// PostStreaming performs HTTP POST and returns streaming response
func (c *TestClient) PostStreaming(ctx context.Context, path string, body interface{}, opts ...RequestOption) (*StreamingResponse, error) {
	fullURL := c.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	for _, opt := range opts {
		opt(req)
	}

	// Use client without timeout for streaming
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return &StreamingResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		reader:     bufio.NewReader(resp.Body),
		body:       resp.Body,
	}, nil
}

// ReadChunk reads the next JSON chunk from streaming response
func (sr *StreamingResponse) ReadChunk(v interface{}) error {
	line, err := sr.reader.ReadBytes('\n')
	if err != nil {
		return err
	}

	// Skip empty lines
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return sr.ReadChunk(v)
	}

	return json.Unmarshal(line, v)
}

// ReadAllChunks reads all chunks into a slice
func (sr *StreamingResponse) ReadAllChunks(factory func() interface{}) ([]interface{}, error) {
	var chunks []interface{}
	for {
		chunk := factory()
		err := sr.ReadChunk(chunk)
		if err == io.EOF {
			break
		}
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// Close closes the streaming response
func (sr *StreamingResponse) Close() error {
	if sr.body != nil {
		return sr.body.Close()
	}
	return nil
}

// ---- Session Helpers ----

// Session represents a session response
type Session struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Directory string `json:"directory"`
}

func (c *TestClient) CreateSession(ctx context.Context, directory string) (*Session, error) {
	resp, err := c.Post(ctx, "/session", map[string]string{
		"directory": directory,
	})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to create session: %d - %s", resp.StatusCode, resp.String())
	}

	var session Session
	if err := resp.JSON(&session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSession retrieves a session by ID
func (c *TestClient) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	resp, err := c.Get(ctx, "/session/"+sessionID)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to get session: %d - %s", resp.StatusCode, resp.String())
	}

	var session Session
	if err := resp.JSON(&session); err != nil {
		return nil, err
	}
	return &session, nil
}

// DeleteSession deletes a session
func (c *TestClient) DeleteSession(ctx context.Context, sessionID string) error {
	resp, err := c.Delete(ctx, "/session/"+sessionID)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("failed to delete session: %d - %s", resp.StatusCode, resp.String())
	}
	return nil
}

// ListSessions lists all sessions
func (c *TestClient) ListSessions(ctx context.Context) ([]Session, error) {
	resp, err := c.Get(ctx, "/session")
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to list sessions: %d - %s", resp.StatusCode, resp.String())
	}

	var sessions []Session
	if err := resp.JSON(&sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// ---- Message Helpers ----

// MessagePart represents a message part
type MessagePart struct {
	Type    string          `json:"type"`
	Text    string          `json:"text,omitempty"`
	Content string          `json:"content,omitempty"`
	Tool    json.RawMessage `json:"tool,omitempty"`
}

// Message represents a message
type Message struct {
	ID        string        `json:"id"`
	SessionID string        `json:"sessionID"`
	Role      string        `json:"role"`
	Content   string        `json:"content"`
	Parts     []MessagePart `json:"parts,omitempty"`
}

// MessageResponse is one transcript entry: a message plus its parts.
type MessageResponse struct {
	Info  *Message `json:"info,omitempty"`
	Parts []MessagePart `json:"parts,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// SessionMessages is the POST message response: the transcript as of
// scheduling plus the running flag.
type SessionMessages struct {
	Messages []MessageResponse `json:"messages"`
	Running  bool              `json:"running"`
}

// ErrorResponse represents an error
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SendMessageRequest represents a send message request
type SendMessageRequest struct {
	Content string `json:"content"`
	Agent   string `json:"agent,omitempty"`
}

// SendMessageAsync posts a message and returns the scheduling response
// without waiting for the sampling loop to finish.
func (c *TestClient) SendMessageAsync(ctx context.Context, sessionID, content string) (*SessionMessages, error) {
	resp, err := c.Post(ctx, "/session/"+sessionID+"/message", SendMessageRequest{
		Content: content,
	})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to send message: %d - %s", resp.StatusCode, resp.String())
	}

	var out SessionMessages
	if err := resp.JSON(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SessionStatus reads the session's processing status ("idle" or
// "processing").
func (c *TestClient) SessionStatus(ctx context.Context, sessionID string) (string, error) {
	resp, err := c.Get(ctx, "/session/status?sessionID="+url.QueryEscape(sessionID))
	if err != nil {
		return "", err
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("failed to get status: %d", resp.StatusCode)
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := resp.JSON(&body); err != nil {
		return "", err
	}
	return body.Status, nil
}

// WaitForIdle polls the session status until the sampling loop finishes
// or ctx expires.
func (c *TestClient) WaitForIdle(ctx context.Context, sessionID string) error {
	for {
		status, err := c.SessionStatus(ctx, sessionID)
		if err == nil && status == "idle" {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// SendMessage posts a message, waits for the sampling loop to go idle,
// and returns the final assistant message from the transcript.
func (c *TestClient) SendMessage(ctx context.Context, sessionID, content string) (*MessageResponse, error) {
	if _, err := c.SendMessageAsync(ctx, sessionID, content); err != nil {
		return nil, err
	}
	if err := c.WaitForIdle(ctx, sessionID); err != nil {
		return nil, err
	}

	entries, err := c.GetMessageEntries(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Info != nil && entries[i].Info.Role == "assistant" {
			e := entries[i]
			if e.Info.Content == "" {
				e.Info.Content = joinTextParts(e.Parts)
			}
			return &e, nil
		}
	}
	return nil, fmt.Errorf("no assistant message in transcript")
}

// joinTextParts concatenates a message's text parts, since the wire
// message object itself carries no content field.
func joinTextParts(parts []MessagePart) string {
	var b strings.Builder
	for _, p := range parts {
		if p.Type == "text" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// GetMessageEntries retrieves the transcript as message+parts entries.
func (c *TestClient) GetMessageEntries(ctx context.Context, sessionID string) ([]MessageResponse, error) {
	resp, err := c.Get(ctx, "/session/"+sessionID+"/message")
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to get messages: %d - %s", resp.StatusCode, resp.String())
	}
	var entries []MessageResponse
	if err := resp.JSON(&entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetMessages retrieves all messages in a session
func (c *TestClient) GetMessages(ctx context.Context, sessionID string) ([]Message, error) {
	resp, err := c.Get(ctx, "/session/"+sessionID+"/message")
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to get messages: %d - %s", resp.StatusCode, resp.String())
	}

	var messages []Message
	if err := resp.JSON(&messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// ---- File Helpers ----

// FileEntry represents a file/directory entry
type FileEntry struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	IsDir bool   `json:"isDir"`
	Size  int64  `json:"size"`
}

// FileContent represents file content response
type FileContent struct {
	Content   string `json:"content"`
	Lines     int    `json:"lines"`
	Truncated bool   `json:"truncated"`
}

// ListFiles lists directory contents
func (c *TestClient) ListFiles(ctx context.Context, path string) ([]FileEntry, error) {
	resp, err := c.Get(ctx, "/file", WithQuery(map[string]string{"path": path}))
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to list files: %d - %s", resp.StatusCode, resp.String())
	}

	var entries []FileEntry
	if err := resp.JSON(&entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ReadFile reads file content
func (c *TestClient) ReadFile(ctx context.Context, path string) (*FileContent, error) {
	resp, err := c.Get(ctx, "/file/content", WithQuery(map[string]string{"path": path}))
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to read file: %d - %s", resp.StatusCode, resp.String())
	}

	var content FileContent
	if err := resp.JSON(&content); err != nil {
		return nil, err
	}
	return &content, nil
}

// ---- Config Helpers ----

// Provider represents a provider
type Provider struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Models []Model `json:"models"`
}

// Model represents a model
type Model struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ContextLength int    `json:"contextLength"`
}

// GetProviders lists available providers
func (c *TestClient) GetProviders(ctx context.Context) ([]Provider, error) {
	resp, err := c.Get(ctx, "/config/providers")
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to get providers: %d - %s", resp.StatusCode, resp.String())
	}

	var providers []Provider
	if err := resp.JSON(&providers); err != nil {
		return nil, err
	}
	return providers, nil
}

// ---- Search Helpers ----

// SearchMatch represents a search match
type SearchMatch struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Content string `json:"content"`
}

// SearchResult represents search results
type SearchResult struct {
	Matches   []SearchMatch `json:"matches"`
	Count     int           `json:"count"`
	Truncated bool          `json:"truncated"`
}

// SearchText searches for text in files
func (c *TestClient) SearchText(ctx context.Context, query string) (*SearchResult, error) {
	resp, err := c.Get(ctx, "/find", WithQuery(map[string]string{"query": url.QueryEscape(query)}))
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to search: %d - %s", resp.StatusCode, resp.String())
	}

	var result SearchResult
	if err := resp.JSON(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SearchFiles searches for files by pattern
func (c *TestClient) SearchFiles(ctx context.Context, pattern string) ([]string, error) {
	resp, err := c.Get(ctx, "/find/file", WithQuery(map[string]string{"pattern": pattern}))
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to search files: %d - %s", resp.StatusCode, resp.String())
	}

	var files []string
	if err := resp.JSON(&files); err != nil {
		return nil, err
	}
	return files, nil
}

// ---- Assertion Helpers ----

// ContainsString checks if a string slice contains a value
func ContainsString(slice []string, val string) bool {
	for _, s := range slice {
		if s == val {
			return true
		}
	}
	return false
}

// ContainsSubstring checks if any string in slice contains substring
func ContainsSubstring(slice []string, substr string) bool {
	for _, s := range slice {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}
