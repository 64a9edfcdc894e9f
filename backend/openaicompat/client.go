package openaicompat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wahl-chat/wahl-chat-backend/core"
	"github.com/wahl-chat/wahl-chat-backend/internal/httpclient"
	"github.com/wahl-chat/wahl-chat-backend/obs"
)

// Client talks to an OpenAI-compatible chat completions endpoint. Azure
// deployments, OpenAI itself and self-hosted gateways all speak this dialect;
// the differences are confined to headers and query parameters set via
// options.
type Client struct {
	httpClient *http.Client
	opts       options
}

// New constructs a chat completions client.
func New(opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = httpclient.Generation(o.timeout)
	}
	return &Client{httpClient: o.httpClient, opts: o}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.opts.model }

func (c *Client) GenerateText(ctx context.Context, messages []core.Message) (_ string, err error) {
	ctx, recorder := obs.StartRequest(ctx, "backend.openaicompat.GenerateText",
		attribute.String("llm.model", c.opts.model),
	)
	defer func() { recorder.End(err) }()

	payload := c.buildPayload(messages, false, false)
	body, err := c.doRequest(ctx, payload)
	if err != nil {
		return "", err
	}
	defer body.Close()

	var resp chatCompletionResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", core.NewError(core.ErrBackend, "empty choices in completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) GenerateObject(ctx context.Context, messages []core.Message) (_ []byte, err error) {
	ctx, recorder := obs.StartRequest(ctx, "backend.openaicompat.GenerateObject",
		attribute.String("llm.model", c.opts.model),
	)
	defer func() { recorder.End(err) }()

	payload := c.buildPayload(messages, false, true)
	body, err := c.doRequest(ctx, payload)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var resp chatCompletionResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode completion response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, core.NewError(core.ErrBackend, "empty choices in completion response")
	}
	return []byte(resp.Choices[0].Message.Content), nil
}

func (c *Client) StreamText(ctx context.Context, messages []core.Message) (*core.Stream, error) {
	ctx, recorder := obs.StartRequest(ctx, "backend.openaicompat.StreamText",
		attribute.String("llm.model", c.opts.model),
	)

	payload := c.buildPayload(messages, true, false)
	body, err := c.doRequest(ctx, payload)
	if err != nil {
		recorder.End(err)
		return nil, err
	}

	stream := core.NewStream(ctx, 64)
	go func() {
		c.consumeStream(body, stream)
		recorder.End(stream.Err())
	}()
	return stream, nil
}

func (c *Client) buildPayload(messages []core.Message, stream, jsonMode bool) chatCompletionRequest {
	req := chatCompletionRequest{
		Model:       c.opts.model,
		Messages:    make([]chatMessage, 0, len(messages)),
		Temperature: c.opts.temperature,
		MaxTokens:   c.opts.maxTokens,
		Stream:      stream,
	}
	if jsonMode {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	for _, msg := range messages {
		req.Messages = append(req.Messages, chatMessage{Role: string(msg.Role), Content: msg.Content})
	}
	return req
}

func (c *Client) doRequest(ctx context.Context, payload chatCompletionRequest) (io.ReadCloser, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	endpoint := strings.TrimRight(c.opts.baseURL, "/") + "/chat/completions"
	if len(c.opts.query) > 0 {
		values := url.Values{}
		for k, v := range c.opts.query {
			values.Set(k, v)
		}
		endpoint += "?" + values.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.opts.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.apiKey)
	}
	for k, v := range c.opts.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, core.WrapError(err, core.ErrTimeout)
		}
		return nil, core.WrapError(err, core.ErrBackend)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classifyHTTPError(resp.StatusCode, data)
	}
	return resp.Body, nil
}

// classifyHTTPError maps API error responses onto the error taxonomy. Content
// filter rejections must not trigger failover, so they get their own code.
func classifyHTTPError(status int, body []byte) error {
	var parsed apiError
	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		message = parsed.Error.Message
	}
	if status == http.StatusBadRequest && isContentFilter(parsed, message) {
		return core.NewError(core.ErrContentPolicy, message)
	}
	return core.NewError(core.ErrBackend, fmt.Sprintf("status %d: %s", status, message))
}

func isContentFilter(parsed apiError, message string) bool {
	for _, marker := range []string{parsed.Error.Code, parsed.Error.Type, message} {
		lower := strings.ToLower(marker)
		if strings.Contains(lower, "content_filter") || strings.Contains(lower, "content_policy") || strings.Contains(lower, "content management policy") {
			return true
		}
	}
	return false
}

func (c *Client) consumeStream(body io.ReadCloser, stream *core.Stream) {
	defer body.Close()
	defer stream.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 512*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			stream.Push(core.StreamEvent{Type: core.EventFinish, Model: c.opts.model})
			return
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			stream.Fail(fmt.Errorf("decode stream chunk: %w", err))
			return
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			stream.Push(core.StreamEvent{Type: core.EventTextDelta, TextDelta: choice.Delta.Content, Model: chunk.Model})
		}
		if choice.FinishReason != "" && choice.FinishReason != "stop" {
			stream.Push(core.StreamEvent{Type: core.EventFinish, Model: chunk.Model, FinishReason: choice.FinishReason})
			return
		}
	}
	if err := scanner.Err(); err != nil {
		stream.Fail(fmt.Errorf("read stream: %w", err))
		return
	}
	stream.Push(core.StreamEvent{Type: core.EventFinish, Model: c.opts.model})
}
