// Package gpt talks to an OpenAI-compatible chat-completions endpoint and
// turns its replies into structured recipes.
package gpt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hammamikhairi/mealscribe/internal/domain"
	"github.com/hammamikhairi/mealscribe/internal/logger"
)

// ── Wire types ───────────────────────────────────────────────────

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of the conversation. Recipes only ever need text,
// so content is sent in the plain-string form.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// System and User build the two turns a generation sends.
func System(text string) Message { return Message{Role: RoleSystem, Content: text} }
func User(text string) Message   { return Message{Role: RoleUser, Content: text} }

type payload struct {
	Model          string          `json:"model,omitempty"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	TopP           float64         `json:"top_p"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// apiResponse is the top-level response envelope. Error is set on
// non-2xx replies; some gateways send a bare string there.
type apiResponse struct {
	Choices []choice        `json:"choices"`
	Usage   *usage          `json:"usage,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

type choice struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason,omitempty"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// errorMessage pulls a readable message out of an error body.
func errorMessage(body []byte) string {
	var env apiResponse
	if json.Unmarshal(body, &env) == nil && len(env.Error) > 0 {
		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(env.Error, &obj) == nil && obj.Message != "" {
			return obj.Message
		}
		var str string
		if json.Unmarshal(env.Error, &str) == nil && str != "" {
			return str
		}
	}
	return truncate(string(body), 200)
}

// ── Client ───────────────────────────────────────────────────────

// Defaults tuned for a single recipe reply.
const (
	defaultTemperature = 0.7
	defaultTopP        = 0.95
	defaultMaxTokens   = 1800
	defaultTimeout     = 90 * time.Second
)

type ClientOption func(*Client)

// WithModel names the model. Azure deployments bake the model into the
// endpoint and leave this empty.
func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

func WithTemperature(t float64) ClientOption {
	return func(c *Client) { c.temperature = t }
}

// WithMaxTokens caps the reply length.
func WithMaxTokens(n int) ClientOption {
	return func(c *Client) { c.maxTokens = n }
}

func WithHTTPTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.Timeout = d }
}

// WithJSONMode asks the endpoint for a JSON object reply.
func WithJSONMode() ClientOption {
	return func(c *Client) { c.jsonMode = true }
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// Client posts chat completions to one endpoint. It is safe for
// concurrent use.
type Client struct {
	endpoint, apiKey, model string

	temperature, topP float64
	maxTokens         int
	jsonMode          bool

	http *http.Client
	log  *logger.Logger
}

// NewClient returns a client for endpoint, the full chat/completions URL
// (an Azure deployment URL including api-version works as-is).
func NewClient(endpoint, apiKey string, log *logger.Logger, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:    endpoint,
		apiKey:      apiKey,
		temperature: defaultTemperature,
		topP:        defaultTopP,
		maxTokens:   defaultMaxTokens,
		http:        &http.Client{Timeout: defaultTimeout},
		log:         log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chat sends a chat-completion request and returns the assistant's reply.
// Transport failures and non-200 statuses wrap domain.ErrRemote; a reply
// that cannot be read as an envelope wraps domain.ErrDecoding.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	req, err := c.newRequest(ctx, messages)
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("gpt: %w: %v", domain.ErrRemote, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gpt: %w: read response: %v", domain.ErrRemote, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gpt: %w: %s: %s", domain.ErrRemote, resp.Status, errorMessage(raw))
	}
	return c.decode(raw)
}

func (c *Client) newRequest(ctx context.Context, messages []Message) (*http.Request, error) {
	body := payload{
		Messages:    messages,
		Temperature: c.temperature,
		TopP:        c.topP,
		MaxTokens:   c.maxTokens,
		Model:       c.model,
	}
	if c.jsonMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	buf, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("gpt: marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("gpt: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)
	if c.model != "" {
		// OpenAI proper reads the bearer token; Azure reads api-key.
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.log.Debug("gpt: POST %s (%d messages, %d bytes)", c.endpoint, len(messages), len(buf))
	return req, nil
}

func (c *Client) decode(raw []byte) (string, error) {
	var env apiResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("gpt: %w: envelope: %v", domain.ErrDecoding, err)
	}
	if len(env.Choices) == 0 {
		return "", fmt.Errorf("gpt: %w: no choices", domain.ErrDecoding)
	}

	first := env.Choices[0]
	if first.FinishReason == "length" {
		c.log.Warn("gpt: reply cut off at %d tokens", c.maxTokens)
	}
	if env.Usage != nil {
		c.log.Debug("gpt: tokens in=%d out=%d", env.Usage.PromptTokens, env.Usage.CompletionTokens)
	}
	return first.Message.Content, nil
}

// truncate caps s at n runes, never splitting one.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
