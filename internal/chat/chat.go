// Package chat talks to an OpenAI-compatible chat completions endpoint and
// keeps the running context of each conversation in memory.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for chat requests.
var (
	ErrMissingCredentials = errors.New("no API key or bearer token available")
	ErrAPIStatus          = errors.New("chat API returned an error status")
	ErrEmptyResponse      = errors.New("chat API returned no answer")
	ErrEmptyQuery         = errors.New("query cannot be empty")
	ErrMissingURL         = errors.New("chat API URL is not configured")
	ErrResponseTooLarge   = errors.New("chat API response too large")
)

// Request defaults.
const (
	DefaultSystemPrompt = "You are a helpful assistant. When providing code examples, " +
		"always use markdown code blocks with a language. Use markdown lists and " +
		"**bold** for emphasis. Write math in LaTeX between $ or $$ delimiters."
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1024
	DefaultTimeout     = 60 * time.Second

	// maxErrorBody bounds the response excerpt kept in ErrAPIStatus errors.
	maxErrorBody = 512

	// maxResponseBody bounds how much of a response is read.
	maxResponseBody = 8 << 20
)

// Roles used in the messages array.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TokenSource supplies the bearer token for each request.
// An empty token means no credentials are available.
type TokenSource interface {
	Token() string
}

// StaticToken is a fixed API key.
type StaticToken string

// Token returns the key.
func (t StaticToken) Token() string { return string(t) }

// Config describes the endpoint and request parameters.
type Config struct {
	URL          string
	Model        string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	WebSearch    bool
	Timeout      time.Duration
}

// Message is one entry of the messages array.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Reply is the assistant's answer in a conversation.
type Reply struct {
	Text           string
	ConversationID string
}

// Client sends queries and remembers each conversation's messages.
// A Client is safe for concurrent use.
type Client struct {
	cfg    Config
	tokens TokenSource
	client *http.Client
	logger *slog.Logger
	newID  func() string

	maxBody int64

	mu       sync.Mutex
	contexts map[string][]Message
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithLogger sets the logger for request diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Client. Zero config fields take the package defaults.
func New(cfg Config, tokens TokenSource, opts ...Option) *Client {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Client{
		cfg:      cfg,
		tokens:   tokens,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   slog.New(slog.DiscardHandler),
		newID:    uuid.NewString,
		maxBody:  maxResponseBody,
		contexts: make(map[string][]Message),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send posts query in the given conversation and returns the answer.
// An empty conversationID starts a new conversation with a fresh id.
// The conversation context only grows when the request succeeds.
func (c *Client) Send(ctx context.Context, conversationID, query string) (Reply, error) {
	if strings.TrimSpace(query) == "" {
		return Reply{}, ErrEmptyQuery
	}
	if c.cfg.URL == "" {
		return Reply{}, ErrMissingURL
	}
	token := ""
	if c.tokens != nil {
		token = c.tokens.Token()
	}
	if token == "" {
		return Reply{}, ErrMissingCredentials
	}

	messages := append(c.messages(conversationID), Message{Role: RoleUser, Content: query})

	text, err := c.complete(ctx, token, messages)
	if err != nil {
		return Reply{}, err
	}

	if conversationID == "" {
		conversationID = c.newID()
	}
	messages = append(messages, Message{Role: RoleAssistant, Content: text})

	c.mu.Lock()
	c.contexts[conversationID] = messages
	c.mu.Unlock()

	return Reply{Text: text, ConversationID: conversationID}, nil
}

// History returns the conversation's messages without the system prompt.
func (c *Client) History(conversationID string) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs, ok := c.contexts[conversationID]
	if !ok {
		return nil
	}
	return slices.Clone(msgs[1:])
}

// SetHistory replaces a conversation's context, for example after loading it
// from disk. The system prompt is prepended when msgs does not start with one.
func (c *Client) SetHistory(conversationID string, msgs []Message) {
	if len(msgs) == 0 || msgs[0].Role != RoleSystem {
		msgs = append([]Message{{Role: RoleSystem, Content: c.cfg.SystemPrompt}}, msgs...)
	} else {
		msgs = slices.Clone(msgs)
	}

	c.mu.Lock()
	c.contexts[conversationID] = msgs
	c.mu.Unlock()
}

// Known reports whether the client holds context for a conversation.
func (c *Client) Known(conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.contexts[conversationID]
	return ok
}

// Forget drops a conversation's context.
func (c *Client) Forget(conversationID string) {
	c.mu.Lock()
	delete(c.contexts, conversationID)
	c.mu.Unlock()
}

// messages returns a copy of the stored context, or a new one holding the
// system prompt.
func (c *Client) messages(conversationID string) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	if msgs, ok := c.contexts[conversationID]; ok && conversationID != "" {
		return slices.Clone(msgs)
	}
	return []Message{{Role: RoleSystem, Content: c.cfg.SystemPrompt}}
}

// --- OpenAI-compatible request/response types ---

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	WebSearch   bool      `json:"web_search,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// complete performs the HTTP call to the chat completions endpoint.
func (c *Client) complete(ctx context.Context, token string, messages []Message) (string, error) {
	payload, err := json.Marshal(completionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		WebSearch:   c.cfg.WebSearch,
	})
	if err != nil {
		return "", fmt.Errorf("encoding chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending chat request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return "", fmt.Errorf("reading chat response: %w", err)
	}
	if int64(len(body)) > c.maxBody {
		return "", fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, c.maxBody)
	}

	c.logger.Debug("chat completion",
		"status", resp.StatusCode,
		"messages", len(messages),
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{Code: resp.StatusCode, Body: excerpt(body)}
	}

	var result completionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decoding chat response: %w", err)
	}
	if len(result.Choices) == 0 || strings.TrimSpace(result.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return result.Choices[0].Message.Content, nil
}

// StatusError is a non-2xx answer from the endpoint. It matches ErrAPIStatus.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%v: %d %s", ErrAPIStatus, e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("%v: %d %s: %s", ErrAPIStatus, e.Code, http.StatusText(e.Code), e.Body)
}

// Is reports whether target is ErrAPIStatus.
func (e *StatusError) Is(target error) bool {
	return target == ErrAPIStatus
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= maxErrorBody {
		return s
	}
	return strings.ToValidUTF8(s[:maxErrorBody], "") + "..."
}
