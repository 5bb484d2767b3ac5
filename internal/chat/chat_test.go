package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// recorder is an endpoint that answers with a fixed status and body and
// keeps every request it received.
type recorder struct {
	mu       sync.Mutex
	requests []completionRequest
	headers  []http.Header
	status   int
	body     string
}

func (rec *recorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req completionRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	rec.mu.Lock()
	rec.requests = append(rec.requests, req)
	rec.headers = append(rec.headers, r.Header.Clone())
	rec.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rec.status)
	_, _ = w.Write([]byte(rec.body))
}

// snapshot returns the requests and headers received so far.
func (rec *recorder) snapshot() ([]completionRequest, []http.Header) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]completionRequest(nil), rec.requests...), append([]http.Header(nil), rec.headers...)
}

func successBody(text string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": text}},
		},
	})
	return string(b)
}

func newTestClient(t *testing.T, rec *recorder, cfg Config) *Client {
	t.Helper()

	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)

	cfg.URL = srv.URL
	if cfg.Model == "" {
		cfg.Model = "test-model"
	}
	c := New(cfg, StaticToken("secret"))
	ids := 0
	c.newID = func() string {
		ids++
		return fmt.Sprintf("conv-%d", ids)
	}
	return c
}

// ---------------------------------------------------------------------------
// TestClient_Send - Request shape and reply
// ---------------------------------------------------------------------------

func TestClient_Send(t *testing.T) {
	t.Parallel()

	rec := &recorder{status: http.StatusOK, body: successBody("Hello!")}
	c := newTestClient(t, rec, Config{})

	reply, err := c.Send(context.Background(), "", "Say hello")
	if err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}
	if reply.Text != "Hello!" {
		t.Errorf("Send() text = %q, want %q", reply.Text, "Hello!")
	}
	if reply.ConversationID != "conv-1" {
		t.Errorf("Send() conversation = %q, want %q", reply.ConversationID, "conv-1")
	}

	requests, headers := rec.snapshot()
	if len(requests) != 1 {
		t.Fatalf("endpoint received %d requests, want 1", len(requests))
	}
	req := requests[0]
	if req.Model != "test-model" {
		t.Errorf("request model = %q", req.Model)
	}
	if req.Temperature != DefaultTemperature || req.MaxTokens != DefaultMaxTokens {
		t.Errorf("request temperature/max_tokens = %v/%d", req.Temperature, req.MaxTokens)
	}
	if req.WebSearch {
		t.Error("request web_search should be off by default")
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != RoleSystem || req.Messages[1] != (Message{Role: RoleUser, Content: "Say hello"}) {
		t.Errorf("request messages = %+v", req.Messages)
	}

	h := headers[0]
	if got := h.Get("Authorization"); got != "Bearer secret" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer secret")
	}
	if got := h.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestClient_Send_KeepsContext(t *testing.T) {
	t.Parallel()

	rec := &recorder{status: http.StatusOK, body: successBody("answer")}
	c := newTestClient(t, rec, Config{})

	first, err := c.Send(context.Background(), "", "one")
	if err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}
	if _, err := c.Send(context.Background(), first.ConversationID, "two"); err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}

	requests, _ := rec.snapshot()
	second := requests[1].Messages
	if len(second) != 4 {
		t.Fatalf("second request has %d messages, want 4", len(second))
	}
	want := []Message{
		{Role: RoleUser, Content: "one"},
		{Role: RoleAssistant, Content: "answer"},
		{Role: RoleUser, Content: "two"},
	}
	for i, m := range want {
		if second[i+1] != m {
			t.Errorf("message %d = %+v, want %+v", i+1, second[i+1], m)
		}
	}

	if hist := c.History(first.ConversationID); len(hist) != 4 {
		t.Errorf("History() = %d messages, want 4", len(hist))
	}
}

func TestClient_Send_WebSearch(t *testing.T) {
	t.Parallel()

	rec := &recorder{status: http.StatusOK, body: successBody("ok")}
	c := newTestClient(t, rec, Config{WebSearch: true, MaxTokens: 10, Temperature: 0.2})

	if _, err := c.Send(context.Background(), "", "q"); err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}
	requests, _ := rec.snapshot()
	req := requests[0]
	if !req.WebSearch || req.MaxTokens != 10 || req.Temperature != 0.2 {
		t.Errorf("request = %+v", req)
	}
}

// ---------------------------------------------------------------------------
// TestClient_Send_Errors - Failure classification
// ---------------------------------------------------------------------------

func TestClient_Send_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{
			name:    "unauthorized",
			status:  http.StatusUnauthorized,
			body:    `{"error":"bad token"}`,
			wantErr: ErrAPIStatus,
		},
		{
			name:    "server error",
			status:  http.StatusBadGateway,
			body:    "upstream down",
			wantErr: ErrAPIStatus,
		},
		{
			name:    "no choices",
			status:  http.StatusOK,
			body:    `{"choices":[]}`,
			wantErr: ErrEmptyResponse,
		},
		{
			name:    "blank content",
			status:  http.StatusOK,
			body:    successBody("  "),
			wantErr: ErrEmptyResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := &recorder{status: tt.status, body: tt.body}
			c := newTestClient(t, rec, Config{})

			_, err := c.Send(context.Background(), "", "q")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Send() error = %v, want %v", err, tt.wantErr)
			}
			if c.Known("conv-1") {
				t.Error("failed request should not create a conversation")
			}
		})
	}
}

func TestClient_Send_StatusErrorDetails(t *testing.T) {
	t.Parallel()

	rec := &recorder{status: http.StatusTooManyRequests, body: strings.Repeat("x", 2000)}
	c := newTestClient(t, rec, Config{})

	_, err := c.Send(context.Background(), "", "q")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("Send() error = %v, want *StatusError", err)
	}
	if se.Code != http.StatusTooManyRequests {
		t.Errorf("StatusError.Code = %d", se.Code)
	}
	if len(se.Body) > maxErrorBody+3 {
		t.Errorf("StatusError.Body length = %d, want at most %d", len(se.Body), maxErrorBody+3)
	}
}

func TestClient_Send_ResponseTooLarge(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{name: "success", status: http.StatusOK, wantErr: ErrResponseTooLarge},
		{name: "error status", status: http.StatusInternalServerError, wantErr: ErrResponseTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := &recorder{status: tt.status, body: successBody(strings.Repeat("a", 4096))}
			c := newTestClient(t, rec, Config{})
			c.maxBody = 1024

			_, err := c.Send(context.Background(), "", "q")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Send() error = %v, want %v", err, tt.wantErr)
			}
			if c.Known("conv-1") {
				t.Error("failed request should not create a conversation")
			}
		})
	}
}

func TestClient_Send_ResponseAtLimit(t *testing.T) {
	t.Parallel()

	body := successBody("fits")
	rec := &recorder{status: http.StatusOK, body: body}
	c := newTestClient(t, rec, Config{})
	c.maxBody = int64(len(body))

	reply, err := c.Send(context.Background(), "", "q")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if reply.Text != "fits" {
		t.Errorf("Send() text = %q, want %q", reply.Text, "fits")
	}
}

func TestClient_Send_Preconditions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		client  *Client
		query   string
		wantErr error
	}{
		{
			name:    "empty query",
			client:  New(Config{URL: "http://unused"}, StaticToken("k")),
			query:   "  ",
			wantErr: ErrEmptyQuery,
		},
		{
			name:    "missing URL",
			client:  New(Config{}, StaticToken("k")),
			query:   "q",
			wantErr: ErrMissingURL,
		},
		{
			name:    "empty token",
			client:  New(Config{URL: "http://unused"}, StaticToken("")),
			query:   "q",
			wantErr: ErrMissingCredentials,
		},
		{
			name:    "nil token source",
			client:  New(Config{URL: "http://unused"}, nil),
			query:   "q",
			wantErr: ErrMissingCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := tt.client.Send(context.Background(), "", tt.query); !errors.Is(err, tt.wantErr) {
				t.Errorf("Send() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestClient_Send_CanceledContext(t *testing.T) {
	t.Parallel()

	rec := &recorder{status: http.StatusOK, body: successBody("ok")}
	c := newTestClient(t, rec, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Send(ctx, "", "q"); !errors.Is(err, context.Canceled) {
		t.Errorf("Send() error = %v, want context.Canceled", err)
	}
}

// ---------------------------------------------------------------------------
// TestClient_SetHistory - Context restore
// ---------------------------------------------------------------------------

func TestClient_SetHistory(t *testing.T) {
	t.Parallel()

	rec := &recorder{status: http.StatusOK, body: successBody("ok")}
	c := newTestClient(t, rec, Config{SystemPrompt: "be brief"})

	c.SetHistory("saved", []Message{
		{Role: RoleUser, Content: "earlier"},
		{Role: RoleAssistant, Content: "reply"},
	})
	if !c.Known("saved") {
		t.Fatal("Known() = false after SetHistory()")
	}

	if _, err := c.Send(context.Background(), "saved", "now"); err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}
	requests, _ := rec.snapshot()
	msgs := requests[0].Messages
	if len(msgs) != 4 || msgs[0] != (Message{Role: RoleSystem, Content: "be brief"}) || msgs[1].Content != "earlier" {
		t.Errorf("request messages = %+v", msgs)
	}

	c.Forget("saved")
	if c.Known("saved") || c.History("saved") != nil {
		t.Error("Forget() should drop the context")
	}
}

// ---------------------------------------------------------------------------
// TestTestResponse - Canned formatting reply
// ---------------------------------------------------------------------------

func TestTestResponse(t *testing.T) {
	t.Parallel()

	r := TestResponse()
	if r.ConversationID != TestConversationID {
		t.Errorf("TestResponse() conversation = %q", r.ConversationID)
	}
	for _, want := range []string{"```py", "$$E = mc^2$$", `\begin{align}`, "| Terms |", "[1]"} {
		if !strings.Contains(r.Text, want) {
			t.Errorf("TestResponse() missing %q", want)
		}
	}
}
