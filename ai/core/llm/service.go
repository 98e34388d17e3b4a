// Package llm adapts DashScope's OpenAI-compatible chat completions API.
// It adds retries, the function-call loop, blank-answer retries and
// text/vision model selection on top of go-openai.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	// DefaultMaxIterations bounds the function-call loop.
	DefaultMaxIterations = 10

	// MaxEmptyRetries is how many times a blank answer is re-requested.
	MaxEmptyRetries = 2

	defaultTimeout      = 600 * time.Second
	defaultRetryBackoff = 500 * time.Millisecond
	maxRetryBackoff     = 10 * time.Second
)

// Region endpoints for DashScope compatible mode.
var regionEndpoints = map[string]string{
	"cn":      "https://dashscope.aliyuncs.com/compatible-mode/v1",
	"intl":    "https://dashscope-intl.aliyuncs.com/compatible-mode/v1",
	"finance": "https://dashscope-finance.aliyuncs.com/compatible-mode/v1",
}

// RegionBaseURL returns the base URL of a DashScope region.
func RegionBaseURL(region string) (string, error) {
	u, ok := regionEndpoints[strings.ToLower(region)]
	if !ok {
		return "", fmt.Errorf("%w: %q (expected cn, intl or finance)", ErrUnsupportedRegion, region)
	}
	return u, nil
}

// Config represents LLM client configuration.
type Config struct {
	APIKey      string
	Region      string // cn, intl, finance
	BaseURL     string // overrides Region when set
	Model       string // text model, e.g. qwen-plus
	VisionModel string // used for requests carrying images, e.g. qwen3-vl-plus
	Temperature *float32
	Stop        []string
	Timeout     time.Duration // per attempt
	RetryCount  int           // extra attempts after the first one
	// RetryBackoff is the initial wait between attempts; it doubles per attempt.
	RetryBackoff time.Duration
	// RateLimit caps requests per second; 0 disables limiting.
	RateLimit float64
}

// CallStats represents statistics for a single LLM request.
type CallStats struct {
	Model            string
	AgentRole        string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Attempts         int
	Duration         time.Duration
	Err              error
}

// Observer receives per-request statistics (token usage, latency).
type Observer interface {
	ObserveLLMCall(stats CallStats)
}

// Function is a callable the model may request through a tool call.
type Function interface {
	Call(ctx context.Context, args map[string]any) (string, error)
}

// FunctionFunc adapts a plain function to Function.
type FunctionFunc func(ctx context.Context, args map[string]any) (string, error)

// Call implements Function.
func (f FunctionFunc) Call(ctx context.Context, args map[string]any) (string, error) {
	return f(ctx, args)
}

// FunctionTable maps function names to implementations.
type FunctionTable map[string]Function

type callOptions struct {
	tools         []ToolDescriptor
	functions     FunctionTable
	maxIterations int
	stop          []string
	agentRole     string
}

// CallOption customizes a single Call.
type CallOption func(*callOptions)

// WithTools declares tools for the request. They are only sent when the
// client supports native function calling.
func WithTools(tools ...ToolDescriptor) CallOption {
	return func(o *callOptions) { o.tools = append(o.tools, tools...) }
}

// WithFunctions supplies implementations for tool calls.
func WithFunctions(fns FunctionTable) CallOption {
	return func(o *callOptions) { o.functions = fns }
}

// WithMaxIterations overrides DefaultMaxIterations.
func WithMaxIterations(n int) CallOption {
	return func(o *callOptions) { o.maxIterations = n }
}

// WithStop overrides the configured stop words.
func WithStop(stop ...string) CallOption {
	return func(o *callOptions) { o.stop = stop }
}

// WithAgentRole labels statistics with the calling agent's role.
func WithAgentRole(role string) CallOption {
	return func(o *callOptions) { o.agentRole = role }
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithObserver attaches a statistics observer.
func WithObserver(o Observer) ClientOption {
	return func(c *Client) { c.observer = o }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// Client talks to the chat completions endpoint.
type Client struct {
	client     *openai.Client
	httpClient *http.Client
	cfg        Config
	baseURL    string
	limiter    *rate.Limiter
	observer   Observer
}

// NewClient creates a new Client.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		u, err := RegionBaseURL(cfg.Region)
		if err != nil {
			return nil, err
		}
		baseURL = u
	}
	if cfg.Model == "" {
		return nil, errors.New("LLM model is not configured")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}

	c := &Client{cfg: cfg, baseURL: baseURL}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = newHTTPClient()
	}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = baseURL
	clientConfig.HTTPClient = c.httpClient
	c.client = openai.NewClientWithConfig(clientConfig)
	return c, nil
}

// Model returns the text model name.
func (c *Client) Model() string { return c.cfg.Model }

// VisionModel returns the model used for image-bearing requests.
func (c *Client) VisionModel() string {
	if c.cfg.VisionModel == "" {
		return c.cfg.Model
	}
	return c.cfg.VisionModel
}

// Endpoint returns the full chat completions URL.
func (c *Client) Endpoint() string { return c.baseURL + "/chat/completions" }

// SupportsFunctionCalling reports whether tools are sent natively. Agents drive
// tools through ReAct text instead, so this is always false.
func (c *Client) SupportsFunctionCalling() bool { return false }

// SupportsStopWords reports whether stop words are forwarded.
func (c *Client) SupportsStopWords() bool { return true }

// ContextWindowSize returns the token window for the configured model.
func (c *Client) ContextWindowSize() int {
	if strings.Contains(strings.ToLower(c.cfg.Model), "long") {
		return 200_000
	}
	return 8192
}

// CallResult is delivered by CallAsync.
type CallResult struct {
	Content string
	Err     error
}

// CallAsync runs Call in a goroutine. The channel yields exactly one result.
func (c *Client) CallAsync(ctx context.Context, messages []Message, opts ...CallOption) <-chan CallResult {
	ch := make(chan CallResult, 1)
	go func() {
		defer close(ch)
		content, err := c.Call(ctx, messages, opts...)
		ch <- CallResult{Content: content, Err: err}
	}()
	return ch
}

// Call sends the conversation and returns the model's final text.
// Tool calls are resolved against the supplied functions and fed back until
// the model answers with text or the iteration budget is spent.
func (c *Client) Call(ctx context.Context, messages []Message, opts ...CallOption) (string, error) {
	o := callOptions{maxIterations: DefaultMaxIterations}
	for _, opt := range opts {
		opt(&o)
	}
	if err := ValidateMessages(messages); err != nil {
		return "", err
	}

	conversation := append([]Message(nil), messages...)
	emptyRetries := 0
	for iterations := o.maxIterations; ; {
		if iterations <= 0 {
			return "", ErrMaxIterations
		}

		normalized, hasImage := NormalizeMultimodal(conversation)
		model := c.cfg.Model
		if hasImage {
			model = c.VisionModel()
		}
		req := c.buildRequest(model, normalized, &o)

		slog.Debug("LLM: chat request",
			"endpoint", c.Endpoint(),
			"model", model,
			"messages_count", len(normalized),
			"multimodal", hasImage,
		)

		resp, err := c.send(ctx, req, &o)
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			slog.Warn("LLM: response has no choices", "model", model)
			return "", ErrNoChoices
		}

		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) > 0 {
			replies, err := c.resolveToolCalls(ctx, msg.ToolCalls, o.functions)
			if err != nil {
				return "", err
			}
			conversation = append(conversation, assistantToolCallMessage(msg))
			conversation = append(conversation, replies...)
			iterations--
			continue
		}

		if strings.TrimSpace(msg.Content) == "" {
			if emptyRetries >= MaxEmptyRetries {
				slog.Error("LLM: repeated empty content", "model", model, "attempts", emptyRetries+1)
				return "", fmt.Errorf("%w: %d consecutive blank answers from %s", ErrEmptyContent, emptyRetries+1, model)
			}
			emptyRetries++
			slog.Warn("LLM: empty content, retrying", "model", model, "retry", emptyRetries, "max_retries", MaxEmptyRetries)
			continue
		}
		return msg.Content, nil
	}
}

func (c *Client) buildRequest(model string, messages []Message, o *callOptions) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: convertMessages(messages),
	}
	if c.cfg.Temperature != nil {
		req.Temperature = *c.cfg.Temperature
	}
	stop := o.stop
	if stop == nil {
		stop = c.cfg.Stop
	}
	if c.SupportsStopWords() {
		req.Stop = prepareStopWords(stop)
	}
	if len(o.tools) > 0 && c.SupportsFunctionCalling() {
		req.Tools = make([]openai.Tool, len(o.tools))
		for i, t := range o.tools {
			req.Tools[i] = openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			}
		}
	}
	return req
}

// send performs the request with retries. 5xx, 429, timeouts and transport
// failures are retried; other 4xx answers fail immediately.
func (c *Client) send(ctx context.Context, req openai.ChatCompletionRequest, o *callOptions) (openai.ChatCompletionResponse, error) {
	attempts := c.cfg.RetryCount + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return openai.ChatCompletionResponse{}, err
			}
		}

		start := time.Now()
		resp, err := c.doOnce(ctx, req)
		c.observe(req.Model, o.agentRole, resp, attempt, time.Since(start), err)
		if err == nil {
			if attempt > 1 {
				slog.Info("LLM: request succeeded after retry", "model", req.Model, "attempt", attempt)
			}
			return resp, nil
		}
		if ctx.Err() != nil {
			return openai.ChatCompletionResponse{}, ctx.Err()
		}

		lastErr = classifyRequestError(err, attempt)
		var httpErr *HTTPError
		if errors.As(lastErr, &httpErr) && !httpErr.Retryable() {
			slog.Error("LLM: request rejected", "model", req.Model, "status", httpErr.StatusCode, "error", httpErr.Message)
			return openai.ChatCompletionResponse{}, lastErr
		}
		if attempt < attempts {
			wait := backoff(c.cfg.RetryBackoff, attempt)
			slog.Warn("LLM: request failed, retrying",
				"model", req.Model,
				"attempt", attempt,
				"max_attempts", attempts,
				"wait_ms", wait.Milliseconds(),
				"error", err,
			)
			select {
			case <-ctx.Done():
				return openai.ChatCompletionResponse{}, ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	slog.Error("LLM: request failed", "model", req.Model, "attempts", attempts, "error", lastErr)
	return openai.ChatCompletionResponse{}, lastErr
}

func (c *Client) doOnce(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	return c.client.CreateChatCompletion(ctx, req)
}

func (c *Client) observe(model, role string, resp openai.ChatCompletionResponse, attempt int, d time.Duration, err error) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveLLMCall(CallStats{
		Model:            model,
		AgentRole:        role,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		Attempts:         attempt,
		Duration:         d,
		Err:              err,
	})
}

func (c *Client) resolveToolCalls(ctx context.Context, calls []openai.ToolCall, fns FunctionTable) ([]Message, error) {
	if fns == nil {
		return nil, ErrNoFunctions
	}
	replies := make([]Message, 0, len(calls))
	for _, tc := range calls {
		name := tc.Function.Name
		args := map[string]any{}
		if raw := strings.TrimSpace(tc.Function.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrMalformedToolArguments, name, err)
			}
		}

		fn, ok := fns[name]
		if !ok {
			slog.Warn("LLM: function unavailable", "function", name)
			replies = append(replies, ToolMessage(tc.ID, fmt.Sprintf("function %s unavailable", name)))
			continue
		}
		result, err := fn.Call(ctx, args)
		if err != nil {
			slog.Warn("LLM: function failed", "function", name, "error", err)
			result = fmt.Sprintf("function %s failed: %v", name, err)
		}
		if result == "" {
			result = "(no output)"
		}
		replies = append(replies, ToolMessage(tc.ID, result))
	}
	return replies, nil
}

func assistantToolCallMessage(msg openai.ChatCompletionMessage) Message {
	out := Message{Role: RoleAssistant, Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out
}

func classifyRequestError(err error, attempts int) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &HTTPError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Attempts: attempts}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := ""
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &HTTPError{StatusCode: reqErr.HTTPStatusCode, Message: msg, Attempts: attempts}
	}
	if isTimeout(err) {
		return &TimeoutError{Attempts: attempts, Err: err}
	}
	return fmt.Errorf("LLM request failed after %d attempt(s): %w", attempts, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func backoff(base time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	if d <= 0 || d > maxRetryBackoff {
		return maxRetryBackoff
	}
	return d
}

func prepareStopWords(stop []string) []string {
	var out []string
	for _, s := range stop {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}
