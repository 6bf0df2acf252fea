// Package engine wraps the external classifier behind a safe adapter: any
// underlying failure (network, malformed output, timeout) degrades to a
// fixed fallback decision instead of an error, so the pipeline always has a
// decision object to act on.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ducth/stallbot/internal/config"
)

// Decision is the strict JSON contract with the classifier.
type Decision struct {
	Category         string `json:"category"`
	RequiresApproval bool   `json:"requires_approval"`
	IntentSummary    string `json:"intent_summary"`
	AcceptText       string `json:"reply_if_accepted"`
	DeclineText      string `json:"reply_if_declined"`
	MeetupConfirmed  bool   `json:"meetup_confirmed"`
	MeetupTimeText   string `json:"meetup_time_text"`
	NotesForOwner    string `json:"notes_for_owner"`
}

// Categories the pipeline force-upgrades to require approval regardless of
// what the classifier returned.
const (
	CategoryMeetupScheduling   = "meetup_scheduling"
	CategoryMeetupConfirmation = "meetup_confirmation"
)

// FallbackDecision is returned whenever the classifier cannot be reached or
// produces unusable output. RequiresApproval=true routes the thread to a
// human instead of guessing.
func FallbackDecision() Decision {
	return Decision{
		Category:         "other",
		RequiresApproval: true,
		IntentSummary:    "Classifier unavailable",
		NotesForOwner:    "classifier error occurred",
	}
}

// Client talks to an OpenAI-compatible /chat/completions endpoint, trying
// each configured base URL in order.
type Client struct {
	apiKey      string
	baseURLs    []string
	model       string
	httpClient  *http.Client
	maxAttempts int
	loc         *time.Location
	now         func() time.Time
	after       func(time.Duration) <-chan time.Time
}

// NewClient builds a classifier client from config.
func NewClient(cfg config.EngineConfig, loc *time.Location) *Client {
	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	urls := make([]string, 0, len(cfg.BaseURLs))
	for _, u := range cfg.BaseURLs {
		urls = append(urls, strings.TrimRight(u, "/"))
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Client{
		apiKey:      cfg.APIKey,
		baseURLs:    urls,
		model:       cfg.Model,
		httpClient:  &http.Client{Timeout: timeout},
		maxAttempts: 3,
		loc:         loc,
		now:         time.Now,
		after:       time.After,
	}
}

// Classify runs one batch of buyer text through the classifier. It never
// returns an error: failures degrade to FallbackDecision.
func (c *Client) Classify(ctx context.Context, historyText, batchedText string, product config.ProductConfig) Decision {
	prompt := buildPrompt(historyText, batchedText, product, c.now().In(c.loc))

	raw, err := c.complete(ctx, prompt)
	if err != nil {
		slog.Warn("classifier failed, using fallback decision", "error", err)
		return FallbackDecision()
	}

	var d Decision
	if err := json.Unmarshal(raw, &d); err != nil {
		slog.Warn("classifier returned malformed decision, using fallback", "error", err)
		return FallbackDecision()
	}
	d.Category = strings.TrimSpace(d.Category)
	if d.Category == "" {
		d.Category = "other"
	}
	return d
}

type chatPayload struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// complete posts the prompt to each base URL in order, retrying transient
// 503s with capped exponential backoff, and extracts the JSON object from
// the model output.
func (c *Client) complete(ctx context.Context, prompt string) ([]byte, error) {
	payload := chatPayload{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: "Output STRICT JSON only. No markdown. No extra text."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for _, base := range c.baseURLs {
		url := base + "/chat/completions"
		for attempt := 1; attempt <= c.maxAttempts; attempt++ {
			content, retryable, err := c.doRequest(ctx, url, body)
			if err == nil {
				return extractJSON(content)
			}
			lastErr = fmt.Errorf("%s attempt %d: %w", base, attempt, err)
			if !retryable {
				break // next base URL
			}
			if attempt < c.maxAttempts {
				wait := backoffDelay(attempt)
				if he, ok := err.(*HTTPError); ok && he.RetryAfter > 0 {
					wait = he.RetryAfter
				}
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-c.after(wait):
				}
			}
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no base URLs configured")
	}
	return nil, fmt.Errorf("all classifier endpoints failed: %w", lastErr)
}

func (c *Client) doRequest(ctx context.Context, url string, body []byte) (content string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		herr := &HTTPError{
			Status:     resp.StatusCode,
			Body:       string(respBody),
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
		return "", herr.Retryable(), herr
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", false, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", false, fmt.Errorf("response has no choices")
	}
	return parsed.Choices[0].Message.Content, false, nil
}

// extractJSON pulls the outermost {...} block out of model output that may
// be wrapped in prose or markdown fences.
func extractJSON(s string) ([]byte, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in model output: %.100s", s)
	}
	return []byte(s[start : end+1]), nil
}

// backoffDelay is capped exponential: 2s, 4s, 8s, 8s, ...
func backoffDelay(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > 8*time.Second {
		d = 8 * time.Second
	}
	return d
}
