package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avdeyev/sputnik/common/retry"
)

// ChatMessage is one role/content turn of the completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FailureKind classifies a completion failure. The pipeline consumes this
// enum instead of matching on error types.
type FailureKind int

const (
	// FailureNone means the completion succeeded.
	FailureNone FailureKind = iota
	// FailureRateLimited means the API kept rate-limiting after all retries.
	FailureRateLimited
	// FailureConnection means the API was unreachable.
	FailureConnection
	// FailureTimeout means the request exceeded the transport deadline.
	FailureTimeout
	// FailureGeneric covers everything else.
	FailureGeneric
)

// User-facing apology texts, one per failure class.
const (
	apologyRateLimited = "Извини, сервер OpenAI сильно перегружен. Попробуй еще раз через пару минут."
	apologyConnection  = "Извини, возникла проблема с подключением к OpenAI. Проверь соединение с интернетом."
	apologyTimeout     = "Извини, запрос к OpenAI занял слишком много времени. Попробуй еще раз."
	apologyGeneric     = "Извини, у меня возникла проблема с ответом. Попробуй еще раз через минуту."
)

// CompletionResult carries either the generated text or a failure kind.
type CompletionResult struct {
	Text    string
	Failure FailureKind
}

// OK reports whether the completion produced text.
func (r CompletionResult) OK() bool {
	return r.Failure == FailureNone
}

// Reply returns the generated text, or the apology for the failure class.
// Never empty, never a raw error.
func (r CompletionResult) Reply() string {
	switch r.Failure {
	case FailureNone:
		return r.Text
	case FailureRateLimited:
		return apologyRateLimited
	case FailureConnection:
		return apologyConnection
	case FailureTimeout:
		return apologyTimeout
	default:
		return apologyGeneric
	}
}

const (
	completeMaxAttempts = 3
	// Linear backoff between rate-limited attempts: 20 s, then 40 s.
	completeBackoffStep = 20 * time.Second
)

type oaiChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
}

type oaiChatResponse struct {
	Choices []struct {
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *oaiError `json:"error,omitempty"`
}

type oaiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Complete sends an ordered prompt to the chat completion endpoint: optional
// system directive, optional summary note, the short-term window, then the
// new user message. Rate-limit responses are retried up to three attempts
// with linear backoff; all failures come back as a FailureKind, never an
// error.
func (c *Client) Complete(ctx context.Context, systemPrompt, summary string, window []ChatMessage, userMessage string, tier Tier) CompletionResult {
	messages := make([]ChatMessage, 0, len(window)+3)
	if systemPrompt != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: systemPrompt})
	}
	if summary != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: "Summary: " + summary})
	}
	messages = append(messages, window...)
	messages = append(messages, ChatMessage{Role: "user", Content: userMessage})

	body := oaiChatRequest{
		Model:       c.modelFor(tier),
		Messages:    messages,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		TopP:        c.cfg.TopP,
	}

	var text string
	err := retry.Do(ctx, retry.Config{
		MaxAttempts: completeMaxAttempts,
		MaxDelay:    time.Minute,
		Delay: func(attempt int) time.Duration {
			return time.Duration(attempt) * completeBackoffStep
		},
		ShouldRetry: func(err error) bool { return errors.Is(err, errRateLimited) },
		Sleep:       c.sleep,
	}, func() error {
		var resp oaiChatResponse
		if err := c.postJSON(ctx, "/chat/completions", body, &resp); err != nil {
			return err
		}
		if resp.Error != nil {
			return fmt.Errorf("openai: API error (%s): %s", resp.Error.Type, resp.Error.Message)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("openai: no choices returned")
		}
		text = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	})

	switch {
	case err == nil:
		return CompletionResult{Text: text}
	case errors.Is(err, errRateLimited):
		c.logger.Error("completion rate limit exceeded after retries", "model", body.Model)
		return CompletionResult{Failure: FailureRateLimited}
	case errors.Is(err, errConnection):
		c.logger.Error("completion connection error", "model", body.Model, "err", err)
		return CompletionResult{Failure: FailureConnection}
	case errors.Is(err, errTimeout):
		c.logger.Error("completion timed out", "model", body.Model, "err", err)
		return CompletionResult{Failure: FailureTimeout}
	default:
		c.logger.Error("completion failed", "model", body.Model, "err", err)
		return CompletionResult{Failure: FailureGeneric}
	}
}
