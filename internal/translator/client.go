package translator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// Translator converts a markup fragment into the target language while
// preserving its tag structure.
type Translator interface {
	Translate(ctx context.Context, markup string) (string, error)
}

// chatCompleter is the slice of the OpenAI client the translator uses.
// Tests inject a fake.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client wraps the LLM with prompt construction, a per-attempt timeout, an
// ordered model fallback chain and the mandatory tag-integrity validator.
type Client struct {
	api         chatCompleter
	logger      *logrus.Logger
	models      []string
	timeout     time.Duration
	sourceLang  string
	targetLang  string
	temperature float32
}

// Options configures a Client.
type Options struct {
	APIKey     string
	BaseURL    string
	Models     []string
	Timeout    time.Duration
	SourceLang string
	TargetLang string
}

func NewClient(opts Options, logger *logrus.Logger) *Client {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Client{
		api:         openai.NewClientWithConfig(cfg),
		logger:      logger,
		models:      opts.Models,
		timeout:     timeout,
		sourceLang:  opts.SourceLang,
		targetLang:  opts.TargetLang,
		temperature: 0.4,
	}
}

// systemPrompt directs the model to translate text content only, keeping
// every tag byte-compatible with the input. The corpus is literary fiction,
// which the prompt states up front so that benign prose is not refused.
func (c *Client) systemPrompt() string {
	return fmt.Sprintf(`You are a professional literary translator working on published fiction. Translate the user's markup from %s to %s.

Rules:
1. Translate only the text content. Preserve every tag exactly as given, including attributes and nesting.
2. Do not introduce, remove or reorder any tag.
3. Return raw markup only: no code fences, no preamble, no commentary.
4. Preserve numerals verbatim.
5. Keep technical terms in %s when that is idiomatic for %s readers.`,
		languageName(c.sourceLang), languageName(c.targetLang),
		languageName(c.sourceLang), languageName(c.targetLang))
}

// Translate runs the fallback chain over the configured models. A quota
// error short-circuits the chain; every other per-attempt failure moves on
// to the next model. The returned markup always passes tag integrity
// against the input.
func (c *Client) Translate(ctx context.Context, markup string) (string, error) {
	if strings.TrimSpace(markup) == "" {
		return markup, nil
	}

	var lastErr error
	for _, model := range c.models {
		translated, err := c.attempt(ctx, model, markup)
		if err == nil {
			return translated, nil
		}
		if IsQuota(err) {
			return "", err
		}
		c.logger.Warnf("Model %s failed (%s), trying next in chain", model, KindOf(err))
		lastErr = err
	}
	if lastErr == nil {
		lastErr = &Error{Kind: KindTransport, Err: errors.New("no models configured")}
	}
	return "", lastErr
}

func (c *Client) attempt(ctx context.Context, model, markup string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(attemptCtx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.systemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: markup},
		},
	})
	if err != nil {
		return "", c.classifyRequestError(model, err)
	}

	if len(resp.Choices) == 0 {
		return "", &Error{Kind: KindEmptyResponse, Model: model}
	}

	choice := resp.Choices[0]
	content := StripCodeFence(choice.Message.Content)
	if strings.TrimSpace(content) == "" {
		// Empty text with a non-STOP finish reason means the provider
		// suppressed the output.
		if choice.FinishReason != openai.FinishReasonStop {
			return "", &Error{Kind: KindSafetyBlocked, Model: model,
				Err: fmt.Errorf("finish reason %s", choice.FinishReason)}
		}
		return "", &Error{Kind: KindEmptyResponse, Model: model}
	}

	if !CheckIntegrity(markup, content) {
		return "", &Error{Kind: KindIntegrityMismatch, Model: model}
	}

	return content, nil
}

func (c *Client) classifyRequestError(model string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Model: model, Err: err}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 429 {
			return &Error{Kind: KindQuota, Model: model, Err: err}
		}
		if code, ok := apiErr.Code.(string); ok {
			switch code {
			case "insufficient_quota", "rate_limit_exceeded":
				return &Error{Kind: KindQuota, Model: model, Err: err}
			}
		}
	}

	return &Error{Kind: KindTransport, Model: model, Err: err}
}

// languageName maps an ISO 639-1 code to its English name for prompting.
func languageName(code string) string {
	names := map[string]string{
		"en": "English",
		"es": "Spanish",
		"fr": "French",
		"de": "German",
		"it": "Italian",
		"pt": "Portuguese",
		"ru": "Russian",
		"ja": "Japanese",
		"ko": "Korean",
		"zh": "Chinese",
		"ar": "Arabic",
		"fa": "Persian",
		"he": "Hebrew",
		"ur": "Urdu",
		"hi": "Hindi",
		"tr": "Turkish",
		"pl": "Polish",
		"nl": "Dutch",
	}
	if name, ok := names[strings.ToLower(code)]; ok {
		return name
	}
	return code
}
