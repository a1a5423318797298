package translator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

type fakeCompleter struct {
	calls     []string // models in call order
	responses map[string]openai.ChatCompletionResponse
	errs      map[string]error
}

func (f *fakeCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.calls = append(f.calls, req.Model)
	if err, ok := f.errs[req.Model]; ok {
		return openai.ChatCompletionResponse{}, err
	}
	return f.responses[req.Model], nil
}

func respondWith(content string, finish openai.FinishReason) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}, FinishReason: finish},
		},
	}
}

func testClient(api chatCompleter, models ...string) *Client {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return &Client{
		api:        api,
		logger:     logger,
		models:     models,
		timeout:    time.Second,
		sourceLang: "en",
		targetLang: "ar",
	}
}

func TestTranslateSuccess(t *testing.T) {
	t.Parallel()

	fake := &fakeCompleter{responses: map[string]openai.ChatCompletionResponse{
		"model-a": respondWith("<p>مرحبا</p>", openai.FinishReasonStop),
	}}
	c := testClient(fake, "model-a")

	got, err := c.Translate(context.Background(), "<p>Hello</p>")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "<p>مرحبا</p>" {
		t.Errorf("Translate = %q", got)
	}
}

func TestTranslateStripsFence(t *testing.T) {
	t.Parallel()

	fake := &fakeCompleter{responses: map[string]openai.ChatCompletionResponse{
		"model-a": respondWith("```html\n<p>مرحبا</p>\n```", openai.FinishReasonStop),
	}}
	c := testClient(fake, "model-a")

	got, err := c.Translate(context.Background(), "<p>Hello</p>")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "<p>مرحبا</p>" {
		t.Errorf("Translate = %q", got)
	}
}

func TestTranslateFallbackChain(t *testing.T) {
	t.Parallel()

	fake := &fakeCompleter{
		errs: map[string]error{
			"model-a": errors.New("connection reset"),
		},
		responses: map[string]openai.ChatCompletionResponse{
			"model-b": respondWith("<p>مرحبا</p>", openai.FinishReasonStop),
		},
	}
	c := testClient(fake, "model-a", "model-b")

	got, err := c.Translate(context.Background(), "<p>Hello</p>")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "<p>مرحبا</p>" {
		t.Errorf("Translate = %q", got)
	}
	if len(fake.calls) != 2 || fake.calls[0] != "model-a" || fake.calls[1] != "model-b" {
		t.Errorf("call order = %v", fake.calls)
	}
}

func TestTranslateQuotaShortCircuits(t *testing.T) {
	t.Parallel()

	fake := &fakeCompleter{
		errs: map[string]error{
			"model-a": &openai.APIError{HTTPStatusCode: 429, Message: "quota"},
		},
	}
	c := testClient(fake, "model-a", "model-b")

	_, err := c.Translate(context.Background(), "<p>Hello</p>")
	if !IsQuota(err) {
		t.Fatalf("want quota error, got %v", err)
	}
	if len(fake.calls) != 1 {
		t.Errorf("quota error must not try the next model; calls = %v", fake.calls)
	}
}

func TestTranslateSafetyBlocked(t *testing.T) {
	t.Parallel()

	fake := &fakeCompleter{responses: map[string]openai.ChatCompletionResponse{
		"model-a": respondWith("", openai.FinishReasonContentFilter),
	}}
	c := testClient(fake, "model-a")

	_, err := c.Translate(context.Background(), "<p>Hello</p>")
	if KindOf(err) != KindSafetyBlocked {
		t.Fatalf("want safety_blocked, got %v", err)
	}
}

func TestTranslateIntegrityMismatch(t *testing.T) {
	t.Parallel()

	fake := &fakeCompleter{responses: map[string]openai.ChatCompletionResponse{
		"model-a": respondWith("<p>مرحبا هناك.</p>", openai.FinishReasonStop),
	}}
	c := testClient(fake, "model-a")

	_, err := c.Translate(context.Background(), "<p>Hi <b>there</b>.</p>")
	if KindOf(err) != KindIntegrityMismatch {
		t.Fatalf("want integrity_mismatch, got %v", err)
	}
}

func TestTranslateEmptyInputPassesThrough(t *testing.T) {
	t.Parallel()

	fake := &fakeCompleter{}
	c := testClient(fake, "model-a")

	got, err := c.Translate(context.Background(), "   ")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "   " {
		t.Errorf("Translate = %q", got)
	}
	if len(fake.calls) != 0 {
		t.Errorf("blank input must not reach the model")
	}
}
