package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/zatekoja/medical-mirrors/pkg/config"
	apperrors "github.com/zatekoja/medical-mirrors/pkg/errors"
	"github.com/zatekoja/medical-mirrors/pkg/retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Client calls the local LLM service's /api/generate endpoint.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *tokenBucket
	retryCfg   retry.Config
}

// NewClient creates a new LLM client.
func NewClient(cfg *config.ServiceConfig) (*Client, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, errors.New("llm base url is required")
	}
	model := cfg.Model
	if model == "" {
		model = "llama3.1:8b"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	retryCfg := retry.CollaboratorConfig()
	retryCfg.Retryable = func(err error) bool {
		return apperrors.IsType(err, apperrors.ErrorTypeNetwork)
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    newTokenBucket(30, 2),
		retryCfg:   retryCfg,
	}, nil
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate returns the model's completion for prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", apperrors.NewValidationError("prompt is required")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	body, err := json.Marshal(generateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  false,
		Options: map[string]any{"temperature": 0.2, "num_predict": 300},
	})
	if err != nil {
		return "", err
	}

	var text string
	err = retry.Do(ctx, c.retryCfg, func() error {
		start := time.Now()
		out, status, err := c.post(ctx, body)
		recordLLMMetric(ctx, c.model, status, time.Since(start), err)
		if err != nil {
			return err
		}
		text = out
		return nil
	})
	if err != nil {
		return "", err
	}
	return cleanCompletion(text), nil
}

func (c *Client) post(ctx context.Context, body []byte) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, apperrors.NewNetworkError("llm request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", resp.StatusCode, apperrors.NewNetworkError(fmt.Sprintf("llm returned status %d", resp.StatusCode), nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", resp.StatusCode, apperrors.NewExternalError(fmt.Sprintf("llm returned status %d", resp.StatusCode), nil)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", resp.StatusCode, apperrors.NewExternalError("failed to decode llm response", err)
	}
	if strings.TrimSpace(out.Response) == "" {
		return "", resp.StatusCode, apperrors.NewExternalError("llm response missing text", nil)
	}
	return out.Response, resp.StatusCode, nil
}

// cleanCompletion strips Markdown code fences some models wrap answers in.
func cleanCompletion(text string) string {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
		if i := strings.Index(cleaned, "\n"); i >= 0 && !strings.Contains(cleaned[:i], " ") {
			cleaned = cleaned[i+1:]
		}
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	}
	return strings.TrimSpace(cleaned)
}

type tokenBucket struct {
	tokens chan struct{}
}

func newTokenBucket(rpm int, burst int) *tokenBucket {
	if rpm <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	bucket := &tokenBucket{tokens: make(chan struct{}, burst)}
	for i := 0; i < burst; i++ {
		bucket.tokens <- struct{}{}
	}

	interval := time.Minute / time.Duration(rpm)
	ticker := time.NewTicker(interval)
	go func() {
		for range ticker.C {
			select {
			case bucket.tokens <- struct{}{}:
			default:
			}
		}
	}()
	return bucket
}

func (b *tokenBucket) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.tokens:
		return nil
	}
}

type llmMetrics struct {
	requestCount    metric.Int64Counter
	requestDuration metric.Float64Histogram
	requestErrors   metric.Int64Counter
}

var (
	llmMetricsOnce sync.Once
	llmMetricsSet  *llmMetrics
)

func ensureLLMMetrics() *llmMetrics {
	llmMetricsOnce.Do(func() {
		meter := otel.Meter("github.com/zatekoja/medical-mirrors/llm")
		requestCount, err := meter.Int64Counter("ai.llm.request.count",
			metric.WithDescription("Number of LLM requests"))
		if err != nil {
			return
		}
		requestDuration, err := meter.Float64Histogram("ai.llm.request.duration",
			metric.WithDescription("LLM request duration in milliseconds"),
			metric.WithUnit("ms"))
		if err != nil {
			return
		}
		requestErrors, err := meter.Int64Counter("ai.llm.request.errors",
			metric.WithDescription("Number of LLM request errors"))
		if err != nil {
			return
		}
		llmMetricsSet = &llmMetrics{
			requestCount:    requestCount,
			requestDuration: requestDuration,
			requestErrors:   requestErrors,
		}
	})
	return llmMetricsSet
}

func recordLLMMetric(ctx context.Context, model string, statusCode int, duration time.Duration, err error) {
	m := ensureLLMMetrics()
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("ai.model", model)}
	if statusCode > 0 {
		attrs = append(attrs, attribute.Int("http.status_code", statusCode))
	}
	m.requestCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	if err != nil {
		m.requestErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}
