package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/zatekoja/medical-mirrors/internal/domain/providers"
	"github.com/zatekoja/medical-mirrors/pkg/config"
	apperrors "github.com/zatekoja/medical-mirrors/pkg/errors"
	"github.com/zatekoja/medical-mirrors/pkg/retry"
)

// maxTextLength bounds the payload sent to /analyze.
const maxTextLength = 8000

// Client calls the local PHI-safe NLP service's /analyze endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retryCfg   retry.Config
}

// NewClient creates a new NLP client.
func NewClient(cfg *config.ServiceConfig) (*Client, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, errors.New("nlp base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retryCfg := retry.CollaboratorConfig()
	retryCfg.Retryable = func(err error) bool {
		return apperrors.IsType(err, apperrors.ErrorTypeNetwork)
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		retryCfg:   retryCfg,
	}, nil
}

type analyzeRequest struct {
	Text string `json:"text"`
}

type analyzeResponse struct {
	Entities []providers.Entity `json:"entities"`
}

// Analyze returns the medical entities found in text.
func (c *Client) Analyze(ctx context.Context, text string) ([]providers.Entity, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if len(text) > maxTextLength {
		text = text[:maxTextLength]
	}
	body, err := json.Marshal(analyzeRequest{Text: text})
	if err != nil {
		return nil, err
	}

	var entities []providers.Entity
	err = retry.Do(ctx, c.retryCfg, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return apperrors.NewNetworkError("nlp request failed", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return apperrors.NewNetworkError(fmt.Sprintf("nlp returned status %d", resp.StatusCode), nil)
		}
		if resp.StatusCode != http.StatusOK {
			return apperrors.NewExternalError(fmt.Sprintf("nlp returned status %d", resp.StatusCode), nil)
		}

		var out analyzeResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return apperrors.NewExternalError("failed to decode nlp response", err)
		}
		entities = out.Entities
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entities, nil
}
