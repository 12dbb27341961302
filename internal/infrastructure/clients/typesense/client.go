package typesense

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/typesense/typesense-go/v2/typesense"
	"github.com/zatekoja/medical-mirrors/pkg/config"
	"github.com/zatekoja/medical-mirrors/pkg/retry"
)

// Client represents a Typesense client
type Client struct {
	client *typesense.Client
}

// NewClient creates a new Typesense client with exponential backoff retry
func NewClient(cfg *config.TypesenseConfig) (*Client, error) {
	client := typesense.NewClient(
		typesense.WithServer(cfg.URL),
		typesense.WithAPIKey(cfg.APIKey),
		typesense.WithConnectionTimeout(5*time.Second),
	)

	err := retry.DoWithLog(
		context.Background(),
		retry.DefaultConfig(),
		"Typesense",
		func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_, err := client.Health(ctx, 2*time.Second)
			return err
		},
		func(attempt int, err error, nextDelay time.Duration) {
			log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", nextDelay).Msg("Typesense connection attempt failed")
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Typesense after retries: %w", err)
	}

	log.Info().Str("url", cfg.URL).Msg("connected to Typesense")
	return &Client{client: client}, nil
}

// NewClientFromTypesense wraps an already configured client without a health check.
func NewClientFromTypesense(client *typesense.Client) *Client {
	return &Client{client: client}
}

// Client returns the underlying Typesense client
func (c *Client) Client() *typesense.Client {
	return c.client
}
