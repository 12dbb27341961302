// Package secrets loads credentials from a Vault KV engine into the process
// environment before configuration is read.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/zatekoja/medical-mirrors/pkg/errors"
	"github.com/zatekoja/medical-mirrors/pkg/retry"
)

// DefaultPath is the secret read when VAULT_PATH is unset.
const DefaultPath = "medical-mirrors"

// VaultConfig describes where credentials live
type VaultConfig struct {
	Enabled   bool
	Addr      string
	Token     string
	Namespace string
	Mount     string
	Path      string
	KVVersion int
	Timeout   time.Duration
	// Overwrite replaces variables already set in the environment.
	Overwrite bool
}

// VaultResult reports what was applied
type VaultResult struct {
	Path    string
	Loaded  []string
	Skipped []string
}

// VaultConfigFromEnv reads VAULT_* variables.
func VaultConfigFromEnv() VaultConfig {
	cfg := VaultConfig{
		Enabled:   strings.EqualFold(os.Getenv("VAULT_ENABLED"), "true"),
		Addr:      os.Getenv("VAULT_ADDR"),
		Token:     os.Getenv("VAULT_TOKEN"),
		Namespace: os.Getenv("VAULT_NAMESPACE"),
		Mount:     envOr("VAULT_MOUNT", "secret"),
		Path:      envOr("VAULT_PATH", DefaultPath),
		KVVersion: 2,
		Timeout:   5 * time.Second,
		Overwrite: strings.EqualFold(os.Getenv("VAULT_OVERWRITE"), "true"),
	}
	if v, err := strconv.Atoi(os.Getenv("VAULT_KV_VERSION")); err == nil && (v == 1 || v == 2) {
		cfg.KVVersion = v
	}
	if d, err := time.ParseDuration(os.Getenv("VAULT_TIMEOUT")); err == nil && d > 0 {
		cfg.Timeout = d
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ApplyVaultSecrets exports every key of the configured secret as an
// environment variable. Disabled configs are a no-op.
func ApplyVaultSecrets(ctx context.Context, cfg VaultConfig) (*VaultResult, error) {
	result := &VaultResult{Path: cfg.Path}
	if !cfg.Enabled {
		return result, nil
	}
	if cfg.Addr == "" || cfg.Token == "" || cfg.Path == "" {
		return result, apperrors.NewValidationError("vault requires VAULT_ADDR, VAULT_TOKEN and VAULT_PATH")
	}

	endpoint := secretURL(cfg)
	var data map[string]interface{}
	retryCfg := retry.CollaboratorConfig()
	retryCfg.Retryable = func(err error) bool {
		return apperrors.IsType(err, apperrors.ErrorTypeNetwork) || apperrors.IsType(err, apperrors.ErrorTypeExternal)
	}
	err := retry.Do(ctx, retryCfg, func() error {
		var fetchErr error
		data, fetchErr = fetchSecret(ctx, cfg, endpoint)
		return fetchErr
	})
	if err != nil {
		return result, err
	}

	for key, value := range data {
		if !cfg.Overwrite && os.Getenv(key) != "" {
			result.Skipped = append(result.Skipped, key)
			continue
		}
		if err := os.Setenv(key, envValue(value)); err != nil {
			return result, apperrors.NewInternalError("failed to export "+key, err)
		}
		result.Loaded = append(result.Loaded, key)
	}
	return result, nil
}

func secretURL(cfg VaultConfig) string {
	addr := strings.TrimRight(cfg.Addr, "/")
	mount := strings.Trim(cfg.Mount, "/")
	path := strings.Trim(cfg.Path, "/")
	if cfg.KVVersion == 1 {
		return fmt.Sprintf("%s/v1/%s/%s", addr, mount, path)
	}
	return fmt.Sprintf("%s/v1/%s/data/%s", addr, mount, path)
}

func fetchSecret(ctx context.Context, cfg VaultConfig, endpoint string) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build vault request", err)
	}
	req.Header.Set("X-Vault-Token", cfg.Token)
	if cfg.Namespace != "" {
		req.Header.Set("X-Vault-Namespace", cfg.Namespace)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, apperrors.NewNetworkError("vault unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewNetworkError("failed to read vault response", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.NewNotFoundError("vault secret not found: " + cfg.Path)
	case resp.StatusCode >= 300:
		return nil, apperrors.NewExternalError(
			fmt.Sprintf("vault returned %d", resp.StatusCode),
			fmt.Errorf("%s", strings.TrimSpace(string(body))),
		)
	}

	var payload struct {
		Data map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperrors.NewParseError("invalid vault response", err)
	}
	data := payload.Data
	if cfg.KVVersion != 1 {
		inner, _ := data["data"].(map[string]interface{})
		data = inner
	}
	if data == nil {
		return nil, apperrors.NewParseError("vault response has no data", nil)
	}
	return data, nil
}

func envValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	}
}
