package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/medical-mirrors/internal/application/services"
	"github.com/zatekoja/medical-mirrors/internal/evaluation"
	"github.com/zatekoja/medical-mirrors/internal/infrastructure/downloader"
	"github.com/zatekoja/medical-mirrors/pkg/config"
)

func TestWriteTable_AlignsWideCharacters(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeTable(&buf, []string{"ID", "TITLE"}, [][]string{
		{"1", "糖尿病"},
		{"22", "Diabetes"},
	}))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "ID  TITLE", lines[0])
	assert.Equal(t, "--  --------", lines[1])
	assert.Equal(t, "1   糖尿病", lines[2])
	assert.Equal(t, "22  Diabetes", lines[3])
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{n: 512, want: "512 B"},
		{n: 2048, want: "2.0 KiB"},
		{n: 5 * 1024 * 1024, want: "5.0 MiB"},
		{n: 3 * 1024 * 1024 * 1024, want: "3.0 GiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatBytes(tt.n))
	}
}

func TestParseFilters(t *testing.T) {
	filters, err := parseFilters([]string{"status=RECRUITING", " min_enrollment = 100 "})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"status": "RECRUITING", "min_enrollment": "100"}, filters)

	_, err = parseFilters([]string{"status"})
	assert.Error(t, err)
	_, err = parseFilters([]string{"=x"})
	assert.Error(t, err)

	filters, err = parseFilters(nil)
	require.NoError(t, err)
	assert.Nil(t, filters)
}

func TestSelectSources(t *testing.T) {
	sources := []downloader.Source{
		{Name: "icd10"}, {Name: "hcpcs"}, {Name: "off", Disabled: true}, {Name: "foods"},
	}

	all, err := selectSources(sources, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	picked, err := selectSources(sources, []string{"foods", "icd10"})
	require.NoError(t, err)
	require.Len(t, picked, 2)
	assert.Equal(t, "icd10", picked[0].Name, "catalog order is kept")

	_, err = selectSources(sources, []string{"nope"})
	assert.Error(t, err)
}

func TestWantsDatabase(t *testing.T) {
	assert.True(t, wantsDatabase(nil))
	assert.True(t, wantsDatabase([]string{"icd10", "rxclass"}))
	assert.False(t, wantsDatabase([]string{"icd10"}))
}

func TestOverlayMirrors(t *testing.T) {
	v := viper.New()
	v.Set("data_dir", "/srv/mirrors")
	v.Set("max_concurrent_sources", 7)
	v.Set("stagger_delay", "2m")
	v.Set("force_fresh", true)
	v.Set("commit_batch_size", 0)

	m := config.MirrorsConfig{DataDir: "data", MaxConcurrentSources: 3, CommitBatchSize: 1000, StateDir: "data/state"}
	overlayMirrors(&m, v)

	assert.Equal(t, "/srv/mirrors", m.DataDir)
	assert.Equal(t, "data/state", m.StateDir)
	assert.Equal(t, 7, m.MaxConcurrentSources)
	assert.Equal(t, 2*time.Minute, m.StaggerDelay)
	assert.True(t, m.ForceFresh)
	assert.Equal(t, 1000, m.CommitBatchSize, "zero leaves the default")
}

func TestPrintStatus(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	retryAt := now.Add(90 * time.Minute)
	status := services.OrchestratorStatus{
		TotalSources:         2,
		CompletedSources:     1,
		CompletionPercentage: 50,
		ReadyForRetry:        []string{},
		Sources: []services.SourceStatus{
			{Source: "icd10", Status: downloader.StatusCompleted, FilesDownloaded: 1, BytesDownloaded: 2048},
			{Source: "pubmed", Status: downloader.StatusRateLimited, Large: true, RetryAfter: &retryAt, LastError: "HTTP 429"},
		},
	}

	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	require.NoError(t, printStatus(cmd, status, now))

	out := buf.String()
	assert.Contains(t, out, "1/2 sources complete (50%)")
	assert.Contains(t, out, "in 1h30m0s")
	assert.Contains(t, out, "HTTP 429")
	assert.NotContains(t, out, "ready for retry")
}

func TestRootCommand_RegistersSubcommands(t *testing.T) {
	want := []string{"download", "status", "reset", "ingest", "consolidate", "recompute-scores", "enhance", "search", "index", "migrate", "evaluate"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestRepeatEvery(t *testing.T) {
	calls := 0
	err := repeatEvery(context.Background(), 0, func(context.Context) error {
		calls++
		return errors.New("typesense down")
	})
	assert.EqualError(t, err, "typesense down")
	assert.Equal(t, 1, calls)

	ctx, cancel := context.WithCancel(context.Background())
	calls = 0
	err = repeatEvery(ctx, time.Millisecond, func(context.Context) error {
		calls++
		if calls == 3 {
			cancel()
		}
		return errors.New("keeps going")
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPrintEvaluation(t *testing.T) {
	summary := &evaluation.EvalSummary{
		K: 10, TotalQueries: 3, QueriesWithHits: 2, FailedQueries: 1,
		AvgRecall: 0.5, AvgPrecision: 0.25, AvgMRR: 0.75,
		ByTable: map[string]*evaluation.TableSummary{
			"pubmed_articles": {Count: 1, AvgRecall: 0, AvgMRR: 0},
			"icd10_codes":     {Count: 2, AvgRecall: 0.75, AvgMRR: 1},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, printEvaluation(&buf, summary))

	out := buf.String()
	assert.Contains(t, out, "3 queries, 2 with hits, 1 failed")
	assert.Contains(t, out, "recall@10 0.500")
	assert.Less(t, strings.Index(out, "icd10_codes"), strings.Index(out, "pubmed_articles"))
}
