package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	apperrors "github.com/zatekoja/medical-mirrors/pkg/errors"
)

// ClinicalTrialsPager walks the v2 studies endpoint with pageToken cursors,
// writing each page to its own file. Completed pages and the next token are
// checkpointed so an interrupted run resumes where it stopped.
type ClinicalTrialsPager struct {
	BaseURL  string
	PageSize int
	// MaxPages > 0 stops after that many pages in one run.
	MaxPages int
}

type studiesPage struct {
	NextPageToken string `json:"nextPageToken"`
}

// Run downloads pages into dir until the API stops returning a next token.
func (p *ClinicalTrialsPager) Run(ctx context.Context, d *Downloader, dir string) (BatchResult, error) {
	var result BatchResult
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return result, apperrors.NewInternalError("create download dir", err)
	}
	pageSize := p.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}

	snap := d.Snapshot()
	token, page := snap.Cursor, len(snap.CompletedBatches)
	switch {
	case d.opts.ForceFresh:
		token, page = "", 0
	case token == "" && page > 0:
		result.Skipped = page
		return result, nil
	}
	for fetched := 0; p.MaxPages <= 0 || fetched < p.MaxPages; fetched++ {
		if ctx.Err() != nil {
			result.Cancelled++
			return result, ctx.Err()
		}
		page++
		q := url.Values{}
		q.Set("format", "json")
		q.Set("pageSize", strconv.Itoa(pageSize))
		if token != "" {
			q.Set("pageToken", token)
		}
		path := filepath.Join(dir, fmt.Sprintf("studies_%05d.json", page))

		n, err := d.DownloadFile(ctx, p.BaseURL+"?"+q.Encode(), path)
		if err != nil {
			result.Failures = append(result.Failures, FileFailure{File: FileSpec{URL: p.BaseURL, Path: path}, Err: err})
			if _, recErr := d.RecordFailure(err); recErr != nil {
				d.logger.Error().Err(recErr).Msg("failed to persist download state")
			}
			return result, err
		}
		result.Downloaded++
		result.Bytes += n

		next, err := nextPageToken(path)
		if err != nil {
			return result, err
		}
		if err := d.markFileCompleted(filepath.Base(path), n); err != nil {
			return result, err
		}
		if err := d.MarkBatchCompleted("page:"+strconv.Itoa(page), next); err != nil {
			return result, err
		}
		if next == "" {
			break
		}
		token = next
	}
	return result, nil
}

func nextPageToken(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", apperrors.NewInternalError("open page", err)
	}
	defer f.Close()
	var page studiesPage
	if err := json.NewDecoder(f).Decode(&page); err != nil {
		return "", apperrors.NewParseError("decode page "+filepath.Base(path), err)
	}
	return page.NextPageToken, nil
}
