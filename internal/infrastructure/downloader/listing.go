package downloader

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	apperrors "github.com/zatekoja/medical-mirrors/pkg/errors"
)

const pubmedSuffix = ".xml.gz"

// ListPubMedFiles scrapes a baseline/updatefiles directory listing and returns
// the archive URLs in name order. maxFiles > 0 keeps only the first maxFiles.
func ListPubMedFiles(ctx context.Context, client *http.Client, listingURL, userAgent string, maxFiles int) ([]string, error) {
	base, err := url.Parse(listingURL)
	if err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid listing url %q", listingURL))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listingURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, apperrors.NewNetworkError("request listing", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, StatusError(resp)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, apperrors.NewParseError("parse listing", err)
	}

	seen := map[string]struct{}{}
	var urls []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if !strings.HasSuffix(href, pubmedSuffix) {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref).String()
		if _, ok := seen[abs]; ok {
			return
		}
		seen[abs] = struct{}{}
		urls = append(urls, abs)
	})

	sort.Slice(urls, func(i, j int) bool {
		return filepath.Base(urls[i]) < filepath.Base(urls[j])
	})
	if maxFiles > 0 && len(urls) > maxFiles {
		urls = urls[:maxFiles]
	}
	return urls, nil
}

// FilesFromURLs maps URLs to file specs under dir, named after the URL path.
func FilesFromURLs(dir string, urls []string) []FileSpec {
	files := make([]FileSpec, 0, len(urls))
	for _, u := range urls {
		name := RemoteFile{URL: u}.FileName()
		files = append(files, FileSpec{URL: u, Path: filepath.Join(dir, name), ID: name})
	}
	return files
}

// RxClassFiles builds one byDrugName query per generic name.
func RxClassFiles(baseURL, dir string, names []string) []FileSpec {
	files := make([]FileSpec, 0, len(names))
	seen := map[string]struct{}{}
	for _, name := range names {
		name = strings.TrimSpace(strings.ToLower(name))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		q := url.Values{}
		q.Set("drugName", name)
		q.Set("relaSource", "ATC")
		slug := fileSlug(name)
		files = append(files, FileSpec{
			URL:  baseURL + "?" + q.Encode(),
			Path: filepath.Join(dir, slug+".json"),
			ID:   "rxclass:" + name,
		})
	}
	return files
}

func fileSlug(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
