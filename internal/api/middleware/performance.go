package middleware

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// Cache lifetimes in seconds. Search results match the redis result cache TTL.
const (
	searchMaxAge = 120
	recordMaxAge = 300
	tablesMaxAge = 3600
)

var gzipWriterPool = sync.Pool{
	New: func() interface{} {
		gz, _ := gzip.NewWriterLevel(io.Discard, gzip.DefaultCompression)
		return gz
	},
}

type gzipResponseWriter struct {
	http.ResponseWriter
	gz *gzip.Writer
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	return w.gz.Write(b)
}

// Compression gzips responses for clients that accept it.
func Compression(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}

		gz := gzipWriterPool.Get().(*gzip.Writer)
		gz.Reset(w)
		defer func() {
			_ = gz.Close()
			gzipWriterPool.Put(gz)
		}()

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		w.Header().Del("Content-Length")

		next.ServeHTTP(&gzipResponseWriter{ResponseWriter: w, gz: gz}, r)
	})
}

type bufferedResponseWriter struct {
	http.ResponseWriter
	body       bytes.Buffer
	statusCode int
}

func (w *bufferedResponseWriter) Write(b []byte) (int, error) {
	return w.body.Write(b)
}

func (w *bufferedResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
}

// ETag buffers successful GET responses, tags them with a content hash and
// answers If-None-Match with 304.
func ETag(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}

		rec := &bufferedResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)

		if rec.statusCode == http.StatusOK {
			sum := sha256.Sum256(rec.body.Bytes())
			etag := `"` + hex.EncodeToString(sum[:16]) + `"`
			w.Header().Set("ETag", etag)
			if r.Header.Get("If-None-Match") == etag {
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}

		w.WriteHeader(rec.statusCode)
		_, _ = w.Write(rec.body.Bytes())
	})
}

// CacheControl sets Cache-Control by route family. Status and health are never cached.
func CacheControl(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		switch {
		case path == "/health" || path == "/api/status":
			w.Header().Set("Cache-Control", "no-store")
		case path == "/api/tables":
			w.Header().Set("Cache-Control", maxAge(tablesMaxAge))
		case strings.HasPrefix(path, "/api/search/") || strings.HasPrefix(path, "/api/drugs/suggest"):
			w.Header().Set("Cache-Control", maxAge(searchMaxAge))
		case strings.HasPrefix(path, "/api/"):
			w.Header().Set("Cache-Control", maxAge(recordMaxAge))
		default:
			w.Header().Set("Cache-Control", "private, no-cache, must-revalidate")
		}

		next.ServeHTTP(w, r)
	})
}

func maxAge(seconds int) string {
	return "public, max-age=" + strconv.Itoa(seconds) + ", must-revalidate"
}

// streamPrefix marks event streams, which must not be buffered or compressed.
const streamPrefix = "/api/stream/"

// ResponseOptimization chains CacheControl, ETag and Compression.
func ResponseOptimization(next http.Handler) http.Handler {
	optimized := CacheControl(ETag(Compression(next)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, streamPrefix) {
			next.ServeHTTP(w, r)
			return
		}
		optimized.ServeHTTP(w, r)
	})
}
