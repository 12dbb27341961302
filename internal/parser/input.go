package parser

import (
	"archive/zip"
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r *readCloser) Close() error {
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// openInput opens path, transparently decompressing gzip content. A zip
// archive yields its first JSON member, or its first member if none is JSON.
func openInput(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReaderSize(f, 64*1024)
	magic, err := br.Peek(4)
	if err == nil && string(magic) == "PK\x03\x04" {
		f.Close()
		return openZipMember(path)
	}
	if len(magic) >= 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open gzip %s: %w", path, err)
		}
		return &readCloser{Reader: gz, closers: []io.Closer{f, gz}}, nil
	}
	return &readCloser{Reader: br, closers: []io.Closer{f}}, nil
}

func openZipMember(path string) (io.ReadCloser, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open zip %s: %w", path, err)
	}
	var member *zip.File
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		if member == nil {
			member = zf
		}
		if strings.EqualFold(filepath.Ext(zf.Name), ".json") {
			member = zf
			break
		}
	}
	if member == nil {
		zr.Close()
		return nil, fmt.Errorf("zip %s has no members", path)
	}
	rc, err := member.Open()
	if err != nil {
		zr.Close()
		return nil, fmt.Errorf("open %s in %s: %w", member.Name, path, err)
	}
	return &readCloser{Reader: rc, closers: []io.Closer{zr, rc}}, nil
}

// readEntries loads the elements of the record array in a JSON file. The
// array is either the document root or found under one of paths.
func readEntries(path string, paths [][]string) ([]json.RawMessage, error) {
	in, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	data, err := io.ReadAll(in)
	if err != nil {
		return nil, err
	}
	return decodeEntries(data, paths)
}

func decodeEntries(data []byte, paths [][]string) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		return streamArray(json.NewDecoder(bytes.NewReader(trimmed)))
	}
	if trimmed[0] != '{' {
		return nil, fmt.Errorf("unexpected JSON document start %q", trimmed[0])
	}

	for _, p := range paths {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		found, err := seek(dec, p)
		if err != nil {
			return nil, err
		}
		if found {
			return streamArray(dec)
		}
	}

	// A single object is a one-record document.
	return []json.RawMessage{json.RawMessage(trimmed)}, nil
}

// seek advances dec to the array value at path, reporting whether it exists.
func seek(dec *json.Decoder, path []string) (bool, error) {
	tok, err := dec.Token()
	if err != nil {
		return false, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return false, nil
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return false, err
		}
		key, _ := keyTok.(string)
		if key != path[0] {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return false, err
			}
			continue
		}
		if len(path) == 1 {
			return true, nil
		}
		return seek(dec, path[1:])
	}
	return false, nil
}

// streamArray reads the elements of the array whose opening bracket is next in dec.
func streamArray(dec *json.Decoder) ([]json.RawMessage, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, fmt.Errorf("expected JSON array, got %v", tok)
	}
	var out []json.RawMessage
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return out, fmt.Errorf("decode element %d: %w", len(out), err)
		}
		out = append(out, raw)
	}
	return out, nil
}

// decodeDoc unmarshals one entry into a generic object. Non-object entries
// yield a nil document.
func decodeDoc(raw json.RawMessage) (Doc, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	doc, _ := v.(map[string]any)
	return doc, nil
}
