package downloader

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Status is the coarse state of one source.
type Status string

const (
	StatusPending     Status = "pending"
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusRateLimited Status = "rate_limited"
	StatusFailedToday Status = "failed_today"
)

const (
	stateFileSuffix = "_download_state.json"
	dayLayout       = "2006-01-02"
)

// StringSet serializes as a sorted JSON array.
type StringSet map[string]struct{}

func (s StringSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (s StringSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *StringSet) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	set := make(StringSet, len(items))
	for _, v := range items {
		set[v] = struct{}{}
	}
	*s = set
	return nil
}

// State is the persisted download progress of one source. Fields unknown to
// this version are ignored on load.
type State struct {
	Source           string                    `json:"source"`
	RunID            string                    `json:"run_id,omitempty"`
	Status           Status                    `json:"status"`
	CompletedFiles   StringSet                 `json:"completed_files"`
	CompletedBatches StringSet                 `json:"completed_batches"`
	Cursor           string                    `json:"cursor,omitempty"`
	RetryAfter       map[string]time.Time      `json:"retry_after"`
	DailyRetryCounts map[string]map[string]int `json:"daily_retry_counts"`
	FilesDownloaded  int64                     `json:"files_downloaded"`
	BytesDownloaded  int64                     `json:"bytes_downloaded"`
	FilesFailed      int64                     `json:"files_failed"`
	LastError        string                    `json:"last_error,omitempty"`
	LastAttempt      *time.Time                `json:"last_attempt,omitempty"`
	LastSuccess      *time.Time                `json:"last_success,omitempty"`
	UpdatedAt        time.Time                 `json:"updated_at"`
}

// NewState returns an empty pending state for source.
func NewState(source string) *State {
	s := &State{Source: source, Status: StatusPending}
	s.ensure()
	return s
}

func (s *State) ensure() {
	if s.CompletedFiles == nil {
		s.CompletedFiles = StringSet{}
	}
	if s.CompletedBatches == nil {
		s.CompletedBatches = StringSet{}
	}
	if s.RetryAfter == nil {
		s.RetryAfter = map[string]time.Time{}
	}
	if s.DailyRetryCounts == nil {
		s.DailyRetryCounts = map[string]map[string]int{}
	}
	if s.Status == "" {
		s.Status = StatusPending
	}
}

// Clone returns a deep copy.
func (s *State) Clone() State {
	c := *s
	c.CompletedFiles = make(StringSet, len(s.CompletedFiles))
	for k := range s.CompletedFiles {
		c.CompletedFiles[k] = struct{}{}
	}
	c.CompletedBatches = make(StringSet, len(s.CompletedBatches))
	for k := range s.CompletedBatches {
		c.CompletedBatches[k] = struct{}{}
	}
	c.RetryAfter = make(map[string]time.Time, len(s.RetryAfter))
	for k, v := range s.RetryAfter {
		c.RetryAfter[k] = v
	}
	c.DailyRetryCounts = make(map[string]map[string]int, len(s.DailyRetryCounts))
	for src, days := range s.DailyRetryCounts {
		inner := make(map[string]int, len(days))
		for d, n := range days {
			inner[d] = n
		}
		c.DailyRetryCounts[src] = inner
	}
	if s.LastAttempt != nil {
		t := *s.LastAttempt
		c.LastAttempt = &t
	}
	if s.LastSuccess != nil {
		t := *s.LastSuccess
		c.LastSuccess = &t
	}
	return c
}

// IsRateLimited reports whether source must wait before its next attempt.
func (s *State) IsRateLimited(source string, now time.Time) bool {
	until, ok := s.RetryAfter[source]
	return ok && now.Before(until)
}

// RetryCount returns the number of failures recorded for source on now's UTC date.
func (s *State) RetryCount(source string, now time.Time) int {
	return s.DailyRetryCounts[source][retryDay(now)]
}

// retryDay keys daily counts by UTC date whatever zone the caller's clock is in.
func retryDay(now time.Time) string {
	return now.UTC().Format(dayLayout)
}

// ReadyForRetry reports whether source is outside its backoff window and
// under the daily retry cap.
func (s *State) ReadyForRetry(source string, now time.Time, dailyCap int) bool {
	return !s.IsRateLimited(source, now) && s.RetryCount(source, now) < dailyCap
}

// EffectiveStatus resolves time-dependent statuses: failed_today lapses on
// the next date and an elapsed backoff returns the source to failed.
func (s *State) EffectiveStatus(now time.Time, dailyCap int) Status {
	switch s.Status {
	case StatusFailedToday:
		if s.RetryCount(s.Source, now) < dailyCap {
			return StatusPending
		}
	case StatusRateLimited:
		if !s.IsRateLimited(s.Source, now) {
			return StatusFailed
		}
	}
	return s.Status
}

// recordRetry increments today's count and drops counts from earlier dates.
func (s *State) recordRetry(source string, now time.Time) int {
	today := retryDay(now)
	days := s.DailyRetryCounts[source]
	if days == nil {
		days = map[string]int{}
		s.DailyRetryCounts[source] = days
	}
	for d := range days {
		if d != today {
			delete(days, d)
		}
	}
	days[today]++
	return days[today]
}

// StateStore persists one JSON state file per source in a directory.
type StateStore struct {
	dir string
}

// NewStateStore creates the directory if needed.
func NewStateStore(dir string) (*StateStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &StateStore{dir: dir}, nil
}

// Dir returns the state directory.
func (s *StateStore) Dir() string {
	return s.dir
}

// Path returns the state file for source.
func (s *StateStore) Path(source string) string {
	return filepath.Join(s.dir, source+stateFileSuffix)
}

// Load reads the state of source. A missing file yields a fresh state; an
// unreadable file is an error and is left in place.
func (s *StateStore) Load(source string) (*State, error) {
	data, err := os.ReadFile(s.Path(source))
	if errors.Is(err, os.ErrNotExist) {
		return NewState(source), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state %s: %w", source, err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode state %s: %w", source, err)
	}
	if st.Source == "" {
		st.Source = source
	}
	st.ensure()
	return &st, nil
}

// Save writes state atomically (temp file then rename).
func (s *StateStore) Save(st *State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state %s: %w", st.Source, err)
	}
	tmp, err := os.CreateTemp(s.dir, st.Source+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write state %s: %w", st.Source, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close state %s: %w", st.Source, err)
	}
	if err := os.Rename(tmp.Name(), s.Path(st.Source)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename state %s: %w", st.Source, err)
	}
	return nil
}

// Reset deletes the persisted state of source.
func (s *StateStore) Reset(source string) error {
	err := os.Remove(s.Path(source))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove state %s: %w", source, err)
	}
	return nil
}

// ResetAll deletes every state file in the directory and returns the sources removed.
func (s *StateStore) ResetAll() ([]string, error) {
	sources, err := s.Sources()
	if err != nil {
		return nil, err
	}
	for _, source := range sources {
		if err := s.Reset(source); err != nil {
			return nil, err
		}
	}
	return sources, nil
}

// Sources lists the sources with a persisted state file.
func (s *StateStore) Sources() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list state dir: %w", err)
	}
	var sources []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), stateFileSuffix) {
			continue
		}
		sources = append(sources, strings.TrimSuffix(e.Name(), stateFileSuffix))
	}
	sort.Strings(sources)
	return sources, nil
}
