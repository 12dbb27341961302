package downloader

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateStore_LoadMissingReturnsPending(t *testing.T) {
	store, err := NewStateStore(t.TempDir())
	require.NoError(t, err)

	st, err := store.Load("pubmed")
	require.NoError(t, err)
	assert.Equal(t, "pubmed", st.Source)
	assert.Equal(t, StatusPending, st.Status)
	assert.Empty(t, st.CompletedFiles)
}

func TestStateStore_SaveLoadRoundTrip(t *testing.T) {
	store, err := NewStateStore(t.TempDir())
	require.NoError(t, err)

	until := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	st := NewState("fda")
	st.Status = StatusRateLimited
	st.CompletedFiles["b.json"] = struct{}{}
	st.CompletedFiles["a.json"] = struct{}{}
	st.RetryAfter["fda"] = until
	st.DailyRetryCounts["fda"] = map[string]int{"2026-03-02": 2}
	require.NoError(t, store.Save(st))

	data, err := os.ReadFile(store.Path("fda"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"completed_files": [
    "a.json",
    "b.json"
  ]`)

	loaded, err := store.Load("fda")
	require.NoError(t, err)
	assert.Equal(t, StatusRateLimited, loaded.Status)
	assert.True(t, loaded.CompletedFiles.Has("a.json"))
	assert.True(t, loaded.RetryAfter["fda"].Equal(until))
	assert.Equal(t, 2, loaded.RetryCount("fda", until))
}

func TestStateStore_IgnoresUnknownKeys(t *testing.T) {
	store, err := NewStateStore(t.TempDir())
	require.NoError(t, err)
	raw := `{"source":"clinicaltrials","status":"completed","completed_files":["studies_00001.json"],
		"legacy_counter":42,"nested":{"anything":true}}`
	require.NoError(t, os.WriteFile(store.Path("clinicaltrials"), []byte(raw), 0o644))

	st, err := store.Load("clinicaltrials")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, st.Status)
	assert.True(t, st.CompletedFiles.Has("studies_00001.json"))
	assert.NotNil(t, st.RetryAfter)
}

func TestStateStore_CorruptFileIsAnError(t *testing.T) {
	store, err := NewStateStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.Path("foods"), []byte("{not json"), 0o644))

	_, err = store.Load("foods")
	assert.Error(t, err)
	assert.FileExists(t, store.Path("foods"))
}

func TestStateStore_ResetAndSources(t *testing.T) {
	store, err := NewStateStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Save(NewState("pubmed")))
	require.NoError(t, store.Save(NewState("fda")))

	sources, err := store.Sources()
	require.NoError(t, err)
	assert.Equal(t, []string{"fda", "pubmed"}, sources)

	require.NoError(t, store.Reset("fda"))
	require.NoError(t, store.Reset("fda"), "reset of a missing state is not an error")
	assert.NoFileExists(t, store.Path("fda"))

	removed, err := store.ResetAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"pubmed"}, removed)
	sources, err = store.Sources()
	require.NoError(t, err)
	assert.Empty(t, sources)
}

func TestDownloader_ResetClearsProgress(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	d, store := newTestDownloader(t, "fda", Options{Now: func() time.Time { return now }})
	_, err := d.RecordFailure(assertErr{})
	require.NoError(t, err)
	require.FileExists(t, store.Path("fda"))

	require.NoError(t, d.Reset())
	assert.NoFileExists(t, store.Path("fda"))
	assert.False(t, d.IsRateLimited(now))
	assert.Equal(t, StatusPending, d.Snapshot().Status)
}

func TestDownloader_ReloadPicksUpExternalWrites(t *testing.T) {
	d, store := newTestDownloader(t, "icd10", Options{})
	assert.Equal(t, StatusPending, d.Snapshot().Status)

	// Another process finishes the source.
	st := NewState("icd10")
	st.Status = StatusCompleted
	st.CompletedFiles["codes.json"] = struct{}{}
	require.NoError(t, store.Save(st))

	require.NoError(t, d.Reload())
	assert.Equal(t, StatusCompleted, d.Snapshot().Status)
	assert.True(t, d.IsCompleted("codes.json"))
}

func TestState_CloneIsDeep(t *testing.T) {
	st := NewState("fda")
	st.CompletedFiles["a"] = struct{}{}
	st.DailyRetryCounts["fda"] = map[string]int{"2026-03-02": 1}

	c := st.Clone()
	c.CompletedFiles["b"] = struct{}{}
	c.DailyRetryCounts["fda"]["2026-03-02"] = 9

	assert.False(t, st.CompletedFiles.Has("b"))
	assert.Equal(t, 1, st.DailyRetryCounts["fda"]["2026-03-02"])
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
