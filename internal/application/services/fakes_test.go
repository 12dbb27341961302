package services_test

import (
	"context"
	"path"
	"sort"
	"sync"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
	"github.com/zatekoja/medical-mirrors/internal/domain/providers"
	"github.com/zatekoja/medical-mirrors/internal/domain/repositories"
	apperrors "github.com/zatekoja/medical-mirrors/pkg/errors"
)

// fakeDrugRepository keeps raw and consolidated drugs in memory.
type fakeDrugRepository struct {
	mu           sync.Mutex
	raw          []*entities.DrugInformation
	consolidated map[string]*entities.ConsolidatedDrug
	classes      map[string]string
	upsertErr    error
	upsertCalls  int
	scoreUpdates []repositories.ScoreUpdate
}

func newFakeDrugRepository(raw ...*entities.DrugInformation) *fakeDrugRepository {
	return &fakeDrugRepository{raw: raw, consolidated: map[string]*entities.ConsolidatedDrug{}}
}

func (f *fakeDrugRepository) ListGenericNames(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	var names []string
	for _, r := range f.raw {
		if !seen[r.GenericName] {
			seen[r.GenericName] = true
			names = append(names, r.GenericName)
		}
	}
	return names, nil
}

func (f *fakeDrugRepository) GetRowsByGenericNames(ctx context.Context, names []string) ([]*entities.DrugInformation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := map[string]bool{}
	for _, n := range names {
		want[n] = true
	}
	var rows []*entities.DrugInformation
	for _, r := range f.raw {
		if want[r.GenericName] {
			rows = append(rows, r)
		}
	}
	return rows, nil
}

func (f *fakeDrugRepository) ExistingConsolidated(ctx context.Context, names []string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing := map[string]bool{}
	for _, n := range names {
		if _, ok := f.consolidated[n]; ok {
			existing[n] = true
		}
	}
	return existing, nil
}

func (f *fakeDrugRepository) UpsertConsolidated(ctx context.Context, drugs []*entities.ConsolidatedDrug) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, d := range drugs {
		f.consolidated[d.GenericName] = d
	}
	return nil
}

func (f *fakeDrugRepository) ListConsolidated(ctx context.Context, after string, limit int) ([]*entities.ConsolidatedDrug, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.consolidated))
	for k := range f.consolidated {
		if k > after {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if len(keys) > limit {
		keys = keys[:limit]
	}
	page := make([]*entities.ConsolidatedDrug, 0, len(keys))
	for _, k := range keys {
		c := *f.consolidated[k]
		page = append(page, &c)
	}
	return page, nil
}

func (f *fakeDrugRepository) UpdateScores(ctx context.Context, updates []repositories.ScoreUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range updates {
		f.scoreUpdates = append(f.scoreUpdates, u)
		if d, ok := f.consolidated[u.GenericName]; ok {
			d.ConfidenceScore = u.ConfidenceScore
			d.HasClinicalData = u.HasClinicalData
		}
	}
	return nil
}

func (f *fakeDrugRepository) ApplyDrugClasses(ctx context.Context, classes map[string]string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classes = classes
	return len(classes), nil
}

// fakeRecordRepository stores upserted rows per table by natural key.
type fakeRecordRepository struct {
	mu     sync.Mutex
	rows   map[string]map[string]entities.Row
	failOn int
	calls  int
}

func newFakeRecordRepository() *fakeRecordRepository {
	return &fakeRecordRepository{rows: map[string]map[string]entities.Row{}}
}

func (f *fakeRecordRepository) UpsertRows(ctx context.Context, table string, rows []entities.Row) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failOn == f.calls {
		return 0, apperrors.NewPersistenceError("batch rolled back", nil)
	}
	if f.rows[table] == nil {
		f.rows[table] = map[string]entities.Row{}
	}
	key := entities.KeyColumns[table]
	for _, r := range rows {
		f.rows[table][r[key].(string)] = r
	}
	return len(rows), nil
}

func (f *fakeRecordRepository) count(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows[table])
}

// fakeSearchRepository answers searches from canned results per table.
type fakeSearchRepository struct {
	mu        sync.Mutex
	results   map[string][]entities.SearchResult
	related   map[string][]entities.RelatedItem
	details   map[string]map[string]any
	err       error
	queries   []entities.SearchQuery
	tsqueries []string
}

func (f *fakeSearchRepository) Search(ctx context.Context, q entities.SearchQuery) ([]entities.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return f.results[q.Table], nil
}

func (f *fakeSearchRepository) SearchTerms(ctx context.Context, table, tsquery string, limit int) ([]entities.RelatedItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tsqueries = append(f.tsqueries, tsquery)
	if f.err != nil {
		return nil, f.err
	}
	items := f.related[table]
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (f *fakeSearchRepository) GetDetails(ctx context.Context, table, id string) (map[string]any, error) {
	if row, ok := f.details[table+"/"+id]; ok {
		return row, nil
	}
	return nil, apperrors.NewNotFoundError(table + " " + id + " not found")
}

// fakeTopicRepository pages topics by id and records saved references.
type fakeTopicRepository struct {
	topics []*entities.HealthTopic
	saved  map[string]*entities.CrossReference
}

func (f *fakeTopicRepository) ListTopics(ctx context.Context, after string, limit int, pendingOnly bool) ([]*entities.HealthTopic, error) {
	var page []*entities.HealthTopic
	for _, t := range f.topics {
		if t.TopicID <= after {
			continue
		}
		if _, done := f.saved[t.TopicID]; pendingOnly && done {
			continue
		}
		page = append(page, t)
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

func (f *fakeTopicRepository) SaveCrossReference(ctx context.Context, ref *entities.CrossReference) error {
	if f.saved == nil {
		f.saved = map[string]*entities.CrossReference{}
	}
	f.saved[ref.TopicID] = ref
	return nil
}

// fakeEventBus delivers synchronously to buffered subscriber channels.
type fakeEventBus struct {
	mu          sync.Mutex
	subscribers map[string][]chan *entities.IngestionEvent
	published   map[string][]*entities.IngestionEvent
}

func newFakeEventBus() *fakeEventBus {
	return &fakeEventBus{
		subscribers: map[string][]chan *entities.IngestionEvent{},
		published:   map[string][]*entities.IngestionEvent{},
	}
}

func (f *fakeEventBus) Publish(ctx context.Context, channel string, event *entities.IngestionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[channel] = append(f.published[channel], event)
	for _, ch := range f.subscribers[channel] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (f *fakeEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.IngestionEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan *entities.IngestionEvent, 10)
	f.subscribers[channel] = append(f.subscribers[channel], ch)
	return ch, nil
}

func (f *fakeEventBus) Unsubscribe(ctx context.Context, channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subscribers[channel] {
		close(ch)
	}
	delete(f.subscribers, channel)
	return nil
}

func (f *fakeEventBus) Close() error { return nil }

func (f *fakeEventBus) types(channel string) []entities.IngestionEventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	var types []entities.IngestionEventType
	for _, e := range f.published[channel] {
		types = append(types, e.EventType)
	}
	return types
}

// fakeCache matches DeletePattern globs with path.Match.
type fakeCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	deleted []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string][]byte{}}
}

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.data[key]; ok {
		return v, nil
	}
	return nil, providers.ErrCacheMiss
}

func (c *fakeCache) Set(ctx context.Context, key string, value []byte, expirationSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	c.deleted = append(c.deleted, key)
	return nil
}

func (c *fakeCache) DeletePattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.data {
		if ok, _ := path.Match(pattern, key); ok {
			delete(c.data, key)
			c.deleted = append(c.deleted, key)
		}
	}
	return nil
}

func (c *fakeCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}
