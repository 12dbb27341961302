package services_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/medical-mirrors/internal/application/services"
	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
	"github.com/zatekoja/medical-mirrors/internal/domain/providers"
	"github.com/zatekoja/medical-mirrors/internal/domain/repositories"
	"github.com/zatekoja/medical-mirrors/internal/infrastructure/downloader"
	"github.com/zatekoja/medical-mirrors/internal/parser"
	"github.com/zatekoja/medical-mirrors/internal/validation"
)

const icd10Fixture = `{"codes":[
	{"code":"E119","description":"Type 2 diabetes mellitus without complications"},
	{"code":"I10","description":"Essential (primary) hypertension"},
	{"code":"J45"}
]}`

func writeSourceFile(t *testing.T, dataDir, source, name, content string) string {
	t.Helper()
	dir := filepath.Join(dataDir, source)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newIngestionService(records *fakeRecordRepository, drugs *fakeDrugRepository, bus *fakeEventBus, batchSize int) *services.IngestionService {
	var (
		drugRepo repositories.DrugRepository
		events   providers.EventBus
	)
	if drugs != nil {
		drugRepo = drugs
	}
	if bus != nil {
		events = bus
	}
	return services.NewIngestionService(
		parser.NewPool(2, 100, zerolog.Nop()),
		validation.NewValidator(zerolog.Nop()),
		records, drugRepo, events, nil, batchSize,
	)
}

func TestSourceFiles_SkipsPartialAndHidden(t *testing.T) {
	dataDir := t.TempDir()
	src := downloader.Source{Name: "icd10", Format: parser.FormatICD10, Table: entities.TableIcd10Codes}
	b := writeSourceFile(t, dataDir, "icd10", "b.json", "[]")
	a := writeSourceFile(t, dataDir, "icd10", "a.json", "[]")
	writeSourceFile(t, dataDir, "icd10", "c.json.part", "[")
	writeSourceFile(t, dataDir, "icd10", ".lock", "")

	paths, err := services.SourceFiles(src, dataDir)
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, paths)

	paths, err = services.SourceFiles(downloader.Source{Name: "missing"}, dataDir)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestIngestionService_IngestSource(t *testing.T) {
	dataDir := t.TempDir()
	writeSourceFile(t, dataDir, "icd10", "codes.json", icd10Fixture)
	src := downloader.Source{Name: "icd10", Format: parser.FormatICD10, Table: entities.TableIcd10Codes}

	records := newFakeRecordRepository()
	bus := newFakeEventBus()
	svc := newIngestionService(records, nil, bus, 0)

	summary, err := svc.IngestSource(context.Background(), src, dataDir)

	require.NoError(t, err)
	assert.Equal(t, "icd10", summary.Source)
	assert.Equal(t, 1, summary.Files)
	assert.Equal(t, 3, summary.Parsed)
	assert.Equal(t, 1, summary.Invalid)
	assert.Equal(t, []string{"J45"}, summary.FailedIDs)
	assert.Equal(t, 2, summary.Upserted)
	assert.Equal(t, 2, records.count(entities.TableIcd10Codes))
	assert.Contains(t, records.rows[entities.TableIcd10Codes], "E11.9")

	assert.Equal(t, []entities.IngestionEventType{entities.IngestionEventIngestCompleted}, bus.types(providers.EventChannelIngestion))
	assert.Equal(t, []entities.IngestionEventType{entities.IngestionEventIngestCompleted}, bus.types(providers.GetSourceChannel("icd10")))
}

func TestIngestionService_FailedBatchDoesNotStopRun(t *testing.T) {
	dataDir := t.TempDir()
	path := writeSourceFile(t, dataDir, "icd10", "codes.json", icd10Fixture)

	records := newFakeRecordRepository()
	records.failOn = 1
	svc := newIngestionService(records, nil, nil, 1)

	summary, err := svc.IngestFiles(context.Background(), parser.FormatICD10, entities.TableIcd10Codes, []string{path})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.FailedBatches)
	assert.Equal(t, 1, summary.Upserted)
	assert.Equal(t, 1, summary.Invalid)
}

func TestIngestionService_ParseFailureIsReported(t *testing.T) {
	dataDir := t.TempDir()
	good := writeSourceFile(t, dataDir, "icd10", "good.json", icd10Fixture)
	bad := writeSourceFile(t, dataDir, "icd10", "bad.json", `{"codes":[{"code":`)

	records := newFakeRecordRepository()
	svc := newIngestionService(records, nil, nil, 0)

	summary, err := svc.IngestFiles(context.Background(), parser.FormatICD10, entities.TableIcd10Codes, []string{good, bad})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.ParseFailures)
	assert.Equal(t, 2, summary.Upserted)
}

func TestIngestionService_NoFiles(t *testing.T) {
	svc := newIngestionService(newFakeRecordRepository(), nil, nil, 0)

	summary, err := svc.IngestFiles(context.Background(), parser.FormatICD10, entities.TableIcd10Codes, nil)

	require.NoError(t, err)
	assert.Zero(t, summary.Parsed)
	assert.Zero(t, summary.Upserted)
}

func TestIngestionService_DrugClassesPreferBetterClassType(t *testing.T) {
	dataDir := t.TempDir()
	path := writeSourceFile(t, dataDir, "rxclass", "classes.json", `{"results":[
		{"generic_name":"atorvastatin","class_name":"Statin chemical class","class_type":"CHEM"},
		{"generic_name":"Atorvastatin","class_name":"HMG-CoA Reductase Inhibitor","class_type":"EPC"},
		{"generic_name":"metformin","class_name":"Biguanide","class_type":"EPC"}
	]}`)

	drugs := newFakeDrugRepository()
	svc := newIngestionService(newFakeRecordRepository(), drugs, nil, 0)

	summary, err := svc.IngestFiles(context.Background(), parser.FormatRxClass, entities.TableDrugClasses, []string{path})

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Upserted)
	assert.Equal(t, map[string]string{
		"atorvastatin": "HMG-CoA Reductase Inhibitor",
		"metformin":    "Biguanide",
	}, drugs.classes)
}

func TestIngestionService_DrugClassesNeedRepository(t *testing.T) {
	dataDir := t.TempDir()
	path := writeSourceFile(t, dataDir, "rxclass", "classes.json", `{"results":[{"generic_name":"metformin","class_name":"Biguanide"}]}`)
	svc := services.NewIngestionService(parser.NewPool(1, 100, zerolog.Nop()), validation.NewValidator(zerolog.Nop()),
		newFakeRecordRepository(), nil, nil, nil, 0)

	_, err := svc.IngestFiles(context.Background(), parser.FormatRxClass, entities.TableDrugClasses, []string{path})
	assert.Error(t, err)
}
