package downloader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
	"github.com/zatekoja/medical-mirrors/internal/parser"
)

// Kind selects how a source's file list is produced.
type Kind string

const (
	// KindFiles downloads a fixed list of URLs.
	KindFiles Kind = "files"
	// KindPubMedListing scrapes an FTP-over-HTTP directory listing.
	KindPubMedListing Kind = "pubmed_listing"
	// KindClinicalTrialsAPI pages through the v2 studies API.
	KindClinicalTrialsAPI Kind = "clinicaltrials_api"
	// KindRxClassAPI queries drug classes for each known generic name.
	KindRxClassAPI Kind = "rxclass_api"
)

// RemoteFile is one configured URL with an optional local name.
type RemoteFile struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name,omitempty"`
}

// FileName returns the local name, derived from the URL path if unset.
func (f RemoteFile) FileName() string {
	if f.Name != "" {
		return f.Name
	}
	base := f.URL
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	return filepath.Base(base)
}

// Source describes one upstream dataset.
type Source struct {
	Name           string       `yaml:"name"`
	Kind           Kind         `yaml:"kind"`
	Format         string       `yaml:"format"`
	Table          string       `yaml:"table"`
	Files          []RemoteFile `yaml:"files,omitempty"`
	ListingURL     string       `yaml:"listing_url,omitempty"`
	BaseURL        string       `yaml:"base_url,omitempty"`
	PageSize       int          `yaml:"page_size,omitempty"`
	MaxFiles       int          `yaml:"max_files,omitempty"`
	SizeEstimateMB int          `yaml:"size_estimate_mb"`
	Disabled       bool         `yaml:"disabled,omitempty"`
}

// Configured reports whether the source has somewhere to download from.
func (s Source) Configured() bool {
	switch s.Kind {
	case KindPubMedListing:
		return s.ListingURL != ""
	case KindClinicalTrialsAPI, KindRxClassAPI:
		return s.BaseURL != ""
	default:
		return len(s.Files) > 0
	}
}

// Dir is where the source's files live under dataDir.
func (s Source) Dir(dataDir string) string {
	return filepath.Join(dataDir, s.Name)
}

// IsLarge reports whether the source is scheduled sequentially.
func (s Source) IsLarge(thresholdMB int) bool {
	return s.SizeEstimateMB >= thresholdMB
}

func (s Source) validate() error {
	if s.Name == "" {
		return fmt.Errorf("source without name")
	}
	switch s.Kind {
	case KindFiles, KindPubMedListing, KindClinicalTrialsAPI, KindRxClassAPI:
	default:
		return fmt.Errorf("source %s: unknown kind %q", s.Name, s.Kind)
	}
	if _, ok := parser.Lookup(s.Format); !ok {
		return fmt.Errorf("source %s: unknown format %q", s.Name, s.Format)
	}
	if s.Table != entities.TableDrugClasses && !entities.IsKnownTable(s.Table) {
		return fmt.Errorf("source %s: unknown table %q", s.Name, s.Table)
	}
	return nil
}

// DefaultCatalog lists the built-in sources. Sources without a public bulk
// endpoint ship unconfigured and are enabled through the catalog file.
func DefaultCatalog() []Source {
	return []Source{
		{
			Name: "pubmed", Kind: KindPubMedListing, Format: parser.FormatPubMed, Table: entities.TablePubmedArticles,
			ListingURL: "https://ftp.ncbi.nlm.nih.gov/pubmed/baseline/", SizeEstimateMB: 40000,
		},
		{
			Name: "pubmed_updates", Kind: KindPubMedListing, Format: parser.FormatPubMed, Table: entities.TablePubmedArticles,
			ListingURL: "https://ftp.ncbi.nlm.nih.gov/pubmed/updatefiles/", SizeEstimateMB: 4000,
		},
		{
			Name: "clinicaltrials", Kind: KindClinicalTrialsAPI, Format: parser.FormatClinicalTrials, Table: entities.TableClinicalTrials,
			BaseURL: "https://clinicaltrials.gov/api/v2/studies", PageSize: 1000, SizeEstimateMB: 12000,
		},
		{
			Name: "fda_ndc", Kind: KindFiles, Format: parser.FormatFDANDC, Table: entities.TableDrugInformation,
			Files:          []RemoteFile{{URL: "https://download.open.fda.gov/drug/ndc/drug-ndc-0001-of-0001.json.zip"}},
			SizeEstimateMB: 300,
		},
		{
			Name: "drugsfda", Kind: KindFiles, Format: parser.FormatDrugsFDA, Table: entities.TableDrugInformation,
			Files:          []RemoteFile{{URL: "https://download.open.fda.gov/drug/drugsfda/drug-drugsfda-0001-of-0001.json.zip"}},
			SizeEstimateMB: 100,
		},
		{
			Name: "fda_labels", Kind: KindFiles, Format: parser.FormatFDALabels, Table: entities.TableDrugInformation,
			Files:          labelFiles(13),
			SizeEstimateMB: 1500,
		},
		{
			Name: "orangebook", Kind: KindFiles, Format: parser.FormatOrangeBook, Table: entities.TableDrugInformation,
			Files:          []RemoteFile{{URL: "https://www.fda.gov/media/76860/download", Name: "orangebook.zip"}},
			SizeEstimateMB: 5,
		},
		{
			Name: "rxclass", Kind: KindRxClassAPI, Format: parser.FormatRxClass, Table: entities.TableDrugClasses,
			BaseURL: "https://rxnav.nlm.nih.gov/REST/rxclass/class/byDrugName.json", SizeEstimateMB: 50,
		},
		{
			Name: "health_topics", Kind: KindFiles, Format: parser.FormatHealthTopics, Table: entities.TableHealthTopics,
			Files:          []RemoteFile{{URL: "https://odphp.health.gov/myhealthfinder/api/v4/topicsearch.json?lang=en", Name: "topics.json"}},
			SizeEstimateMB: 10,
		},
		{
			Name: "foods", Kind: KindFiles, Format: parser.FormatFoods, Table: entities.TableFoodItems,
			Files:          []RemoteFile{{URL: "https://fdc.nal.usda.gov/fdc-datasets/FoodData_Central_foundation_food_json_2024-10-31.zip", Name: "foundation_foods.zip"}},
			SizeEstimateMB: 60,
		},
		{Name: "icd10", Kind: KindFiles, Format: parser.FormatICD10, Table: entities.TableIcd10Codes, SizeEstimateMB: 20},
		{Name: "hcpcs", Kind: KindFiles, Format: parser.FormatHCPCS, Table: entities.TableBillingCodes, SizeEstimateMB: 10},
		{Name: "exercises", Kind: KindFiles, Format: parser.FormatExercises, Table: entities.TableExercises, SizeEstimateMB: 5},
	}
}

func labelFiles(parts int) []RemoteFile {
	files := make([]RemoteFile, 0, parts)
	for i := 1; i <= parts; i++ {
		files = append(files, RemoteFile{
			URL: fmt.Sprintf("https://download.open.fda.gov/drug/label/drug-label-%04d-of-%04d.json.zip", i, parts),
		})
	}
	return files
}

type catalogFile struct {
	Sources []Source `yaml:"sources"`
}

// LoadCatalog returns the default catalog overlaid with the sources in path.
// An entry whose name matches a default replaces the fields it sets; new
// names are appended. An empty path returns the defaults.
func LoadCatalog(path string) ([]Source, error) {
	sources := DefaultCatalog()
	if path == "" {
		return sources, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source catalog: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse source catalog: %w", err)
	}

	index := make(map[string]int, len(sources))
	for i, s := range sources {
		index[s.Name] = i
	}
	for _, override := range file.Sources {
		if i, ok := index[override.Name]; ok {
			sources[i] = mergeSource(sources[i], override)
			continue
		}
		index[override.Name] = len(sources)
		sources = append(sources, override)
	}
	for _, s := range sources {
		if err := s.validate(); err != nil {
			return nil, err
		}
	}
	return sources, nil
}

func mergeSource(base, o Source) Source {
	if o.Kind != "" {
		base.Kind = o.Kind
	}
	if o.Format != "" {
		base.Format = o.Format
	}
	if o.Table != "" {
		base.Table = o.Table
	}
	if len(o.Files) > 0 {
		base.Files = o.Files
	}
	if o.ListingURL != "" {
		base.ListingURL = o.ListingURL
	}
	if o.BaseURL != "" {
		base.BaseURL = o.BaseURL
	}
	if o.PageSize > 0 {
		base.PageSize = o.PageSize
	}
	if o.MaxFiles > 0 {
		base.MaxFiles = o.MaxFiles
	}
	if o.SizeEstimateMB > 0 {
		base.SizeEstimateMB = o.SizeEstimateMB
	}
	base.Disabled = o.Disabled
	return base
}

// Find returns the source named name.
func Find(sources []Source, name string) (Source, bool) {
	for _, s := range sources {
		if s.Name == name {
			return s, true
		}
	}
	return Source{}, false
}
