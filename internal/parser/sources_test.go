package parser

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
)

const pubmedSample = `<?xml version="1.0"?>
<PubmedArticleSet>
 <PubmedArticle>
  <MedlineCitation>
   <PMID Version="1">31452104</PMID>
   <Article>
    <Journal>
     <JournalIssue><PubDate><Year>2019</Year><Month>08</Month><Day>27</Day></PubDate></JournalIssue>
     <Title>The New England journal of medicine</Title>
    </Journal>
    <ArticleTitle>Aspirin for <i>primary</i> prevention.</ArticleTitle>
    <Abstract>
     <AbstractText Label="BACKGROUND">Aspirin is widely used.</AbstractText>
     <AbstractText Label="RESULTS">Bleeding increased.</AbstractText>
    </Abstract>
    <AuthorList>
     <Author><LastName>McNeil</LastName><ForeName>John J</ForeName><Initials>JJ</Initials></Author>
     <Author><CollectiveName>ASPREE Investigator Group</CollectiveName></Author>
    </AuthorList>
    <ELocationID EIdType="doi">10.1056/NEJMoa1805819</ELocationID>
   </Article>
   <MeshHeadingList>
    <MeshHeading><DescriptorName UI="D001241">Aspirin</DescriptorName></MeshHeading>
   </MeshHeadingList>
  </MedlineCitation>
 </PubmedArticle>
 <PubmedArticle>
  <MedlineCitation><Article><ArticleTitle>No PMID</ArticleTitle></Article></MedlineCitation>
 </PubmedArticle>
</PubmedArticleSet>`

func gzipFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestParsePubMed_Gzip(t *testing.T) {
	path := gzipFile(t, t.TempDir(), "pubmed25n0001.xml.gz", pubmedSample)

	records, skipped, err := parsePubMedFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, records, 1)

	a := records[0].(*entities.PubmedArticle)
	assert.Equal(t, "31452104", a.PMID)
	assert.Equal(t, "Aspirin for primary prevention.", a.Title)
	assert.Equal(t, "BACKGROUND: Aspirin is widely used.\nRESULTS: Bleeding increased.", a.Abstract)
	assert.Equal(t, []string{"McNeil JJ", "ASPREE Investigator Group"}, a.Authors)
	assert.Equal(t, "The New England journal of medicine", a.Journal)
	assert.Equal(t, "2019 Aug 27", a.PubDate)
	assert.Equal(t, "10.1056/NEJMoa1805819", a.DOI)
	assert.Equal(t, []string{"Aspirin"}, a.MeshTerms)
}

func TestParsePubMed_TruncatedFileKeepsEarlierArticles(t *testing.T) {
	cut := pubmedSample[:strings.Index(pubmedSample, "<MedlineCitation><Article><ArticleTitle>No PMID")]
	records, _, err := parsePubMedXML(strings.NewReader(cut))
	assert.Error(t, err)
	assert.Len(t, records, 1)
}

func TestParseClinicalTrial_V2AndLegacy(t *testing.T) {
	v2 := mustDoc(t, `{"protocolSection":{
		"identificationModule":{"nctId":"NCT04368728","briefTitle":"mRNA Vaccine Study"},
		"statusModule":{"overallStatus":"COMPLETED","startDateStruct":{"date":"2020-04-29"},"completionDateStruct":{"date":"2023-02-10"}},
		"sponsorCollaboratorsModule":{"leadSponsor":{"name":"BioNTech"},"collaborators":[{"name":"Pfizer"}]},
		"conditionsModule":{"conditions":["COVID-19"]},
		"designModule":{"studyType":"INTERVENTIONAL","phases":["PHASE2","PHASE3"],"enrollmentInfo":{"count":47079}},
		"armsInterventionsModule":{"interventions":[{"name":"BNT162b2"},{"name":"Placebo"}]},
		"contactsLocationsModule":{"locations":[{"facility":"Site 1","city":"Mainz","country":"Germany"}]},
		"descriptionModule":{"briefSummary":"Safety and efficacy."}}}`)

	recs, err := parseClinicalTrial(v2)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	trial := recs[0].(*entities.ClinicalTrial)
	assert.Equal(t, "NCT04368728", trial.NCTID)
	assert.Equal(t, "PHASE2, PHASE3", trial.Phase)
	assert.Equal(t, []string{"BioNTech", "Pfizer"}, trial.Sponsors)
	assert.Equal(t, []string{"BNT162b2", "Placebo"}, trial.Interventions)
	assert.Equal(t, []string{"Site 1, Mainz, Germany"}, trial.Locations)
	require.NotNil(t, trial.EnrollmentCount)
	assert.Equal(t, 47079, *trial.EnrollmentCount)

	legacy := mustDoc(t, `{"nct_id":"NCT00000102","title":"Legacy","overall_status":"Completed","conditions":["Asthma"],"enrollment":"30"}`)
	recs, err = parseClinicalTrial(legacy)
	require.NoError(t, err)
	trial = recs[0].(*entities.ClinicalTrial)
	assert.Equal(t, "Completed", trial.Status)
	assert.Equal(t, 30, *trial.EnrollmentCount)

	recs, err = parseClinicalTrial(mustDoc(t, `{"title":"orphan"}`))
	assert.NoError(t, err)
	assert.Empty(t, recs)
}

func TestParseNDCProduct(t *testing.T) {
	doc := mustDoc(t, `{"product_ndc":"0573-0150","generic_name":"Ibuprofen","brand_name":"Advil",
		"labeler_name":"Haleon","dosage_form":"TABLET, COATED","route":["ORAL"],
		"active_ingredients":[{"name":"IBUPROFEN","strength":"200 mg/1"}],
		"pharm_class":["Cyclooxygenase Inhibitors [MoA]","Nonsteroidal Anti-inflammatory Drug [EPC]"],
		"marketing_start_date":"19840518","application_number":"NDA018989"}`)

	recs, err := parseNDCProduct(doc)
	require.NoError(t, err)
	drug := recs[0].(*entities.DrugInformation)
	assert.Equal(t, "0573-0150", drug.NDC)
	assert.Equal(t, "200 mg/1", drug.Strength)
	assert.Equal(t, "ORAL", drug.Route)
	assert.Equal(t, "Nonsteroidal Anti-inflammatory Drug", drug.TherapeuticClass)
	assert.Equal(t, SourceNDC, drug.DataSource)
}

func TestParseDrugsFDAApplication_OneRowPerProduct(t *testing.T) {
	doc := mustDoc(t, `{"application_number":"ANDA070025","sponsor_name":"TEVA",
		"openfda":{"generic_name":["IBUPROFEN"]},
		"submissions":[{"submission_type":"SUPPL","submission_status_date":"19900101"},
		               {"submission_type":"ORIG","submission_status_date":"19850606"}],
		"products":[{"product_number":"001","brand_name":"IBUPROFEN","dosage_form":"TABLET","route":"ORAL",
		             "active_ingredients":[{"name":"IBUPROFEN","strength":"400MG"}]},
		            {"product_number":"002","dosage_form":"TABLET","active_ingredients":[{"name":"IBUPROFEN","strength":"600MG"}]}]}`)

	recs, err := parseDrugsFDAApplication(doc)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	first := recs[0].(*entities.DrugInformation)
	second := recs[1].(*entities.DrugInformation)
	assert.Equal(t, "DF_ANDA070025_001", first.NDC)
	assert.Equal(t, "DF_ANDA070025_002", second.NDC)
	assert.Equal(t, "19850606", first.ApprovalDate)
	assert.Equal(t, "600MG", second.Strength)
	assert.Equal(t, "TEVA", second.Manufacturer)
}

func TestParseDrugLabel(t *testing.T) {
	doc := mustDoc(t, `{"set_id":"abc-123","openfda":{"generic_name":["METFORMIN HYDROCHLORIDE"],"brand_name":["Glucophage"]},
		"indications_and_usage":["Adjunct to diet and exercise."],
		"contraindications":["Severe renal impairment.","Metabolic acidosis."],
		"warnings_and_cautions":["Lactic acidosis."],
		"drug_interactions":["Carbonic anhydrase inhibitors may increase risk."]}`)

	recs, err := parseDrugLabel(doc)
	require.NoError(t, err)
	drug := recs[0].(*entities.DrugInformation)
	assert.Equal(t, "DL_abc-123", drug.NDC)
	assert.Equal(t, "Adjunct to diet and exercise.", drug.IndicationsAndUsage)
	assert.Len(t, drug.Contraindications, 2)
	assert.Equal(t, []string{"Lactic acidosis."}, drug.Warnings)
	assert.Equal(t, "Carbonic anhydrase inhibitors may increase risk.", drug.DrugInteractions["label"])
}

const orangeBookSample = "Ingredient~DF;Route~Trade_Name~Applicant~Strength~Appl_Type~Appl_No~Product_No~TE_Code~Approval_Date~RLD~RS~Type~Applicant_Full_Name\n" +
	"BUDESONIDE~AEROSOL, FOAM;RECTAL~UCERIS~SALIX~2MG/ACTUATION~N~205613~001~~Oct 7, 2014~Yes~Yes~RX~SALIX PHARMACEUTICALS INC\n" +
	"ASPIRIN~TABLET;ORAL~BAYER~BAYER~325MG~N~000001~002~AB~Approved Prior to Jan 1, 1982~No~No~OTC~BAYER HEALTHCARE LLC\n" +
	"~TABLET;ORAL~X~Y~1MG~N~~001~~~No~No~RX~Y\n"

func TestParseOrangeBook(t *testing.T) {
	records, skipped, err := parseOrangeBookProducts(strings.NewReader(orangeBookSample))
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, records, 2)

	first := records[0].(*entities.DrugInformation)
	assert.Equal(t, "OB_N205613_001", first.NDC)
	assert.Equal(t, "AEROSOL, FOAM", first.DosageForm)
	assert.Equal(t, "RECTAL", first.Route)
	assert.Equal(t, "SALIX PHARMACEUTICALS INC", first.Manufacturer)

	second := records[1].(*entities.DrugInformation)
	assert.Equal(t, "AB", second.OrangeBookCode)
	assert.Equal(t, "Jan 1, 1982", second.ApprovalDate)
	assert.Equal(t, SourceOrangeBook, second.DataSource)
}

func TestParseOrangeBook_Zip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "EOBZIP_2024_01.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("products.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte(orangeBookSample))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	records, _, err := parseOrangeBookFile(path)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestPool_ZipPrefersJSONMember(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drug-ndc-0001-of-0001.json.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	readme, err := zw.Create("README.txt")
	require.NoError(t, err)
	_, err = readme.Write([]byte("not json"))
	require.NoError(t, err)
	w, err := zw.Create("codes.json")
	require.NoError(t, err)
	_, err = w.Write([]byte(`{"codes":[{"code":"I10","description":"Essential hypertension"}]}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	result, err := NewPool(1, 1000, zerolog.Nop()).ParseFiles(context.Background(), FormatICD10, []string{path})
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "I10", result.Records[0].Key())
}

func TestParseRxClass(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rxclass.json", `{"rxclassDrugInfoList":{"rxclassDrugInfo":[
		{"minConcept":{"rxcui":"1191","name":"Aspirin","tty":"IN"},
		 "rxclassMinConceptItem":{"classId":"N0000175722","className":"Platelet Aggregation Inhibitor","classType":"EPC"}},
		{"minConcept":{"name":"Aspirin"}}
	]}}`)

	pool := NewPool(1, 1000, zerolog.Nop())
	result, err := pool.ParseFiles(context.Background(), FormatRxClass, []string{path})
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, 1, result.Skipped)

	class := result.Records[0].(*entities.DrugClass)
	assert.Equal(t, "aspirin", class.GenericName)
	assert.Equal(t, "Platelet Aggregation Inhibitor", class.ClassName)
	assert.Less(t, ClassRank("EPC"), ClassRank("CHEM"))
}

func TestParseICD10Entry(t *testing.T) {
	recs, err := parseICD10Entry(mustDoc(t, `{"code":"E1165","description":"Type 2 diabetes mellitus with hyperglycemia","is_billable":true}`))
	require.NoError(t, err)
	code := recs[0].(*entities.Icd10Code)
	assert.Equal(t, "E11.65", code.Code)
	assert.Equal(t, "E11", code.Category)
	assert.Equal(t, "E11.6", code.ParentCode)
	assert.Equal(t, "Endocrine, nutritional and metabolic diseases", code.Chapter)
	assert.True(t, code.IsBillable)

	assert.Equal(t, "Diseases of the ear and mastoid process", ICD10Chapter("H66.9"))
	assert.Equal(t, "Neoplasms", ICD10Chapter("D12.6"))
}

func TestParseHCPCSEntry(t *testing.T) {
	recs, err := parseHCPCSEntry(mustDoc(t, `{"hcpc":"j0135","short_desc":"Adalimumab injection","term_date":""}`))
	require.NoError(t, err)
	code := recs[0].(*entities.BillingCode)
	assert.Equal(t, "J0135", code.Code)
	assert.Equal(t, "HCPCS", code.CodeType)
	assert.True(t, code.IsActive)
}

func TestParseHealthTopicEntry(t *testing.T) {
	recs, err := parseHealthTopicEntry(mustDoc(t, `{"Id":"30","Title":"Take Steps to Prevent Type 2 Diabetes",
		"Categories":"Diabetes, Nutrition","AccessibleVersion":"https://health.gov/myhealthfinder/30",
		"LastUpdate":"1700000000",
		"Sections":{"section":[{"Title":"Overview","Content":"<p>You can lower your risk.</p>"}]}}`))
	require.NoError(t, err)
	topic := recs[0].(*entities.HealthTopic)
	assert.Equal(t, "30", topic.TopicID)
	assert.Equal(t, "You can lower your risk.", topic.Summary)
	assert.Equal(t, []string{"Diabetes", "Nutrition"}, topic.Keywords)
	assert.Equal(t, "2023-11-14", topic.LastUpdated)
}

func TestParseExerciseAndFood(t *testing.T) {
	recs, err := parseExerciseEntry(mustDoc(t, `{"id":"0001","name":"3/4 sit-up","bodyPart":"waist","equipment":"body weight",
		"target":"abs","secondaryMuscles":["hip flexors"],"instructions":["Lie flat.","Curl up."]}`))
	require.NoError(t, err)
	ex := recs[0].(*entities.Exercise)
	assert.Equal(t, "waist", ex.BodyPart)
	assert.Len(t, ex.Instructions, 2)

	recs, err = parseFoodEntry(mustDoc(t, `{"fdcId":171688,"description":"Apples, raw, with skin","dataType":"SR Legacy",
		"foodCategory":{"description":"Fruits and Fruit Juices"},
		"foodNutrients":[{"nutrient":{"name":"Protein","unitName":"G"},"amount":0.26},{"nutrient":{"name":"Fiber"}}]}`))
	require.NoError(t, err)
	food := recs[0].(*entities.FoodItem)
	assert.Equal(t, "171688", food.FdcID)
	assert.Equal(t, "Fruits and Fruit Juices", food.FoodCategory)
	assert.Equal(t, map[string]float64{"Protein (g)": 0.26}, food.Nutrients)
}
