package parser

import (
	"archive/zip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
)

// FormatOrangeBook parses the Orange Book products.txt file, either bare or
// inside the downloaded EOB zip archive.
const FormatOrangeBook = "orangebook"

func init() {
	register(&Format{Name: FormatOrangeBook, File: parseOrangeBookFile})
}

func parseOrangeBookFile(path string) ([]entities.Record, int, error) {
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		return parseOrangeBookZip(path)
	}
	in, err := openInput(path)
	if err != nil {
		return nil, 0, err
	}
	defer in.Close()
	return parseOrangeBookProducts(in)
}

func parseOrangeBookZip(path string) ([]entities.Record, int, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, 0, err
	}
	defer zr.Close()

	for _, f := range zr.File {
		if !strings.EqualFold(filepath.Base(f.Name), "products.txt") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, 0, err
		}
		defer rc.Close()
		return parseOrangeBookProducts(rc)
	}
	return nil, 0, errors.New("products.txt not found in archive")
}

// parseOrangeBookProducts reads the "~"-delimited product table. Columns are
// located by header name.
func parseOrangeBookProducts(r io.Reader) ([]entities.Record, int, error) {
	cr := csv.NewReader(r)
	cr.Comma = '~'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, required := range []string{"ingredient", "appl_no", "product_no"} {
		if _, ok := col[required]; !ok {
			return nil, 0, fmt.Errorf("missing column %q", required)
		}
	}
	get := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var (
		records []entities.Record
		skipped int
	)
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			return records, skipped, nil
		}
		if err != nil {
			return records, skipped, fmt.Errorf("line %d: %w", line, err)
		}

		ingredient := get(row, "ingredient")
		applNo := get(row, "appl_no")
		if ingredient == "" || applNo == "" {
			skipped++
			continue
		}

		form, route := splitFormRoute(get(row, "df;route"))
		approval := get(row, "approval_date")
		if strings.HasPrefix(approval, "Approved Prior to ") {
			approval = strings.TrimPrefix(approval, "Approved Prior to ")
		}
		records = append(records, &entities.DrugInformation{
			NDC:               OrangeBookKey(get(row, "appl_type"), applNo, get(row, "product_no")),
			GenericName:       ingredient,
			BrandName:         get(row, "trade_name"),
			Manufacturer:      firstNonEmpty(get(row, "applicant_full_name"), get(row, "applicant")),
			Strength:          get(row, "strength"),
			DosageForm:        form,
			Route:             route,
			ApplicationNumber: get(row, "appl_type") + applNo,
			ApprovalDate:      approval,
			OrangeBookCode:    get(row, "te_code"),
			DataSource:        SourceOrangeBook,
		})
	}
}

func splitFormRoute(value string) (string, string) {
	form, route, _ := strings.Cut(value, ";")
	return strings.TrimSpace(form), strings.TrimSpace(route)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
