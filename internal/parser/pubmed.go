package parser

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
)

// FormatPubMed parses MEDLINE/PubMed baseline and update XML (optionally gzipped).
const FormatPubMed = "pubmed"

func init() {
	register(&Format{Name: FormatPubMed, File: parsePubMedFile})
}

// markup captures element content that may contain inline tags such as <i>.
type markup struct {
	Inner string `xml:",innerxml"`
}

func (m markup) Text() string {
	return StripMarkup(m.Inner)
}

type pubmedArticle struct {
	Citation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			Journal struct {
				Title string `xml:"Title"`
				Issue struct {
					PubDate struct {
						Year        string `xml:"Year"`
						Month       string `xml:"Month"`
						Day         string `xml:"Day"`
						MedlineDate string `xml:"MedlineDate"`
					} `xml:"PubDate"`
				} `xml:"JournalIssue"`
			} `xml:"Journal"`
			Title    markup `xml:"ArticleTitle"`
			Abstract struct {
				Texts []struct {
					Label string `xml:"Label,attr"`
					Inner string `xml:",innerxml"`
				} `xml:"AbstractText"`
			} `xml:"Abstract"`
			Authors []struct {
				LastName       string `xml:"LastName"`
				ForeName       string `xml:"ForeName"`
				Initials       string `xml:"Initials"`
				CollectiveName string `xml:"CollectiveName"`
			} `xml:"AuthorList>Author"`
			ELocations []struct {
				Type  string `xml:"EIdType,attr"`
				Value string `xml:",chardata"`
			} `xml:"ELocationID"`
		} `xml:"Article"`
		MeshHeadings []struct {
			Descriptor string `xml:"DescriptorName"`
		} `xml:"MeshHeadingList>MeshHeading"`
	} `xml:"MedlineCitation"`
	ArticleIDs []struct {
		Type  string `xml:"IdType,attr"`
		Value string `xml:",chardata"`
	} `xml:"PubmedData>ArticleIdList>ArticleId"`
}

func parsePubMedFile(path string) ([]entities.Record, int, error) {
	in, err := openInput(path)
	if err != nil {
		return nil, 0, err
	}
	defer in.Close()
	return parsePubMedXML(in)
}

// parsePubMedXML streams PubmedArticle elements so that a baseline file is
// never held in memory as one tree.
func parsePubMedXML(r io.Reader) ([]entities.Record, int, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false

	var (
		records []entities.Record
		skipped int
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return records, skipped, nil
		}
		if err != nil {
			return records, skipped, fmt.Errorf("xml token after %d articles: %w", len(records), err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "PubmedArticle" {
			continue
		}

		var raw pubmedArticle
		if err := dec.DecodeElement(&raw, &start); err != nil {
			return records, skipped, fmt.Errorf("decode article after %d articles: %w", len(records), err)
		}
		article := raw.toEntity()
		if article.PMID == "" {
			skipped++
			continue
		}
		records = append(records, article)
	}
}

func (a *pubmedArticle) toEntity() *entities.PubmedArticle {
	c := a.Citation
	out := &entities.PubmedArticle{
		PMID:    strings.TrimSpace(c.PMID),
		Title:   c.Article.Title.Text(),
		Journal: strings.TrimSpace(c.Article.Journal.Title),
		PubDate: pubDate(c.Article.Journal.Issue.PubDate.Year, c.Article.Journal.Issue.PubDate.Month,
			c.Article.Journal.Issue.PubDate.Day, c.Article.Journal.Issue.PubDate.MedlineDate),
	}

	sections := make([]string, 0, len(c.Article.Abstract.Texts))
	for _, t := range c.Article.Abstract.Texts {
		text := StripMarkup(t.Inner)
		if text == "" {
			continue
		}
		if t.Label != "" {
			text = t.Label + ": " + text
		}
		sections = append(sections, text)
	}
	out.Abstract = strings.Join(sections, "\n")

	for _, au := range c.Article.Authors {
		switch {
		case au.CollectiveName != "":
			out.Authors = append(out.Authors, strings.TrimSpace(au.CollectiveName))
		case au.LastName != "":
			name := strings.TrimSpace(au.LastName)
			if initials := strings.TrimSpace(au.Initials); initials != "" {
				name += " " + initials
			} else if fore := strings.TrimSpace(au.ForeName); fore != "" {
				name += " " + fore
			}
			out.Authors = append(out.Authors, name)
		}
	}

	for _, mh := range c.MeshHeadings {
		if d := strings.TrimSpace(mh.Descriptor); d != "" {
			out.MeshTerms = append(out.MeshTerms, d)
		}
	}

	for _, id := range a.ArticleIDs {
		if strings.EqualFold(id.Type, "doi") {
			out.DOI = strings.TrimSpace(id.Value)
			break
		}
	}
	if out.DOI == "" {
		for _, loc := range c.Article.ELocations {
			if strings.EqualFold(loc.Type, "doi") {
				out.DOI = strings.TrimSpace(loc.Value)
				break
			}
		}
	}
	return out
}

var numericMonths = map[string]string{
	"1": "Jan", "01": "Jan", "2": "Feb", "02": "Feb", "3": "Mar", "03": "Mar",
	"4": "Apr", "04": "Apr", "5": "May", "05": "May", "6": "Jun", "06": "Jun",
	"7": "Jul", "07": "Jul", "8": "Aug", "08": "Aug", "9": "Sep", "09": "Sep",
	"10": "Oct", "11": "Nov", "12": "Dec",
}

// pubDate renders "YYYY Mon DD", "YYYY Mon" or "YYYY", falling back to MedlineDate.
func pubDate(year, month, day, medline string) string {
	year = strings.TrimSpace(year)
	if year == "" {
		return strings.TrimSpace(medline)
	}
	parts := []string{year}
	if month = strings.TrimSpace(month); month != "" {
		if abbrev, ok := numericMonths[month]; ok {
			month = abbrev
		}
		parts = append(parts, month)
		if day = strings.TrimSpace(day); day != "" {
			parts = append(parts, day)
		}
	}
	return strings.Join(parts, " ")
}
