package extractor

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	UnknownCompany = "Unknown Company"
	nameScanLines  = 20
	previewChars   = 2000
	minNameLength  = 3
	maxNameLength  = 100
)

var headerWords = []string{"sustainability", "report", "annual", "environmental", "esg"}

type PDF struct{}

func New() PDF {
	return PDF{}
}

// ExtractText returns the plain text of every page joined by newlines.
func (PDF) ExtractText(data []byte) (text string, err error) {
	text, _, err = extract(data)
	return text, err
}

func (PDF) GuessCompanyName(text string) string {
	return GuessCompanyName(text)
}

func extract(data []byte) (text string, pages int, err error) {
	// the pdf library panics on some malformed xref tables
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}
	pages = reader.NumPage()
	parts := make([]string, 0, pages)
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", pages, fmt.Errorf("page %d: %w", i, err)
		}
		parts = append(parts, content)
	}
	return strings.Join(parts, "\n"), pages, nil
}

// GuessCompanyName returns the first of the leading non-empty lines that does not look like a
// report header.
func GuessCompanyName(text string) string {
	scanned := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if scanned == nameScanLines {
			break
		}
		scanned++
		if len(line) <= minNameLength || len(line) >= maxNameLength {
			continue
		}
		if containsHeaderWord(line) {
			continue
		}
		return line
	}
	return UnknownCompany
}

func containsHeaderWord(line string) bool {
	lower := strings.ToLower(line)
	for _, w := range headerWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

type Preview struct {
	Pages        int    `json:"pages"`
	Characters   int    `json:"characters"`
	CompanyGuess string `json:"company_name_guess"`
	Excerpt      string `json:"excerpt"`
	HasText      bool   `json:"has_text"`
}

// PreviewDocument runs extraction only, for the upload preview endpoint.
func (PDF) PreviewDocument(data []byte) (*Preview, error) {
	text, pages, err := extract(data)
	if err != nil {
		return nil, err
	}
	runes := []rune(text)
	excerpt := runes
	if len(excerpt) > previewChars {
		excerpt = excerpt[:previewChars]
	}
	return &Preview{
		Pages:        pages,
		Characters:   len(runes),
		CompanyGuess: GuessCompanyName(text),
		Excerpt:      string(excerpt),
		HasText:      strings.TrimSpace(text) != "",
	}, nil
}
