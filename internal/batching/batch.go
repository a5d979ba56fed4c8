// Package batching groups ordered document pages into bounded batches for
// model calls.
package batching

import (
	"regexp"
	"strings"
)

// Page is one page of extracted document text.
type Page struct {
	Number int    `json:"page_number"`
	Text   string `json:"text"`
}

// Batch is a bounded group of consecutive pages merged into one text blob.
// Consumed read-only by gateway calls; never persisted.
type Batch struct {
	PageNumbers []int
	Text        string
}

// pageSeparator joins page texts within a batch.
const pageSeparator = "\n\n"

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeText collapses runs of whitespace to single spaces and trims.
func NormalizeText(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// BuildBatches groups pages in order into batches bounded by page count and
// character budget. A batch is closed before adding a page when it already
// holds maxPages pages, or when adding the normalized page text would push the
// accumulated character count past maxChars. A batch is never closed while
// empty, so a single oversized page still becomes its own batch. Page order is
// preserved within and across batches; batches never overlap.
func BuildBatches(pages []Page, maxPages, maxChars int) []Batch {
	var batches []Batch
	var current Batch
	var sb strings.Builder

	flush := func() {
		if len(current.PageNumbers) == 0 {
			return
		}
		current.Text = sb.String()
		batches = append(batches, current)
		current = Batch{}
		sb.Reset()
	}

	for _, page := range pages {
		text := NormalizeText(page.Text)

		if len(current.PageNumbers) > 0 {
			added := sb.Len() + len(pageSeparator) + len(text)
			if len(current.PageNumbers) >= maxPages || added > maxChars {
				flush()
			}
		}

		if sb.Len() > 0 {
			sb.WriteString(pageSeparator)
		}
		sb.WriteString(text)
		current.PageNumbers = append(current.PageNumbers, page.Number)
	}

	flush()
	return batches
}
