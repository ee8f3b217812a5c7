// Package dedup removes duplicate paper records returned by different
// academic sources for the same work.
//
// Two records are duplicates when the normalized title of one contains the
// normalized title of the other. Normalization lower-cases the title, drops
// every character that is not a letter, digit or space, and collapses runs
// of whitespace.
package dedup

import (
	"strings"
	"unicode"

	"github.com/helixir/research-answer-service/internal/domain"
)

// NormalizeTitle normalizes a title for duplicate comparison:
//   - Converts to lowercase
//   - Removes all characters that are not letters, digits or whitespace
//   - Collapses multiple spaces to a single space
//   - Trims leading and trailing whitespace
//
// The "Untitled" fallback normalizes to the empty string so that records
// without a title are never merged.
func NormalizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" || title == domain.UntitledPaper {
		return ""
	}

	title = strings.ToLower(title)

	var sb strings.Builder
	sb.Grow(len(title))
	prevSpace := false

	for _, r := range title {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r):
			if !prevSpace && sb.Len() > 0 {
				sb.WriteRune(' ')
				prevSpace = true
			}
		}
		// Punctuation and symbols are dropped.
	}

	return strings.TrimRight(sb.String(), " ")
}

// Deduplicate returns papers with duplicates removed, keeping the first
// occurrence and the input order. A record is a duplicate when its
// normalized title contains, or is contained in, the normalized title of an
// already kept record. Records with an empty normalized title are always
// kept.
//
// Deduplicate is idempotent and does not modify the input slice.
func Deduplicate(papers []domain.PaperRecord) []domain.PaperRecord {
	kept := make([]domain.PaperRecord, 0, len(papers))
	keptTitles := make([]string, 0, len(papers))

	for _, p := range papers {
		norm := NormalizeTitle(p.Title)
		if norm != "" && isDuplicate(norm, keptTitles) {
			continue
		}
		kept = append(kept, p)
		if norm != "" {
			keptTitles = append(keptTitles, norm)
		}
	}

	return kept
}

func isDuplicate(norm string, keptTitles []string) bool {
	for _, k := range keptTitles {
		if strings.Contains(k, norm) || strings.Contains(norm, k) {
			return true
		}
	}
	return false
}
