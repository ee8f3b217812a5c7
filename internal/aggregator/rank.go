package aggregator

import (
	"math"
	"sort"
	"strings"

	"github.com/helixir/research-answer-service/internal/domain"
)

// Balance limits each source to ceil(target / sources) papers, taken in
// input order with sources in first-seen order. When that leaves fewer than
// target papers, the leftovers with the most citations fill the gap.
func Balance(papers []domain.PaperRecord, target int) []domain.PaperRecord {
	if len(papers) == 0 || target <= 0 {
		return []domain.PaperRecord{}
	}

	var order []domain.SourceType
	groups := make(map[domain.SourceType][]domain.PaperRecord)
	for _, p := range papers {
		if _, ok := groups[p.Source]; !ok {
			order = append(order, p.Source)
		}
		groups[p.Source] = append(groups[p.Source], p)
	}

	quota := ceilDiv(target, len(order))

	balanced := make([]domain.PaperRecord, 0, target)
	var leftovers []domain.PaperRecord
	for _, src := range order {
		group := groups[src]
		if len(group) <= quota {
			balanced = append(balanced, group...)
			continue
		}
		balanced = append(balanced, group[:quota]...)
		leftovers = append(leftovers, group[quota:]...)
	}

	if len(balanced) < target && len(leftovers) > 0 {
		sort.SliceStable(leftovers, func(i, j int) bool {
			return leftovers[i].CitationCount > leftovers[j].CitationCount
		})
		need := target - len(balanced)
		if need > len(leftovers) {
			need = len(leftovers)
		}
		balanced = append(balanced, leftovers[:need]...)
	}

	return balanced
}

// Score computes the composite relevance score of p for query.
// lowerQuery must already be lower-cased and trimmed.
func Score(p domain.PaperRecord, lowerQuery string, currentYear int) float64 {
	score := 0.0

	if year, ok := p.YearInt(); ok {
		score += math.Max(0, 5-float64(currentYear-year))
	}

	score += math.Min(10, 2*math.Log1p(float64(p.CitationCount)))

	if lowerQuery != "" && strings.Contains(strings.ToLower(p.Title), lowerQuery) {
		score += 5
	}

	hasAbstract := p.HasAbstract()
	if hasAbstract && lowerQuery != "" && strings.Contains(strings.ToLower(p.Abstract), lowerQuery) {
		score += 3
	}

	if hasAbstract {
		score += 2
	}
	if p.CitationCount > 0 {
		score += 1
	}
	if len(p.Authors) > 0 {
		score += 2
	}

	return score
}

// Rank returns a copy of papers with RelevanceScore set, stable-sorted by
// score descending.
func Rank(papers []domain.PaperRecord, query string, currentYear int) []domain.PaperRecord {
	lowerQuery := strings.ToLower(strings.TrimSpace(query))

	ranked := domain.ClonePapers(papers)
	if ranked == nil {
		return []domain.PaperRecord{}
	}
	for i := range ranked {
		ranked[i].RelevanceScore = Score(ranked[i], lowerQuery, currentYear)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RelevanceScore > ranked[j].RelevanceScore
	})
	return ranked
}
