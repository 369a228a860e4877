package memory

import "github.com/cadre-oss/hearth/internal/embed"

// lexicalRelevance is the share of the query's distinct surface features
// that also appear in text. It is 0 for an empty query.
func lexicalRelevance(query, text string) float64 {
	q := featureSet(query)
	if len(q) == 0 {
		return 0
	}
	t := featureSet(text)
	hits := 0
	for f := range q {
		if _, ok := t[f]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(q))
}

func featureSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, f := range embed.Features(text) {
		set[f] = struct{}{}
	}
	return set
}
