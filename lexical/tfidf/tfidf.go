package tfidf

import (
	"math"
	"strings"
)

// Tokenize normalizes a text for lexical scoring: lowercase, whitespace
// collapsed, split into terms. Punctuation is kept attached to its term so
// scoring stays symmetric with the fingerprint normalization.
func Tokenize(s string) []string {
	return strings.Fields(strings.ToLower(strings.TrimSpace(s)))
}

// Scorer holds term statistics for one candidate set.
type Scorer struct {
	idf   map[string]float64
	docTF []map[string]int
}

// NewScorer builds term statistics over the candidate documents. Document
// frequency is smoothed:
//
//	idf(t) = ln((N+1)/(df(t)+1)) + 1
//
// so terms appearing in every candidate still contribute a little instead of
// vanishing.
func NewScorer(docs []string) *Scorer {
	docTF := make([]map[string]int, len(docs))
	df := make(map[string]int)

	for i, doc := range docs {
		tf := make(map[string]int)
		for _, t := range Tokenize(doc) {
			tf[t]++
		}
		docTF[i] = tf
		for t := range tf {
			df[t]++
		}
	}

	n := len(docs)
	if n < 1 {
		n = 1
	}
	idf := make(map[string]float64, len(df))
	for t, dft := range df {
		idf[t] = math.Log(float64(n+1)/float64(dft+1)) + 1
	}

	return &Scorer{idf: idf, docTF: docTF}
}

// Scores returns one lexical score per candidate document, aligned with the
// docs passed to NewScorer. Each score is the weighted term overlap:
//
//	score(d) = sum over query terms t of tf_q(t)*idf(t) * tf_d(t)*idf(t)
//
// A query sharing no terms with a document scores zero.
func (s *Scorer) Scores(query string) []float64 {
	queryTF := make(map[string]int)
	for _, t := range Tokenize(query) {
		queryTF[t]++
	}

	queryWeight := make(map[string]float64, len(queryTF))
	for t, tf := range queryTF {
		if idf, ok := s.idf[t]; ok {
			queryWeight[t] = float64(tf) * idf
		}
	}

	scores := make([]float64, len(s.docTF))
	for i, tf := range s.docTF {
		var sum float64
		for t, wq := range queryWeight {
			if tfd, ok := tf[t]; ok {
				sum += wq * float64(tfd) * s.idf[t]
			}
		}
		scores[i] = sum
	}
	return scores
}
