// Package tfidf scores candidate documents against a query with smoothed
// TF-IDF term weighting.
//
// Unlike a persistent lexical index, the scorer is built per query over the
// candidate set the vector search already produced: document frequencies are
// computed across just those candidates. That keeps the lexical signal free
// of index maintenance at the cost of O(candidates) work per query, which is
// acceptable because candidate sets are small.
package tfidf
