// Package index is the searchable store finalized records are projected into.
package index

import (
	"context"
	"math"
	"slices"
	"strings"
	"unicode"
)

// Document is one indexed record. Content holds the record's field JSON.
type Document struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type Query struct {
	Text  string
	Limit int
	Where map[string]string // exact metadata matches
}

type Hit struct {
	Document
	Score float32 `json:"score"`
}

// Index stores documents by id. Upsert replaces any previous document with the same id.
// Get and Delete of a missing id return an error wrapping common.ErrNotFound.
type Index interface {
	Upsert(ctx context.Context, doc Document) error
	Get(ctx context.Context, id string) (Document, error)
	Query(ctx context.Context, q Query) ([]Hit, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// Embedder turns text into vectors for similarity ranking.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

const defaultLimit = 10

func limitOf(q Query) int {
	if q.Limit <= 0 {
		return defaultLimit
	}
	return q.Limit
}

// MatchesWhere reports whether every key in where equals the document's metadata value.
func MatchesWhere(meta, where map[string]string) bool {
	for k, v := range where {
		if meta[k] != v {
			return false
		}
	}
	return true
}

// Terms splits text into lowercase alphanumeric tokens.
func Terms(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// TermScore is the fraction of query terms present in the document.
func TermScore(terms []string, doc Document) float32 {
	if len(terms) == 0 {
		return 0
	}
	hay := strings.ToLower(doc.ID + " " + doc.Content)
	n := 0
	for _, t := range terms {
		if strings.Contains(hay, t) {
			n++
		}
	}
	return float32(n) / float32(len(terms))
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// RankHits sorts by score descending, then id, and applies the limit.
func RankHits(hits []Hit, limit int) []Hit {
	slices.SortFunc(hits, func(a, b Hit) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// RankByTerms scores candidates by term overlap. With empty query text every
// candidate is returned with score 0.
func RankByTerms(text string, candidates []Document, limit int) []Hit {
	terms := Terms(text)
	hits := make([]Hit, 0, len(candidates))
	for _, d := range candidates {
		score := TermScore(terms, d)
		if len(terms) > 0 && score == 0 {
			continue
		}
		hits = append(hits, Hit{Document: d, Score: score})
	}
	return RankHits(hits, limit)
}
