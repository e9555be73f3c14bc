// Package ranker scores tables in a schema snapshot against a natural
// language query and returns the top-N candidates. Two scoring modes are
// supported: an embedding-store mode, and an ad-hoc TF-IDF fit over the
// snapshot at request time.
//
// In embedding-store mode the stored rows only decide which tables are
// scored: each such table is scored by cosine similarity between the raw
// term frequencies of the query and of the table's description and column
// text, plus the column-overlap boost. The stored vectors themselves are not
// used in the score. When the store has no rows for any snapshot table, the
// ad-hoc TF-IDF mode runs instead.
//
// No TF-IDF library appears anywhere in the retrieved example pack (see
// DESIGN.md), so the ad-hoc mode is a small hand-rolled implementation:
// term frequencies weighted by a smoothed inverse document frequency,
// compared by cosine similarity.
package ranker

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/pgnlq/isaqe/pkg/model"
)

var tokenPattern = regexp.MustCompile(`[a-zA-Z0-9_]+`)

var englishStopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "has": {}, "he": {}, "in": {}, "is": {},
	"it": {}, "its": {}, "of": {}, "on": {}, "that": {}, "the": {}, "to": {},
	"was": {}, "were": {}, "will": {}, "with": {},
}

func tokenize(s string) []string {
	matches := tokenPattern.FindAllString(strings.ToLower(s), -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, stop := englishStopWords[m]; stop {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Ranker scores and ranks schema tables against a query.
type Ranker struct {
	store *EmbeddingStore
}

// New builds a Ranker. A nil store runs ad-hoc TF-IDF only.
func New(store *EmbeddingStore) *Ranker {
	return &Ranker{store: store}
}

// RankTables returns up to topN table keys from snapshot, scored against
// query and ordered by descending score with stable ties.
func (r *Ranker) RankTables(ctx context.Context, query string, snapshot model.SchemaSnapshot, topN int) ([]string, error) {
	if len(snapshot.Tables) == 0 {
		return nil, nil
	}

	var scored []scoredTable
	var err error
	if r.store != nil {
		scored, err = r.scoreWithEmbeddings(ctx, query, snapshot)
		if err != nil {
			return nil, err
		}
	}
	if scored == nil {
		scored = r.scoreWithTFIDF(query, snapshot)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	if topN > len(scored) {
		topN = len(scored)
	}
	out := make([]string, topN)
	for i := 0; i < topN; i++ {
		out[i] = scored[i].table
	}
	return out, nil
}

type scoredTable struct {
	table string
	score float64
}

func (r *Ranker) scoreWithEmbeddings(ctx context.Context, query string, snapshot model.SchemaSnapshot) ([]scoredTable, error) {
	records, err := r.store.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	queryVec := termFrequency(tokenize(query))

	scored := make([]scoredTable, 0, len(records))
	for _, rec := range records {
		tm, ok := snapshot.Tables[rec.Table]
		if !ok {
			continue
		}
		doc := tokenize(tm.Description)
		for name, col := range tm.Columns {
			if col.Description != "" {
				doc = append(doc, tokenize(col.Description)...)
			} else {
				doc = append(doc, tokenize(name)...)
			}
		}
		docVec := termFrequency(doc)
		score := cosineSimilarity(queryVec, docVec) + columnOverlapBoost(query, tm)
		scored = append(scored, scoredTable{table: rec.Table, score: score})
	}
	if len(scored) == 0 {
		return nil, nil
	}
	return scored, nil
}

func (r *Ranker) scoreWithTFIDF(query string, snapshot model.SchemaSnapshot) []scoredTable {
	keys := make([]string, 0, len(snapshot.Tables))
	for k := range snapshot.Tables {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	docs := make(map[string][]string, len(keys))
	for _, key := range keys {
		tm := snapshot.Tables[key]
		doc := []string{key}
		doc = append(doc, tokenize(tm.Description)...)
		for name, col := range tm.Columns {
			doc = append(doc, tokenize(name)...)
			if col.Description != "" {
				doc = append(doc, tokenize(col.Description)...)
			}
		}
		docs[key] = doc
	}

	idf := inverseDocumentFrequency(docs)

	scored := make([]scoredTable, 0, len(keys))
	queryTF := termFrequency(tokenize(query))
	queryVec := tfidfVector(queryTF, idf)

	for _, key := range keys {
		docTF := termFrequency(docs[key])
		docVec := tfidfVector(docTF, idf)
		scored = append(scored, scoredTable{table: key, score: cosineSimilarity(queryVec, docVec)})
	}
	return scored
}

func columnOverlapBoost(query string, tm model.TableMeta) float64 {
	if strings.TrimSpace(query) == "" {
		return 0
	}
	lowerQuery := strings.ToLower(query)
	boost := 0.0
	for name := range tm.Columns {
		if strings.Contains(lowerQuery, strings.ToLower(name)) {
			boost += 0.1
		}
	}
	if boost > 0.5 {
		boost = 0.5
	}
	return boost
}

func termFrequency(tokens []string) map[string]float64 {
	tf := make(map[string]float64)
	for _, t := range tokens {
		tf[t]++
	}
	return tf
}

func inverseDocumentFrequency(docs map[string][]string) map[string]float64 {
	n := float64(len(docs))
	df := make(map[string]float64)
	for _, doc := range docs {
		seen := make(map[string]struct{})
		for _, t := range doc {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			df[t]++
		}
	}
	idf := make(map[string]float64, len(df))
	for term, count := range df {
		idf[term] = math.Log((n+1)/(count+1)) + 1
	}
	return idf
}

func tfidfVector(tf map[string]float64, idf map[string]float64) map[string]float64 {
	vec := make(map[string]float64, len(tf))
	for term, freq := range tf {
		vec[term] = freq * idf[term]
	}
	return vec
}

func cosineSimilarity(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for term, va := range a {
		dot += va * b[term]
		normA += va * va
	}
	for _, vb := range b {
		normB += vb * vb
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
