// Package search provides a small, deterministic, in-memory keyword index
// over short documents such as news headlines and descriptions.
//
// Scoring uses Jaccard similarity between the query token set and each
// document's token set: score = |Q ∩ D| / |Q ∪ D|. An Index is immutable
// after construction and safe for concurrent use.
package search

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Doc is one searchable document. Key identifies it to the caller.
type Doc struct {
	Key  string
	Text string
}

// Hit is a matching document key with its similarity score.
type Hit struct {
	Key   string
	Score float64
}

// Option configures New.
type Option func(*options)

type options struct {
	stopwords map[string]struct{}
	minScore  float64
}

// WithStopwords drops the given words from both documents and queries.
func WithStopwords(words ...string) Option {
	return func(o *options) {
		if o.stopwords == nil {
			o.stopwords = make(map[string]struct{}, len(words))
		}
		for _, w := range words {
			if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
				o.stopwords[w] = struct{}{}
			}
		}
	}
}

// WithMinScore discards hits scoring below s.
func WithMinScore(s float64) Option {
	return func(o *options) {
		if s > 0 {
			o.minScore = s
		}
	}
}

type entry struct {
	key    string
	order  int
	tokens map[string]struct{}
}

// Index ranks documents against keyword queries.
type Index struct {
	opts    options
	entries []entry
}

// New builds an Index over docs. Documents without indexable words are
// skipped. Input order breaks score ties, so callers pass docs in the order
// they prefer (e.g. newest first).
func New(docs []Doc, opts ...Option) *Index {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	idx := &Index{opts: o, entries: make([]entry, 0, len(docs))}
	for i, d := range docs {
		toks := tokenize(d.Text, o.stopwords)
		if len(toks) == 0 {
			continue
		}
		idx.entries = append(idx.entries, entry{key: d.Key, order: i, tokens: toks})
	}
	return idx
}

// Len reports the number of indexed documents.
func (i *Index) Len() int { return len(i.entries) }

// TopK returns up to k best-matching documents, highest score first. A
// blank query, k <= 0, or a query matching nothing yields nil.
func (i *Index) TopK(q string, k int) []Hit {
	if k <= 0 || len(i.entries) == 0 {
		return nil
	}
	qt := tokenize(q, i.opts.stopwords)
	if len(qt) == 0 {
		return nil
	}

	type scored struct {
		entry *entry
		score float64
	}
	var buf []scored
	for n := range i.entries {
		e := &i.entries[n]
		over := overlap(qt, e.tokens)
		if over == 0 {
			continue
		}
		score := float64(over) / float64(len(qt)+len(e.tokens)-over)
		if score < i.opts.minScore {
			continue
		}
		buf = append(buf, scored{entry: e, score: score})
	}
	if len(buf) == 0 {
		return nil
	}

	sort.Slice(buf, func(a, b int) bool {
		if buf[a].score != buf[b].score {
			return buf[a].score > buf[b].score
		}
		return buf[a].entry.order < buf[b].entry.order
	})

	if k > len(buf) {
		k = len(buf)
	}
	out := make([]Hit, k)
	for n := 0; n < k; n++ {
		out[n] = Hit{Key: buf[n].entry.key, Score: buf[n].score}
	}
	return out
}

var wordRE = regexp.MustCompile(`[\p{L}\p{N}]+`)

// tokenize lowercases s in NFC form and returns its distinct words.
func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(strings.ToLower(norm.NFC.String(s)), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, skip := stop[w]; skip {
			continue
		}
		out[w] = struct{}{}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}
