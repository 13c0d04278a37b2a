// Package ordering sorts document outputs by a configured list of name prefixes.
package ordering

import (
	"sort"
	"strings"

	"github.com/hochfrequenz/docai-batch/internal/domain"
)

// OrderedDocument is one document's place in the output order
type OrderedDocument struct {
	DocumentID string `json:"document_id"`
	Rank       int    `json:"rank"`        // 0-based position in the output
	MatchIndex int    `json:"match_index"` // index of the matching config entry, -1 if none
	Entry      string `json:"entry,omitempty"`
}

// Matched reports whether a config entry matched the document
func (d OrderedDocument) Matched() bool {
	return d.MatchIndex >= 0
}

// Match returns the index of the first config entry that is a case-insensitive
// prefix of the document's base name, or -1
func Match(documentID string, cfg Config) int {
	base := strings.ToLower(domain.BaseName(documentID))
	for i, entry := range cfg.Priority {
		if strings.HasPrefix(base, strings.ToLower(entry)) {
			return i
		}
	}
	return -1
}

// Order returns every distinct id exactly once. Matched documents come first by
// entry index, then the rest alphabetically. The result does not depend on input order.
func Order(ids []string, cfg Config) []OrderedDocument {
	seen := make(map[string]bool, len(ids))
	docs := make([]OrderedDocument, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		idx := Match(id, cfg)
		d := OrderedDocument{DocumentID: id, MatchIndex: idx}
		if idx >= 0 {
			d.Entry = cfg.Priority[idx]
		}
		docs = append(docs, d)
	}

	sort.Slice(docs, func(i, j int) bool {
		a, b := docs[i], docs[j]

		// 1. Matched before unmatched
		if a.Matched() != b.Matched() {
			return a.Matched()
		}

		// 2. Config position
		if a.Matched() {
			if a.MatchIndex != b.MatchIndex {
				return a.MatchIndex < b.MatchIndex
			}
			return a.DocumentID < b.DocumentID
		}

		// 3. Alphabetical, case-insensitive first
		la, lb := strings.ToLower(a.DocumentID), strings.ToLower(b.DocumentID)
		if la != lb {
			return la < lb
		}
		return a.DocumentID < b.DocumentID
	})

	for i := range docs {
		docs[i].Rank = i
	}
	return docs
}

// IDs returns the document ids in order
func IDs(docs []OrderedDocument) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.DocumentID
	}
	return out
}

// UnusedEntries returns config entries that matched no document
func UnusedEntries(docs []OrderedDocument, cfg Config) []string {
	used := make(map[int]bool)
	for _, d := range docs {
		if d.Matched() {
			used[d.MatchIndex] = true
		}
	}
	var unused []string
	for i, entry := range cfg.Priority {
		if !used[i] {
			unused = append(unused, entry)
		}
	}
	return unused
}
