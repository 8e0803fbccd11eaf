// Package retrieval returns the codebook passages most relevant to a
// question. Retrieval is best-effort enrichment: every failure degrades to
// an empty result instead of propagating.
package retrieval

import (
	"context"
	"strings"

	"surveychat/internal/codebook"
	"surveychat/internal/logging"
)

// NoContextMarker is substituted when retrieval produced nothing, so the
// synthesizer prompt never carries a null/empty context section.
const NoContextMarker = "(no codebook context retrieved)"

// Searcher is the document-similarity search boundary.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]codebook.Passage, error)
}

// Retriever wraps a Searcher with clamping and failure suppression.
type Retriever struct {
	store Searcher
	topK  int
}

// New creates a Retriever. topK is the default passage count.
func New(store Searcher, topK int) *Retriever {
	if topK <= 0 {
		topK = 4
	}
	return &Retriever{store: store, topK: topK}
}

// Retrieve returns up to k passages ordered by descending similarity.
// Any underlying failure returns an empty slice.
func (r *Retriever) Retrieve(ctx context.Context, question string, k int) []codebook.Passage {
	timer := logging.StartTimer(logging.CategoryRetrieval, "Retrieve")
	defer timer.Stop()

	if k <= 0 {
		k = r.topK
	}

	passages, err := r.store.Search(ctx, question, k)
	if err != nil {
		logging.Get(logging.CategoryRetrieval).Warn("retrieval failed, continuing without context: %v", err)
		return nil
	}

	logging.RetrievalDebug("retrieved %d passages for question (len=%d)", len(passages), len(question))
	return passages
}

// FormatContext renders passages into the context block handed to the
// synthesizer. Empty input yields the explicit no-context marker.
func FormatContext(passages []codebook.Passage) string {
	if len(passages) == 0 {
		return NoContextMarker
	}
	var b strings.Builder
	for i, p := range passages {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		b.WriteString(strings.TrimSpace(p.Content))
	}
	return b.String()
}
