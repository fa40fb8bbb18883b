// Package vector embeds queries and retrieves nearest-neighbor contacts
// from persisted contact embeddings.
package vector

import (
	"context"
	"math"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/tapcard/contact-search/internal/model"
	"github.com/tapcard/contact-search/internal/store"
)

// ContactStore is the subset of the store the searcher reads from.
type ContactStore interface {
	ListContacts(ctx context.Context, userID string) ([]model.Contact, error)
	ListEmbeddings(ctx context.Context, userID string) ([]store.ContactEmbedding, error)
}

// Match pairs a contact id with its cosine similarity to a query vector.
type Match struct {
	ContactID string
	Score     float64
}

// Index performs brute-force cosine similarity over a user's stored
// embeddings. Per-user contact sets are small enough (hundreds, not
// millions) that a scan beats the operational cost of a dedicated ANN
// service.
type Index struct {
	store ContactStore
}

func NewIndex(s ContactStore) *Index {
	return &Index{store: s}
}

// Nearest returns the topK closest contacts to the query vector, ordered by
// descending similarity. Embeddings with a mismatched dimension are skipped.
func (ix *Index) Nearest(ctx context.Context, userID string, query []float32, topK int) ([]Match, error) {
	embeddings, err := ix.store.ListEmbeddings(ctx, userID)
	if err != nil {
		return nil, eris.Wrapf(err, "vector: list embeddings for %s", userID)
	}

	matches := make([]Match, 0, len(embeddings))
	for _, e := range embeddings {
		if len(e.Vector) != len(query) {
			continue
		}
		matches = append(matches, Match{ContactID: e.ContactID, Score: CosineSimilarity(query, e.Vector)})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Returns 0 for zero-magnitude inputs.
func CosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
